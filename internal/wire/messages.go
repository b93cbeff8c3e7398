// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import "encoding/json"

// ProvisionalIdentityClaim wraps an Identity claim broadcast (spec.md §6).
// Claim is kept as raw JSON here: internal/wire has no dependency on
// internal/identity, so callers decode the embedded claim with their own
// concrete type after routing on Type.
type ProvisionalIdentityClaim struct {
	Claim json.RawMessage `json:"claim"`
}

// IdentityConfirmationSlip wraps a confirmation slip.
type IdentityConfirmationSlip struct {
	Slip json.RawMessage `json:"slip"`
}

// NewPost wraps a signed post.
type NewPost struct {
	Post json.RawMessage `json:"post"`
}

// ParentUpdate links a reply to a parent once the parent becomes known.
type ParentUpdate struct {
	ParentID []byte `json:"parent_id"`
	ReplyID  []byte `json:"reply_id"`
}

// CarrierUpdate announces a carrier-set change for a post.
type CarrierUpdate struct {
	PostID   []byte `json:"post_id"`
	Peer     string `json:"peer"`
	Carrying bool   `json:"carrying"`
}

// PostAttestation wraps a signed attestation.
type PostAttestation struct {
	Attestation    json.RawMessage `json:"attestation"`
	AttesterHandle string          `json:"attester_handle"`
	AttesterPK     []byte          `json:"attester_pk"`
	Signature      []byte          `json:"signature"`
}

// PostRating wraps a signed rating, matching spec.md §3 "Rating" verbatim.
type PostRating struct {
	PostID     []byte  `json:"post_id"`
	Voter      string  `json:"voter"`
	Vote       string  `json:"vote"`
	Reputation float64 `json:"reputation"`
	Timestamp  int64   `json:"timestamp"`
	Signature  []byte  `json:"signature"`
	VoterPK    []byte  `json:"voter_pk"`
}

// E2EDM is an end-to-end encrypted direct message envelope.
type E2EDM struct {
	Recipient   string `json:"recipient"`
	Sender      string `json:"sender"`
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
	Timestamp   int64  `json:"ts"`
	RoutingHint string `json:"routing_hint,omitempty"`
	MessageID   []byte `json:"message_id,omitempty"`
	IsRetry     bool   `json:"is_retry,omitempty"`
}

// DMDelivered is a delivery receipt flowing back to the sender.
type DMDelivered struct {
	MessageID   []byte `json:"message_id"`
	Recipient   string `json:"recipient"`
	DeliveredAt int64  `json:"delivered_at"`
}

// RequestImageChunks asks a peer for specific missing chunks of a blob.
type RequestImageChunks struct {
	ImageHash    []byte   `json:"image_hash"`
	ChunkHashes  [][]byte `json:"chunk_hashes"`
	RequestID    string   `json:"request_id"`
}

// ImageChunk carries one chunk's bytes in response to RequestImageChunks.
type ImageChunk struct {
	ImageHash []byte `json:"image_hash"`
	ChunkHash []byte `json:"chunk_hash"`
	Data      []byte `json:"data"`
	RequestID string `json:"request_id,omitempty"`
}

// PeerInfo is one entry of a peer_exchange message.
type PeerInfo struct {
	ID string `json:"id"`
}

// PeerExchange carries a batch of peer identifiers (spec.md §6, HyParView
// shuffle).
type PeerExchange struct {
	Peers []PeerInfo `json:"peers"`
}

// DHT RPCs, inline rpc_id per spec.md §6.

// Contact is one peer entry, both the sender identification carried on
// every DHT RPC request and the entries FIND_NODE/FIND_VALUE reply with.
type Contact struct {
	NodeID     []byte `json:"node_id"`
	WirePeerID string `json:"wire_peer_id"`
}

type Ping struct {
	RPCID string  `json:"rpc_id"`
	From  Contact `json:"from"`
}

type Pong struct {
	RPCID string `json:"rpc_id"`
}

type FindNode struct {
	RPCID  string  `json:"rpc_id"`
	From   Contact `json:"from"`
	Target []byte  `json:"target"`
}

type FindValue struct {
	RPCID string  `json:"rpc_id"`
	From  Contact `json:"from"`
	Key   []byte  `json:"key"`
}

type Store struct {
	RPCID string  `json:"rpc_id"`
	From  Contact `json:"from"`
	Key   []byte  `json:"key"`
	Value []byte  `json:"value"`
}

// FindNodeReply answers a FindNode with the k closest known contacts.
type FindNodeReply struct {
	RPCID    string    `json:"rpc_id"`
	Contacts []Contact `json:"contacts"`
}

// FindValueReply answers a FindValue with either a value or the k closest
// contacts (spec.md §4.4 "find_value(key) -> value | k closest").
type FindValueReply struct {
	RPCID    string    `json:"rpc_id"`
	Value    []byte    `json:"value,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
}

// StoreReply acknowledges a Store RPC.
type StoreReply struct {
	RPCID string `json:"rpc_id"`
}

// Scribe/Plumtree messages (spec.md §4.6, §6).

type Subscribe struct {
	Topic string `json:"topic"`
}

type Unsubscribe struct {
	Topic string `json:"topic"`
}

type Multicast struct {
	Topic     string `json:"topic"`
	MessageID []byte `json:"message_id"`
	Payload   []byte `json:"payload"`
}

type Graft struct {
	Topic     string `json:"topic"`
	MessageID []byte `json:"message_id"`
}

type Prune struct {
	Topic string `json:"topic"`
}

type IHave struct {
	Topic     string `json:"topic"`
	MessageID []byte `json:"message_id"`
}

// HyParView membership messages (spec.md §4.5 JOIN/FORWARD_JOIN and the
// active/passive view maintenance that follows from it).

// PeerRef identifies one overlay peer on the wire.
type PeerRef struct {
	NodeID     []byte `json:"node_id"`
	WirePeerID string `json:"wire_peer_id"`
}

type Join struct {
	Joiner PeerRef `json:"joiner"`
}

type ForwardJoin struct {
	Joiner PeerRef `json:"joiner"`
	TTL    int     `json:"ttl"`
}

type Disconnect struct{}

type Neighbor struct{}

type Shuffle struct {
	Sample []PeerRef `json:"sample"`
	TTL    int       `json:"ttl"`
}

type ShuffleReply struct {
	Sample []PeerRef `json:"sample"`
}
