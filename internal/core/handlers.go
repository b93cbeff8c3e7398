// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/multicast"
	"github.com/publiuspseudis/ember/internal/overlay"
	"github.com/publiuspseudis/ember/internal/post"
	"github.com/publiuspseudis/ember/internal/wire"
)

func contactsToWire(cs []dht.Contact) []wire.Contact {
	out := make([]wire.Contact, len(cs))
	for i, c := range cs {
		out[i] = contactToWire(c)
	}
	return out
}

func idFromBytes(b []byte) dht.ID {
	var id dht.ID
	copy(id[:], b)
	return id
}

func id16FromBytes(b []byte) [16]byte {
	var id [16]byte
	copy(id[:], b)
	return id
}

func messageIDFromBytes(b []byte) multicast.MessageID {
	var id multicast.MessageID
	copy(id[:], b)
	return id
}

func toOverlayPeers(refs []wire.PeerRef) []overlay.Peer {
	out := make([]overlay.Peer, len(refs))
	for i, r := range refs {
		out[i] = fromPeerRef(r)
	}
	return out
}

// mustEncode encodes a reply payload, logging and returning nil on failure
// so callers can no-op a Send rather than thread an error back through
// every handler.
func mustEncode(n *Node, t wire.Type, payload any) []byte {
	raw, err := wire.Encode(t, payload)
	if err != nil {
		n.logger.Error("encoding wire reply", zap.String("type", string(t)), zap.Error(err))
		return nil
	}
	return raw
}

// peerByWireID resolves a wire-level peer id to its overlay Peer by
// searching both views; a peer absent from both has never joined this
// node's overlay membership.
func (n *Node) peerByWireID(wirePeer string) (overlay.Peer, bool) {
	for _, p := range n.overlay.Active() {
		if p.WirePeerID == wirePeer {
			return p, true
		}
	}
	for _, p := range n.overlay.Passive() {
		if p.WirePeerID == wirePeer {
			return p, true
		}
	}
	return overlay.Peer{}, false
}

// registerHandlers wires every wire.Type to its component call (spec.md §6
// "External interfaces"), adapted from the teacher's chain-of-routers
// pattern (networking/router) to a flat type-keyed table.
func (n *Node) registerHandlers() {
	d := n.dispatcher

	d.Register(wire.TypePing, n.handlePing)
	d.Register(wire.TypeFindNode, n.handleFindNode)
	d.Register(wire.TypeFindValue, n.handleFindValue)
	d.Register(wire.TypeStore, n.handleStore)
	d.Register(wire.TypePong, n.handleRPCReply)
	d.Register(wire.TypeFindNodeReply, n.handleRPCReply)
	d.Register(wire.TypeFindValueReply, n.handleRPCReply)
	d.Register(wire.TypeStoreReply, n.handleRPCReply)

	d.Register(wire.TypeJoin, n.handleJoin)
	d.Register(wire.TypeForwardJoin, n.handleForwardJoin)
	d.Register(wire.TypeDisconnect, n.handleDisconnect)
	d.Register(wire.TypeNeighbor, n.handleNeighbor)
	d.Register(wire.TypeShuffle, n.handleShuffle)
	d.Register(wire.TypeShuffleReply, n.handleShuffleReply)

	d.Register(wire.TypeSubscribe, n.handleSubscribe)
	d.Register(wire.TypeUnsubscribe, n.handleUnsubscribe)
	d.Register(wire.TypeMulticast, n.handleMulticast)
	d.Register(wire.TypeIHave, n.handleIHave)
	d.Register(wire.TypeGraft, n.handleGraft)
	d.Register(wire.TypePrune, n.handlePrune)

	d.Register(wire.TypeProvisionalIdentityClaim, n.handleProvisionalClaim)
	d.Register(wire.TypeIdentityConfirmationSlip, n.handleConfirmationSlip)

	d.Register(wire.TypeNewPost, n.handleNewPost)
	d.Register(wire.TypeCarrierUpdate, n.handleCarrierUpdate)
	d.Register(wire.TypePostAttestation, n.handlePostAttestation)
	d.Register(wire.TypePostRating, n.handlePostRating)

	d.Register(wire.TypeE2EDM, n.handleE2EDM)
	d.Register(wire.TypeDMDelivered, n.handleDMDelivered)

	d.Register(wire.TypeRequestImageChunks, n.handleRequestImageChunks)
	d.Register(wire.TypeImageChunk, n.handleImageChunk)
}

// --- DHT RPCs ---

func (n *Node) handlePing(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Ping
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.dht.HandlePing(contactFromWire(msg.From))
	if reply := mustEncode(n, wire.TypePong, wire.Pong{RPCID: msg.RPCID}); reply != nil {
		n.tp.Send(string(from), reply)
	}
	return nil
}

func (n *Node) handleFindNode(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.FindNode
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	contacts := n.dht.HandleFindNode(contactFromWire(msg.From), idFromBytes(msg.Target))
	reply := mustEncode(n, wire.TypeFindNodeReply, wire.FindNodeReply{
		RPCID:    msg.RPCID,
		Contacts: contactsToWire(contacts),
	})
	if reply != nil {
		n.tp.Send(string(from), reply)
	}
	return nil
}

func (n *Node) handleFindValue(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.FindValue
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	value, closer, found := n.dht.HandleFindValue(contactFromWire(msg.From), idFromBytes(msg.Key))
	body := wire.FindValueReply{RPCID: msg.RPCID}
	if found {
		body.Value = value
	} else {
		body.Contacts = contactsToWire(closer)
	}
	if reply := mustEncode(n, wire.TypeFindValueReply, body); reply != nil {
		n.tp.Send(string(from), reply)
	}
	return nil
}

func (n *Node) handleStore(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Store
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.dht.HandleStore(contactFromWire(msg.From), idFromBytes(msg.Key), msg.Value)
	if reply := mustEncode(n, wire.TypeStoreReply, wire.StoreReply{RPCID: msg.RPCID}); reply != nil {
		n.tp.Send(string(from), reply)
	}
	return nil
}

// handleRPCReply resolves any of the four reply types against the waiting
// rpcClient caller; the rpc_id lives at the same JSON key across all of
// them so one probe struct suffices.
func (n *Node) handleRPCReply(_ context.Context, from wire.PeerID, raw []byte) error {
	var probe struct {
		RPCID string `json:"rpc_id"`
	}
	if err := wire.Decode(raw, &probe); err != nil {
		return err
	}
	n.rpc.resolve(string(from), probe.RPCID, raw)
	return nil
}

// --- HyParView overlay ---

func (n *Node) handleJoin(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.Join
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.overlay.HandleJoin(fromPeerRef(msg.Joiner))
	return nil
}

func (n *Node) handleForwardJoin(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.ForwardJoin
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.overlay.HandleForwardJoin(fromPeerRef(msg.Joiner), msg.TTL)
	return nil
}

func (n *Node) handleDisconnect(_ context.Context, from wire.PeerID, _ []byte) error {
	if p, ok := n.peerByWireID(string(from)); ok {
		n.overlay.OnDisconnect(p.NodeID)
	}
	return nil
}

// handleNeighbor records that the sender has promoted us into its active
// view. The overlay view is locally authoritative, so nothing else has to
// react here; this is purely a liveness signal for the remote peer.
func (n *Node) handleNeighbor(_ context.Context, from wire.PeerID, _ []byte) error {
	n.logger.Debug("promoted into peer's active view", zap.String("peer", string(from)))
	return nil
}

func (n *Node) handleShuffle(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Shuffle
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.overlay.HandleShuffle(fromPeer, toOverlayPeers(msg.Sample), msg.TTL)
	return nil
}

func (n *Node) handleShuffleReply(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.ShuffleReply
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.overlay.HandleShuffleReply(toOverlayPeers(msg.Sample))
	return nil
}

// --- Scribe/Plumtree multicast ---

func (n *Node) handleSubscribe(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Subscribe
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.multicast.HandleSubscribe(fromPeer, multicast.Topic(msg.Topic))
	return nil
}

func (n *Node) handleUnsubscribe(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Unsubscribe
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.multicast.HandleUnsubscribe(fromPeer, multicast.Topic(msg.Topic))
	return nil
}

func (n *Node) handleMulticast(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Multicast
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.multicast.HandleMulticast(fromPeer, multicast.Topic(msg.Topic), messageIDFromBytes(msg.MessageID), msg.Payload)
	return nil
}

func (n *Node) handleIHave(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.IHave
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.multicast.HandleIHave(fromPeer, multicast.Topic(msg.Topic), messageIDFromBytes(msg.MessageID))
	return nil
}

func (n *Node) handleGraft(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Graft
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.multicast.HandleGraft(fromPeer, multicast.Topic(msg.Topic), messageIDFromBytes(msg.MessageID))
	return nil
}

func (n *Node) handlePrune(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.Prune
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	fromPeer, ok := n.peerByWireID(string(from))
	if !ok {
		return nil
	}
	n.multicast.HandlePrune(fromPeer, multicast.Topic(msg.Topic))
	return nil
}

// --- Identity ---

func (n *Node) handleProvisionalClaim(ctx context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.ProvisionalIdentityClaim
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	var claim identity.Identity
	if err := json.Unmarshal(msg.Claim, &claim); err != nil {
		return err
	}
	return n.registry.HandleProvisionalClaim(ctx, claim)
}

func (n *Node) handleConfirmationSlip(ctx context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.IdentityConfirmationSlip
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	var slip identity.ConfirmationSlip
	if err := json.Unmarshal(msg.Slip, &slip); err != nil {
		return err
	}
	return n.registry.CollectSlip(ctx, slip)
}

// --- Posts ---

func (n *Node) handleNewPost(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.NewPost
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	var p post.Post
	if err := json.Unmarshal(msg.Post, &p); err != nil {
		return err
	}
	if err := n.receiver.HandleNewPost(&p); err != nil {
		return nil // rejected; already accounted for by the receiver
	}
	n.metrics.postsReceived.Observe(1)
	n.strategy.Disseminate(raw, p.Content)
	return nil
}

func (n *Node) handleCarrierUpdate(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.CarrierUpdate
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	post.HandleCarrierUpdate(n.arena, id16FromBytes(msg.PostID), msg.Peer, msg.Carrying)
	return nil
}

func (n *Node) handlePostAttestation(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.PostAttestation
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	var att post.Attestation
	if err := json.Unmarshal(msg.Attestation, &att); err != nil {
		return err
	}
	return n.receiver.HandleAttestation(att)
}

func (n *Node) handlePostRating(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.PostRating
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	id := id16FromBytes(msg.PostID)
	p, ok := n.arena.Get(id)
	if !ok {
		return nil
	}
	rating := post.Rating{
		PostID:     id,
		Voter:      msg.Voter,
		Vote:       msg.Vote,
		Reputation: msg.Reputation,
		Timestamp:  msg.Timestamp,
		Signature:  msg.Signature,
		VoterPK:    msg.VoterPK,
	}
	return post.ApplyRating(n.ratingAggregateFor(id), rating, p.Author, time.Now())
}

// --- Direct messages ---

func (n *Node) handleE2EDM(ctx context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.E2EDM
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}

	payload := post.DMPayload{
		Recipient:   msg.Recipient,
		Sender:      msg.Sender,
		Ciphertext:  msg.Ciphertext,
		Nonce:       msg.Nonce,
		Timestamp:   msg.Timestamp,
		IsRetry:     msg.IsRetry,
		RoutingHint: msg.RoutingHint,
	}
	copy(payload.MessageID[:], msg.MessageID)

	if payload.Recipient != n.self.Handle {
		n.dm.HandleIncoming(ctx, dmEncoder{}, payload, nil, nil)
		return nil
	}

	senderIdentity, err := n.registry.Lookup(ctx, msg.Sender)
	if err != nil {
		return nil // unknown sender; drop rather than fail the dispatch loop
	}
	senderPK := senderIdentity.PKEnc

	receipt := n.dm.HandleIncoming(ctx, dmEncoder{}, payload, &senderPK, func(sender, text string) {
		n.logger.Info("dm received", zap.String("from", sender))
	})
	if receipt != nil {
		n.dmRoute.SendDirect(msg.Sender, *receipt)
	}
	return nil
}

func (n *Node) handleDMDelivered(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.DMDelivered
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.dm.HandleDelivered(id16FromBytes(msg.MessageID))
	return nil
}

// --- Blob chunks ---

func (n *Node) handleRequestImageChunks(_ context.Context, from wire.PeerID, raw []byte) error {
	var msg wire.RequestImageChunks
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	found := n.blobs.HandleChunkRequest(msg.ImageHash, msg.ChunkHashes)
	for _, ch := range msg.ChunkHashes {
		data, ok := found[hex.EncodeToString(ch)]
		if !ok {
			continue
		}
		reply := mustEncode(n, wire.TypeImageChunk, wire.ImageChunk{
			ImageHash: msg.ImageHash,
			ChunkHash: ch,
			Data:      data,
			RequestID: msg.RequestID,
		})
		if reply != nil {
			n.tp.Send(string(from), reply)
		}
	}
	return nil
}

func (n *Node) handleImageChunk(_ context.Context, _ wire.PeerID, raw []byte) error {
	var msg wire.ImageChunk
	if err := wire.Decode(raw, &msg); err != nil {
		return err
	}
	n.blobs.HandleChunkResponse(msg.RequestID, msg.ChunkHash, msg.Data)
	return nil
}
