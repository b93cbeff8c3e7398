// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/multicast"
	"github.com/publiuspseudis/ember/internal/overlay"
	"github.com/publiuspseudis/ember/internal/post"
	"github.com/publiuspseudis/ember/internal/reputation"
	"github.com/publiuspseudis/ember/internal/transport"
	"github.com/publiuspseudis/ember/internal/wire"
	"github.com/publiuspseudis/ember/log"
)

// linkCore is the shared plumbing behind every role-specific adapter in
// this file: one transport.Manager, a reputation sink for failed sends,
// and a logger. Each component package gets its own narrow adapter type
// embedding linkCore rather than one god-object implementing every
// interface, since several of those interfaces collide on method name
// (e.g. SendDirect) with incompatible signatures (spec.md §9 "Replace
// with an explicit Core context passed to all operations").
type linkCore struct {
	tp     *transport.Manager
	rep    *reputation.Store
	logger log.Logger
}

func (l *linkCore) sendEncoded(wirePeer string, t wire.Type, payload any) {
	raw, err := wire.Encode(t, payload)
	if err != nil {
		l.logger.Error("encoding outbound wire message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if !l.tp.Send(wirePeer, raw) && l.rep != nil {
		l.rep.RecordFailure(wirePeer)
	}
}

func (l *linkCore) broadcastEncoded(t wire.Type, payload any) {
	raw, err := wire.Encode(t, payload)
	if err != nil {
		l.logger.Error("encoding broadcast wire message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	l.tp.Broadcast(raw)
}

func toPeerRef(id dht.ID, wirePeer string) wire.PeerRef {
	return wire.PeerRef{NodeID: id[:], WirePeerID: wirePeer}
}

func toPeerRefs(peers []overlay.Peer) []wire.PeerRef {
	refs := make([]wire.PeerRef, len(peers))
	for i, p := range peers {
		refs[i] = toPeerRef(p.NodeID, p.WirePeerID)
	}
	return refs
}

func fromPeerRef(r wire.PeerRef) overlay.Peer {
	var id dht.ID
	copy(id[:], r.NodeID)
	return overlay.Peer{NodeID: id, WirePeerID: r.WirePeerID}
}

// overlayTransport implements overlay.Transport.
type overlayTransport struct{ *linkCore }

func (l overlayTransport) SendJoin(to overlay.Peer) {
	l.sendEncoded(to.WirePeerID, wire.TypeJoin, wire.Join{Joiner: toPeerRef(to.NodeID, to.WirePeerID)})
}

func (l overlayTransport) SendForwardJoin(to overlay.Peer, joiner overlay.Peer, ttl int) {
	l.sendEncoded(to.WirePeerID, wire.TypeForwardJoin, wire.ForwardJoin{Joiner: toPeerRef(joiner.NodeID, joiner.WirePeerID), TTL: ttl})
}

func (l overlayTransport) SendDisconnect(to overlay.Peer) {
	l.sendEncoded(to.WirePeerID, wire.TypeDisconnect, wire.Disconnect{})
}

func (l overlayTransport) SendNeighbor(to overlay.Peer) {
	l.sendEncoded(to.WirePeerID, wire.TypeNeighbor, wire.Neighbor{})
}

func (l overlayTransport) SendShuffle(to overlay.Peer, sample []overlay.Peer, ttl int) {
	l.sendEncoded(to.WirePeerID, wire.TypeShuffle, wire.Shuffle{Sample: toPeerRefs(sample), TTL: ttl})
}

func (l overlayTransport) SendShuffleReply(to overlay.Peer, sample []overlay.Peer) {
	l.sendEncoded(to.WirePeerID, wire.TypeShuffleReply, wire.ShuffleReply{Sample: toPeerRefs(sample)})
}

// multicastTransport implements multicast.Transport.
type multicastTransport struct{ *linkCore }

func (l multicastTransport) SendSubscribe(to overlay.Peer, topic multicast.Topic) {
	l.sendEncoded(to.WirePeerID, wire.TypeSubscribe, wire.Subscribe{Topic: string(topic)})
}

func (l multicastTransport) SendUnsubscribe(to overlay.Peer, topic multicast.Topic) {
	l.sendEncoded(to.WirePeerID, wire.TypeUnsubscribe, wire.Unsubscribe{Topic: string(topic)})
}

func (l multicastTransport) SendMulticast(to overlay.Peer, topic multicast.Topic, id multicast.MessageID, payload []byte) {
	l.sendEncoded(to.WirePeerID, wire.TypeMulticast, wire.Multicast{Topic: string(topic), MessageID: id[:], Payload: payload})
}

func (l multicastTransport) SendIHave(to overlay.Peer, topic multicast.Topic, id multicast.MessageID) {
	l.sendEncoded(to.WirePeerID, wire.TypeIHave, wire.IHave{Topic: string(topic), MessageID: id[:]})
}

func (l multicastTransport) SendGraft(to overlay.Peer, topic multicast.Topic, id multicast.MessageID) {
	l.sendEncoded(to.WirePeerID, wire.TypeGraft, wire.Graft{Topic: string(topic), MessageID: id[:]})
}

func (l multicastTransport) SendPrune(to overlay.Peer, topic multicast.Topic) {
	l.sendEncoded(to.WirePeerID, wire.TypePrune, wire.Prune{Topic: string(topic)})
}

// greedyRouter gives multicast.Router a routing primitive over the
// unstructured HyParView overlay: forward toward whichever active-view
// peer is numerically closest to the target (Scribe's rendezvous point),
// a standard greedy-routing substitute for a structured DHT hop.
type greedyRouter struct {
	overlayMgr *overlay.Manager
}

// NextHopToward implements multicast.Router. The target is a raw [20]byte
// rather than dht.ID since internal/multicast does not import internal/dht
// for its Router interface; the two are byte-identical so a conversion is
// all that is needed.
func (g greedyRouter) NextHopToward(target [20]byte) (overlay.Peer, bool) {
	tid := dht.ID(target)
	active := g.overlayMgr.Active()
	if len(active) == 0 {
		return overlay.Peer{}, false
	}
	best := active[0]
	bestDist := best.NodeID.Xor(tid)
	for _, p := range active[1:] {
		d := p.NodeID.Xor(tid)
		if d.Less(bestDist) {
			best, bestDist = p, d
		}
	}
	return best, true
}

// postBroadcaster implements post.PeerSender / post.Broadcaster.
type postBroadcaster struct {
	*linkCore
	overlayMgr *overlay.Manager
}

func (l postBroadcaster) SendDirect(peer overlay.Peer, payload []byte) {
	if !l.tp.Send(peer.WirePeerID, payload) && l.rep != nil {
		l.rep.RecordFailure(peer.WirePeerID)
	}
}

func (l postBroadcaster) ActivePeers() []overlay.Peer {
	return l.overlayMgr.Active()
}

// carrierSink implements post.CarrierUpdateSink.
type carrierSink struct{ *linkCore }

func (l carrierSink) BroadcastCarrierUpdate(postID [16]byte, peer string, carrying bool) {
	l.broadcastEncoded(wire.TypeCarrierUpdate, wire.CarrierUpdate{PostID: postID[:], Peer: peer, Carrying: carrying})
}

// claimBroadcaster implements identity.Broadcaster.
type claimBroadcaster struct{ *linkCore }

type identityClaimEnvelope struct {
	Claim identity.Identity `json:"claim"`
}

func (l claimBroadcaster) BroadcastProvisionalClaim(claim identity.Identity) {
	l.broadcastEncoded(wire.TypeProvisionalIdentityClaim, identityClaimEnvelope{Claim: claim})
}

// dmRoute implements post.DMRoute. post.DMManager deals exclusively in
// handles; resolving a handle to a live wire connection takes one hop
// through the identity registry (handle -> NodeID) and one through the
// overlay's views (NodeID -> WirePeerID).
type dmRoute struct {
	*linkCore
	registry   *identity.Registry
	overlayMgr *overlay.Manager
	dht        *dht.Node
}

// dmKClosest is k in "the k DHT peers closest to recipient" (spec.md §4.8
// "On receipt ... k closest DHT peers").
const dmKClosest = 3

func (l dmRoute) resolveWirePeer(id dht.ID) (string, bool) {
	for _, p := range l.overlayMgr.Active() {
		if p.NodeID == id {
			return p.WirePeerID, true
		}
	}
	for _, p := range l.overlayMgr.Passive() {
		if p.NodeID == id {
			return p.WirePeerID, true
		}
	}
	return "", false
}

// SendDirect delivers to recipient only if both a cached identity and a
// live view entry already resolve it, without touching the DHT.
func (l dmRoute) SendDirect(recipient string, payload []byte) bool {
	id, ok := l.registry.LookupCached(recipient)
	if !ok {
		return false
	}
	wirePeer, ok := l.resolveWirePeer(id.NodeID)
	if !ok {
		return false
	}
	return l.tp.Send(wirePeer, payload)
}

// SendViaHint attempts delivery straight to a previously-resolved routing
// hint (a hex-encoded dht.ID), bypassing the registry/DHT lookup entirely.
// Used when forwarding a dm that already carries one (spec.md §4.8 "On
// receipt ... routing_hint").
func (l dmRoute) SendViaHint(hint string, payload []byte) bool {
	raw, err := hex.DecodeString(hint)
	if err != nil || len(raw) != dht.IDLen {
		return false
	}
	var id dht.ID
	copy(id[:], raw)
	wirePeer, ok := l.resolveWirePeer(id)
	if !ok {
		return false
	}
	return l.tp.Send(wirePeer, payload)
}

// SendViaDHTHint resolves recipient to a DHT address, then fans the
// payload out to the k routing-table peers closest to that address,
// reporting whether any of them accepted it (spec.md §4.8 "k closest DHT
// peers").
func (l dmRoute) SendViaDHTHint(ctx context.Context, recipient string, payload []byte) bool {
	id, err := l.registry.Lookup(ctx, recipient)
	if err != nil {
		return false
	}
	if l.dht == nil {
		wirePeer, ok := l.resolveWirePeer(id.NodeID)
		if !ok {
			return false
		}
		return l.tp.Send(wirePeer, payload)
	}
	sent := false
	for _, c := range l.dht.Table().Closest(id.NodeID, dmKClosest) {
		if c.WirePeerID == "" {
			continue
		}
		if l.tp.Send(c.WirePeerID, payload) {
			sent = true
		}
	}
	return sent
}

// chunkRequester implements blobstore.ChunkRequester.
type chunkRequester struct{ *linkCore }

func (l chunkRequester) RequestChunks(hash []byte, missingChunkHashes [][]byte, requestID string) {
	l.broadcastEncoded(wire.TypeRequestImageChunks, wire.RequestImageChunks{
		ImageHash:   hash,
		ChunkHashes: missingChunkHashes,
		RequestID:   requestID,
	})
}

// dmEncoder implements post.Encoder: pure encoding, no send side effects
// (internal/post decides delivery via the DMRoute it was handed instead).
type dmEncoder struct{}

func (dmEncoder) EncodeDM(p post.DMPayload) []byte {
	raw, _ := wire.Encode(wire.TypeE2EDM, p)
	return raw
}

func (dmEncoder) EncodeDelivered(messageID [16]byte, recipient string, deliveredAt time.Time) []byte {
	raw, _ := wire.Encode(wire.TypeDMDelivered, wire.DMDelivered{
		MessageID:   messageID[:],
		Recipient:   recipient,
		DeliveredAt: deliveredAt.UnixMilli(),
	})
	return raw
}
