// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package overlay implements C5, HyParView-style partial-view membership:
// a bounded active view of symmetric connections used for broadcast, and a
// bounded passive view held in reserve for repair (spec.md §4.5).
package overlay

import "github.com/publiuspseudis/ember/internal/dht"

// Peer is a member of an active or passive view.
type Peer struct {
	NodeID     dht.ID
	WirePeerID string
}

// DefaultActiveSize is N_active (spec.md §4.5 "default 5").
const DefaultActiveSize = 5

// DefaultPassiveSize is N_passive (spec.md §4.5 "default 30").
const DefaultPassiveSize = 30

// arwl is the Active Random Walk Length: a FORWARD_JOIN travels this many
// hops through active neighbors before the recipient is forced to add the
// joiner to its active view regardless of capacity.
const arwl = 6

// prwl is the Passive Random Walk Length: the node that receives a
// FORWARD_JOIN with exactly this ttl remaining adds the joiner to its
// passive view, and still forwards the FORWARD_JOIN onward.
const prwl = 3

// Transport is how a Manager reaches remote peers; internal/transport and
// internal/wire provide the real implementation.
type Transport interface {
	SendJoin(to Peer)
	SendForwardJoin(to Peer, joiner Peer, ttl int)
	SendDisconnect(to Peer)
	SendNeighbor(to Peer)
	SendShuffle(to Peer, sample []Peer, ttl int)
	SendShuffleReply(to Peer, sample []Peer)
}
