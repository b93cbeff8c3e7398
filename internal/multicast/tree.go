// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package multicast

import (
	"github.com/publiuspseudis/ember/internal/overlay"
)

// topicState is one topic's Scribe tree membership plus Plumtree link
// state, all guarded by the Manager's single lock.
type topicState struct {
	isSubscriber bool
	parent       *overlay.Peer
	children     map[[20]byte]overlay.Peer

	// eager/lazy classification of every tree neighbor (children + parent),
	// keyed by peer NodeID (spec.md §4.6 "each node maintains two per-peer
	// states — eager and lazy").
	eager map[[20]byte]bool

	seen        map[MessageID]struct{}
	cache       map[MessageID][]byte // recently seen payloads, for GRAFT replies
	graftTimers map[MessageID]chan struct{}
}

func newTopicState() *topicState {
	return &topicState{
		children:    make(map[[20]byte]overlay.Peer),
		eager:       make(map[[20]byte]bool),
		seen:        make(map[MessageID]struct{}),
		cache:       make(map[MessageID][]byte),
		graftTimers: make(map[MessageID]chan struct{}),
	}
}

// inTree reports whether this node is part of topic's Scribe tree: it has
// children or is itself a subscriber (spec.md §4.6).
func (ts *topicState) inTree() bool {
	return ts.isSubscriber || len(ts.children) > 0
}

func (ts *topicState) neighbors() []overlay.Peer {
	out := make([]overlay.Peer, 0, len(ts.children)+1)
	for _, c := range ts.children {
		out = append(out, c)
	}
	if ts.parent != nil {
		out = append(out, *ts.parent)
	}
	return out
}
