// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"math/rand"

	"github.com/publiuspseudis/ember/internal/multicast"
	"github.com/publiuspseudis/ember/internal/overlay"
)

// dandelionMinActivePeers is the active-peer count above which a new post
// takes the privacy-preferring route (spec.md §4.8 "if |active_peers| >= 3
// use the privacy-preferring route").
const dandelionMinActivePeers = 3

// DefaultStemHops is the maxHops value Disseminate passes to Stem; Stem
// only checks that it is positive and does not count hops. This is a
// best-effort routing choice, not a privacy guarantee (spec.md Non-goals).
const DefaultStemHops = 3

// PeerSender delivers a raw new_post payload to one peer directly, used
// during the dandelion stem phase.
type PeerSender interface {
	SendDirect(peer overlay.Peer, payload []byte)
}

// Broadcaster delivers a new_post payload broadly: direct to every active
// peer (fluff) or via topic multicast.
type Broadcaster interface {
	PeerSender
	ActivePeers() []overlay.Peer
}

// Strategy picks and executes a dissemination route for a freshly composed
// post (spec.md §4.8 step 5, §9 "Dandelion stem/fluff").
type Strategy struct {
	broadcaster Broadcaster
	multicaster *multicast.Manager
}

// NewStrategy constructs a dissemination Strategy.
func NewStrategy(broadcaster Broadcaster, multicaster *multicast.Manager) *Strategy {
	return &Strategy{broadcaster: broadcaster, multicaster: multicaster}
}

// Disseminate routes payload per spec.md §4.8 step 5 and fans it out to
// every topic extracted from content.
func (s *Strategy) Disseminate(payload []byte, content string) {
	active := s.broadcaster.ActivePeers()
	if len(active) >= dandelionMinActivePeers {
		s.Stem(payload, active, DefaultStemHops)
	} else {
		s.Fluff(payload, active)
	}
	for _, t := range multicast.ExtractTopics(content) {
		s.multicaster.Multicast(t, payload)
	}
}

// Stem forwards payload to a single random active peer. maxHops only gates
// whether this hop is taken (a value <= 0 sends nothing); no hop count
// travels with the payload, so the stem length is not bounded by maxHops
// and there is no switch to Fluff after maxHops hops.
func (s *Strategy) Stem(payload []byte, active []overlay.Peer, maxHops int) {
	if len(active) == 0 || maxHops <= 0 {
		return
	}
	target := active[rand.Intn(len(active))] //nolint:gosec // routing choice, not a security boundary
	s.broadcaster.SendDirect(target, payload)
}

// Fluff broadcasts payload to every active peer (spec.md §4.8 "otherwise
// direct broadcast").
func (s *Strategy) Fluff(payload []byte, active []overlay.Peer) {
	for _, p := range active {
		s.broadcaster.SendDirect(p, payload)
	}
}
