// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"time"

	"github.com/publiuspseudis/ember/set"
)

// SoleCarrierWithdrawAge is how long a thread with exactly one carrier
// survives before that carrier is made to withdraw (spec.md §4.8 GC
// "if |thread_carriers|=1 and age>30 min, the sole carrier withdraws").
const SoleCarrierWithdrawAge = 30 * time.Minute

// FreshThreadAge is the age under which a thread survives regardless of
// carrier count (spec.md §4.8 GC "age(newest)<1h").
const FreshThreadAge = time.Hour

// GCRunner sweeps threads, dropping those that fail to meet the keep
// criteria and nudging sole-carrier threads toward withdrawal (spec.md
// §4.8 "Garbage collection (periodic)").
type GCRunner struct {
	arena *Arena
	self  string
	sink  CarrierUpdateSink
}

// NewGCRunner constructs a GCRunner for self's handle.
func NewGCRunner(arena *Arena, self string, sink CarrierUpdateSink) *GCRunner {
	return &GCRunner{arena: arena, self: self, sink: sink}
}

// Sweep runs one GC pass over every thread (spec.md §4.8 "Per thread").
func (g *GCRunner) Sweep(now time.Time) {
	roots := g.arena.Roots()
	for _, root := range roots {
		g.sweepThread(root, now)
	}
}

func (g *GCRunner) sweepThread(root [16]byte, now time.Time) {
	thread := g.arena.Thread(root)
	if len(thread) == 0 {
		return
	}

	threadCarriers := set.Set[string]{}
	var newest int64
	hasExplicit := false
	hasReplies := false
	for _, p := range thread {
		threadCarriers.Add(p.Carriers.List()...)
		if p.Timestamp > newest {
			newest = p.Timestamp
		}
		if p.ExplicitlyCarrying {
			hasExplicit = true
		}
		if p.IsReply() {
			hasReplies = true
		}
	}

	age := now.Sub(time.UnixMilli(newest))
	keep := hasExplicit || threadCarriers.Len() > 2 || age < FreshThreadAge || hasReplies
	if keep {
		return
	}

	// Otherwise: only the sole-carrier-withdraw case is actionable here
	// (spec.md §4.8 GC "if |thread_carriers|=1 and age>30 min, the sole
	// carrier withdraws — removing the thread once propagated"). Any
	// other !keep thread (e.g. two carriers past 1h with no replies) is
	// left alone; the spec names no other GC action for it. The only
	// removal here is withdrawSoleCarrier deleting a non-reply post from
	// the arena once its last carrier has withdrawn.
	if threadCarriers.Len() == 1 && age > SoleCarrierWithdrawAge {
		g.withdrawSoleCarrier(thread, threadCarriers)
	}
}

func (g *GCRunner) withdrawSoleCarrier(thread []*Post, threadCarriers set.Set[string]) {
	var sole string
	for c := range threadCarriers {
		sole = c
	}
	if sole != g.self {
		return // only this node's own carriage can be withdrawn locally
	}
	for _, p := range thread {
		if !p.Carriers.Contains(sole) {
			continue
		}
		p.Carriers.Remove(sole)
		p.ExplicitlyCarrying = false
		g.sink.BroadcastCarrierUpdate(p.ID, sole, false)
		if !p.IsReply() && p.Carriers.Len() == 0 {
			g.arena.Delete(p.ID)
		}
	}
}
