// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package overlay

import (
	"math/rand"
	"sync"
)

// views holds the bounded active and passive peer sets, with simple random
// eviction/selection (spec.md §4.5).
type views struct {
	mu          sync.RWMutex
	activeCap   int
	passiveCap  int
	active      []Peer
	passive     []Peer
}

func newViews(activeCap, passiveCap int) *views {
	return &views{activeCap: activeCap, passiveCap: passiveCap}
}

func indexOf(peers []Peer, id [20]byte) int {
	for i, p := range peers {
		if p.NodeID == id {
			return i
		}
	}
	return -1
}

func removeAt(peers []Peer, i int) []Peer {
	return append(peers[:i], peers[i+1:]...)
}

// addActive adds p to the active view, evicting a random existing member
// (demoted to passive) if the view is already full. Returns the evicted
// peer, if any, so the caller can notify it of the disconnect.
func (v *views) addActive(p Peer) (evicted *Peer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if indexOf(v.active, p.NodeID) >= 0 {
		return nil
	}
	if len(v.active) >= v.activeCap {
		victimIdx := rand.Intn(len(v.active))
		victim := v.active[victimIdx]
		v.active = removeAt(v.active, victimIdx)
		v.addPassiveLocked(victim)
		evicted = &victim
	}
	v.active = append(v.active, p)
	v.removePassiveLocked(p.NodeID)
	return evicted
}

func (v *views) removeActive(id [20]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := indexOf(v.active, id); i >= 0 {
		v.active = removeAt(v.active, i)
	}
}

func (v *views) addPassiveLocked(p Peer) {
	if indexOf(v.passive, p.NodeID) >= 0 {
		return
	}
	if len(v.passive) >= v.passiveCap {
		victimIdx := rand.Intn(len(v.passive))
		v.passive = removeAt(v.passive, victimIdx)
	}
	v.passive = append(v.passive, p)
}

func (v *views) AddPassive(p Peer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if indexOf(v.active, p.NodeID) >= 0 {
		return
	}
	v.addPassiveLocked(p)
}

func (v *views) removePassiveLocked(id [20]byte) {
	if i := indexOf(v.passive, id); i >= 0 {
		v.passive = removeAt(v.passive, i)
	}
}

// PromoteRandomPassive moves a random passive peer into the active view,
// used to repair the active view after a disconnect
// (spec.md §4.5 "Failure/recovery").
func (v *views) PromoteRandomPassive() (Peer, bool) {
	v.mu.Lock()
	if len(v.passive) == 0 {
		v.mu.Unlock()
		return Peer{}, false
	}
	idx := rand.Intn(len(v.passive))
	p := v.passive[idx]
	v.passive = removeAt(v.passive, idx)
	v.mu.Unlock()

	v.addActive(p)
	return p, true
}

func (v *views) Active() []Peer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Peer, len(v.active))
	copy(out, v.active)
	return out
}

func (v *views) Passive() []Peer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Peer, len(v.passive))
	copy(out, v.passive)
	return out
}

func (v *views) RandomActiveExcept(except [20]byte) (Peer, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var candidates []Peer
	for _, p := range v.active {
		if p.NodeID != except {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Peer{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

func (v *views) ActiveSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.active)
}
