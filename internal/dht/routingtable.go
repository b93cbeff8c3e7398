// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"sort"
	"sync"
	"time"
)

// numBuckets is one k-bucket per bit of the keyspace (spec.md §4.4).
const numBuckets = 8 * IDLen

// RoutingTable is a node's view of the network: 160 k-buckets indexed by
// XOR distance from the local ID.
type RoutingTable struct {
	mu      sync.RWMutex
	self    ID
	buckets [numBuckets]*bucket
}

// NewRoutingTable constructs an empty routing table for the given local ID.
func NewRoutingTable(self ID) *RoutingTable {
	rt := &RoutingTable{self: self}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket()
	}
	return rt
}

func (rt *RoutingTable) indexFor(id ID) int {
	if id == rt.self {
		return 0
	}
	return bucketIndex(rt.self.Xor(id))
}

// Touch records a contact as freshly seen.
func (rt *RoutingTable) Touch(c Contact) {
	if c.NodeID == rt.self {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.buckets[rt.indexFor(c.NodeID)].touch(c)
}

// Evict drops a contact that failed to respond.
func (rt *RoutingTable) Evict(id ID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.buckets[rt.indexFor(id)].evict(id)
}

// Closest returns up to count contacts ordered by ascending XOR distance to
// target, across all buckets.
func (rt *RoutingTable) Closest(target ID, count int) []Contact {
	rt.mu.RLock()
	all := make([]Contact, 0, count*2)
	for _, b := range rt.buckets {
		all = append(all, b.list()...)
	}
	rt.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].NodeID.Xor(target).Less(all[j].NodeID.Xor(target))
	})
	if len(all) > count {
		all = all[:count]
	}
	return all
}

// StaleBuckets returns the indices of buckets not touched within threshold,
// for the background bucket-refresh loop (spec.md §4.4 "Bucket refresh").
func (rt *RoutingTable) StaleBuckets(threshold time.Duration) []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	var stale []int
	for i, b := range rt.buckets {
		if len(b.contacts) > 0 && b.stale(threshold) {
			stale = append(stale, i)
		}
	}
	return stale
}

// RandomIDInBucket returns an ID guaranteed to fall in bucket index i,
// for the bucket-refresh lookup (spec.md §4.4).
func (rt *RoutingTable) RandomIDInBucket(i int, randomBits func(n int) []byte) ID {
	id := rt.self
	bitPos := numBuckets - 1 - i // the bit that must differ from self
	byteIdx := bitPos / 8
	bitIdx := uint(7 - bitPos%8)
	id[byteIdx] ^= 1 << bitIdx

	// Randomize bits below the distinguishing bit so repeated refreshes of
	// the same bucket don't always target the same id.
	randBytes := randomBits(IDLen)
	for b := byteIdx + 1; b < IDLen; b++ {
		id[b] = randBytes[b]
	}
	return id
}

// Size returns the total number of live contacts across all buckets.
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	n := 0
	for _, b := range rt.buckets {
		n += len(b.contacts)
	}
	return n
}
