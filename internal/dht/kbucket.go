// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import "time"

// K is the bucket size and replication factor (spec.md §4.4 "160 k-buckets
// of size 20").
const K = 20

// bucket holds up to K live contacts, ordered least-recently-seen first
// (standard Kademlia eviction order), plus a replacement cache of
// candidates waiting for a slot to free up.
type bucket struct {
	contacts    []Contact
	replacement []Contact
	lastTouched time.Time
}

func newBucket() *bucket {
	return &bucket{lastTouched: time.Now()}
}

// touch records contact as freshly seen: if already present it moves to the
// most-recently-seen end; if the bucket has room it is appended; otherwise
// it joins the replacement cache (spec.md §4.4 "replacement cache per
// bucket").
func (b *bucket) touch(c Contact) {
	b.lastTouched = time.Now()
	for i, existing := range b.contacts {
		if existing.NodeID == c.NodeID {
			b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
			b.contacts = append(b.contacts, c)
			return
		}
	}
	if len(b.contacts) < K {
		b.contacts = append(b.contacts, c)
		return
	}
	b.pushReplacement(c)
}

func (b *bucket) pushReplacement(c Contact) {
	for i, existing := range b.replacement {
		if existing.NodeID == c.NodeID {
			b.replacement[i] = c
			return
		}
	}
	const replacementCap = K
	b.replacement = append(b.replacement, c)
	if len(b.replacement) > replacementCap {
		b.replacement = b.replacement[len(b.replacement)-replacementCap:]
	}
}

// evict drops a dead contact, promoting the most recently seen replacement
// candidate into its place if one is available.
func (b *bucket) evict(id ID) {
	for i, existing := range b.contacts {
		if existing.NodeID == id {
			b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
			if len(b.replacement) > 0 {
				promoted := b.replacement[len(b.replacement)-1]
				b.replacement = b.replacement[:len(b.replacement)-1]
				b.contacts = append(b.contacts, promoted)
			}
			return
		}
	}
}

func (b *bucket) list() []Contact {
	out := make([]Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}

func (b *bucket) stale(threshold time.Duration) bool {
	return time.Since(b.lastTouched) > threshold
}
