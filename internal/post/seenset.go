// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/holiman/bloomfilter/v2"
)

// seenGenerationTTL bounds how long a single bloom generation accepts
// membership checks before it rotates out, keeping false-positive rate
// bounded as the id space grows without unbounded memory growth.
const seenGenerationTTL = time.Hour

// seenGenerations is how many rotations are kept live at once; an id is
// considered seen if it appears in any live generation.
const seenGenerations = 2

const bloomExpectedElements = 200000
const bloomFalsePositiveRate = 0.001

// SeenSet is a hierarchical (rotating) Bloom filter of post ids
// (spec.md §4.8 "Deduplicate by id against a hierarchical Bloom filter of
// seen ids").
type SeenSet struct {
	mu      sync.Mutex
	gens    []*bloomfilter.Filter
	rotated time.Time
	clock   func() time.Time
}

// NewSeenSet constructs an empty hierarchical filter.
func NewSeenSet() *SeenSet {
	s := &SeenSet{clock: time.Now}
	s.rotated = s.clock()
	s.gens = append(s.gens, newGeneration())
	return s
}

func newGeneration() *bloomfilter.Filter {
	f, err := bloomfilter.NewOptimal(bloomExpectedElements, bloomFalsePositiveRate)
	if err != nil {
		// NewOptimal only errors on invalid (n, p); our constants are fixed
		// and valid, so this is unreachable in practice.
		f, _ = bloomfilter.New(1<<20, 7)
	}
	return f
}

func idHash(id [16]byte) bloomfilter.UInt64 {
	return bloomfilter.UInt64(binary.LittleEndian.Uint64(id[:8]) ^ binary.LittleEndian.Uint64(id[8:]))
}

func (s *SeenSet) rotateIfDue() {
	if s.clock().Sub(s.rotated) < seenGenerationTTL {
		return
	}
	s.gens = append([]*bloomfilter.Filter{newGeneration()}, s.gens...)
	if len(s.gens) > seenGenerations {
		s.gens = s.gens[:seenGenerations]
	}
	s.rotated = s.clock()
}

// Contains reports whether id has already been recorded (with the usual
// Bloom-filter false-positive possibility, never a false negative).
func (s *SeenSet) Contains(id [16]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfDue()
	h := idHash(id)
	for _, g := range s.gens {
		if g.Contains(h) {
			return true
		}
	}
	return false
}

// MarkSeen records id as seen in the current generation. It returns true if
// the id was newly recorded (i.e. not already seen), matching the
// check-and-set usage the reception pipeline needs.
func (s *SeenSet) MarkSeen(id [16]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfDue()
	h := idHash(id)
	for _, g := range s.gens {
		if g.Contains(h) {
			return false
		}
	}
	s.gens[0].Add(h)
	return true
}
