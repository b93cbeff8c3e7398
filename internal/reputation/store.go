// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reputation implements the per-peer reputation store (spec.md §9
// "Reputation store ... scores are recomputed lazily (cached for 60 s)"),
// combining failure-threshold benching with a ristretto-backed score cache.
package reputation

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/log"
)

// ScoreCacheTTL is how long a computed score is cached before being
// recomputed from the underlying counters (spec.md §9 "cached for 60 s").
const ScoreCacheTTL = 60 * time.Second

// DefaultBenchThreshold is how many consecutive failures bench a peer
// (grounded on the teacher's networking/benchlist concept of a node being
// benched for repeated misbehavior/unresponsiveness).
const DefaultBenchThreshold = 5

// DefaultBenchDuration is how long a benched peer is excluded.
const DefaultBenchDuration = 10 * time.Minute

type peerState struct {
	successes        int
	failures         int
	consecutiveFails int
	benchedUntil     time.Time
}

// Store is the per-peer reputation map behind the main-loop mutation
// discipline described in spec.md §5; callers apply updates serially (e.g.
// from the core dispatch loop), and Store holds no lock of its own.
type Store struct {
	benchThreshold int
	benchDuration  time.Duration
	logger         log.Logger

	states map[string]*peerState
	cache  *ristretto.Cache[string, float64]
}

// New constructs a Store with the given bench policy.
func New(benchThreshold int, benchDuration time.Duration, logger log.Logger) (*Store, error) {
	if benchThreshold <= 0 {
		benchThreshold = DefaultBenchThreshold
	}
	if benchDuration <= 0 {
		benchDuration = DefaultBenchDuration
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, float64]{
		NumCounters: 1e4,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		benchThreshold: benchThreshold,
		benchDuration:  benchDuration,
		logger:         logger,
		states:         make(map[string]*peerState),
		cache:          cache,
	}, nil
}

func (s *Store) stateFor(handle string) *peerState {
	st, ok := s.states[handle]
	if !ok {
		st = &peerState{}
		s.states[handle] = st
	}
	return st
}

// RecordSuccess credits handle with a successful interaction (e.g. an
// accepted post, a timely RPC response) and resets its failure streak.
func (s *Store) RecordSuccess(handle string) {
	st := s.stateFor(handle)
	st.successes++
	st.consecutiveFails = 0
	s.cache.Del(handle)
}

// RecordFailure debits handle (spec.md §7 "peer penalized on receive");
// benchThreshold consecutive failures bench the peer for
// benchDuration (grounded on the teacher's networking/benchlist concept).
func (s *Store) RecordFailure(handle string) {
	st := s.stateFor(handle)
	st.failures++
	st.consecutiveFails++
	if st.consecutiveFails >= s.benchThreshold {
		st.benchedUntil = time.Now().Add(s.benchDuration)
		s.logger.Warn("benching peer after repeated failures", zap.String("peer", handle), zap.Int("failures", st.consecutiveFails))
	}
	s.cache.Del(handle)
}

// IsBenched reports whether handle is currently excluded from routing
// consideration.
func (s *Store) IsBenched(handle string) bool {
	st, ok := s.states[handle]
	if !ok {
		return false
	}
	return time.Now().Before(st.benchedUntil)
}

// Score returns handle's reputation, recomputing and caching it for
// ScoreCacheTTL when not already cached (spec.md §9 "cached for 60 s").
func (s *Store) Score(handle string) float64 {
	if v, ok := s.cache.Get(handle); ok {
		return v
	}
	score := s.computeScore(handle)
	s.cache.SetWithTTL(handle, score, 1, ScoreCacheTTL)
	return score
}

func (s *Store) computeScore(handle string) float64 {
	st, ok := s.states[handle]
	if !ok {
		return 0
	}
	if s.IsBenched(handle) {
		return 0
	}
	total := st.successes + st.failures
	if total == 0 {
		return 0
	}
	return float64(st.successes) / float64(total)
}
