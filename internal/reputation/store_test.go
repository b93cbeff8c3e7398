// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoreZeroForUnknownPeer(t *testing.T) {
	s, err := New(3, time.Minute, nil)
	require.NoError(t, err)
	require.Equal(t, 0.0, s.Score("nobody"))
}

func TestScoreImprovesWithSuccesses(t *testing.T) {
	s, err := New(3, time.Minute, nil)
	require.NoError(t, err)

	s.RecordSuccess("alice")
	s.RecordSuccess("alice")
	s.RecordFailure("alice")

	require.InDelta(t, 2.0/3.0, s.Score("alice"), 1e-9)
}

func TestBenchAfterConsecutiveFailures(t *testing.T) {
	s, err := New(3, time.Hour, nil)
	require.NoError(t, err)

	require.False(t, s.IsBenched("bob"))
	s.RecordFailure("bob")
	s.RecordFailure("bob")
	require.False(t, s.IsBenched("bob"))
	s.RecordFailure("bob")
	require.True(t, s.IsBenched("bob"))
	require.Equal(t, 0.0, s.Score("bob"))
}

func TestSuccessResetsConsecutiveFailureStreak(t *testing.T) {
	s, err := New(2, time.Hour, nil)
	require.NoError(t, err)

	s.RecordFailure("carol")
	s.RecordSuccess("carol")
	s.RecordFailure("carol")
	require.False(t, s.IsBenched("carol"))
}

func TestScoreCacheIsInvalidatedByUpdates(t *testing.T) {
	s, err := New(5, time.Minute, nil)
	require.NoError(t, err)

	s.RecordSuccess("dave")
	first := s.Score("dave")
	require.Equal(t, 1.0, first)

	s.RecordFailure("dave")
	require.InDelta(t, 0.5, s.Score("dave"), 1e-9)
}
