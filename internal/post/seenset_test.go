// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeenSetMarkSeenOnce(t *testing.T) {
	s := NewSeenSet()
	a := id(1)
	require.True(t, s.MarkSeen(a))
	require.False(t, s.MarkSeen(a))
	require.True(t, s.Contains(a))
}

func TestSeenSetDistinctIDsIndependent(t *testing.T) {
	s := NewSeenSet()
	require.True(t, s.MarkSeen(id(1)))
	require.False(t, s.Contains(id(2)))
}
