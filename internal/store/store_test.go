// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/errs"
)

func TestMemoryPutGetDelete(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Put([]byte("posts/1"), []byte("hello")))

	v, err := s.Get([]byte("posts/1"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(v))

	require.NoError(t, s.Delete([]byte("posts/1")))
	_, err = s.Get([]byte("posts/1"))
	require.True(t, errs.Is(err, errs.KindNotFound))
}

func TestMemoryIteratePrefix(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Put([]byte("posts/1"), []byte("a")))
	require.NoError(t, s.Put([]byte("posts/2"), []byte("b")))
	require.NoError(t, s.Put([]byte("image_chunks/1"), []byte("c")))

	var seen []string
	err := s.IteratePrefix([]byte("posts/"), func(key, value []byte) error {
		seen = append(seen, string(key))
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"posts/1", "posts/2"}, seen)
}
