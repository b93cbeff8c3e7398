// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blobstore

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/store"
)

func TestStoreRetrieveRoundTrip(t *testing.T) {
	s := New(store.NewMemory(), DefaultCapBytes, nil, nil)

	data := make([]byte, ChunkSize*3+100)
	_, err := rand.Read(data)
	require.NoError(t, err)

	res, err := s.Store(data)
	require.NoError(t, err)
	require.Equal(t, 4, res.ChunkCount)

	got, err := s.Retrieve(context.Background(), res.Hash)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestStoreDedupesIdenticalChunks(t *testing.T) {
	s := New(store.NewMemory(), DefaultCapBytes, nil, nil)
	chunk := make([]byte, ChunkSize)
	for i := range chunk {
		chunk[i] = 0x42
	}
	data := append(append([]byte{}, chunk...), chunk...)

	res, err := s.Store(data)
	require.NoError(t, err)
	require.Equal(t, 2, res.ChunkCount)

	got, err := s.Retrieve(context.Background(), res.Hash)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRetrieveNotFound(t *testing.T) {
	s := New(store.NewMemory(), DefaultCapBytes, nil, nil)
	_, err := s.Retrieve(context.Background(), []byte("nonexistent"))
	require.Error(t, err)
}
