// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blobstore implements C3, the content-addressed chunked blob
// store: SHA-256 chunking, Merkle-root integrity, capacity eviction, and
// singleflight-coalesced peer-assisted retrieval (spec.md §4.3).
package blobstore

import "time"

// ChunkSize is the slice size blobs are split into before hashing
// (spec.md §4.3 "split into 16 KiB slices").
const ChunkSize = 16 * 1024

// ChunkRef identifies one chunk of a blob by its position and content hash.
type ChunkRef struct {
	Index int    `json:"index"`
	Hash  []byte `json:"hash"`
}

// Blob is the metadata record persisted by hash (spec.md §3 "Blob").
type Blob struct {
	Hash       []byte     `json:"hash"`
	MerkleRoot []byte     `json:"merkle_root"`
	Chunks     []ChunkRef `json:"chunks"`
	Size       int64      `json:"size"`
	Created    time.Time  `json:"created"`
}

// StoreResult is returned by Store.
type StoreResult struct {
	Hash       []byte
	MerkleRoot []byte
	ChunkCount int
}
