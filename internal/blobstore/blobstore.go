// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/store"
	"github.com/publiuspseudis/ember/log"
	"github.com/publiuspseudis/ember/utils/constants"
)

// ChunkRequester sends a request_image_chunks message to connected peers
// (spec.md §4.3 step 2); responses arrive later via HandleChunkResponse.
type ChunkRequester interface {
	RequestChunks(hash []byte, missingChunkHashes [][]byte, requestID string)
}

// DefaultCapBytes is the blob store's soft capacity (spec.md §4.3 "soft cap
// 10 MiB").
const DefaultCapBytes = 10 * 1024 * 1024

// evictionTarget is the fraction of capacity eviction settles at
// (spec.md §4.3 "evict ... until usage ≤ 70% cap").
const evictionTarget = 0.70

const (
	fetchDeadline = 10 * time.Second
	fetchRetries  = 3
)

type pendingFetch struct {
	mu       sync.Mutex
	received map[string][]byte // chunk hash hex -> bytes
	notify   chan struct{}
}

// Store is C3, the blob store.
type Store struct {
	mu        sync.Mutex
	kv        store.KVStore
	capBytes  int64
	usedBytes int64
	blobs     map[string]*Blob // hash hex -> metadata
	chunkRefs map[string]int   // chunk hash hex -> reference count

	sf        singleflight.Group
	requester ChunkRequester
	logger    log.Logger

	fetchMu  sync.Mutex
	fetches  map[string]*pendingFetch // request id -> fetch
}

// New constructs a Store backed by kv, with the given soft capacity.
func New(kv store.KVStore, capBytes int64, requester ChunkRequester, logger log.Logger) *Store {
	if capBytes <= 0 {
		capBytes = DefaultCapBytes
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Store{
		kv:        kv,
		capBytes:  capBytes,
		blobs:     make(map[string]*Blob),
		chunkRefs: make(map[string]int),
		requester: requester,
		logger:    logger,
		fetches:   make(map[string]*pendingFetch),
	}
}

func chunkKey(hash []byte) []byte {
	return append([]byte(constants.KeyspaceImageChunks), hex.EncodeToString(hash)...)
}

func blobKey(hash []byte) []byte {
	return append([]byte(constants.KeyspaceImageChunks+"meta/"), hex.EncodeToString(hash)...)
}

// Store splits data into chunks, hashes it, builds the Merkle root, and
// persists the deduplicated chunks and metadata (spec.md §4.3 "Algorithm").
func (s *Store) Store(data []byte) (StoreResult, error) {
	sum := sha256.Sum256(data)
	hash := sum[:]

	var chunks []ChunkRef
	var leaves [][]byte
	for i := 0; i < len(data); i += ChunkSize {
		end := i + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		slice := data[i:end]
		ch := sha256.Sum256(slice)
		chunks = append(chunks, ChunkRef{Index: i / ChunkSize, Hash: ch[:]})
		leaves = append(leaves, ch[:])

		if err := s.putChunkDedup(ch[:], slice); err != nil {
			return StoreResult{}, err
		}
	}
	root := merkleRoot(leaves)

	blob := &Blob{
		Hash:       hash,
		MerkleRoot: root,
		Chunks:     chunks,
		Size:       int64(len(data)),
		Created:    time.Now(),
	}

	s.mu.Lock()
	s.blobs[hex.EncodeToString(hash)] = blob
	s.usedBytes += blob.Size
	projected := s.usedBytes
	s.mu.Unlock()

	if err := s.persistBlob(blob); err != nil {
		return StoreResult{}, err
	}

	if projected > s.capBytes {
		s.evict()
	}

	return StoreResult{Hash: hash, MerkleRoot: root, ChunkCount: len(chunks)}, nil
}

func (s *Store) putChunkDedup(chunkHash, data []byte) error {
	s.mu.Lock()
	refs := s.chunkRefs[hex.EncodeToString(chunkHash)]
	s.chunkRefs[hex.EncodeToString(chunkHash)] = refs + 1
	s.mu.Unlock()

	if refs > 0 {
		return nil
	}
	if err := s.kv.Put(chunkKey(chunkHash), data); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "persisting chunk")
	}
	return nil
}

func (s *Store) persistBlob(blob *Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "marshaling blob metadata")
	}
	if err := s.kv.Put(blobKey(blob.Hash), data); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "persisting blob metadata")
	}
	return nil
}

// Retrieve reassembles the blob identified by hash, fetching any chunks
// missing locally from connected peers (spec.md §4.3 "Retrieval policy").
// Concurrent Retrieve calls for the same hash coalesce into a single
// in-flight fetch (spec.md §4.3 "Concurrency").
func (s *Store) Retrieve(ctx context.Context, hash []byte) ([]byte, error) {
	key := hex.EncodeToString(hash)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.retrieveOnce(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Store) retrieveOnce(ctx context.Context, hash []byte) ([]byte, error) {
	s.mu.Lock()
	blob, ok := s.blobs[hex.EncodeToString(hash)]
	s.mu.Unlock()
	if !ok {
		raw, err := s.kv.Get(blobKey(hash))
		if err != nil {
			return nil, errs.New(errs.KindNotFound, "blob not found")
		}
		blob = &Blob{}
		if err := json.Unmarshal(raw, blob); err != nil {
			return nil, errs.Wrap(errs.KindIntegrityError, err, "unmarshaling blob metadata")
		}
	}

	chunkData := make([][]byte, len(blob.Chunks))
	var missing [][]byte
	for i, ref := range blob.Chunks {
		data, err := s.kv.Get(chunkKey(ref.Hash))
		if err != nil {
			missing = append(missing, ref.Hash)
			continue
		}
		chunkData[i] = data
	}

	if len(missing) > 0 {
		if err := s.fetchMissing(ctx, hash, blob, missing, chunkData); err != nil {
			return nil, err
		}
	}

	leaves := make([][]byte, len(blob.Chunks))
	for i, ref := range blob.Chunks {
		h := sha256.Sum256(chunkData[i])
		if !bytes.Equal(h[:], ref.Hash) {
			return nil, errs.New(errs.KindIntegrityError, "chunk hash mismatch on reassembly")
		}
		leaves[i] = h[:]
	}
	if !bytes.Equal(merkleRoot(leaves), blob.MerkleRoot) {
		return nil, errs.New(errs.KindIntegrityError, "merkle root mismatch")
	}

	var out bytes.Buffer
	for _, c := range chunkData {
		out.Write(c)
	}
	return out.Bytes(), nil
}

// fetchMissing requests the missing chunks from peers, retrying up to
// fetchRetries times with exponential backoff and a fetchDeadline per
// attempt (spec.md §4.3 step 2).
func (s *Store) fetchMissing(ctx context.Context, hash []byte, blob *Blob, missing [][]byte, chunkData [][]byte) error {
	if s.requester == nil {
		return errs.New(errs.KindUnreachable, "no chunk requester configured")
	}

	requestID := hex.EncodeToString(hash) + "-" + time.Now().UTC().Format("150405.000000000")
	pf := &pendingFetch{received: make(map[string][]byte), notify: make(chan struct{}, 1)}
	s.fetchMu.Lock()
	s.fetches[requestID] = pf
	s.fetchMu.Unlock()
	defer func() {
		s.fetchMu.Lock()
		delete(s.fetches, requestID)
		s.fetchMu.Unlock()
	}()

	still := missing
	op := func() error {
		if len(still) == 0 {
			return nil
		}
		s.requester.RequestChunks(hash, still, requestID)

		deadline := time.NewTimer(fetchDeadline)
		defer deadline.Stop()
		select {
		case <-pf.notify:
		case <-deadline.C:
		case <-ctx.Done():
			return ctx.Err()
		}

		still = stillMissing(still, pf)
		if len(still) > 0 {
			return errs.New(errs.KindUnreachable, "chunks still missing after fetch round")
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return errs.Wrap(errs.KindUnreachable, err, "fetching missing chunks")
	}

	pf.mu.Lock()
	for i, ref := range blob.Chunks {
		if chunkData[i] != nil {
			continue
		}
		if data, ok := pf.received[hex.EncodeToString(ref.Hash)]; ok {
			chunkData[i] = data
			_ = s.putChunkDedup(ref.Hash, data)
		}
	}
	pf.mu.Unlock()
	return nil
}

func stillMissing(requested [][]byte, pf *pendingFetch) [][]byte {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	var out [][]byte
	for _, h := range requested {
		if _, ok := pf.received[hex.EncodeToString(h)]; !ok {
			out = append(out, h)
		}
	}
	return out
}

// HandleChunkRequest answers a request_image_chunks message with whichever
// of chunkHashes this node holds locally.
func (s *Store) HandleChunkRequest(hash []byte, chunkHashes [][]byte) map[string][]byte {
	_ = hash
	found := make(map[string][]byte)
	for _, ch := range chunkHashes {
		if data, err := s.kv.Get(chunkKey(ch)); err == nil {
			found[hex.EncodeToString(ch)] = data
		}
	}
	return found
}

// HandleChunkResponse feeds a received image_chunk message into any
// in-flight fetch awaiting it.
func (s *Store) HandleChunkResponse(requestID string, chunkHash, data []byte) {
	s.fetchMu.Lock()
	pf, ok := s.fetches[requestID]
	s.fetchMu.Unlock()
	if !ok {
		return
	}
	pf.mu.Lock()
	pf.received[hex.EncodeToString(chunkHash)] = data
	pf.mu.Unlock()
	select {
	case pf.notify <- struct{}{}:
	default:
	}
}

// evict drops oldest blobs until usage is at most evictionTarget of
// capacity, deleting only chunks no longer referenced by any remaining blob
// (spec.md §4.3 "Capacity").
func (s *Store) evict() {
	s.mu.Lock()
	ordered := make([]*Blob, 0, len(s.blobs))
	for _, b := range s.blobs {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Created.Before(ordered[j].Created) })

	target := int64(float64(s.capBytes) * evictionTarget)
	var toDelete []*Blob
	for _, b := range ordered {
		if s.usedBytes <= target {
			break
		}
		s.usedBytes -= b.Size
		delete(s.blobs, hex.EncodeToString(b.Hash))
		toDelete = append(toDelete, b)
	}
	s.mu.Unlock()

	for _, b := range toDelete {
		_ = s.kv.Delete(blobKey(b.Hash))
		for _, ref := range b.Chunks {
			s.mu.Lock()
			key := hex.EncodeToString(ref.Hash)
			s.chunkRefs[key]--
			drop := s.chunkRefs[key] <= 0
			if drop {
				delete(s.chunkRefs, key)
			}
			s.mu.Unlock()
			if drop {
				_ = s.kv.Delete(chunkKey(ref.Hash))
			}
		}
		s.logger.Debug("blobstore evicted blob", zap.String("hash", hex.EncodeToString(b.Hash)))
	}
}
