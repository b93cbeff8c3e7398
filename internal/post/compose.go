// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/publiuspseudis/ember/internal/blobstore"
	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/imagecodec"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/toxicity"
	"github.com/publiuspseudis/ember/internal/vdf"
	"github.com/publiuspseudis/ember/set"
)

// DefaultMaxPostSize is the default for the configurable MAX_POST_SIZE
// (spec.md §6).
const DefaultMaxPostSize = 4096

// Composer assembles, rate-limits, and signs outgoing posts (spec.md §4.8
// "Composition").
type Composer struct {
	self     identity.Identity
	signKey  sigcrypto.SignKeyPair
	arena    *Arena
	blobs    *blobstore.Store
	images   imagecodec.Codec
	toxicity toxicity.Checker

	maxPostSize int

	mu      sync.Mutex
	recent  []time.Time
}

// NewComposer constructs a Composer for the local identity. arena is
// consulted to compute a reply's depth from its parent (spec.md §3
// "depth: 0 for roots, min(parent.depth+1, 5) for replies"); it may be nil
// if the caller never composes replies.
func NewComposer(self identity.Identity, signKey sigcrypto.SignKeyPair, arena *Arena, blobs *blobstore.Store, images imagecodec.Codec, checker toxicity.Checker, maxPostSize int) *Composer {
	if maxPostSize <= 0 {
		maxPostSize = DefaultMaxPostSize
	}
	if images == nil {
		images = imagecodec.PassThrough{}
	}
	if checker == nil {
		checker = toxicity.NoOp{}
	}
	return &Composer{self: self, signKey: signKey, arena: arena, blobs: blobs, images: images, toxicity: checker, maxPostSize: maxPostSize}
}

// Compose builds, rate-limits, and signs a new post (spec.md §4.8
// "Composition" steps 1-3).
func (c *Composer) Compose(ctx context.Context, content string, parentID *[16]byte, imageBytes []byte) (*Post, error) {
	if len(content) > c.maxPostSize {
		return nil, errs.New(errs.KindSizeExceeded, "content exceeds max post size")
	}
	if c.toxicity.IsToxic(content) {
		return nil, errs.New(errs.KindToxicContent, "content rejected by toxicity predicate")
	}

	var imageHash []byte
	var imageMeta *imagecodec.Meta
	if len(imageBytes) > 0 {
		meta, err := c.images.Inspect(imageBytes)
		if err != nil {
			return nil, errs.Wrap(errs.KindIntegrityError, err, "inspecting image")
		}
		res, err := c.blobs.Store(imageBytes)
		if err != nil {
			return nil, errs.Wrap(errs.KindIntegrityError, err, "storing image blob")
		}
		meta.MerkleRoot = res.MerkleRoot
		imageHash = res.Hash
		imageMeta = &meta
	}

	now := time.Now()
	c.mu.Lock()
	recent := append([]time.Time(nil), c.recent...)
	c.mu.Unlock()

	targetMS := AdaptiveTargetMS(recent, content, now)
	if parentID != nil {
		targetMS = ReplyTargetMS(targetMS)
	}

	vdfInput := vdfInputFor(content, c.self.NodeID[:], now)
	iterations := vdf.EstimateIterationsForMS(targetMS, &c.self.Calibration)
	proof, err := vdf.Compute(ctx, vdfInput, iterations, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindVDFTimeout, err, "computing post vdf")
	}

	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "generating post id")
	}

	var parent *Post
	if parentID != nil && c.arena != nil {
		parent, _ = c.arena.Get(*parentID)
	}
	depth := ComputeDepth(parent)
	p := &Post{
		ID:             id,
		Author:         c.self.Handle,
		AuthorPK:       c.self.PKSign,
		Timestamp:      now.UnixMilli(),
		ParentID:       parentID,
		Content:        content,
		ImageHash:      imageHash,
		ImageMeta:      imageMeta,
		VDFInput:       vdfInput,
		VDFProof:       proof,
		AuthorVDFInput: c.self.VDFInput,
		AuthorVDFProof: c.self.VDFProof,
		Depth:          depth,
		Carriers:       set.Of(c.self.Handle),
		Replies:        set.Set[[16]byte]{},
		Attesters:      set.Set[string]{},
	}

	signable := postSignable(p)
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidSignature, err, "encoding post signable")
	}
	p.Signature = sigcrypto.Sign(c.signKey.Private, msg)

	c.mu.Lock()
	c.recent = append(c.recent, now)
	c.mu.Unlock()

	return p, nil
}

func postSignable(p *Post) sigcrypto.PostSignable {
	id := p.ID[:]
	var parentBytes *[]byte
	if p.ParentID != nil {
		b := append([]byte(nil), p.ParentID[:]...)
		parentBytes = &b
	}
	var imageHashPtr *[]byte
	if p.ImageHash != nil {
		ih := p.ImageHash
		imageHashPtr = &ih
	}
	return sigcrypto.PostSignable{
		ID:        id,
		Content:   p.Content,
		Timestamp: p.Timestamp,
		ParentID:  parentBytes,
		ImageHash: imageHashPtr,
		AuthorPK:  p.AuthorPK,
	}
}

func vdfInputFor(content string, uniqueID []byte, now time.Time) []byte {
	var buf []byte
	buf = append(buf, []byte(content)...)
	buf = append(buf, uniqueID...)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(now.UnixMilli()))
	buf = append(buf, ts...)
	return buf
}

// ComputeDepth derives a reply's depth from its parent, clamped to MaxDepth
// (spec.md §3 "depth: 0 for roots, min(parent.depth+1, 5) for replies").
func ComputeDepth(parent *Post) int {
	if parent == nil {
		return 0
	}
	d := parent.Depth + 1
	if d > MaxDepth {
		d = MaxDepth
	}
	return d
}
