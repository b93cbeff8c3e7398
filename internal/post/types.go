// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package post implements C8, the post engine: composition, adaptive-cost
// rate limiting, signing, dissemination, trust-based reception, attestation
// intake, rating, carriage/ephemerality, and thread-level garbage
// collection (spec.md §4.8).
package post

import (
	"crypto/ed25519"
	"time"

	"github.com/publiuspseudis/ember/internal/imagecodec"
	"github.com/publiuspseudis/ember/internal/vdf"
	"github.com/publiuspseudis/ember/set"
)

// MaxDepth caps reply nesting (spec.md §3 "depth: ... min(parent.depth+1, 5)").
const MaxDepth = 5

// Post is the admitted record (spec.md §3 "Post").
type Post struct {
	ID              [16]byte          `json:"id"`
	Author          string            `json:"author"`
	AuthorPK        ed25519.PublicKey `json:"author_pk"`
	Timestamp       int64             `json:"timestamp"`
	ParentID        *[16]byte         `json:"parent_id,omitempty"`
	Content         string            `json:"content"`
	ImageHash       []byte            `json:"image_hash,omitempty"`
	ImageMeta       *imagecodec.Meta  `json:"image_meta,omitempty"`
	VDFInput        []byte            `json:"vdf_input"`
	VDFProof        vdf.Proof         `json:"vdf_proof"`
	AuthorVDFInput  []byte            `json:"author_vdf_input"`
	AuthorVDFProof  vdf.Proof         `json:"author_vdf_proof"`
	Signature       []byte            `json:"signature"`
	// Carriers, Replies and Attesters are this node's local view of the
	// post's carriers/replies/attesters (spec.md §3 "carriers: set<handle>,
	// replies: set<id>, ... attesters: set<handle>") — per-node bookkeeping
	// built up from carrier_update/attestation traffic, not part of the
	// signed post envelope that travels over the wire.
	Carriers   set.Set[string]    `json:"-"`
	Replies    set.Set[[16]byte]  `json:"-"`
	Depth      int                `json:"depth"`
	TrustScore float64            `json:"trust_score"`
	Attesters  set.Set[string]    `json:"-"`

	ExplicitlyCarrying bool `json:"-"`
}

// IsReply reports whether this post is a reply to another post.
func (p *Post) IsReply() bool { return p.ParentID != nil }

// Alive reports whether at least one peer carries this post (spec.md §4.8
// "A post is alive iff |carriers| >= 1").
func (p *Post) Alive() bool { return p.Carriers.Len() >= 1 }

// Attestation is a peer's signed vouch that it has accepted a post
// (spec.md §3 "Attestation").
type Attestation struct {
	PostID        [16]byte          `json:"post_id"`
	PostAuthor    string            `json:"post_author"`
	Timestamp     int64             `json:"timestamp"`
	VDFIterations uint64            `json:"vdf_iterations"`
	AttesterHandle string           `json:"attester_handle"`
	AttesterPK    ed25519.PublicKey `json:"attester_pk"`
	Signature     []byte            `json:"signature"`
}

// Rating is a signed vote on a post (spec.md §3 "Rating").
type Rating struct {
	PostID     [16]byte          `json:"post_id"`
	Voter      string            `json:"voter"`
	Vote       string            `json:"vote"` // "up" or "down"
	Reputation float64           `json:"reputation"`
	Timestamp  int64             `json:"timestamp"`
	Signature  []byte            `json:"signature"`
	VoterPK    ed25519.PublicKey `json:"voter_pk"`
}

const (
	VoteUp   = "up"
	VoteDown = "down"
)

// pendingState tracks a post admitted but not yet accepted (spec.md §4.8
// "Reception and trust-based verification").
type pendingState struct {
	post            *Post
	admittedAt      time.Time
	signatureOK     bool
	sentToVerifier  bool
	accepted        bool
}
