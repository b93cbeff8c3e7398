// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"context"
	"sync"
	"time"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/toxicity"
	"github.com/publiuspseudis/ember/log"
	"github.com/publiuspseudis/ember/set"
)

// DefaultTrustThreshold is TRUST_THRESHOLD (spec.md §6).
const DefaultTrustThreshold = 2.0

// DefaultAttestationTimeout is ATTESTATION_TIMEOUT (spec.md §6).
const DefaultAttestationTimeout = 2 * time.Second

// PendingWindow bounds how long a post may sit pending before it is
// dropped for never reaching acceptance (spec.md §4.8 "schedule trust
// evaluation every 100 ms for <= 10 s").
const PendingWindow = 10 * time.Second

// EvaluationTick is the cadence of trust evaluation (spec.md §4.8).
const EvaluationTick = 100 * time.Millisecond

// Reputation resolves a handle's current reputation score; internal/post
// depends only on this narrow view of internal/reputation.
type Reputation interface {
	Score(handle string) float64
}

// ReceptionConfig holds the configurable knobs of the reception pipeline
// (spec.md §6 "Recognized configuration options").
type ReceptionConfig struct {
	MaxPostSize        int
	TrustThreshold     float64
	AttestationTimeout time.Duration
}

func (c ReceptionConfig) withDefaults() ReceptionConfig {
	if c.MaxPostSize <= 0 {
		c.MaxPostSize = DefaultMaxPostSize
	}
	if c.TrustThreshold <= 0 {
		c.TrustThreshold = DefaultTrustThreshold
	}
	if c.AttestationTimeout <= 0 {
		c.AttestationTimeout = DefaultAttestationTimeout
	}
	return c
}

// AttestationEmitter signs and broadcasts a fresh attestation for an
// accepted post (spec.md §4.8 step 6 "Emit a fresh attestation signed by
// this node and broadcast it").
type AttestationEmitter interface {
	EmitAttestation(p *Post)
}

// Receiver runs the trust-based reception pipeline (spec.md §4.8 "Reception
// and trust-based verification").
type Receiver struct {
	arena      *Arena
	seen       *SeenSet
	toxicity   toxicity.Checker
	reputation Reputation
	pool       *VerifierPool
	emitter    AttestationEmitter
	cfg        ReceptionConfig
	logger     log.Logger

	onReject func(attesterOrAuthor string)

	mu      sync.Mutex
	pending map[[16]byte]*pendingState
}

// NewReceiver constructs a Receiver.
func NewReceiver(arena *Arena, seen *SeenSet, checker toxicity.Checker, reputation Reputation, pool *VerifierPool, emitter AttestationEmitter, cfg ReceptionConfig, onReject func(string), logger log.Logger) *Receiver {
	if checker == nil {
		checker = toxicity.NoOp{}
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	if onReject == nil {
		onReject = func(string) {}
	}
	return &Receiver{
		arena:      arena,
		seen:       seen,
		toxicity:   checker,
		reputation: reputation,
		pool:       pool,
		emitter:    emitter,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		onReject:   onReject,
		pending:    make(map[[16]byte]*pendingState),
	}
}

// HandleNewPost admits an incoming new_post, or rejects it outright
// (spec.md §4.8 steps 1-3).
func (r *Receiver) HandleNewPost(p *Post) error {
	if !r.seen.MarkSeen(p.ID) {
		return nil // already seen; silent dedup, not an error
	}
	if len(p.Content) > r.cfg.MaxPostSize {
		r.onReject(p.Author)
		return errs.New(errs.KindSizeExceeded, "content exceeds max post size")
	}
	if r.toxicity.IsToxic(p.Content) {
		r.onReject(p.Author)
		return errs.New(errs.KindToxicContent, "content rejected by toxicity predicate")
	}

	r.mu.Lock()
	r.pending[p.ID] = &pendingState{post: p, admittedAt: time.Now()}
	r.mu.Unlock()
	return nil
}

// Tick runs one evaluation pass over all pending posts (spec.md §4.8 step 4).
func (r *Receiver) Tick() {
	now := time.Now()
	r.mu.Lock()
	due := make([]*pendingState, 0, len(r.pending))
	for id, ps := range r.pending {
		if now.Sub(ps.admittedAt) > PendingWindow {
			delete(r.pending, id)
			continue
		}
		due = append(due, ps)
	}
	r.mu.Unlock()

	for _, ps := range due {
		r.evaluate(ps, now)
	}
}

func (r *Receiver) evaluate(ps *pendingState, now time.Time) {
	if !ps.signatureOK {
		signable := postSignable(ps.post)
		msg, err := signable.CanonicalBytes()
		if err != nil || !sigcrypto.Verify(ps.post.AuthorPK, msg, ps.post.Signature) {
			r.drop(ps.post.ID)
			r.onReject(ps.post.Author)
			return
		}
		ps.signatureOK = true
	}

	if ps.post.TrustScore >= r.cfg.TrustThreshold {
		r.accept(ps)
		return
	}

	if !ps.sentToVerifier && now.Sub(time.UnixMilli(ps.post.Timestamp)) >= r.cfg.AttestationTimeout {
		ps.sentToVerifier = true
		r.pool.Submit(ps.post)
	}
}

// HandleVerifyResult applies a completed full-verification result from the
// pool (spec.md §9 "results return via a single results channel").
func (r *Receiver) HandleVerifyResult(res VerifyResult) {
	r.mu.Lock()
	ps, ok := r.pending[res.Post.ID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if res.Valid {
		r.accept(ps)
	} else {
		r.drop(res.Post.ID)
		r.onReject(res.Post.Author)
	}
}

func (r *Receiver) accept(ps *pendingState) {
	r.mu.Lock()
	if ps.accepted {
		r.mu.Unlock()
		return
	}
	ps.accepted = true
	delete(r.pending, ps.post.ID)
	r.mu.Unlock()

	r.arena.Insert(ps.post)
	if r.emitter != nil {
		r.emitter.EmitAttestation(ps.post)
	}
}

func (r *Receiver) drop(id [16]byte) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// HandleAttestation applies an incoming post_attestation to its matching
// pending post (spec.md §4.8 step 5). The attester must itself clear the
// same trust threshold used for post acceptance.
func (r *Receiver) HandleAttestation(att Attestation) error {
	signable := sigcrypto.AttestationSignable{
		PostID:        att.PostID[:],
		PostAuthor:    att.PostAuthor,
		Timestamp:     att.Timestamp,
		VDFIterations: att.VDFIterations,
	}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return errs.Wrap(errs.KindInvalidSignature, err, "encoding attestation signable")
	}
	if !sigcrypto.Verify(att.AttesterPK, msg, att.Signature) {
		return errs.New(errs.KindInvalidSignature, "attestation signature invalid")
	}

	score := r.reputation.Score(att.AttesterHandle)
	if score < r.cfg.TrustThreshold {
		return nil // below trust threshold; silently ignored, not an error
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.pending[att.PostID]
	if !ok {
		return nil
	}
	if ps.post.Attesters.Contains(att.AttesterHandle) {
		return nil
	}
	if ps.post.Attesters == nil {
		ps.post.Attesters = set.Set[string]{}
	}
	ps.post.Attesters.Add(att.AttesterHandle)
	ps.post.TrustScore += score
	return nil
}

// RunTicker drives Tick every EvaluationTick until ctx is cancelled.
func (r *Receiver) RunTicker(ctx context.Context) {
	ticker := time.NewTicker(EvaluationTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}
