// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"sync"

	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/vdf"
)

// DefaultVerifierWorkers is N in spec.md §9 "A pool of N workers (default 4)
// each holding their own VDF verifier".
const DefaultVerifierWorkers = 4

// verifyJob is one unit of full-verification work.
type verifyJob struct {
	post *Post
}

// VerifyResult reports the outcome of a full verification pass.
type VerifyResult struct {
	Post  *Post
	Valid bool
}

// VerifierPool runs full post verification (signature + both VDF proofs)
// across a fixed worker pool, batching pending posts per tick (spec.md §9
// "Verifier pool").
type VerifierPool struct {
	jobs    chan verifyJob
	results chan VerifyResult

	wg sync.WaitGroup
}

// NewVerifierPool starts workers workers (DefaultVerifierWorkers if <= 0)
// reading from an internally owned job queue.
func NewVerifierPool(workers int) *VerifierPool {
	if workers <= 0 {
		workers = DefaultVerifierWorkers
	}
	p := &VerifierPool{
		jobs:    make(chan verifyJob, workers*4),
		results: make(chan VerifyResult, workers*4),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *VerifierPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.results <- VerifyResult{Post: job.post, Valid: verifyFull(job.post)}
	}
}

// Submit enqueues a post for full verification; it blocks only if the pool
// is backed up, applying the backpressure spec.md §5 describes.
func (p *VerifierPool) Submit(post *Post) {
	p.jobs <- verifyJob{post: post}
}

// Results is the channel the main loop drains for completed verifications.
func (p *VerifierPool) Results() <-chan VerifyResult { return p.results }

// Close stops accepting new jobs and waits for in-flight work to finish.
func (p *VerifierPool) Close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

// verifyFull runs the complete per-post invariant check (spec.md §3 "Post"
// invariants): self-signature, author_vdf, and post_vdf.
func verifyFull(p *Post) bool {
	signable := postSignable(p)
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return false
	}
	if !sigcrypto.Verify(p.AuthorPK, msg, p.Signature) {
		return false
	}
	if !vdf.Verify(p.AuthorVDFInput, p.AuthorVDFProof) {
		return false
	}
	if !vdf.Verify(p.VDFInput, p.VDFProof) {
		return false
	}
	return true
}
