// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import (
	"context"
	"crypto/rand"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/vdf"
	"github.com/publiuspseudis/ember/log"
)

// CreationState is a step in the local identity-creation flow (spec.md §9
// "model as a state machine ... step transitions are explicit events, not
// nested callbacks").
type CreationState int

const (
	StateDisclaimer CreationState = iota
	StateCalibrating
	StateComputing
	StateChoosingHandle
	StateBroadcasting
	StateAwaitingConfirmation
	StateRegistered
	StateFailed
)

func (s CreationState) String() string {
	switch s {
	case StateDisclaimer:
		return "disclaimer"
	case StateCalibrating:
		return "calibrating"
	case StateComputing:
		return "computing"
	case StateChoosingHandle:
		return "choosing_handle"
	case StateBroadcasting:
		return "broadcasting"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Broadcaster publishes an outgoing provisional claim to the overlay; the
// caller (internal/core's dispatch loop) supplies the real transport.
type Broadcaster interface {
	BroadcastProvisionalClaim(Identity)
}

// Creation drives a single node through identity creation, emitting its
// CreationState on Transitions as it advances.
type Creation struct {
	broadcaster Broadcaster
	logger      log.Logger

	Transitions chan CreationState

	handle string
	claim  Identity
	err    error
}

// NewCreation constructs a Creation flow. Transitions is buffered so the
// driving goroutine never blocks on a slow observer.
func NewCreation(broadcaster Broadcaster, logger log.Logger) *Creation {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Creation{
		broadcaster: broadcaster,
		logger:      logger,
		Transitions: make(chan CreationState, 8),
	}
}

func (c *Creation) advance(s CreationState) {
	select {
	case c.Transitions <- s:
	default:
	}
}

// Run drives Disclaimer through Broadcasting, leaving the flow parked at
// AwaitingConfirmation. The registry's promotion path (via CollectSlip)
// does not advance the flow; promotion is observed separately through
// Registry.IsSelfRegistered, and only MarkRegistered moves the flow on.
func (c *Creation) Run(ctx context.Context, handle string, signKP sigcrypto.SignKeyPair, encKP sigcrypto.EncKeyPair, targetMS uint64) error {
	c.handle = handle
	c.advance(StateDisclaimer)

	if !HandlePattern.MatchString(handle) {
		c.err = errs.New(errs.KindInvalidSignature, "handle fails grammar check")
		c.advance(StateFailed)
		return c.err
	}

	c.advance(StateCalibrating)
	cal, err := vdf.Calibrate(ctx, 50000)
	if err != nil {
		c.err = errs.Wrap(errs.KindVDFTimeout, err, "calibrating vdf")
		c.advance(StateFailed)
		return c.err
	}
	iterations := vdf.EstimateIterationsForMS(targetMS, &cal)

	c.advance(StateComputing)
	input, err := randomInput()
	if err != nil {
		c.err = errs.Wrap(errs.KindInvalidVDF, err, "generating vdf input")
		c.advance(StateFailed)
		return c.err
	}
	proof, err := vdf.Compute(ctx, input, iterations, nil)
	if err != nil {
		c.err = errs.Wrap(errs.KindVDFTimeout, err, "computing vdf proof")
		c.advance(StateFailed)
		return c.err
	}

	c.advance(StateChoosingHandle)
	claim := Identity{
		Handle:      handle,
		PKSign:      signKP.Public,
		PKEnc:       encKP.Public,
		NodeID:      dht.ID(sigcrypto.NodeID(signKP.Public)),
		VDFInput:    input,
		VDFProof:    proof,
		Calibration: cal,
	}
	signable := sigcrypto.IdentityClaimSignable{Handle: claim.Handle, PKSign: claim.PKSign, VDFProof: claim.VDFProof}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		c.err = errs.Wrap(errs.KindInvalidSignature, err, "encoding claim signable")
		c.advance(StateFailed)
		return c.err
	}
	claim.Signature = sigcrypto.Sign(signKP.Private, msg)
	c.claim = claim

	c.advance(StateBroadcasting)
	c.broadcaster.BroadcastProvisionalClaim(claim)

	c.advance(StateAwaitingConfirmation)
	return nil
}

// Claim returns the identity this flow broadcast, once past ChoosingHandle.
func (c *Creation) Claim() Identity { return c.claim }

// MarkRegistered transitions the flow to Registered. The registry does not
// call it; the flow stays at AwaitingConfirmation until a caller does.
func (c *Creation) MarkRegistered() { c.advance(StateRegistered) }

func randomInput() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
