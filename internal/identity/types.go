// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package identity implements C7, the identity registry: a handle
// directory backed by C4, admitted through provisional claims and
// independent-peer confirmation quorum (spec.md §4.7).
package identity

import (
	"crypto/ed25519"
	"regexp"
	"time"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/vdf"
)

// HandlePattern is the accepted handle grammar (spec.md §3 "3..32 chars,
// matches [A-Za-z0-9_]+").
var HandlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// DefaultConfirmationThreshold is Q (spec.md §4.7 "default 3").
const DefaultConfirmationThreshold = 3

// DefaultClaimTTL is how long an unconfirmed provisional claim lives before
// GC (spec.md §4.7 "TTL of 24 hours").
const DefaultClaimTTL = 24 * time.Hour

// Identity is the admitted directory record (spec.md §3 "Identity").
type Identity struct {
	Handle      string             `json:"handle"`
	PKSign      ed25519.PublicKey  `json:"pk_sign"`
	PKEnc       [32]byte           `json:"pk_enc"`
	NodeID      dht.ID             `json:"node_id"`
	VDFInput    []byte             `json:"vdf_input"`
	VDFProof    vdf.Proof          `json:"vdf_proof"`
	Signature   []byte             `json:"signature"`
	Calibration vdf.Calibration    `json:"calibration"`
}

// ConfirmationSlip is an independent peer's vouch for a provisional claim
// (spec.md §3 "Confirmation slip").
type ConfirmationSlip struct {
	Handle          string            `json:"handle"`
	ClaimHash       []byte            `json:"claim_hash"`
	ConfirmerHandle string            `json:"confirmer_handle"`
	ConfirmerPK     ed25519.PublicKey `json:"confirmer_pk"`
	Signature       []byte            `json:"signature"`
}

// ProvisionalClaim tracks a claim awaiting quorum (spec.md §3 "Provisional
// claim").
type ProvisionalClaim struct {
	Claim         Identity
	Confirmations map[string]ConfirmationSlip // keyed by confirmer_handle
	Created       time.Time
}
