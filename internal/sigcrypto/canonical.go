// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package sigcrypto

import (
	"encoding/json"

	"github.com/publiuspseudis/ember/internal/vdf"
)

// Canonical byte encoding is UTF-8 JSON with object keys in the exact order
// named per message type in spec.md §3; opaque bytes ([]byte fields)
// marshal as base64-standard via encoding/json's default []byte handling.
// Verification always recomputes these bytes from the claimed object and
// compares rather than trusting a transmitted signing form.

// IdentityClaimSignable is the canonical form signed by a handle's creator
// (spec.md §3 "signature: Ed25519 over canonical JSON of
// {handle, pk_sign (b64), vdf_proof}").
type IdentityClaimSignable struct {
	Handle   string    `json:"handle"`
	PKSign   []byte    `json:"pk_sign"`
	VDFProof vdf.Proof `json:"vdf_proof"`
}

// CanonicalBytes returns the exact bytes an identity claim's signature is
// computed over and verified against.
func (s IdentityClaimSignable) CanonicalBytes() ([]byte, error) {
	return json.Marshal(s)
}

// ConfirmationSlipSignable is the canonical form a confirmer signs
// (spec.md §3 "signature is Ed25519 by confirmer_pk over canonical JSON of
// {handle, claim_hash}").
type ConfirmationSlipSignable struct {
	Handle    string `json:"handle"`
	ClaimHash []byte `json:"claim_hash"`
}

func (s ConfirmationSlipSignable) CanonicalBytes() ([]byte, error) {
	return json.Marshal(s)
}

// PostSignable is the canonical form a post's author signs (spec.md §3
// "signature: Ed25519 over canonical JSON of
// {id, content, timestamp, parent_id, image_hash, author_pk (b64)}").
//
// ParentID and ImageHash use pointer types so an absent value encodes as
// JSON null rather than an empty string, matching the optional `?` fields
// of spec.md §3.
type PostSignable struct {
	ID        []byte  `json:"id"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp"`
	ParentID  *[]byte `json:"parent_id"`
	ImageHash *[]byte `json:"image_hash"`
	AuthorPK  []byte  `json:"author_pk"`
}

func (s PostSignable) CanonicalBytes() ([]byte, error) {
	return json.Marshal(s)
}

// AttestationSignable is the canonical form an attester signs, binding the
// first four attestation fields (spec.md §3 "Signature binds the first four
// fields").
type AttestationSignable struct {
	PostID        []byte `json:"post_id"`
	PostAuthor    string `json:"post_author"`
	Timestamp     int64  `json:"timestamp"`
	VDFIterations uint64 `json:"vdf_iterations"`
}

func (s AttestationSignable) CanonicalBytes() ([]byte, error) {
	return json.Marshal(s)
}

// RatingSignable is the canonical form a voter signs (spec.md §3 "Signature
// binds {post_id, voter, vote, timestamp}").
type RatingSignable struct {
	PostID    []byte `json:"post_id"`
	Voter     string `json:"voter"`
	Vote      string `json:"vote"`
	Timestamp int64  `json:"timestamp"`
}

func (s RatingSignable) CanonicalBytes() ([]byte, error) {
	return json.Marshal(s)
}
