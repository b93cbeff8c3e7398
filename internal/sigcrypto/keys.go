// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sigcrypto implements C2, the signature engine: Ed25519 sign/verify
// over canonical byte encodings (spec.md §4.2), plus the X25519+box
// encryption used by the direct-message subsystem (spec.md §4.8).
package sigcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // spec-mandated nodeId derivation, not a security primitive here
	"crypto/sha256"

	"golang.org/x/crypto/nacl/box"

	"github.com/publiuspseudis/ember/internal/errs"
)

// SignKeyPair is an Ed25519 identity signing keypair.
type SignKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// EncKeyPair is an X25519 keypair used for direct-message encryption.
type EncKeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateSignKeyPair produces a fresh Ed25519 keypair for a new identity.
func GenerateSignKeyPair() (SignKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SignKeyPair{}, errs.Wrap(errs.KindInvalidSignature, err, "generating sign keypair")
	}
	return SignKeyPair{Public: pub, Private: priv}, nil
}

// GenerateEncKeyPair produces a fresh X25519 keypair for DM encryption.
func GenerateEncKeyPair() (EncKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return EncKeyPair{}, errs.Wrap(errs.KindInvalidSignature, err, "generating enc keypair")
	}
	return EncKeyPair{Public: *pub, Private: *priv}, nil
}

// Sign signs msg with priv, returning the raw 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature by pub over msg.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// NodeID derives the 20-byte SHA-1 DHT address of an identity from its
// signing public key (spec.md §3 "nodeId = SHA1(pk_sign)").
func NodeID(pkSign ed25519.PublicKey) [20]byte {
	return sha1.Sum(pkSign) //nolint:gosec
}

// SHA256 is the content-hash primitive shared by the blob store, identity
// claim hashing, and VDF input binding.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
