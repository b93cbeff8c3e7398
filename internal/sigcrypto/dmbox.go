// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package sigcrypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/nacl/box"

	"github.com/publiuspseudis/ember/internal/errs"
)

// NonceSize is the random nonce length used by SealDM (spec.md §4.8
// "a random 24-byte nonce").
const NonceSize = 24

// SealDM encrypts plaintext for recipientPub using X25519 + XSalsa20-Poly1305
// box, returning the ciphertext and the nonce used (spec.md §4.8 step 2).
func SealDM(plaintext []byte, recipientPub, senderPriv *[32]byte) (ciphertext, nonce []byte, err error) {
	var n [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return nil, nil, errs.Wrap(errs.KindInvalidSignature, err, "generating dm nonce")
	}
	sealed := box.Seal(nil, plaintext, &n, recipientPub, senderPriv)
	return sealed, n[:], nil
}

// OpenDM decrypts a box sealed by SealDM. A failure here is expected to be
// handled by the caller dropping the message silently (spec.md §4.8 "on
// failure, drop silently").
func OpenDM(ciphertext, nonce []byte, senderPub, recipientPriv *[32]byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, errs.New(errs.KindIntegrityError, "dm nonce has wrong length")
	}
	var n [NonceSize]byte
	copy(n[:], nonce)
	plaintext, ok := box.Open(nil, ciphertext, &n, senderPub, recipientPriv)
	if !ok {
		return nil, errs.New(errs.KindIntegrityError, "dm decryption failed")
	}
	return plaintext, nil
}
