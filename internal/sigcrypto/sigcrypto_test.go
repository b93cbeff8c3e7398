// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package sigcrypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/vdf"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	require.NoError(t, err)

	signable := IdentityClaimSignable{
		Handle: "alice",
		PKSign: kp.Public,
		VDFProof: vdf.Proof{
			Y:          []byte{1, 2, 3},
			Pi:         []byte{4, 5, 6},
			L:          []byte{7, 8},
			R:          []byte{9},
			Iterations: 1000,
		},
	}
	msg, err := signable.CanonicalBytes()
	require.NoError(t, err)

	sig := Sign(kp.Private, msg)
	require.True(t, Verify(kp.Public, msg, sig))
	require.False(t, Verify(kp.Public, append(msg, 'x'), sig))
}

func TestNodeIDIsSHA1OfSignKey(t *testing.T) {
	kp, err := GenerateSignKeyPair()
	require.NoError(t, err)
	id := NodeID(kp.Public)
	require.Len(t, id, 20)
}

func TestDMSealOpenRoundTrip(t *testing.T) {
	alice, err := GenerateEncKeyPair()
	require.NoError(t, err)
	bob, err := GenerateEncKeyPair()
	require.NoError(t, err)

	ciphertext, nonce, err := SealDM([]byte("hello bob"), &bob.Public, &alice.Private)
	require.NoError(t, err)

	plaintext, err := OpenDM(ciphertext, nonce, &alice.Public, &bob.Private)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plaintext))
}

func TestDMOpenFailsForWrongRecipient(t *testing.T) {
	alice, err := GenerateEncKeyPair()
	require.NoError(t, err)
	bob, err := GenerateEncKeyPair()
	require.NoError(t, err)
	mallory, err := GenerateEncKeyPair()
	require.NoError(t, err)

	ciphertext, nonce, err := SealDM([]byte("secret"), &bob.Public, &alice.Private)
	require.NoError(t, err)

	_, err = OpenDM(ciphertext, nonce, &alice.Public, &mallory.Private)
	require.Error(t, err)
}
