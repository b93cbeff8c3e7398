// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/vdf"
)

type fakeDHT struct {
	mu   sync.Mutex
	data map[dht.ID][]byte
}

func newFakeDHT() *fakeDHT { return &fakeDHT{data: make(map[dht.ID][]byte)} }

func (f *fakeDHT) Get(_ context.Context, key dht.ID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

func (f *fakeDHT) Put(_ context.Context, key dht.ID, value []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; !exists {
		f.data[key] = value
	}
	return 1, nil
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "not found" }

var errNotFound = sentinelErr{}

func makeClaim(t *testing.T, handle string) (Identity, sigcrypto.SignKeyPair) {
	t.Helper()
	signKP, err := sigcrypto.GenerateSignKeyPair()
	require.NoError(t, err)

	proof, err := vdf.Compute(context.Background(), []byte("input"), 200, nil)
	require.NoError(t, err)

	claim := Identity{
		Handle:   handle,
		PKSign:   signKP.Public,
		VDFInput: []byte("input"),
		VDFProof: proof,
	}
	signable := sigcrypto.IdentityClaimSignable{Handle: claim.Handle, PKSign: claim.PKSign, VDFProof: claim.VDFProof}
	msg, err := signable.CanonicalBytes()
	require.NoError(t, err)
	claim.Signature = sigcrypto.Sign(signKP.Private, msg)
	return claim, signKP
}

func makeSlip(t *testing.T, handle, confirmerHandle string, claimHash []byte) ConfirmationSlip {
	t.Helper()
	confirmerKP, err := sigcrypto.GenerateSignKeyPair()
	require.NoError(t, err)
	signable := sigcrypto.ConfirmationSlipSignable{Handle: handle, ClaimHash: claimHash}
	msg, err := signable.CanonicalBytes()
	require.NoError(t, err)
	return ConfirmationSlip{
		Handle:          handle,
		ClaimHash:       claimHash,
		ConfirmerHandle: confirmerHandle,
		ConfirmerPK:     confirmerKP.Public,
		Signature:       sigcrypto.Sign(confirmerKP.Private, msg),
	}
}

func TestHandleProvisionalClaimThenQuorumPromotes(t *testing.T) {
	d := newFakeDHT()
	r := New(d, 3, time.Hour, nil)
	ctx := context.Background()

	claim, _ := makeClaim(t, "alice")
	require.NoError(t, r.HandleProvisionalClaim(ctx, claim))

	hash, err := ClaimHash(claim)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		slip := makeSlip(t, "alice", string(rune('a'+i)), hash)
		require.NoError(t, r.CollectSlip(ctx, slip))
	}

	got, err := r.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, claim.Handle, got.Handle)
}

func TestDuplicateHandleRejected(t *testing.T) {
	d := newFakeDHT()
	r := New(d, 3, time.Hour, nil)
	ctx := context.Background()

	claim, _ := makeClaim(t, "bob")
	require.NoError(t, r.HandleProvisionalClaim(ctx, claim))
	hash, _ := ClaimHash(claim)
	for i := 0; i < 3; i++ {
		slip := makeSlip(t, "bob", string(rune('a'+i)), hash)
		require.NoError(t, r.CollectSlip(ctx, slip))
	}

	second, _ := makeClaim(t, "bob")
	err := r.HandleProvisionalClaim(ctx, second)
	require.Error(t, err)
}

func TestGCExpiresStaleProvisionalClaims(t *testing.T) {
	d := newFakeDHT()
	r := New(d, 3, time.Millisecond, nil)
	ctx := context.Background()

	claim, _ := makeClaim(t, "carol")
	require.NoError(t, r.HandleProvisionalClaim(ctx, claim))
	time.Sleep(5 * time.Millisecond)
	r.GC()

	r.mu.Lock()
	_, exists := r.provisional["carol"]
	r.mu.Unlock()
	require.False(t, exists)
}

func TestInvalidVDFRejected(t *testing.T) {
	d := newFakeDHT()
	r := New(d, 3, time.Hour, nil)
	ctx := context.Background()

	claim, _ := makeClaim(t, "dave")
	claim.VDFProof.Y = []byte("tampered")
	err := r.HandleProvisionalClaim(ctx, claim)
	require.Error(t, err)
}
