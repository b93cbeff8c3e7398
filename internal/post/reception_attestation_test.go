// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/publiuspseudis/ember/internal/blobstore"
	"github.com/publiuspseudis/ember/internal/post/postmock"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/store"
)

func signAttestation(t *testing.T, att *Attestation, signKP sigcrypto.SignKeyPair) {
	t.Helper()
	signable := sigcrypto.AttestationSignable{
		PostID:        att.PostID[:],
		PostAuthor:    att.PostAuthor,
		Timestamp:     att.Timestamp,
		VDFIterations: att.VDFIterations,
	}
	msg, err := signable.CanonicalBytes()
	require.NoError(t, err)
	att.Signature = sigcrypto.Sign(signKP.Private, msg)
}

func TestHandleAttestationAccumulatesTrustScoreFromMockedReputation(t *testing.T) {
	idn, authorKey := makeIdentity(t, "alice")
	attester, attesterKey := makeIdentity(t, "bob")

	blobs := blobstore.New(store.NewMemory(), blobstore.DefaultCapBytes, nil, nil)
	c := NewComposer(idn, authorKey, nil, blobs, nil, nil, DefaultMaxPostSize)
	p, err := c.Compose(context.Background(), "hello world", nil, nil)
	require.NoError(t, err)

	arena := NewArena()
	pool := NewVerifierPool(1)
	defer pool.Close()

	ctrl := gomock.NewController(t)
	reputation := postmock.NewMockReputation(ctrl)
	reputation.EXPECT().Score(attester.Handle).Return(DefaultTrustThreshold + 1)

	r := NewReceiver(arena, NewSeenSet(), nil, reputation, pool, emitterFunc(func(*Post) {}), ReceptionConfig{}, nil, nil)
	require.NoError(t, r.HandleNewPost(p))

	att := Attestation{
		PostID:         p.ID,
		PostAuthor:     p.Author,
		Timestamp:      time.Now().UnixMilli(),
		VDFIterations:  p.VDFProof.Iterations,
		AttesterHandle: attester.Handle,
		AttesterPK:     attesterKey.Public,
	}
	signAttestation(t, &att, attesterKey)

	require.NoError(t, r.HandleAttestation(att))

	r.mu.Lock()
	ps, ok := r.pending[p.ID]
	r.mu.Unlock()
	require.True(t, ok)
	require.True(t, ps.post.Attesters.Contains(attester.Handle))
	require.Greater(t, ps.post.TrustScore, 0.0)
}

func TestHandleAttestationIgnoresAttesterBelowTrustThreshold(t *testing.T) {
	idn, authorKey := makeIdentity(t, "alice")
	attester, attesterKey := makeIdentity(t, "carol")

	blobs := blobstore.New(store.NewMemory(), blobstore.DefaultCapBytes, nil, nil)
	c := NewComposer(idn, authorKey, nil, blobs, nil, nil, DefaultMaxPostSize)
	p, err := c.Compose(context.Background(), "hello world", nil, nil)
	require.NoError(t, err)

	arena := NewArena()
	pool := NewVerifierPool(1)
	defer pool.Close()

	ctrl := gomock.NewController(t)
	reputation := postmock.NewMockReputation(ctrl)
	reputation.EXPECT().Score(attester.Handle).Return(0.0)

	r := NewReceiver(arena, NewSeenSet(), nil, reputation, pool, emitterFunc(func(*Post) {}), ReceptionConfig{}, nil, nil)
	require.NoError(t, r.HandleNewPost(p))

	att := Attestation{
		PostID:         p.ID,
		PostAuthor:     p.Author,
		Timestamp:      time.Now().UnixMilli(),
		VDFIterations:  p.VDFProof.Iterations,
		AttesterHandle: attester.Handle,
		AttesterPK:     attesterKey.Public,
	}
	signAttestation(t, &att, attesterKey)

	require.NoError(t, r.HandleAttestation(att))

	r.mu.Lock()
	ps, ok := r.pending[p.ID]
	r.mu.Unlock()
	require.True(t, ok)
	require.False(t, ps.post.Attesters.Contains(attester.Handle))
}
