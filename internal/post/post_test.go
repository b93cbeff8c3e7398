// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/blobstore"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/store"
	"github.com/publiuspseudis/ember/internal/vdf"
)

func makeIdentity(t *testing.T, handle string) (identity.Identity, sigcrypto.SignKeyPair) {
	t.Helper()
	signKP, err := sigcrypto.GenerateSignKeyPair()
	require.NoError(t, err)
	encKP, err := sigcrypto.GenerateEncKeyPair()
	require.NoError(t, err)
	vdfInput := []byte(handle)
	proof, err := vdf.Compute(context.Background(), vdfInput, 200, nil)
	require.NoError(t, err)
	return identity.Identity{
		Handle:   handle,
		PKSign:   signKP.Public,
		PKEnc:    encKP.Public,
		NodeID:   sigcrypto.NodeID(signKP.Public),
		VDFInput: vdfInput,
		VDFProof: proof,
	}, signKP // zero-value Calibration triggers the fallback estimator
}

func TestComposeThenVerifyFull(t *testing.T) {
	id, signKP := makeIdentity(t, "alice")
	blobs := blobstore.New(store.NewMemory(), blobstore.DefaultCapBytes, nil, nil)
	c := NewComposer(id, signKP, nil, blobs, nil, nil, DefaultMaxPostSize)

	p, err := c.Compose(context.Background(), "hello world", nil, nil)
	require.NoError(t, err)
	require.True(t, verifyFull(p))
}

func TestComposeRejectsOversizedContent(t *testing.T) {
	idn, signKP := makeIdentity(t, "alice")
	blobs := blobstore.New(store.NewMemory(), blobstore.DefaultCapBytes, nil, nil)
	c := NewComposer(idn, signKP, nil, blobs, nil, nil, 10)

	_, err := c.Compose(context.Background(), "this content is far too long", nil, nil)
	require.Error(t, err)
}

type fakeReputation struct{ score float64 }

func (f fakeReputation) Score(string) float64 { return f.score }

func TestReceiverAcceptsAboveTrustThresholdWithoutFullVerification(t *testing.T) {
	idn, signKP := makeIdentity(t, "alice")
	blobs := blobstore.New(store.NewMemory(), blobstore.DefaultCapBytes, nil, nil)
	c := NewComposer(idn, signKP, nil, blobs, nil, nil, DefaultMaxPostSize)
	p, err := c.Compose(context.Background(), "hello world", nil, nil)
	require.NoError(t, err)

	arena := NewArena()
	pool := NewVerifierPool(1)
	defer pool.Close()

	var mu sync.Mutex
	var accepted bool
	emitter := emitterFunc(func(*Post) { mu.Lock(); accepted = true; mu.Unlock() })

	r := NewReceiver(arena, NewSeenSet(), nil, fakeReputation{score: 10}, pool, emitter, ReceptionConfig{}, nil, nil)
	require.NoError(t, r.HandleNewPost(p))

	p.TrustScore = DefaultTrustThreshold
	r.Tick()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, accepted)
	_, ok := arena.Get(p.ID)
	require.True(t, ok)
}

type emitterFunc func(*Post)

func (f emitterFunc) EmitAttestation(p *Post) { f(p) }

func TestReceiverFallsBackToFullVerificationAfterTimeout(t *testing.T) {
	idn, signKP := makeIdentity(t, "alice")
	blobs := blobstore.New(store.NewMemory(), blobstore.DefaultCapBytes, nil, nil)
	c := NewComposer(idn, signKP, nil, blobs, nil, nil, DefaultMaxPostSize)
	p, err := c.Compose(context.Background(), "hello world", nil, nil)
	require.NoError(t, err)

	arena := NewArena()
	pool := NewVerifierPool(1)
	defer pool.Close()

	var accepted sync.WaitGroup
	accepted.Add(1)
	emitter := emitterFunc(func(*Post) { accepted.Done() })

	cfg := ReceptionConfig{AttestationTimeout: time.Millisecond}
	r := NewReceiver(arena, NewSeenSet(), nil, fakeReputation{score: 0}, pool, emitter, cfg, nil, nil)
	require.NoError(t, r.HandleNewPost(p))

	time.Sleep(5 * time.Millisecond)
	r.Tick()

	select {
	case res := <-pool.Results():
		r.HandleVerifyResult(res)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for verification result")
	}

	accepted.Wait()
}

func TestCarrierUpdateDropsEmptyNonReplyPost(t *testing.T) {
	arena := NewArena()
	p := &Post{ID: id(9), Carriers: map[string]struct{}{"alice": {}}}
	arena.Insert(p)

	HandleCarrierUpdate(arena, id(9), "alice", false)
	_, ok := arena.Get(id(9))
	require.False(t, ok)
}

func TestRatingRejectsSelfVote(t *testing.T) {
	_, signKP := makeIdentity(t, "alice")
	_, err := ComposeRating(id(1), "alice", VoteUp, 1, "alice", signKP)
	require.Error(t, err)
}

func TestRatingRoundTrip(t *testing.T) {
	_, signKP := makeIdentity(t, "bob")
	r, err := ComposeRating(id(1), "bob", VoteUp, 1, "alice", signKP)
	require.NoError(t, err)

	agg := &RatingAggregate{}
	require.NoError(t, ApplyRating(agg, r, "alice", time.UnixMilli(r.Timestamp)))
	require.Equal(t, 1, agg.Up)
}

func TestRatingRejectsReplay(t *testing.T) {
	_, signKP := makeIdentity(t, "bob")
	r, err := ComposeRating(id(1), "bob", VoteUp, 1, "alice", signKP)
	require.NoError(t, err)

	agg := &RatingAggregate{}
	err = ApplyRating(agg, r, "alice", time.UnixMilli(r.Timestamp).Add(RatingReplayWindow+time.Minute))
	require.Error(t, err)
}
