// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/set"
)

type carrierUpdateFunc func(postID [16]byte, peer string, carrying bool)

func (f carrierUpdateFunc) BroadcastCarrierUpdate(postID [16]byte, peer string, carrying bool) {
	f(postID, peer, carrying)
}

func TestSweepKeepsThreadWithRepliesRegardlessOfSoleOldCarrier(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	root := &Post{ID: rootID, Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(), Carriers: set.Of("alice")}
	reply := &Post{ID: id(2), ParentID: &rootID, Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(), Carriers: set.Of("alice")}
	a.Insert(root)
	a.Insert(reply)

	var withdrawn bool
	sink := carrierUpdateFunc(func([16]byte, string, bool) { withdrawn = true })
	g := NewGCRunner(a, "alice", sink)
	g.Sweep(time.Now())

	require.False(t, withdrawn)
	_, ok := a.Get(rootID)
	require.True(t, ok)
	require.True(t, root.Carriers.Contains("alice"))
}

func TestSweepWithdrawsSoleCarrierPastAgeThreshold(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	root := &Post{ID: rootID, Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(), Carriers: set.Of("alice")}
	a.Insert(root)

	var gotPostID [16]byte
	var gotPeer string
	var gotCarrying bool
	sink := carrierUpdateFunc(func(postID [16]byte, peer string, carrying bool) {
		gotPostID, gotPeer, gotCarrying = postID, peer, carrying
	})
	g := NewGCRunner(a, "alice", sink)
	g.Sweep(time.Now())

	require.Equal(t, rootID, gotPostID)
	require.Equal(t, "alice", gotPeer)
	require.False(t, gotCarrying)
	_, ok := a.Get(rootID)
	require.False(t, ok, "a non-reply post whose only carrier withdrew should be dropped")
}

func TestSweepLeavesSoleCarrierThreadUntouchedBeforeAgeThreshold(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	root := &Post{ID: rootID, Timestamp: time.Now().Add(-5 * time.Minute).UnixMilli(), Carriers: set.Of("alice")}
	a.Insert(root)

	var withdrawn bool
	sink := carrierUpdateFunc(func([16]byte, string, bool) { withdrawn = true })
	g := NewGCRunner(a, "alice", sink)
	g.Sweep(time.Now())

	require.False(t, withdrawn)
	_, ok := a.Get(rootID)
	require.True(t, ok)
}

func TestSweepDoesNotWithdrawAnotherNodesCarriage(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	root := &Post{ID: rootID, Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(), Carriers: set.Of("bob")}
	a.Insert(root)

	var withdrawn bool
	sink := carrierUpdateFunc(func([16]byte, string, bool) { withdrawn = true })
	g := NewGCRunner(a, "alice", sink)
	g.Sweep(time.Now())

	require.False(t, withdrawn, "alice is not the sole carrier and must not withdraw bob's carriage")
	_, ok := a.Get(rootID)
	require.True(t, ok)
}

func TestSweepTakesNoActionOnAgedThreadWithTwoCarriers(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	root := &Post{ID: rootID, Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(), Carriers: set.Of("alice", "bob")}
	a.Insert(root)

	var touched bool
	sink := carrierUpdateFunc(func([16]byte, string, bool) { touched = true })
	g := NewGCRunner(a, "alice", sink)
	g.Sweep(time.Now())

	require.False(t, touched, "spec names no GC action for the two-carrier, past-threshold case")
	_, ok := a.Get(rootID)
	require.True(t, ok)
}
