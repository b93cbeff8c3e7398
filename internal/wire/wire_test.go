// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodePeekTypeDecodeRoundTrip(t *testing.T) {
	raw, err := Encode(TypeCarrierUpdate, CarrierUpdate{PostID: []byte{1, 2, 3}, Peer: "alice", Carrying: true})
	require.NoError(t, err)

	typ, err := PeekType(raw)
	require.NoError(t, err)
	require.Equal(t, TypeCarrierUpdate, typ)

	var decoded CarrierUpdate
	require.NoError(t, Decode(raw, &decoded))
	require.Equal(t, "alice", decoded.Peer)
	require.True(t, decoded.Carrying)
}

func TestDispatcherRoutesToRegisteredHandler(t *testing.T) {
	d := NewDispatcher(nil)
	var got CarrierUpdate
	d.Register(TypeCarrierUpdate, func(_ context.Context, _ PeerID, raw []byte) error {
		return Decode(raw, &got)
	})

	raw, err := Encode(TypeCarrierUpdate, CarrierUpdate{Peer: "bob", Carrying: false})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), "peer-1", raw))
	require.Equal(t, "bob", got.Peer)
}

func TestDispatcherDropsUnknownTypeSilently(t *testing.T) {
	d := NewDispatcher(nil)
	raw, err := Encode(Type("something_unrecognized"), struct{}{})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), "peer-1", raw))
}
