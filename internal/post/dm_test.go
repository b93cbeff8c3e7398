// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/identity"
)

type dmRouteCalls struct {
	hint, direct, dhtHint bool
	hintOK                bool
}

func (c *dmRouteCalls) SendDirect(string, []byte) bool { c.direct = true; return false }
func (c *dmRouteCalls) SendViaHint(string, []byte) bool {
	c.hint = true
	return c.hintOK
}
func (c *dmRouteCalls) SendViaDHTHint(context.Context, string, []byte) bool {
	c.dhtHint = true
	return true
}

type plainEncoder struct{}

func (plainEncoder) EncodeDM(p DMPayload) []byte                                       { return p.Ciphertext }
func (plainEncoder) EncodeDelivered([16]byte, string, time.Time) []byte                { return nil }

func TestHandleIncomingForwardingTriesRoutingHintFirst(t *testing.T) {
	calls := &dmRouteCalls{hintOK: true}
	m := &DMManager{self: identity.Identity{Handle: "alice"}, route: calls, pending: map[[16]byte]*PendingDM{}}

	p := DMPayload{Recipient: "bob", RoutingHint: "deadbeef", Ciphertext: []byte("x")}
	m.HandleIncoming(context.Background(), plainEncoder{}, p, nil, nil)

	require.True(t, calls.hint, "forwarding must consult routing_hint first")
	require.False(t, calls.direct, "must not fall through to direct once the hint succeeds")
	require.False(t, calls.dhtHint, "must not fall through to DHT fanout once the hint succeeds")
}

func TestHandleIncomingForwardingFallsBackWhenHintFails(t *testing.T) {
	calls := &dmRouteCalls{hintOK: false}
	m := &DMManager{self: identity.Identity{Handle: "alice"}, route: calls, pending: map[[16]byte]*PendingDM{}}

	p := DMPayload{Recipient: "bob", RoutingHint: "deadbeef", Ciphertext: []byte("x")}
	m.HandleIncoming(context.Background(), plainEncoder{}, p, nil, nil)

	require.True(t, calls.hint)
	require.True(t, calls.direct, "a failed hint must fall back to direct")
	require.True(t, calls.dhtHint, "a failed direct must fall back to the DHT fanout")
}

func TestHandleIncomingForwardingSkipsHintWhenAbsent(t *testing.T) {
	calls := &dmRouteCalls{}
	m := &DMManager{self: identity.Identity{Handle: "alice"}, route: calls, pending: map[[16]byte]*PendingDM{}}

	p := DMPayload{Recipient: "bob", Ciphertext: []byte("x")}
	m.HandleIncoming(context.Background(), plainEncoder{}, p, nil, nil)

	require.False(t, calls.hint, "no hint on the payload means no hint attempt")
	require.True(t, calls.direct)
}
