// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/dht"
)

type recordingTransport struct {
	disconnected []Peer
	forwarded    []Peer
}

func (t *recordingTransport) SendJoin(Peer)                        {}
func (t *recordingTransport) SendForwardJoin(to Peer, joiner Peer, ttl int) {
	t.forwarded = append(t.forwarded, joiner)
}
func (t *recordingTransport) SendDisconnect(p Peer)      { t.disconnected = append(t.disconnected, p) }
func (t *recordingTransport) SendNeighbor(Peer)          {}
func (t *recordingTransport) SendShuffle(Peer, []Peer, int) {}
func (t *recordingTransport) SendShuffleReply(Peer, []Peer) {}

func peerOf(b byte) Peer {
	var id dht.ID
	id[19] = b
	return Peer{NodeID: id}
}

func TestHandleJoinAddsToActiveAndForwards(t *testing.T) {
	tr := &recordingTransport{}
	m := NewManager(peerOf(0), tr, nil)
	m.views.addActive(peerOf(1))

	m.HandleJoin(peerOf(2))

	require.Len(t, m.Active(), 2)
	require.Len(t, tr.forwarded, 1)
}

func TestActiveViewEvictsOnOverflow(t *testing.T) {
	tr := &recordingTransport{}
	m := NewManager(peerOf(0), tr, nil)
	for i := byte(1); i <= DefaultActiveSize; i++ {
		m.views.addActive(peerOf(i))
	}
	require.Len(t, m.Active(), DefaultActiveSize)

	m.HandleJoin(peerOf(100))
	require.Len(t, m.Active(), DefaultActiveSize)
	require.Len(t, tr.disconnected, 1)
}

func TestOnDisconnectPromotesFromPassive(t *testing.T) {
	tr := &recordingTransport{}
	m := NewManager(peerOf(0), tr, nil)
	m.views.addActive(peerOf(1))
	m.views.AddPassive(peerOf(2))

	m.OnDisconnect(peerOf(1).NodeID)

	require.Len(t, m.Active(), 1)
	require.Equal(t, peerOf(2).NodeID, m.Active()[0].NodeID)
}

func TestHandleForwardJoinPromotesAtTTLZero(t *testing.T) {
	tr := &recordingTransport{}
	m := NewManager(peerOf(0), tr, nil)
	m.HandleForwardJoin(peerOf(9), 0)
	require.Len(t, m.Active(), 1)
}
