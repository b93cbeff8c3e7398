// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package multicast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/publiuspseudis/ember/internal/overlay"
)

func TestExtractTopicsDefaultsToGeneral(t *testing.T) {
	require.Equal(t, []Topic{DefaultTopic}, ExtractTopics("just plain text"))
}

func TestExtractTopicsDedupesAndLowercases(t *testing.T) {
	topics := ExtractTopics("hello #Go and #go again, #rust!")
	require.Equal(t, []Topic{"go", "rust"}, topics)
}

type fakeTransport struct {
	multicasts []struct {
		to      overlay.Peer
		topic   Topic
		id      MessageID
		payload []byte
	}
	ihaves []overlay.Peer
	prunes []overlay.Peer
}

func (f *fakeTransport) SendSubscribe(overlay.Peer, Topic)   {}
func (f *fakeTransport) SendUnsubscribe(overlay.Peer, Topic) {}
func (f *fakeTransport) SendMulticast(to overlay.Peer, topic Topic, id MessageID, payload []byte) {
	f.multicasts = append(f.multicasts, struct {
		to      overlay.Peer
		topic   Topic
		id      MessageID
		payload []byte
	}{to, topic, id, payload})
}
func (f *fakeTransport) SendIHave(to overlay.Peer, topic Topic, id MessageID) {
	f.ihaves = append(f.ihaves, to)
}
func (f *fakeTransport) SendGraft(overlay.Peer, Topic, MessageID) {}
func (f *fakeTransport) SendPrune(to overlay.Peer, topic Topic) {
	f.prunes = append(f.prunes, to)
}

type fakeRouter struct {
	next overlay.Peer
	has  bool
}

func (r *fakeRouter) NextHopToward([20]byte) (overlay.Peer, bool) { return r.next, r.has }

func peer(b byte) overlay.Peer {
	var id [20]byte
	id[19] = b
	return overlay.Peer{NodeID: id}
}

func TestHandleSubscribeRecordsChildAndForwards(t *testing.T) {
	tr := &fakeTransport{}
	router := &fakeRouter{next: peer(9), has: true}
	m := NewManager(peer(0), tr, router, func(Topic, []byte) {}, nil)

	m.HandleSubscribe(peer(1), "news")
	require.True(t, m.topics["news"].inTree())
}

func TestMulticastFansOutToChildrenAsEager(t *testing.T) {
	tr := &fakeTransport{}
	router := &fakeRouter{has: false}
	var delivered []byte
	m := NewManager(peer(0), tr, router, func(topic Topic, payload []byte) { delivered = payload }, nil)

	m.HandleSubscribe(peer(1), "news")
	m.Multicast("news", []byte("hello"))

	require.Len(t, tr.multicasts, 1)
	require.Equal(t, peer(1), tr.multicasts[0].to)
	require.Nil(t, delivered) // this node originated the message, not delivered to self
}

func TestDuplicateEagerMessageTriggersPrune(t *testing.T) {
	tr := &fakeTransport{}
	router := &fakeRouter{has: false}
	m := NewManager(peer(0), tr, router, func(Topic, []byte) {}, nil)

	m.HandleSubscribe(peer(1), "news")
	id := IDOf([]byte("hello"))
	m.HandleMulticast(peer(1), "news", id, []byte("hello"))
	m.HandleMulticast(peer(1), "news", id, []byte("hello"))

	require.Len(t, tr.prunes, 1)
	require.Equal(t, peer(1), tr.prunes[0])
}
