// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package multicast implements C6: Scribe-style rendezvous trees for topic
// broadcast over the DHT/overlay, and Plumtree-style eager/lazy message
// dissemination with graft/prune repair (spec.md §4.6).
package multicast

import (
	"crypto/sha1" //nolint:gosec // keyspace hash, not a security primitive
	"crypto/sha256"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/overlay"
)

// Topic is a hashtag string, always lowercase and without the leading '#'.
type Topic string

// Root returns root(t) = H(t), the DHT address of a topic's rendezvous
// point (spec.md §4.6 "root(t) = H(t)").
func Root(t Topic) dht.ID {
	sum := sha1.Sum([]byte(t)) //nolint:gosec
	return dht.ID(sum)
}

// MessageID identifies a multicast payload for dedup and IHAVE/GRAFT.
type MessageID [32]byte

// IDOf derives a MessageID from a payload's content hash.
func IDOf(payload []byte) MessageID {
	return sha256.Sum256(payload)
}

// Transport is how a Manager reaches remote peers over the overlay.
type Transport interface {
	SendSubscribe(to overlay.Peer, topic Topic)
	SendUnsubscribe(to overlay.Peer, topic Topic)
	SendMulticast(to overlay.Peer, topic Topic, id MessageID, payload []byte)
	SendIHave(to overlay.Peer, topic Topic, id MessageID)
	SendGraft(to overlay.Peer, topic Topic, id MessageID)
	SendPrune(to overlay.Peer, topic Topic)
}
