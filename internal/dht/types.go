// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dht implements C4, the Kademlia-style DHT: a 160-bit XOR
// keyspace, k-buckets with a replacement cache, iterative lookup, and
// store/get with k-closest replication (spec.md §4.4).
package dht

import (
	"bytes"
	"math/bits"
	"time"
)

// IDLen is the width of the DHT keyspace in bytes (spec.md §4.4 "160-bit").
const IDLen = 20

// ID is a 160-bit DHT address: a node's SHA1(pk_sign), or SHA1(key) for a
// stored record's target address.
type ID [IDLen]byte

// Xor returns a XOR b.
func (a ID) Xor(b ID) ID {
	var out ID
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Less reports whether a is numerically smaller than b, used to order
// candidates by XOR distance to a common target.
func (a ID) Less(b ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// bucketIndex returns which of the 160 k-buckets a key with the given
// distance from the local node falls into: the index of the highest set
// bit, i.e. 159 minus the number of leading zero bits.
func bucketIndex(distance ID) int {
	for i, b := range distance {
		if b == 0 {
			continue
		}
		return 8*IDLen - 1 - (8*i + bits.LeadingZeros8(b))
	}
	return 0 // distance is zero: identical ID, placed in bucket 0
}

// Contact is a known peer's DHT identity and reachability info
// (spec.md §3 "routing:<handle> -> {nodeId, wire_peer_id, heartbeat_ts}").
type Contact struct {
	NodeID     ID
	WirePeerID string
	LastSeen   time.Time
}
