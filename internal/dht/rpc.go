// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import "context"

// RPCClient is how a Node reaches remote peers; internal/transport and
// internal/wire provide the real implementation over the peer connection
// fabric. Every call here is a suspension point (spec.md §5).
type RPCClient interface {
	Ping(ctx context.Context, to Contact) error
	FindNode(ctx context.Context, to Contact, target ID) ([]Contact, error)
	FindValue(ctx context.Context, to Contact, key ID) (value []byte, closer []Contact, found bool, err error)
	Store(ctx context.Context, to Contact, key ID, value []byte) error
}
