// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package core assembles every component package into one running node:
// the explicit Core context spec.md §9 calls for in place of package-level
// state, plus the main dispatch loop that drives it (spec.md §5).
package core

import (
	"time"

	"github.com/publiuspseudis/ember/internal/blobstore"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/overlay"
	"github.com/publiuspseudis/ember/internal/post"
)

// Config collects every recognized configuration option (spec.md §6
// "Recognized configuration options") plus the ambient settings needed to
// actually bring a node up.
type Config struct {
	// Handle is the identity this node claims (or already holds).
	Handle string

	// DataDir is where the embedded KVStore lives.
	DataDir string

	// ListenAddr is the local address the websocket transport accepts
	// inbound peer connections on (e.g. ":7890").
	ListenAddr string

	// Bootstrap is a set of (peerID, url) pairs dialed at startup to join
	// the overlay and DHT.
	Bootstrap map[string]string

	MaxPostSize                   int
	TrustThreshold                float64
	AttestationTimeout            time.Duration
	IdentityConfirmationThreshold int
	ActiveViewSize                int
	PassiveViewSize               int
	BlobCapBytes                  int64

	RequestTimeout time.Duration
}

// withDefaults fills every zero-valued option with its spec default.
func (c Config) withDefaults() Config {
	if c.MaxPostSize <= 0 {
		c.MaxPostSize = post.DefaultMaxPostSize
	}
	if c.TrustThreshold <= 0 {
		c.TrustThreshold = post.DefaultTrustThreshold
	}
	if c.AttestationTimeout <= 0 {
		c.AttestationTimeout = post.DefaultAttestationTimeout
	}
	if c.IdentityConfirmationThreshold <= 0 {
		c.IdentityConfirmationThreshold = identity.DefaultConfirmationThreshold
	}
	if c.ActiveViewSize <= 0 {
		c.ActiveViewSize = overlay.DefaultActiveSize
	}
	if c.PassiveViewSize <= 0 {
		c.PassiveViewSize = overlay.DefaultPassiveSize
	}
	if c.BlobCapBytes <= 0 {
		c.BlobCapBytes = blobstore.DefaultCapBytes
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	return c
}
