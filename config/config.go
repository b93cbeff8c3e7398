// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the substrate's Recognized Configuration Options
// (spec.md §6) as a typed, validated Parameters struct, following the
// teacher's DefaultParams/preset/Validate shape (originally
// networking/consensus Parameters, here re-grounded on this substrate's own
// option set).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Parameters holds every option named in spec.md §6's "Recognized
// configuration options" table, plus the sizes/timeouts each component
// needs that the table leaves as component defaults.
type Parameters struct {
	// MaxPostSize is the maximum content bytes accepted on post create and
	// receive (spec.md §3, §7 SizeExceeded).
	MaxPostSize int `yaml:"max_post_size"`

	// TrustThreshold is the attestation weight needed for short-circuit
	// acceptance of a pending post (spec.md §4.8 step 4).
	TrustThreshold float64 `yaml:"trust_threshold"`

	// AttestationTimeout is the grace period before a pending post falls
	// back to full VDF+signature verification (spec.md §4.8 step 4).
	AttestationTimeout time.Duration `yaml:"attestation_timeout"`

	// IdentityConfirmationThreshold is Q, the number of unique confirmation
	// slips required to promote a provisional identity claim (spec.md §4.7).
	IdentityConfirmationThreshold int `yaml:"identity_confirmation_threshold"`

	// K is the Kademlia bucket size and replication factor (spec.md §4.4).
	K int `yaml:"k"`

	// Alpha is the Kademlia iterative-lookup parallelism (spec.md §4.4).
	Alpha int `yaml:"alpha"`

	// ActiveView / PassiveView are the HyParView membership bounds
	// (spec.md §4.5).
	ActiveView  int `yaml:"active_view"`
	PassiveView int `yaml:"passive_view"`

	// ChunkSize is the blob store's chunk size in bytes (spec.md §4.3).
	ChunkSize int `yaml:"chunk_size"`

	// BlobCapBytes is the blob store's soft capacity (spec.md §4.3).
	BlobCapBytes int64 `yaml:"blob_cap_bytes"`

	// --- component defaults not individually named in the options table,
	// but required to drive them; these still come from this one typed,
	// validated struct rather than scattered literals. ---

	// IdentityClaimTTL is how long a provisional identity claim lives
	// before GC if it never reaches quorum (spec.md §4.7).
	IdentityClaimTTL time.Duration `yaml:"identity_claim_ttl"`

	// ReplicationRefreshInterval is the DHT's background re-store interval
	// (spec.md §4.4, REFRESH_INTERVAL).
	ReplicationRefreshInterval time.Duration `yaml:"replication_refresh_interval"`

	// BucketRefreshInterval is how long a k-bucket can go untouched before
	// a random lookup refreshes it (spec.md §4.4).
	BucketRefreshInterval time.Duration `yaml:"bucket_refresh_interval"`

	// ChunkFetchTimeout / ChunkFetchRetries govern the blob retrieval
	// fallback protocol (spec.md §4.3).
	ChunkFetchTimeout  time.Duration `yaml:"chunk_fetch_timeout"`
	ChunkFetchRetries  int           `yaml:"chunk_fetch_retries"`

	// VerifierPoolSize is N, the number of VDF/signature verifier workers
	// (spec.md §9 "Verifier pool").
	VerifierPoolSize int `yaml:"verifier_pool_size"`

	// PendingEvaluationInterval / PendingEvaluationWindow drive the
	// trust-evaluation ticks of a pending post (spec.md §4.8 step 3).
	PendingEvaluationInterval time.Duration `yaml:"pending_evaluation_interval"`
	PendingEvaluationWindow   time.Duration `yaml:"pending_evaluation_window"`

	// DandelionMinActivePeers / DandelionStemHops govern the dissemination
	// strategy choice (spec.md §4.8 step 5, §9 "Privacy routing").
	DandelionMinActivePeers int `yaml:"dandelion_min_active_peers"`
	DandelionStemHops       int `yaml:"dandelion_stem_hops"`

	// DMMaxAttempts / DMExpiry / DMFlushInterval govern the store-and-forward
	// DM path (spec.md §4.8 "End-to-end direct messages").
	DMMaxAttempts   int           `yaml:"dm_max_attempts"`
	DMExpiry        time.Duration `yaml:"dm_expiry"`
	DMFlushInterval time.Duration `yaml:"dm_flush_interval"`

	// ReputationCacheTTL is the lazy-recompute window for cached peer
	// reputation scores (spec.md §9 "Reputation store").
	ReputationCacheTTL time.Duration `yaml:"reputation_cache_ttl"`

	// RatingReplayWindow bounds how old a post_rating may be before it is
	// dropped as a replay (spec.md §4.8 "Rating").
	RatingReplayWindow time.Duration `yaml:"rating_replay_window"`

	// ThreadAliveMaxAge / ThreadSoleCarrierWithdrawAge drive thread GC
	// (spec.md §4.8 "Garbage collection").
	ThreadAliveMaxAge             time.Duration `yaml:"thread_alive_max_age"`
	ThreadSoleCarrierWithdrawAge  time.Duration `yaml:"thread_sole_carrier_withdraw_age"`
}

// DefaultParams returns the substrate's default parameters, grounded on the
// teacher's DefaultParams()/MainnetParams() preset pattern.
func DefaultParams() Parameters {
	return Parameters{
		MaxPostSize:                   4096,
		TrustThreshold:                3.0,
		AttestationTimeout:            2 * time.Second,
		IdentityConfirmationThreshold: 3,
		K:                             20,
		Alpha:                         3,
		ActiveView:                    5,
		PassiveView:                   30,
		ChunkSize:                     16 * 1024,
		BlobCapBytes:                  10 * 1024 * 1024,
		IdentityClaimTTL:              24 * time.Hour,
		ReplicationRefreshInterval:    time.Hour,
		BucketRefreshInterval:         time.Hour,
		ChunkFetchTimeout:             10 * time.Second,
		ChunkFetchRetries:             3,
		VerifierPoolSize:              4,
		PendingEvaluationInterval:     100 * time.Millisecond,
		PendingEvaluationWindow:       10 * time.Second,
		DandelionMinActivePeers:       3,
		DandelionStemHops:             3,
		DMMaxAttempts:                 10,
		DMExpiry:                      7 * 24 * time.Hour,
		DMFlushInterval:               60 * time.Second,
		ReputationCacheTTL:            60 * time.Second,
		RatingReplayWindow:            5 * time.Minute,
		ThreadAliveMaxAge:             time.Hour,
		ThreadSoleCarrierWithdrawAge:  30 * time.Minute,
	}
}

// SmallNetworkParams returns parameters suited to a handful of local test
// peers: smaller views and a lower confirmation quorum, grounded on the
// teacher's LocalParams() preset.
func SmallNetworkParams() Parameters {
	p := DefaultParams()
	p.IdentityConfirmationThreshold = 1
	p.ActiveView = 3
	p.PassiveView = 8
	p.K = 5
	p.Alpha = 2
	return p
}

// Validate checks a Parameters value for internal consistency, grounded on
// the teacher's Valid()/Validate() pattern.
func (p Parameters) Validate() error {
	switch {
	case p.MaxPostSize <= 0:
		return ErrInvalidMaxPostSize
	case p.TrustThreshold <= 0:
		return ErrInvalidTrustThreshold
	case p.IdentityConfirmationThreshold < 1:
		return ErrInvalidConfirmationThreshold
	case p.K < 1:
		return ErrInvalidK
	case p.Alpha < 1 || p.Alpha > p.K:
		return ErrInvalidAlpha
	case p.ActiveView < 1:
		return ErrInvalidActiveView
	case p.PassiveView < p.ActiveView:
		return ErrInvalidPassiveView
	case p.ChunkSize <= 0:
		return ErrInvalidChunkSize
	case p.BlobCapBytes <= 0:
		return ErrInvalidBlobCap
	case p.VerifierPoolSize < 1:
		return ErrInvalidVerifierPoolSize
	case p.DMMaxAttempts < 1:
		return ErrInvalidDMMaxAttempts
	}
	return nil
}

// Load reads YAML-encoded Parameters from path, starting from
// DefaultParams() so a partial file only overrides what it names.
func Load(path string) (Parameters, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Parameters{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}
