// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "errors"

var (
	ErrInvalidMaxPostSize            = errors.New("max_post_size must be > 0")
	ErrInvalidTrustThreshold         = errors.New("trust_threshold must be > 0")
	ErrInvalidConfirmationThreshold  = errors.New("identity_confirmation_threshold must be >= 1")
	ErrInvalidK                      = errors.New("k must be >= 1")
	ErrInvalidAlpha                  = errors.New("alpha must be between 1 and k")
	ErrInvalidActiveView             = errors.New("active_view must be >= 1")
	ErrInvalidPassiveView            = errors.New("passive_view must be >= active_view")
	ErrInvalidChunkSize              = errors.New("chunk_size must be > 0")
	ErrInvalidBlobCap                = errors.New("blob_cap_bytes must be > 0")
	ErrInvalidVerifierPoolSize       = errors.New("verifier_pool_size must be >= 1")
	ErrInvalidDMMaxAttempts          = errors.New("dm_max_attempts must be >= 1")
)
