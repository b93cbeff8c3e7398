// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValid(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
}

func TestSmallNetworkParamsValid(t *testing.T) {
	require.NoError(t, SmallNetworkParams().Validate())
}

func TestValidateRejectsBadAlpha(t *testing.T) {
	p := DefaultParams()
	p.Alpha = p.K + 1
	require.ErrorIs(t, p.Validate(), ErrInvalidAlpha)
}

func TestValidateRejectsPassiveSmallerThanActive(t *testing.T) {
	p := DefaultParams()
	p.PassiveView = p.ActiveView - 1
	require.ErrorIs(t, p.Validate(), ErrInvalidPassiveView)
}

func TestValidateRejectsZeroChunkSize(t *testing.T) {
	p := DefaultParams()
	p.ChunkSize = 0
	require.ErrorIs(t, p.Validate(), ErrInvalidChunkSize)
}
