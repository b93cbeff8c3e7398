// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdaptiveTargetMSBaseline(t *testing.T) {
	now := time.Now()
	target := AdaptiveTargetMS(nil, "a normal length post with enough characters", now)
	require.Equal(t, uint64(baseTargetMS), target)
}

func TestAdaptiveTargetMSPostFrequencyMultiplier(t *testing.T) {
	now := time.Now()
	var recent []time.Time
	for i := 0; i < 11; i++ {
		recent = append(recent, now.Add(-time.Minute))
	}
	target := AdaptiveTargetMS(recent, "a normal length post with enough characters", now)
	require.Equal(t, uint64(baseTargetMS*8), target)
}

func TestAdaptiveTargetMSSpamMultiplier(t *testing.T) {
	now := time.Now()
	target := AdaptiveTargetMS(nil, "heyyyyyy check this out", now)
	require.Equal(t, uint64(baseTargetMS*3), target)
}

func TestAdaptiveTargetMSShortContentMultiplier(t *testing.T) {
	now := time.Now()
	target := AdaptiveTargetMS(nil, "short", now)
	require.Equal(t, uint64(baseTargetMS*2), target)
}

func TestAdaptiveTargetMSClamped(t *testing.T) {
	now := time.Now()
	var recent []time.Time
	for i := 0; i < 11; i++ {
		recent = append(recent, now.Add(-time.Minute))
	}
	// Short AND spammy AND high frequency: 8 * 3 * 2 = 48x base, clamped.
	target := AdaptiveTargetMS(recent, "aaaaa!!", now)
	require.Equal(t, uint64(maxTargetMS), target)
}

func TestReplyTargetMSFloor(t *testing.T) {
	require.Equal(t, uint64(500), ReplyTargetMS(600))
	require.Equal(t, uint64(500), ReplyTargetMS(100))
	require.Equal(t, uint64(1000), ReplyTargetMS(2000))
}
