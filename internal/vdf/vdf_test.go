// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package vdf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeThenVerify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proof, err := Compute(ctx, []byte("alice-claim-input"), 500, nil)
	require.NoError(t, err)
	require.True(t, Verify([]byte("alice-claim-input"), proof))
}

func TestVerifyRejectsWrongInput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proof, err := Compute(ctx, []byte("input-a"), 300, nil)
	require.NoError(t, err)
	require.False(t, Verify([]byte("input-b"), proof))
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proof, err := Compute(ctx, []byte("input-c"), 300, nil)
	require.NoError(t, err)
	proof.Iterations++
	require.False(t, Verify([]byte("input-c"), proof))
}

func TestComputeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compute(ctx, []byte("never-finishes"), 10_000_000, nil)
	require.Error(t, err)
}

func TestEstimateIterationsFallback(t *testing.T) {
	require.Equal(t, uint64(2000), EstimateIterationsForMS(100, nil))
	require.Equal(t, uint64(3000), EstimateIterationsForMS(1000, nil))
}

func TestEstimateIterationsFromCalibration(t *testing.T) {
	cal := &Calibration{IterationsPerMS: 10}
	require.Equal(t, uint64(1000), EstimateIterationsForMS(100, cal))
}
