// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package vdf

import (
	"context"
	"crypto/sha256"
	"math/big"
	"time"

	"github.com/publiuspseudis/ember/internal/errs"
)

// DefaultDeadline is the default VDF compute cancellation deadline
// (spec.md §5 "Cancellation and timeouts").
const DefaultDeadline = 35 * time.Second

// challengePrimeBits bounds the size of the Fiat-Shamir challenge prime l;
// small enough that verification's 2^iterations mod l stays O(polylog).
const challengePrimeBits = 128

// Compute produces a Proof requiring iterations sequential squarings over
// the fixed group, reporting progress on progressCh (fraction 0..1, best
// effort, never blocks the squaring loop for long). Compute returns
// errs.KindVDFTimeout if ctx is cancelled or its deadline elapses before
// completion; no proof is returned in that case (spec.md §4.1 "cancellation
// reports no proof").
func Compute(ctx context.Context, input []byte, iterations uint64, progressCh chan<- float64) (Proof, error) {
	g := hashToGroup(input)
	N := modulus

	x := new(big.Int).Set(g)
	r := big.NewInt(1)
	pi := big.NewInt(1)
	two := big.NewInt(2)

	// l is fixed before the squaring loop starts in the classic Wesolowski
	// scheme only once y is known; here we use the incremental variant
	// (Pietrzak-style accumulation) which derives l from (g, input,
	// iterations) up front so proof accumulation can proceed alongside the
	// squaring loop in a single pass.
	l := challengePrime(g, input, iterations)

	const checkEvery = 4096
	for i := uint64(0); i < iterations; i++ {
		if i%checkEvery == 0 {
			select {
			case <-ctx.Done():
				return Proof{}, errs.Wrap(errs.KindVDFTimeout, ctx.Err(), "vdf compute cancelled")
			default:
			}
			if progressCh != nil {
				select {
				case progressCh <- float64(i) / float64(iterations):
				default:
				}
			}
		}

		// b_i = floor(2*r / l), r = 2*r mod l
		twoR := new(big.Int).Mul(two, r)
		b := new(big.Int).Div(twoR, l)
		r = new(big.Int).Mod(twoR, l)
		pi.Mul(pi, pi)
		if b.Sign() != 0 {
			pi.Mul(pi, g)
		}
		pi.Mod(pi, N)
		x.Mul(x, x)
		x.Mod(x, N)
	}

	if progressCh != nil {
		select {
		case progressCh <- 1.0:
		default:
		}
	}

	return Proof{
		Y:          x.Bytes(),
		Pi:         pi.Bytes(),
		L:          l.Bytes(),
		R:          r.Bytes(),
		Iterations: iterations,
	}, nil
}

// Verify checks that proof is a valid VDF proof on input, recomputing the
// challenge prime and the cheap exponent-mod-prime remainder rather than
// repeating the sequential squaring (spec.md §4.1 "verify ... fast").
func Verify(input []byte, proof Proof) bool {
	if proof.Iterations == 0 {
		return false
	}
	g := hashToGroup(input)
	N := modulus

	y := new(big.Int).SetBytes(proof.Y)
	pi := new(big.Int).SetBytes(proof.Pi)
	l := new(big.Int).SetBytes(proof.L)
	r := new(big.Int).SetBytes(proof.R)

	if l.Sign() <= 0 || !l.ProbablyPrime(20) {
		return false
	}
	expectL := challengePrime(g, input, proof.Iterations)
	if l.Cmp(expectL) != 0 {
		return false
	}

	// r must equal 2^iterations mod l.
	two := big.NewInt(2)
	expectR := new(big.Int).Exp(two, new(big.Int).SetUint64(proof.Iterations), l)
	if r.Cmp(expectR) != 0 {
		return false
	}

	// y must equal pi^l * g^r (mod N).
	lhs := new(big.Int).Exp(pi, l, N)
	gr := new(big.Int).Exp(g, r, N)
	lhs.Mul(lhs, gr)
	lhs.Mod(lhs, N)

	return lhs.Cmp(y) == 0
}

// hashToGroup maps an arbitrary input to an element of the quadratic-residue
// subgroup of Z/NZ, avoiding low-order elements.
func hashToGroup(input []byte) *big.Int {
	h := sha256.Sum256(input)
	g := new(big.Int).SetBytes(h[:])
	g.Mod(g, modulus)
	g.Mul(g, g)
	g.Mod(g, modulus)
	if g.Sign() == 0 {
		g.SetInt64(2)
	}
	return g
}

// challengePrime derives the Fiat-Shamir prime l from (g, input, iterations)
// via hash-then-next-prime, so prover and verifier always agree on l
// without interaction.
func challengePrime(g *big.Int, input []byte, iterations uint64) *big.Int {
	h := sha256.New()
	h.Write(g.Bytes())
	h.Write(input)
	h.Write(uint64Bytes(iterations))
	seed := h.Sum(nil)

	candidate := new(big.Int).SetBytes(seed)
	bits := candidate.BitLen()
	if bits > challengePrimeBits {
		candidate.Rsh(candidate, uint(bits-challengePrimeBits))
	}
	candidate.SetBit(candidate, 0, 1) // force odd
	for !candidate.ProbablyPrime(20) {
		candidate.Add(candidate, big.NewInt(2))
	}
	return candidate
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// EstimateIterationsForMS converts a target wall-clock cost into an
// iteration count using cal's measured throughput, falling back to
// max(2000, 3*targetMS) when no calibration is available
// (spec.md §4.1 "estimate_iterations_for_ms").
func EstimateIterationsForMS(targetMS uint64, cal *Calibration) uint64 {
	if cal == nil || cal.IterationsPerMS <= 0 {
		fallback := uint64(3 * targetMS)
		if fallback < 2000 {
			fallback = 2000
		}
		return fallback
	}
	return uint64(cal.IterationsPerMS * float64(targetMS))
}

// Calibrate measures this device's sequential-squaring throughput by timing
// a fixed small number of iterations, returning a Calibration usable by
// EstimateIterationsForMS.
func Calibrate(ctx context.Context, sampleIterations uint64) (Calibration, error) {
	input := []byte("ember-vdf-calibration")
	start := time.Now()
	if _, err := Compute(ctx, input, sampleIterations, nil); err != nil {
		return Calibration{}, err
	}
	elapsedMS := float64(time.Since(start).Milliseconds())
	if elapsedMS <= 0 {
		elapsedMS = 1
	}
	return Calibration{
		IterationsPerMS:  float64(sampleIterations) / elapsedMS,
		TargetIterations: sampleIterations,
	}, nil
}
