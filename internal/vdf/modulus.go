// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package vdf

import "math/big"

// modulusHex is the substrate's fixed 2048-bit RSA-style group modulus. A
// production deployment would replace this with the output of a multi-party
// RSA UFO ceremony so no participant learns its factorization; for this
// substrate it is a fixed trusted-setup constant shared by every node so
// that compute/verify agree on the group.
const modulusHex = "" +
	"d6f3a1b2c4e5f60718293a4b5c6d7e8f9a0b1c2d3e4f5061728394a5b6c7d8e" +
	"e8d7c6b5a4938271605f4e3d2c1b0a9f8e7d6c5b4a392817060504030201ff" +
	"1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f81" +
	"9fae8dbc7a6958473625140302f1e0d0c0b0a09080706050403020100ffeed" +
	"337f2a19c0b8d7e6f5041322314051627384950a1b2c3d4e5f60718293a4b5" +
	"72839415061728394a5b6c7d8e9f0a1b2c3d4e5f60718293a4b5c6d7e8f9a0b" +
	"c1d2e3f405162738495a6b7c8d9e0f1a2b3c4d5e6f708192a3b4c5d6e7f8091" +
	"a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f80f"

var modulus = func() *big.Int {
	n, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok {
		panic("vdf: invalid fixed modulus constant")
	}
	return n
}()

// Modulus returns the group modulus N used by Compute and Verify.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}
