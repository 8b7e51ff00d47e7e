// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verify

import (
	"context"
	"math/big"

	safemath "github.com/luxfi/math"
)

var _ Func = Hailstone

// ctxCheckMask controls how often the range loop polls ctx. Checking every
// value would dominate the cost of short orbits.
const ctxCheckMask = 0x3ff

var (
	bigOne   = big.NewInt(1)
	bigThree = big.NewInt(3)
)

// Hailstone is the reference CPU kernel. It reports whether every odd value
// in [start, end] eventually descends below its starting point under the
// 3n+1 map. Even values halve immediately, so only odd values are checked.
//
// The orbit of a single value can exceed 64 bits before it descends; such
// orbits continue in big integers rather than being miscounted as
// counterexamples.
func Hailstone(ctx context.Context, start, end uint64, cfg Config) (Result, error) {
	if cfg.MaxSteps == 0 {
		cfg = DefaultConfig()
	}

	n := start
	if n%2 == 0 {
		n++
	}
	for checked := uint64(0); n <= end; checked++ {
		if checked&ctxCheckMask == 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			default:
			}
		}

		if !descends(n, cfg.MaxSteps) {
			counterexample := n
			return Result{
				Converged:      false,
				Counterexample: &counterexample,
			}, nil
		}

		if end-n < 2 {
			break
		}
		n += 2
	}

	return Result{Converged: true}, nil
}

// descends runs the orbit of n until it drops below n, reaches 1, or exhausts
// the step budget.
func descends(n, maxSteps uint64) bool {
	x := n
	for steps := uint64(0); steps < maxSteps; steps++ {
		if x < n || x == 1 {
			return true
		}
		if x%2 == 0 {
			x >>= 1
			continue
		}
		y, err := safemath.Mul64(x, 3)
		if err == nil {
			y, err = safemath.Add64(y, 1)
		}
		if err != nil {
			return descendsBig(x, n, maxSteps-steps)
		}
		x = y >> 1
	}
	return false
}

// descendsBig continues an orbit that outgrew uint64. It applies the same
// step accounting as descends, halving the odd step into (3x+1)/2.
func descendsBig(x, n, budget uint64) bool {
	v := new(big.Int).SetUint64(x)
	limit := new(big.Int).SetUint64(n)
	for steps := uint64(0); steps < budget; steps++ {
		if v.Cmp(limit) < 0 {
			return true
		}
		if v.Bit(0) == 0 {
			v.Rsh(v, 1)
			continue
		}
		v.Mul(v, bigThree)
		v.Add(v, bigOne)
		v.Rsh(v, 1)
	}
	return false
}
