// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verify

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHailstoneConverges(t *testing.T) {
	require := require.New(t)

	res, err := Hailstone(context.Background(), 3, 10_001, DefaultConfig())
	require.NoError(err)
	require.True(res.Converged)
	require.Nil(res.Counterexample)
}

func TestHailstoneEvenOnlyRange(t *testing.T) {
	require := require.New(t)

	// No odd values to check.
	res, err := Hailstone(context.Background(), 4, 4, DefaultConfig())
	require.NoError(err)
	require.True(res.Converged)
}

func TestHailstoneCounterexample(t *testing.T) {
	require := require.New(t)

	// 27 is the first odd value needing more than ten halved steps to
	// descend below itself; every smaller odd value needs at most eight.
	res, err := Hailstone(context.Background(), 3, 30, Config{MaxSteps: 10})
	require.NoError(err)
	require.False(res.Converged)
	require.NotNil(res.Counterexample)
	require.Equal(uint64(27), *res.Counterexample)
}

func TestHailstoneBigOrbit(t *testing.T) {
	require := require.New(t)

	// The orbit of 2^64-1 peaks at a 102-bit value and descends after 202
	// steps, so it exercises the big integer continuation both ways.
	res, err := Hailstone(context.Background(), math.MaxUint64, math.MaxUint64, DefaultConfig())
	require.NoError(err)
	require.True(res.Converged)

	res, err = Hailstone(context.Background(), math.MaxUint64, math.MaxUint64, Config{MaxSteps: 100})
	require.NoError(err)
	require.False(res.Converged)
	require.Equal(uint64(math.MaxUint64), *res.Counterexample)
}

func TestHailstoneContextCancelled(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Hailstone(ctx, 3, math.MaxUint64/2, DefaultConfig())
	require.ErrorIs(err, context.Canceled)
}

func TestResultKey(t *testing.T) {
	require := require.New(t)

	seven := uint64(7)
	eight := uint64(8)

	converged := Result{Converged: true}
	withSeven := Result{Counterexample: &seven}
	withEight := Result{Counterexample: &eight}

	require.Equal("converged", converged.Key())
	require.NotEqual(withSeven.Key(), withEight.Key())
	require.NotEqual(converged.Key(), withSeven.Key())

	alsoSeven := uint64(7)
	require.Equal(withSeven.Key(), Result{Counterexample: &alsoSeven}.Key())
}

func TestConfigDigest(t *testing.T) {
	require := require.New(t)

	require.Equal(DefaultConfig().Digest(), DefaultConfig().Digest())
	require.NotEqual(DefaultConfig().Digest(), Config{MaxSteps: 7}.Digest())
}
