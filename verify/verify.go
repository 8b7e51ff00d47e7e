// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verify defines the interface between the quorum protocol and the
// numeric verification routine whose results the network agrees on. The
// protocol treats the routine as an opaque collaborator; only the worker and
// the command line bind a concrete kernel.
package verify

import (
	"context"
	"strconv"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/utils/wrappers"
)

// Func computes a verification result over the inclusive range
// [start, end]. Implementations must be deterministic for a given
// (start, end, config) triple and must honor ctx cancellation.
type Func func(ctx context.Context, start, end uint64, cfg Config) (Result, error)

// Result is the outcome of verifying a range. Either every value in the
// range satisfied the property (Converged) or a specific value did not
// (Counterexample). A result with a counterexample is never converged.
type Result struct {
	Converged      bool
	Counterexample *uint64
}

// Key returns a canonical encoding of the result. Two results agree exactly
// when their keys are equal, which is the comparison consensus uses to
// partition proofs.
func (r Result) Key() string {
	switch {
	case r.Counterexample != nil:
		return "counterexample:" + strconv.FormatUint(*r.Counterexample, 10)
	case r.Converged:
		return "converged"
	default:
		return "diverged"
	}
}

// Config bounds the work a verification kernel may spend per value.
type Config struct {
	// MaxSteps caps the orbit length explored for a single value before the
	// value is reported as a counterexample.
	MaxSteps uint64
}

// DefaultConfig returns the network-wide verification parameters. The known
// longest orbits below 2^64 are under two thousand steps, so the default
// bound only trips on values that genuinely fail to descend.
func DefaultConfig() Config {
	return Config{
		MaxSteps: 1 << 20,
	}
}

// Digest commits to the verification parameters. It is mixed into every
// proof's range hash so that proofs computed under different parameters can
// never satisfy one another's quorums.
func (c Config) Digest() ids.ID {
	p := wrappers.Packer{MaxSize: wrappers.LongLen}
	p.PackLong(c.MaxSteps)
	return hash.ComputeHash256Array(p.Bytes)
}
