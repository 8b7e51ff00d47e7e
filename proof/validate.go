// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proof

import (
	"fmt"
	"time"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
)

// ValidationConfig parameterizes proof validation. Zero durations and sizes
// fall back to the package defaults; the config digest must match the one
// proofs were built against.
type ValidationConfig struct {
	ConfigDigest ids.ID
	MaxRangeSize uint64
	MaxProofAge  time.Duration
	MaxClockSkew time.Duration
}

// DefaultValidationConfig returns the default bounds for the given
// verification parameters.
func DefaultValidationConfig(configDigest ids.ID) ValidationConfig {
	return ValidationConfig{
		ConfigDigest: configDigest,
		MaxRangeSize: DefaultMaxRangeSize,
		MaxProofAge:  DefaultMaxProofAge,
		MaxClockSkew: DefaultMaxClockSkew,
	}
}

// Validate checks a proof's structure, range hash, timestamp bounds, and
// signature. The public key recovered from the signature is returned so the
// caller can register previously unseen workers; its address must match the
// proof's claimed author.
//
// A validation failure says nothing about the worker's honesty. Malformed or
// unauthenticated proofs are discarded without reputation consequences.
func Validate(p *Proof, now time.Time, cfg ValidationConfig) (*secp256k1.PublicKey, error) {
	if err := checkRange(p.RangeStart, p.RangeEnd, cfg.MaxRangeSize); err != nil {
		return nil, err
	}
	if err := checkResult(p.Result); err != nil {
		return nil, err
	}

	if expected := RangeHash(p.RangeStart, p.RangeEnd, cfg.ConfigDigest); p.RangeHash != expected {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrHashMismatch, expected, p.RangeHash)
	}

	maxAge := cfg.MaxProofAge
	if maxAge == 0 {
		maxAge = DefaultMaxProofAge
	}
	maxSkew := cfg.MaxClockSkew
	if maxSkew == 0 {
		maxSkew = DefaultMaxClockSkew
	}
	switch ts := p.Time(); {
	case now.Sub(ts) > maxAge:
		return nil, fmt.Errorf("%w: proof from %s", ErrStaleTimestamp, ts)
	case ts.Sub(now) > maxSkew:
		return nil, fmt.Errorf("%w: proof from %s", ErrFutureTimestamp, ts)
	}

	pub, err := secp256k1.RecoverPublicKeyFromHash(
		signedDigest(p.RangeHash, p.Result, p.Timestamp),
		p.Signature[:],
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if addr := pub.Address(); addr != p.Worker {
		return nil, fmt.Errorf("%w: signed by %s, claimed by %s", ErrBadSignature, addr, p.Worker)
	}
	return pub, nil
}
