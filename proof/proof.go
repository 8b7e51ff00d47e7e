// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package proof builds and validates the signed records workers submit for
// verified ranges. A proof commits to the range, the verification
// parameters, the result, and the submission time, and is signed with the
// worker's secp256k1 key. Proofs are content addressed by the hash of their
// canonical wire encoding.
//
// Validation here is purely cryptographic and structural. Whether a proof
// satisfies a quorum, or whether its author is trusted, is decided by the
// consensus layer.
package proof

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/verify"
)

const (
	// DefaultMaxRangeSize bounds end-start for a single assignment.
	DefaultMaxRangeSize = 10_000_000_000

	// DefaultMaxProofAge is how far in the past a proof's timestamp may lie
	// before the proof is discarded as stale.
	DefaultMaxProofAge = 7 * 24 * time.Hour

	// DefaultMaxClockSkew is how far in the future a proof's timestamp may
	// lie before the proof is discarded.
	DefaultMaxClockSkew = 5 * time.Minute
)

var (
	ErrInvalidRange    = errors.New("invalid range")
	ErrInvalidResult   = errors.New("inconsistent result")
	ErrHashMismatch    = errors.New("range hash mismatch")
	ErrBadSignature    = errors.New("bad signature")
	ErrStaleTimestamp  = errors.New("stale timestamp")
	ErrFutureTimestamp = errors.New("future timestamp")
	ErrMalformedWire   = errors.New("malformed wire proof")
)

// Proof is a worker's signed claim about the verification result of a range.
type Proof struct {
	AssignmentID ids.ID
	Worker       ids.ShortID
	RangeStart   uint64
	RangeEnd     uint64
	Result       verify.Result
	RangeHash    ids.ID
	Signature    [secp256k1.SignatureLen]byte
	Timestamp    int64

	id    ids.ID
	bytes []byte
}

// ID returns the proof's content address, the hash of its canonical wire
// encoding.
func (p *Proof) ID() ids.ID {
	return p.id
}

// Bytes returns the canonical wire encoding the content address was computed
// over.
func (p *Proof) Bytes() []byte {
	return p.bytes
}

// Time returns the proof's claimed submission time.
func (p *Proof) Time() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// checkRange enforces 0 < start < end and the size cap. maxSize of zero
// means the default cap.
func checkRange(start, end, maxSize uint64) error {
	if maxSize == 0 {
		maxSize = DefaultMaxRangeSize
	}
	switch {
	case start == 0:
		return fmt.Errorf("%w: start must be positive", ErrInvalidRange)
	case start >= end:
		return fmt.Errorf("%w: start %d does not precede end %d", ErrInvalidRange, start, end)
	case end-start > maxSize:
		return fmt.Errorf("%w: %d values exceeds the %d cap", ErrInvalidRange, end-start, maxSize)
	}
	return nil
}

// checkResult rejects the two shapes a result can never legitimately take:
// a converged result carrying a counterexample and a failed result carrying
// none.
func checkResult(r verify.Result) error {
	if r.Converged == (r.Counterexample != nil) {
		return ErrInvalidResult
	}
	return nil
}
