// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proof

import (
	"fmt"
	"time"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/utils/wrappers"
	"github.com/luxfi/quorum/verify"
)

// RangeHash commits to a range and the verification parameters it was
// checked under.
func RangeHash(start, end uint64, configDigest ids.ID) ids.ID {
	p := wrappers.Packer{MaxSize: 2*wrappers.LongLen + ids.IDLen}
	p.PackLong(start)
	p.PackLong(end)
	p.PackFixedBytes(configDigest[:])
	return hash.ComputeHash256Array(p.Bytes)
}

// signedDigest is the hash the worker signs: the range hash, the result,
// and the submission time.
func signedDigest(rangeHash ids.ID, result verify.Result, timestamp int64) []byte {
	p := wrappers.Packer{MaxSize: ids.IDLen + 2*wrappers.BoolLen + 2*wrappers.LongLen}
	p.PackFixedBytes(rangeHash[:])
	p.PackBool(result.Converged)
	p.PackBool(result.Counterexample != nil)
	if result.Counterexample != nil {
		p.PackLong(*result.Counterexample)
	}
	p.PackLong(uint64(timestamp))
	return hash.ComputeHash256(p.Bytes)
}

// Build signs a verification result for the given assignment. The returned
// proof carries its canonical wire encoding and content address.
func Build(
	key *secp256k1.PrivateKey,
	assignmentID ids.ID,
	rangeStart uint64,
	rangeEnd uint64,
	configDigest ids.ID,
	result verify.Result,
	now time.Time,
) (*Proof, error) {
	if err := checkRange(rangeStart, rangeEnd, 0); err != nil {
		return nil, err
	}
	if err := checkResult(result); err != nil {
		return nil, err
	}

	rangeHash := RangeHash(rangeStart, rangeEnd, configDigest)
	timestamp := now.Unix()

	sig, err := key.SignHash(signedDigest(rangeHash, result, timestamp))
	if err != nil {
		return nil, fmt.Errorf("couldn't sign proof: %w", err)
	}

	p := &Proof{
		AssignmentID: assignmentID,
		Worker:       key.Address(),
		RangeStart:   rangeStart,
		RangeEnd:     rangeEnd,
		Result:       result,
		RangeHash:    rangeHash,
		Timestamp:    timestamp,
	}
	copy(p.Signature[:], sig)

	bytes, err := p.MarshalWire()
	if err != nil {
		return nil, err
	}
	p.bytes = bytes
	p.id = hash.ComputeHash256Array(bytes)
	return p, nil
}
