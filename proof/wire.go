// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proof

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/verify"
)

// wireProof is the interchange form of a proof. Field order is fixed so the
// encoding, and therefore the content address, is canonical.
type wireProof struct {
	AssignmentID   string  `json:"assignment_id"`
	WorkerID       string  `json:"worker_id"`
	RangeStart     uint64  `json:"range_start"`
	RangeEnd       uint64  `json:"range_end"`
	Converged      bool    `json:"converged"`
	Counterexample *uint64 `json:"counterexample"`
	RangeHash      string  `json:"range_hash"`
	Signature      string  `json:"signature"`
	Timestamp      int64   `json:"timestamp"`
}

// MarshalWire returns the proof's canonical wire encoding.
func (p *Proof) MarshalWire() ([]byte, error) {
	w := wireProof{
		AssignmentID:   p.AssignmentID.String(),
		WorkerID:       p.Worker.String(),
		RangeStart:     p.RangeStart,
		RangeEnd:       p.RangeEnd,
		Converged:      p.Result.Converged,
		Counterexample: p.Result.Counterexample,
		RangeHash:      hex.EncodeToString(p.RangeHash[:]),
		Signature:      hex.EncodeToString(p.Signature[:]),
		Timestamp:      p.Timestamp,
	}
	return json.Marshal(&w)
}

// ParseWire decodes a wire proof. The returned proof's content address is
// computed over the canonical re-encoding, so cosmetic differences in the
// incoming JSON don't produce distinct addresses. Shape errors are reported
// as ErrMalformedWire; signature and timestamp checks belong to Validate.
func ParseWire(bytes []byte) (*Proof, error) {
	w := wireProof{}
	if err := json.Unmarshal(bytes, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWire, err)
	}

	assignmentID, err := ids.FromString(w.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: assignment id: %w", ErrMalformedWire, err)
	}
	worker, err := ids.ShortFromString(w.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("%w: worker id: %w", ErrMalformedWire, err)
	}

	rangeHashBytes, err := hex.DecodeString(w.RangeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: range hash: %w", ErrMalformedWire, err)
	}
	rangeHash, err := ids.ToID(rangeHashBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: range hash: %w", ErrMalformedWire, err)
	}

	sig, err := hex.DecodeString(w.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %w", ErrMalformedWire, err)
	}
	if len(sig) != secp256k1.SignatureLen {
		return nil, fmt.Errorf("%w: signature is %d bytes, expected %d",
			ErrMalformedWire, len(sig), secp256k1.SignatureLen)
	}

	p := &Proof{
		AssignmentID: assignmentID,
		Worker:       worker,
		RangeStart:   w.RangeStart,
		RangeEnd:     w.RangeEnd,
		Result: verify.Result{
			Converged:      w.Converged,
			Counterexample: w.Counterexample,
		},
		RangeHash: rangeHash,
		Timestamp: w.Timestamp,
	}
	copy(p.Signature[:], sig)

	canonical, err := p.MarshalWire()
	if err != nil {
		return nil, err
	}
	p.bytes = canonical
	p.id = hash.ComputeHash256Array(canonical)
	return p, nil
}
