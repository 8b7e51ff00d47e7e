// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"fmt"

	"github.com/luxfi/quorum/reputation"
)

// Snapshot is one replica's full published state: the verification frontier,
// every assignment, every counted proof in canonical wire form, and the
// worker ledger. Merging a snapshot is commutative and idempotent, so
// replicas exchange them without coordination.
type Snapshot struct {
	Frontier    uint64               `serialize:"true" json:"frontier"`
	Assignments []*Assignment        `serialize:"true" json:"assignments"`
	Proofs      [][]byte             `serialize:"true" json:"proofs"`
	Records     []*reputation.Record `serialize:"true" json:"records"`
}

// Bytes returns the snapshot's codec encoding.
func (s *Snapshot) Bytes() ([]byte, error) {
	bytes, err := Codec.Marshal(CodecVersion, s)
	if err != nil {
		return nil, fmt.Errorf("couldn't serialize snapshot: %w", err)
	}
	return bytes, nil
}

// ParseSnapshot decodes a snapshot published by a replica.
func ParseSnapshot(bytes []byte) (*Snapshot, error) {
	snapshot := &Snapshot{}
	if _, err := Codec.Unmarshal(bytes, snapshot); err != nil {
		return nil, fmt.Errorf("couldn't deserialize snapshot: %w", err)
	}
	return snapshot, nil
}
