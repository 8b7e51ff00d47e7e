// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/btree"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/utils/wrappers"
)

const defaultTreeDegree = 2

var (
	assignmentPrefix = []byte("assignment")
	proofPrefix      = []byte("proof")
	singletonPrefix  = []byte("singleton")

	frontierKey = []byte("frontier")
)

// state is the coordinator's durable view. Every assignment is held in
// memory — the byID map for lookup and the btree for lease-selection order
// share the same pointers — and written through to the versioned database,
// which batches each operation's mutations until Commit.
type state struct {
	baseDB       *versiondb.Database
	assignmentDB database.Database
	proofDB      database.Database
	singletonDB  database.Database

	byID    map[ids.ID]*Assignment
	ordered *btree.BTreeG[*Assignment]

	frontier uint64
}

func newState(db database.Database) (*state, error) {
	baseDB := versiondb.New(db)
	s := &state{
		baseDB:       baseDB,
		assignmentDB: prefixdb.New(assignmentPrefix, baseDB),
		proofDB:      prefixdb.New(proofPrefix, baseDB),
		singletonDB:  prefixdb.New(singletonPrefix, baseDB),
		byID:         make(map[ids.ID]*Assignment),
		ordered:      btree.NewG(defaultTreeDegree, (*Assignment).Less),
	}
	return s, s.load()
}

func (s *state) load() error {
	frontier, err := database.GetUInt64(s.singletonDB, frontierKey)
	switch {
	case err == nil:
		s.frontier = frontier
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	it := s.assignmentDB.NewIterator()
	defer it.Release()
	for it.Next() {
		a := &Assignment{}
		if _, err := Codec.Unmarshal(it.Value(), a); err != nil {
			return fmt.Errorf("couldn't deserialize assignment: %w", err)
		}
		s.byID[a.ID] = a
		s.ordered.ReplaceOrInsert(a)
	}
	return it.Error()
}

// GetAssignment returns the live assignment. Callers mutate it in place and
// persist with PutAssignment.
func (s *state) GetAssignment(id ids.ID) (*Assignment, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return a, nil
}

func (s *state) PutAssignment(a *Assignment) error {
	bytes, err := Codec.Marshal(CodecVersion, a)
	if err != nil {
		return fmt.Errorf("couldn't serialize assignment: %w", err)
	}
	if err := s.assignmentDB.Put(a.ID[:], bytes); err != nil {
		return err
	}
	s.byID[a.ID] = a
	s.ordered.ReplaceOrInsert(a)
	return nil
}

// Ascend visits every assignment oldest first until fn returns false.
func (s *state) Ascend(fn func(*Assignment) bool) {
	s.ordered.Ascend(fn)
}

// Assignments returns every assignment oldest first.
func (s *state) Assignments() []*Assignment {
	all := make([]*Assignment, 0, len(s.byID))
	s.ordered.Ascend(func(a *Assignment) bool {
		all = append(all, a)
		return true
	})
	return all
}

func (s *state) Len() int {
	return len(s.byID)
}

// PutProof persists a counted proof's canonical wire encoding, keyed by
// assignment then worker so a replica re-ingests at most one proof per pair.
func (s *state) PutProof(assignment ids.ID, worker ids.ShortID, wire []byte) error {
	return s.proofDB.Put(proofKey(assignment, worker), wire)
}

// Proofs returns the wire encodings of every counted proof.
func (s *state) Proofs() ([][]byte, error) {
	it := s.proofDB.NewIterator()
	defer it.Release()

	var proofs [][]byte
	for it.Next() {
		proofs = append(proofs, slices.Clone(it.Value()))
	}
	return proofs, it.Error()
}

func (s *state) Frontier() uint64 {
	return s.frontier
}

func (s *state) SetFrontier(frontier uint64) error {
	if err := database.PutUInt64(s.singletonDB, frontierKey, frontier); err != nil {
		return err
	}
	s.frontier = frontier
	return nil
}

func (s *state) Commit() error {
	defer s.Abort()
	batch, err := s.baseDB.CommitBatch()
	if err != nil {
		return err
	}
	return batch.Write()
}

func (s *state) Abort() {
	s.baseDB.Abort()
}

func (s *state) Close() error {
	errs := wrappers.Errs{}
	errs.Add(
		s.assignmentDB.Close(),
		s.proofDB.Close(),
		s.singletonDB.Close(),
		s.baseDB.Close(),
	)
	return errs.Err
}

func proofKey(assignment ids.ID, worker ids.ShortID) []byte {
	key := make([]byte, 0, len(assignment)+len(worker))
	key = append(key, assignment[:]...)
	return append(key, worker[:]...)
}
