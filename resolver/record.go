// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resolver

import (
	"bytes"
	"slices"

	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/proof"
	"github.com/luxfi/quorum/verify"
)

// AssignmentInfo is the slice of an assignment the resolver needs to judge
// proofs against it. The coordinator owns the full assignment; the resolver
// only ever sees this view.
type AssignmentInfo struct {
	ID         ids.ID
	RangeStart uint64
	RangeEnd   uint64

	// OriginalWorker is the worker that authored the range, if any. An
	// author may never confirm its own range.
	OriginalWorker ids.ShortID

	// AuditOf links a spot-check assignment back to the finalized assignment
	// it re-verifies. Empty for ordinary assignments.
	AuditOf ids.ID
}

// IsAudit reports whether this assignment exists to re-verify another.
func (a AssignmentInfo) IsAudit() bool {
	return a.AuditOf != ids.Empty
}

// Verdict is the consensus state of one assignment.
type Verdict uint8

const (
	// VerdictPending means no quorum has formed and no disagreement has
	// surfaced.
	VerdictPending Verdict = iota

	// VerdictAgreed means a quorum of matching proofs finalized a result.
	VerdictAgreed

	// VerdictConflicted means contributors disagree and a tie-break batch is
	// outstanding.
	VerdictConflicted

	// VerdictUnresolvable means two tie-break rounds both split. The
	// assignment needs administrative resolution; the resolver will not
	// escalate further.
	VerdictUnresolvable
)

func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "Pending"
	case VerdictAgreed:
		return "Agreed"
	case VerdictConflicted:
		return "Conflicted"
	case VerdictUnresolvable:
		return "Unresolvable"
	default:
		return "Unknown"
	}
}

// Action says what ingestion did with a proof.
type Action uint8

const (
	// ActionIgnored means the proof was discarded: its author is banned, or
	// the assignment's verdict is already settled.
	ActionIgnored Action = iota

	// ActionDuplicate means this worker's proof for this assignment was
	// already counted.
	ActionDuplicate

	// ActionInvalid means the proof failed structural or cryptographic
	// validation and was discarded without reputation consequences.
	ActionInvalid

	// ActionAdded means the proof was counted but the verdict is unchanged.
	ActionAdded

	// ActionFinalized means the proof completed a quorum and the assignment
	// is now agreed.
	ActionFinalized

	// ActionConflict means the proof surfaced or prolonged a disagreement
	// and a tie-break batch is owed.
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionIgnored:
		return "Ignored"
	case ActionDuplicate:
		return "Duplicate"
	case ActionInvalid:
		return "Invalid"
	case ActionAdded:
		return "Added"
	case ActionFinalized:
		return "Finalized"
	case ActionConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Record is the resolver's view of one assignment: the proofs counted so far
// and the verdict they support. Records are derived state; replaying the
// same proofs in any order rebuilds them.
//
// Records returned by the resolver are live. Callers read them under the
// resolver's synchronization (every resolver method that hands one out has
// already taken it) and must not mutate them.
type Record struct {
	Info    AssignmentInfo
	Verdict Verdict

	// Canonical is the finalized result. Meaningful once Verdict has been
	// VerdictAgreed; it survives a reopening so audits of audits compare
	// against the value that was actually contradicted.
	Canonical verify.Result

	proofs map[ids.ShortID]*proof.Proof

	// target is the proof-set size that triggers adjudication while the
	// record is conflicted.
	target  int
	doubled bool

	spotCheck bool
}

func newRecord(info AssignmentInfo) *Record {
	return &Record{
		Info:   info,
		proofs: make(map[ids.ShortID]*proof.Proof),
	}
}

func (r *Record) add(p *proof.Proof) {
	r.proofs[p.Worker] = p
}

// Has reports whether the worker already contributed a proof.
func (r *Record) Has(worker ids.ShortID) bool {
	_, ok := r.proofs[worker]
	return ok
}

// Len returns how many proofs are counted.
func (r *Record) Len() int {
	return len(r.proofs)
}

// Contributors returns every worker with a counted proof, in a stable order.
func (r *Record) Contributors() []ids.ShortID {
	workers := make([]ids.ShortID, 0, len(r.proofs))
	for worker := range r.proofs {
		workers = append(workers, worker)
	}
	slices.SortFunc(workers, func(a, b ids.ShortID) int {
		return bytes.Compare(a[:], b[:])
	})
	return workers
}

// Proofs returns the counted proofs ordered by contributor.
func (r *Record) Proofs() []*proof.Proof {
	proofs := make([]*proof.Proof, 0, len(r.proofs))
	for _, worker := range r.Contributors() {
		proofs = append(proofs, r.proofs[worker])
	}
	return proofs
}

// SpotCheckRequested reports whether finalization sampled this assignment
// for an independent audit.
func (r *Record) SpotCheckRequested() bool {
	return r.spotCheck
}

// TieBreakOutstanding returns how many fresh proofs the conflicted record
// still expects before it adjudicates. Zero for settled or pending records.
func (r *Record) TieBreakOutstanding() int {
	if r.Verdict != VerdictConflicted {
		return 0
	}
	return max(r.target-len(r.proofs), 0)
}

// partitions groups counted proofs by result value.
func (r *Record) partitions() map[string][]*proof.Proof {
	parts := make(map[string][]*proof.Proof)
	for _, p := range r.proofs {
		key := p.Result.Key()
		parts[key] = append(parts[key], p)
	}
	return parts
}
