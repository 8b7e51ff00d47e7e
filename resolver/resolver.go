// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package resolver decides when an assignment's proofs constitute consensus.
// It counts one proof per worker per assignment, sizes the quorum from the
// contributors' trust tiers, detects disagreement, runs tie-break
// adjudication, and samples finalized assignments for audit. Verdicts are
// pushed into the reputation ledger as they are reached.
//
// Resolver state is derived: replaying the persisted proofs through Ingest
// rebuilds it, which is also how replicas merge each other's proof sets.
package resolver

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/proof"
	"github.com/luxfi/quorum/reputation"
	"github.com/luxfi/quorum/utils/timer/mockable"
)

// tieBreakBatch is how many fresh proofs a conflict requests. An even split
// doubles the batch once; a second split is terminal.
const tieBreakBatch = 3

var (
	ErrSelfVerification   = errors.New("worker cannot confirm its own range")
	ErrAssignmentMismatch = errors.New("proof does not match assignment")
	ErrConsensusConflict  = errors.New("consensus conflict")
	ErrUnresolvable       = errors.New("conflict unresolvable")
)

// Outcome is what ingesting one proof did to consensus state.
type Outcome struct {
	// Record is the assignment the proof landed on.
	Record *Record

	// Action says what happened to the proof itself.
	Action Action

	// Reopened is set when the proof finalized an audit that contradicted
	// its original assignment: the original record, conflicted again and
	// owed a tie-break batch. Nil otherwise.
	Reopened *Record
}

// Resolver tracks per-assignment consensus. Safe for concurrent use.
type Resolver struct {
	lock    sync.Mutex
	log     log.Logger
	ledger  *reputation.Ledger
	cfg     proof.ValidationConfig
	clock   *mockable.Clock
	rng     *rand.Rand
	metrics *resolverMetrics

	records map[ids.ID]*Record
}

// New returns a resolver that validates proofs against cfg and settles
// verdicts into ledger. A nil rng seeds one from the clock; tests inject a
// seeded source to make spot-check sampling deterministic.
func New(
	ledger *reputation.Ledger,
	cfg proof.ValidationConfig,
	clock *mockable.Clock,
	rng *rand.Rand,
	logger log.Logger,
	registerer metric.Registerer,
) (*Resolver, error) {
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Time().UnixNano())) //#nosec G404
	}
	return &Resolver{
		log:     logger,
		ledger:  ledger,
		cfg:     cfg,
		clock:   clock,
		rng:     rng,
		metrics: metrics,
		records: make(map[ids.ID]*Record),
	}, nil
}

// Ingest counts a proof toward its assignment's consensus, in order: discard
// proofs from banned workers, deduplicate, reject self-verification, discard
// proofs for settled assignments, validate, then count and recompute the
// verdict.
//
// The author of an implicitly created assignment is allowed exactly one
// proof: the defining one, which must be the record's first. Every later
// proof from the author is a self-verification attempt. The banned and
// duplicate discards deliberately precede the self-verification rejection:
// a replayed defining proof or a banned author must stay a quiet discard
// rather than surface as a protocol error, and a proof caught by more than
// one step is dropped either way, so only the reported reason differs.
//
// A returned ErrConsensusConflict or ErrUnresolvable is an escalation, not a
// failure: the proof was counted and the Outcome says what the caller owes
// the assignment (a tie-break batch, or administrative attention).
func (r *Resolver) Ingest(info AssignmentInfo, p *proof.Proof) (*Outcome, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[info.ID]
	if !ok {
		rec = newRecord(info)
		r.records[info.ID] = rec
	}

	if r.ledger.IsBanned(p.Worker) {
		r.metrics.ignored.Inc()
		return &Outcome{Record: rec, Action: ActionIgnored}, nil
	}

	if rec.Has(p.Worker) {
		r.metrics.duplicate.Inc()
		return &Outcome{Record: rec, Action: ActionDuplicate}, nil
	}

	if info.OriginalWorker != ids.ShortEmpty && p.Worker == info.OriginalWorker && len(rec.proofs) > 0 {
		return nil, fmt.Errorf("%w: %s authored %s", ErrSelfVerification, p.Worker, info.ID)
	}

	// Late proofs are accepted while a verdict can still change, and only
	// then.
	if rec.Verdict == VerdictAgreed || rec.Verdict == VerdictUnresolvable {
		r.metrics.ignored.Inc()
		return &Outcome{Record: rec, Action: ActionIgnored}, nil
	}

	if p.AssignmentID != info.ID || p.RangeStart != info.RangeStart || p.RangeEnd != info.RangeEnd {
		r.metrics.invalid.Inc()
		return &Outcome{Record: rec, Action: ActionInvalid}, fmt.Errorf(
			"%w: proof over [%d, %d) submitted for %s",
			ErrAssignmentMismatch, p.RangeStart, p.RangeEnd, info.ID,
		)
	}

	pub, err := proof.Validate(p, r.clock.Time(), r.cfg)
	if err != nil {
		r.metrics.invalid.Inc()
		r.log.Debug("discarded invalid proof",
			log.Stringer("assignment", info.ID),
			log.Stringer("worker", p.Worker),
			zap.Error(err),
		)
		return &Outcome{Record: rec, Action: ActionInvalid}, err
	}
	if err := r.ledger.RegisterIfAbsent(p.Worker, pub.Bytes()); err != nil {
		return nil, err
	}

	rec.add(p)
	r.metrics.ingested.Inc()

	if rec.Verdict == VerdictConflicted {
		if len(rec.proofs) < rec.target {
			return &Outcome{Record: rec, Action: ActionAdded}, nil
		}
		return r.adjudicate(rec)
	}
	return r.resolve(rec)
}

// Get returns the consensus record for an assignment, if any proof for it
// has been ingested.
func (r *Resolver) Get(assignment ids.ID) (*Record, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[assignment]
	return rec, ok
}

// Len returns the number of assignments with consensus state.
func (r *Resolver) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.records)
}

// resolve recomputes a pending record's verdict after a proof was added.
func (r *Resolver) resolve(rec *Record) (*Outcome, error) {
	if parts := rec.partitions(); len(parts) > 1 {
		rec.Verdict = VerdictConflicted
		rec.target = len(rec.proofs) + tieBreakBatch
		r.metrics.conflicts.Inc()
		r.log.Info("consensus conflict",
			log.Stringer("assignment", rec.Info.ID),
			log.Int("partitions", len(parts)),
			log.Int("tieBreakProofs", tieBreakBatch),
		)
		return &Outcome{Record: rec, Action: ActionConflict},
			fmt.Errorf("%w: assignment %s", ErrConsensusConflict, rec.Info.ID)
	}

	contributors := rec.Contributors()
	if len(rec.proofs) < r.ledger.RequiredConfirmations(contributors) {
		return &Outcome{Record: rec, Action: ActionAdded}, nil
	}
	return r.finalize(rec)
}

// finalize settles a unanimous quorum: every contributor gets an agreeing
// verdict, the result becomes canonical, and the assignment may be sampled
// for audit. An audit that contradicts its original reopens the original.
func (r *Resolver) finalize(rec *Record) (*Outcome, error) {
	proofs := rec.Proofs()
	rec.Verdict = VerdictAgreed
	rec.Canonical = proofs[0].Result

	for _, p := range proofs {
		if err := r.applyVerdict(p.Worker, rec.Info.ID, true); err != nil {
			return nil, err
		}
	}
	r.metrics.finalized.Inc()
	r.log.Info("finalized assignment",
		log.Stringer("assignment", rec.Info.ID),
		log.String("result", rec.Canonical.Key()),
		log.Int("confirmations", len(proofs)),
	)

	outcome := &Outcome{Record: rec, Action: ActionFinalized}
	if !rec.Info.IsAudit() {
		rate := r.ledger.SpotCheckRate(rec.Contributors())
		if rate > 0 && r.rng.Float64() < rate {
			rec.spotCheck = true
			r.metrics.spotChecks.Inc()
		}
		return outcome, nil
	}

	orig, ok := r.records[rec.Info.AuditOf]
	if !ok || orig.Verdict != VerdictAgreed || orig.Canonical.Key() == rec.Canonical.Key() {
		return outcome, nil
	}
	if err := r.reopen(orig); err != nil {
		return nil, err
	}
	outcome.Reopened = orig
	return outcome, nil
}

// reopen turns a finalized assignment back into a conflict because an audit
// contradicted it. The agreeing contributors' positive verdicts are
// withdrawn so the coming adjudication can apply corrected ones.
func (r *Resolver) reopen(rec *Record) error {
	canonical := rec.Canonical.Key()
	for _, p := range rec.Proofs() {
		if p.Result.Key() != canonical {
			continue
		}
		err := r.ledger.ReverseVerdict(p.Worker, rec.Info.ID)
		if err != nil && !errors.Is(err, reputation.ErrVerdictNotFound) {
			return err
		}
	}

	rec.Verdict = VerdictConflicted
	rec.target = len(rec.proofs) + tieBreakBatch
	rec.doubled = false
	r.metrics.reopened.Inc()
	r.log.Warn("audit contradicted finalized assignment",
		log.Stringer("assignment", rec.Info.ID),
		log.String("result", canonical),
	)
	return nil
}

// adjudicate settles a conflicted record once its tie-break batch is
// complete: the strict plurality over all counted proofs becomes canonical.
// An even split doubles the batch once; a second split is terminal.
func (r *Resolver) adjudicate(rec *Record) (*Outcome, error) {
	parts := rec.partitions()

	var (
		canonical    string
		best, second int
	)
	for key, partProofs := range parts {
		switch n := len(partProofs); {
		case n > best:
			best, second = n, best
			canonical = key
		case n > second:
			second = n
		}
	}

	if best == second {
		if !rec.doubled {
			rec.doubled = true
			rec.target = len(rec.proofs) + tieBreakBatch
			r.metrics.conflicts.Inc()
			r.log.Info("tie-break split, doubling batch",
				log.Stringer("assignment", rec.Info.ID),
				log.Int("proofs", len(rec.proofs)),
			)
			return &Outcome{Record: rec, Action: ActionConflict},
				fmt.Errorf("%w: assignment %s split %d-%d", ErrConsensusConflict, rec.Info.ID, best, second)
		}

		rec.Verdict = VerdictUnresolvable
		r.metrics.unresolvable.Inc()
		r.log.Error("conflict unresolvable",
			log.Stringer("assignment", rec.Info.ID),
			log.Int("proofs", len(rec.proofs)),
		)
		return &Outcome{Record: rec, Action: ActionConflict},
			fmt.Errorf("%w: assignment %s", ErrUnresolvable, rec.Info.ID)
	}

	rec.Verdict = VerdictAgreed
	rec.Canonical = parts[canonical][0].Result
	for _, p := range rec.Proofs() {
		if err := r.applyVerdict(p.Worker, rec.Info.ID, p.Result.Key() == canonical); err != nil {
			return nil, err
		}
	}
	r.metrics.finalized.Inc()
	r.log.Info("adjudicated conflict",
		log.Stringer("assignment", rec.Info.ID),
		log.String("result", canonical),
		log.Int("agreeing", best),
		log.Int("dissenting", len(rec.proofs)-best),
	)
	return &Outcome{Record: rec, Action: ActionFinalized}, nil
}

// applyVerdict tolerates re-adjudication: a worker already judged for this
// assignment keeps its verdict.
func (r *Resolver) applyVerdict(worker ids.ShortID, assignment ids.ID, agreed bool) error {
	err := r.ledger.ApplyVerdict(worker, assignment, agreed)
	if errors.Is(err, reputation.ErrVerdictApplied) {
		r.log.Debug("verdict already applied",
			log.Stringer("worker", worker),
			log.Stringer("assignment", assignment),
		)
		return nil
	}
	return err
}
