// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator owns the assignment lifecycle: bulk generation from
// the verification frontier, capacity-checked leasing, lease expiry,
// submission, and reconciliation with other replicas.
//
// Replicas share no memory. Every public operation is commutative or
// idempotent so that exchanging snapshots through an eventually consistent
// store converges: assignment IDs are derived from their content, proofs
// deduplicate per worker, lease sets union capped at capacity, and statuses
// merge on a fixed lattice.
package coordinator

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/proof"
	"github.com/luxfi/quorum/reputation"
	"github.com/luxfi/quorum/resolver"
	"github.com/luxfi/quorum/utils/timer/mockable"

	safemath "github.com/luxfi/quorum/utils/math"
)

var (
	ErrWorkerBanned      = errors.New("worker is banned")
	ErrNoWorkAvailable   = errors.New("no work available")
	ErrUnknownAssignment = errors.New("unknown assignment")
	ErrWorkerExcluded    = errors.New("worker excluded from assignment")
)

// Config bounds the coordinator's lifecycle behavior.
type Config struct {
	// LeaseTTL is how long a granted lease holds its redundancy slot.
	LeaseTTL time.Duration

	// AssignmentTTL is how long a claimed assignment may sit without proofs
	// or live leases before it is expired and superseded.
	AssignmentTTL time.Duration

	// FrontierStart seeds the verification frontier on a fresh database.
	// The frontier stays odd: even numbers halve immediately, so only odd
	// starting values are worth verifying, and every generated range has
	// even size to preserve the alignment.
	FrontierStart uint64

	// Validation constrains the proofs workers may submit. Generated ranges
	// obey its MaxRangeSize so their proofs always pass validation.
	Validation proof.ValidationConfig
}

// DefaultConfig returns the production lifecycle parameters for the given
// verification config digest.
func DefaultConfig(configDigest ids.ID) Config {
	return Config{
		LeaseTTL:      time.Hour,
		AssignmentTTL: 24 * time.Hour,
		FrontierStart: 1,
		Validation:    proof.DefaultValidationConfig(configDigest),
	}
}

// Coordinator drives assignments from generation to completion, delegating
// consensus to the resolver and trust bookkeeping to the ledger. Safe for
// concurrent use.
type Coordinator struct {
	lock    sync.Mutex
	cfg     Config
	log     log.Logger
	clock   *mockable.Clock
	metrics *coordinatorMetrics

	ledger   *reputation.Ledger
	resolver *resolver.Resolver
	state    *state

	numCompleted int
	replaying    bool
}

// New opens the coordinator's state in db and rebuilds the resolver's
// derived view by replaying every persisted proof in timestamp order.
// Replay tolerates per-proof failures: proofs that aged past the validation
// window, or re-raised escalations, are logged and skipped.
func New(
	db database.Database,
	ledger *reputation.Ledger,
	res *resolver.Resolver,
	cfg Config,
	clock *mockable.Clock,
	logger log.Logger,
	registerer metric.Registerer,
) (*Coordinator, error) {
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	s, err := newState(db)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		log:      logger,
		clock:    clock,
		metrics:  metrics,
		ledger:   ledger,
		resolver: res,
		state:    s,
	}
	for _, a := range s.Assignments() {
		if a.Status == Completed {
			c.numCompleted++
		}
	}

	if s.Frontier() == 0 && cfg.FrontierStart != 0 {
		if err := s.SetFrontier(cfg.FrontierStart); err != nil {
			return nil, err
		}
	}
	if err := c.replay(); err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}

	metrics.frontier.Set(float64(s.Frontier()))
	metrics.completed.Set(float64(c.numCompleted))
	return c, nil
}

// replay feeds every persisted proof back through ingestion to rebuild the
// resolver's records. Statuses and audits were already decided in a previous
// life, so replay never regresses a status or queues a new audit.
func (c *Coordinator) replay() error {
	wires, err := c.state.Proofs()
	if err != nil {
		return err
	}

	proofs := make([]*proof.Proof, 0, len(wires))
	for _, wire := range wires {
		p, err := proof.ParseWire(wire)
		if err != nil {
			c.log.Warn("dropping undecodable persisted proof", zap.Error(err))
			continue
		}
		proofs = append(proofs, p)
	}
	sortProofs(proofs)

	c.replaying = true
	defer func() { c.replaying = false }()

	now := c.clock.Time()
	for _, p := range proofs {
		a, err := c.state.GetAssignment(p.AssignmentID)
		if err != nil {
			c.log.Warn("persisted proof references unknown assignment",
				log.Stringer("assignment", p.AssignmentID),
				log.Stringer("worker", p.Worker),
			)
			continue
		}
		if _, err := c.ingest(a, p, now); err != nil {
			c.log.Debug("replayed proof not recounted",
				log.Stringer("assignment", p.AssignmentID),
				log.Stringer("worker", p.Worker),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Close releases the coordinator's database handles.
func (c *Coordinator) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.state.Close()
}

// GenerateRange creates count Available assignments of the given size,
// back to back from the verification frontier, and advances the frontier
// past them. The batch and the frontier commit atomically: a crash leaves
// either both or neither, and regenerating after an interrupted call is a
// no-op because assignment IDs are derived from their ranges.
func (c *Coordinator) GenerateRange(count int, size uint64) ([]*Assignment, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	maxSize := c.cfg.Validation.MaxRangeSize
	if maxSize == 0 {
		maxSize = proof.DefaultMaxRangeSize
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count %d", proof.ErrInvalidRange, count)
	}
	if size == 0 || size > maxSize {
		return nil, fmt.Errorf("%w: size %d", proof.ErrInvalidRange, size)
	}
	if size%2 != 0 {
		return nil, fmt.Errorf("%w: size %d is odd", proof.ErrInvalidRange, size)
	}

	now := c.clock.Time().Unix()
	start := c.state.Frontier()
	assignments := make([]*Assignment, 0, count)
	for i := 0; i < count; i++ {
		end, err := safemath.Add(start, size)
		if err != nil {
			c.state.Abort()
			return nil, fmt.Errorf("%w: frontier overflow at %d", proof.ErrInvalidRange, start)
		}

		a := NewAssignment(start, end, 0, ids.Empty, now)
		if existing, err := c.state.GetAssignment(a.ID); err == nil {
			// Regenerated after an interrupted advance; the live one wins.
			a = existing
		} else {
			if err := c.state.PutAssignment(a); err != nil {
				c.state.Abort()
				return nil, err
			}
			c.metrics.created.Inc()
		}
		assignments = append(assignments, a)
		start = end
	}

	if err := c.state.SetFrontier(start); err != nil {
		c.state.Abort()
		return nil, err
	}
	if err := c.state.Commit(); err != nil {
		return nil, err
	}

	c.metrics.frontier.Set(float64(start))
	c.log.Info("generated assignments",
		log.Int("count", len(assignments)),
		log.Uint64("size", size),
		log.Uint64("frontier", start),
	)
	return assignments, nil
}

// Lease grants the worker a redundancy slot. A worker already holding a
// live lease it hasn't answered gets that assignment back with a fresh
// expiry, so interrupted workers resume instead of spreading across ranges.
// Otherwise conflicts needing tie-break proofs outrank partially confirmed
// ranges, which outrank untouched ones, oldest first within each class;
// capacity is recomputed from the trust mix on every grant, so an untrusted
// candidate raises the bar for everyone still needed on that range.
func (c *Coordinator) Lease(worker ids.ShortID, now time.Time) (*Assignment, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.ledger.IsBanned(worker) {
		return nil, fmt.Errorf("%w: %s", ErrWorkerBanned, worker)
	}

	var held, candidate *Assignment
	ts := now.Unix()
	c.state.Ascend(func(a *Assignment) bool {
		if a.Status == Completed || a.Status == Expired {
			return true
		}
		if l := a.LeaseFor(worker); l != nil && l.Expires > ts && !c.contributed(a.ID, worker) {
			held = a
			return false
		}
		if (candidate == nil || leaseRank(a) < leaseRank(candidate)) && c.leasable(a, worker, now) {
			candidate = a
		}
		return true
	})

	target := held
	if target == nil {
		if candidate == nil {
			return nil, ErrNoWorkAvailable
		}
		target = candidate
	}

	target.lease(worker, now, c.cfg.LeaseTTL)
	if target.Status == Available {
		c.setStatus(target, Leased)
	}
	if err := c.state.PutAssignment(target); err != nil {
		c.state.Abort()
		return nil, err
	}
	if err := c.state.Commit(); err != nil {
		return nil, err
	}

	if held != nil {
		c.metrics.extended.Inc()
	} else {
		c.metrics.leases.Inc()
	}
	c.log.Debug("granted lease",
		log.Stringer("assignment", target.ID),
		log.Stringer("worker", worker),
		log.Bool("resumed", held != nil),
	)
	return target.clone(), nil
}

// Submit runs a worker's proof through consensus and applies the
// consequences to the assignment: counted proofs persist and may advance
// the status, a finalization may queue a spot-check audit, and an audit
// that contradicts its original reopens the original as conflicted.
//
// A proof over a range no assignment covers creates one, authored by the
// submitter; the author's proof is its defining first confirmation.
//
// The returned error reports what ingestion decided; ErrConsensusConflict
// and ErrUnresolvable are escalations over a counted proof, not failures.
func (c *Coordinator) Submit(p *proof.Proof, now time.Time) (*resolver.Record, resolver.Action, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	a, err := c.state.GetAssignment(p.AssignmentID)
	if errors.Is(err, database.ErrNotFound) {
		a = NewAssignment(p.RangeStart, p.RangeEnd, 0, ids.Empty, now.Unix())
		if a.ID != p.AssignmentID {
			return nil, resolver.ActionInvalid, fmt.Errorf(
				"%w: %s is not derivable from [%d, %d)",
				ErrUnknownAssignment, p.AssignmentID, p.RangeStart, p.RangeEnd,
			)
		}
		a.OriginalWorker = p.Worker
	} else if err != nil {
		return nil, resolver.ActionIgnored, err
	}

	outcome, ingestErr := c.ingest(a, p, now)
	if outcome == nil {
		c.state.Abort()
		return nil, resolver.ActionIgnored, ingestErr
	}
	if err := c.state.Commit(); err != nil {
		return nil, resolver.ActionIgnored, err
	}
	return outcome.Record, outcome.Action, ingestErr
}

// ingest is the shared submission path: Submit, Merge, and startup replay
// all route proofs through it. The caller commits. A nil outcome means the
// proof was rejected outright and no state changed.
func (c *Coordinator) ingest(a *Assignment, p *proof.Proof, now time.Time) (*resolver.Outcome, error) {
	// Audit independence: nobody who touched the original result may
	// confirm its audit.
	if a.IsAudit() {
		if orig, err := c.state.GetAssignment(a.AuditOf); err == nil && p.Worker == orig.OriginalWorker {
			return nil, fmt.Errorf("%w: %s authored the audited range", ErrWorkerExcluded, p.Worker)
		}
		if origRec, ok := c.resolver.Get(a.AuditOf); ok && origRec.Has(p.Worker) {
			return nil, fmt.Errorf("%w: %s contributed to the audited result", ErrWorkerExcluded, p.Worker)
		}
	}

	outcome, ingestErr := c.resolver.Ingest(c.infoOf(a), p)
	if outcome == nil {
		return nil, ingestErr
	}

	switch outcome.Action {
	case resolver.ActionAdded, resolver.ActionFinalized, resolver.ActionConflict:
	default:
		// Not counted; nothing to persist.
		return outcome, ingestErr
	}

	wire, err := p.MarshalWire()
	if err != nil {
		return nil, err
	}
	if err := c.state.PutProof(a.ID, p.Worker, wire); err != nil {
		return nil, err
	}

	switch outcome.Action {
	case resolver.ActionAdded:
		c.setStatus(a, a.Status.merge(Leased))
	case resolver.ActionConflict:
		c.setStatus(a, a.Status.merge(Conflicted))
		a.exclude(outcome.Record.Contributors()...)
	case resolver.ActionFinalized:
		c.setStatus(a, a.Status.merge(Completed))
	}
	if err := c.state.PutAssignment(a); err != nil {
		return nil, err
	}

	if outcome.Action == resolver.ActionFinalized &&
		outcome.Record.SpotCheckRequested() &&
		!a.IsAudit() &&
		!c.replaying {
		if err := c.queueAudit(a, outcome.Record, now); err != nil {
			return nil, err
		}
	}
	if outcome.Reopened != nil {
		if err := c.reopen(outcome.Reopened); err != nil {
			return nil, err
		}
	}
	return outcome, ingestErr
}

// queueAudit creates the spot-check assignment for a finalized one. The
// audit's ID is derived from the original's, so replicas that sample the
// same finalization converge on a single audit.
func (c *Coordinator) queueAudit(a *Assignment, rec *resolver.Record, now time.Time) error {
	audit := NewAssignment(a.RangeStart, a.RangeEnd, 0, a.ID, now.Unix())
	if _, err := c.state.GetAssignment(audit.ID); err == nil {
		return nil
	}

	audit.exclude(rec.Contributors()...)
	audit.exclude(a.OriginalWorker)
	if err := c.state.PutAssignment(audit); err != nil {
		return err
	}

	c.metrics.audits.Inc()
	c.log.Info("queued spot-check audit",
		log.Stringer("assignment", a.ID),
		log.Stringer("audit", audit.ID),
	)
	return nil
}

// reopen applies an audit contradiction to the original assignment: the one
// sanctioned regression on the status lattice.
func (c *Coordinator) reopen(rec *resolver.Record) error {
	a, err := c.state.GetAssignment(rec.Info.ID)
	if err != nil {
		return fmt.Errorf("reopened assignment missing: %w", err)
	}

	c.setStatus(a, Conflicted)
	a.exclude(rec.Contributors()...)
	if err := c.state.PutAssignment(a); err != nil {
		return err
	}

	c.log.Warn("reopened assignment after contradicted audit",
		log.Stringer("assignment", a.ID),
		log.Int("tieBreakProofs", rec.TieBreakOutstanding()),
	)
	return nil
}

// Reap reclaims redundancy slots held by expired leases and returns how
// many leases were dropped. Ingested proofs are untouched: only the unmet
// redundancy reopens. Claimed assignments that aged past AssignmentTTL with
// nothing to show for it are expired and superseded by a fresh incarnation
// of the same range.
func (c *Coordinator) Reap(now time.Time) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var (
		touched []*Assignment
		expired []*Assignment
		dropped int
		ts      = now.Unix()
	)
	c.state.Ascend(func(a *Assignment) bool {
		if a.Status == Completed || a.Status == Expired {
			return true
		}
		if n := a.dropExpired(now); n > 0 {
			dropped += n
			touched = append(touched, a)
		}
		if a.Status == Leased && len(a.Leases) == 0 &&
			!c.hasProofs(a.ID) &&
			ts-a.CreatedAt >= int64(c.cfg.AssignmentTTL/time.Second) {
			expired = append(expired, a)
		}
		return true
	})

	for _, a := range touched {
		if err := c.state.PutAssignment(a); err != nil {
			c.state.Abort()
			return 0, err
		}
	}
	for _, a := range expired {
		c.setStatus(a, Expired)
		if err := c.state.PutAssignment(a); err != nil {
			c.state.Abort()
			return 0, err
		}

		successor := NewAssignment(a.RangeStart, a.RangeEnd, a.Salt+1, a.AuditOf, ts)
		if _, err := c.state.GetAssignment(successor.ID); err == nil {
			continue
		}
		successor.OriginalWorker = a.OriginalWorker
		successor.Exclude = slices.Clone(a.Exclude)
		if err := c.state.PutAssignment(successor); err != nil {
			c.state.Abort()
			return 0, err
		}
		c.metrics.expired.Inc()
		c.log.Info("superseded abandoned assignment",
			log.Stringer("assignment", a.ID),
			log.Stringer("successor", successor.ID),
			log.Uint64("salt", successor.Salt),
		)
	}
	if err := c.state.Commit(); err != nil {
		return 0, err
	}

	if dropped > 0 {
		c.metrics.reaped.Add(float64(dropped))
		c.log.Debug("reaped expired leases", log.Int("leases", dropped))
	}
	return dropped, nil
}

// Merge reconciles a remote replica's snapshot into local state. Worker
// records merge first so ban flags apply to the proofs that follow; the
// frontier takes the maximum; assignments merge field-wise on the status
// lattice with lease sets unioned and capped; proofs re-ingest through the
// shared submission path, where deduplication makes them idempotent.
// Merging is commutative: replicas applying each other's snapshots in any
// order converge.
func (c *Coordinator) Merge(remote *Snapshot) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.ledger.Merge(remote.Records); err != nil {
		c.state.Abort()
		return err
	}

	if remote.Frontier > c.state.Frontier() {
		if err := c.state.SetFrontier(remote.Frontier); err != nil {
			c.state.Abort()
			return err
		}
		c.metrics.frontier.Set(float64(remote.Frontier))
	}

	now := c.clock.Time()
	for _, rem := range remote.Assignments {
		local, err := c.state.GetAssignment(rem.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			adopted := rem.clone()
			adopted.dropExcluded()
			if adopted.Status == Completed {
				c.numCompleted++
			}
			err = c.state.PutAssignment(adopted)
		case err == nil:
			err = c.mergeAssignment(local, rem, now)
		}
		if err != nil {
			c.state.Abort()
			return err
		}
	}
	c.metrics.completed.Set(float64(c.numCompleted))

	proofs := make([]*proof.Proof, 0, len(remote.Proofs))
	for _, wire := range remote.Proofs {
		p, err := proof.ParseWire(wire)
		if err != nil {
			c.log.Debug("dropping undecodable remote proof", zap.Error(err))
			continue
		}
		proofs = append(proofs, p)
	}
	sortProofs(proofs)

	for _, p := range proofs {
		a, err := c.state.GetAssignment(p.AssignmentID)
		if err != nil {
			c.log.Debug("remote proof references unknown assignment",
				log.Stringer("assignment", p.AssignmentID),
			)
			continue
		}
		if _, err := c.ingest(a, p, now); err != nil {
			c.log.Debug("remote proof not counted",
				log.Stringer("assignment", p.AssignmentID),
				log.Stringer("worker", p.Worker),
				zap.Error(err),
			)
		}
	}

	if err := c.state.Commit(); err != nil {
		return err
	}
	c.metrics.merges.Inc()
	return nil
}

// mergeAssignment folds one remote assignment into its local twin.
func (c *Coordinator) mergeAssignment(local, rem *Assignment, now time.Time) error {
	merged := local.Status.merge(rem.Status)
	if merged == Completed && local.Status != Completed {
		// Completion by merge holds off while this replica is mid
		// adjudication: a reopened conflict must not be closed by a stale
		// snapshot. It closes once the tie-break settles locally.
		if rec, ok := c.resolver.Get(local.ID); ok && rec.Verdict == resolver.VerdictConflicted {
			merged = Conflicted
		}
	}
	c.setStatus(local, merged)

	if local.OriginalWorker == ids.ShortEmpty {
		local.OriginalWorker = rem.OriginalWorker
	}
	local.exclude(rem.Exclude...)
	local.mergeLeases(rem.Leases, c.capacity(local, rem, now))

	return c.state.PutAssignment(local)
}

// capacity bounds how many leases an assignment may carry: the quorum its
// current trust mix requires, or during a tie-break, the counted proofs
// plus the outstanding batch.
func (c *Coordinator) capacity(local, rem *Assignment, now time.Time) int {
	rec, ok := c.resolver.Get(local.ID)
	if ok && rec.Verdict == resolver.VerdictConflicted {
		return rec.Len() + rec.TieBreakOutstanding()
	}

	mix := set.Of(local.Holders(now)...)
	for _, l := range rem.Leases {
		mix.Add(l.Worker)
	}
	if ok {
		for _, w := range rec.Contributors() {
			mix.Add(w)
		}
	}
	return c.ledger.RequiredConfirmations(mix.List())
}

// Snapshot clones the replica's full state for publication.
func (c *Coordinator) Snapshot() (*Snapshot, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	records, err := c.ledger.List()
	if err != nil {
		return nil, err
	}
	proofs, err := c.state.Proofs()
	if err != nil {
		return nil, err
	}

	all := c.state.Assignments()
	assignments := make([]*Assignment, 0, len(all))
	for _, a := range all {
		assignments = append(assignments, a.clone())
	}

	return &Snapshot{
		Frontier:    c.state.Frontier(),
		Assignments: assignments,
		Proofs:      proofs,
		Records:     records,
	}, nil
}

// Stats summarizes the replica's view of the network.
type Stats struct {
	Available  int `json:"available"`
	Leased     int `json:"leased"`
	Expired    int `json:"expired"`
	Conflicted int `json:"conflicted"`
	Completed  int `json:"completed"`

	// Frontier is the next value range generation will cover.
	Frontier uint64 `json:"frontier"`

	// Verified is the bound below which every value is covered by a
	// completed assignment.
	Verified uint64 `json:"verified"`
}

// Stats counts assignments by status and computes the contiguously verified
// bound.
func (c *Coordinator) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()

	stats := Stats{Frontier: c.state.Frontier()}
	type span struct{ start, end uint64 }
	var completed []span

	c.state.Ascend(func(a *Assignment) bool {
		switch a.Status {
		case Available:
			stats.Available++
		case Leased:
			stats.Leased++
		case Expired:
			stats.Expired++
		case Conflicted:
			stats.Conflicted++
		case Completed:
			stats.Completed++
			if !a.IsAudit() {
				completed = append(completed, span{a.RangeStart, a.RangeEnd})
			}
		}
		return true
	})

	slices.SortFunc(completed, func(x, y span) int {
		switch {
		case x.start < y.start:
			return -1
		case x.start > y.start:
			return 1
		default:
			return 0
		}
	})
	bound := c.cfg.FrontierStart
	for _, s := range completed {
		if s.start > bound {
			break
		}
		if s.end > bound {
			bound = s.end
		}
	}
	stats.Verified = bound
	return stats
}

// Frontier returns the next value range generation will cover.
func (c *Coordinator) Frontier() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.state.Frontier()
}

// leasable reports whether the assignment has an open slot this worker may
// take.
func (c *Coordinator) leasable(a *Assignment, worker ids.ShortID, now time.Time) bool {
	if a.Excluded(worker) || c.contributed(a.ID, worker) {
		return false
	}
	if l := a.LeaseFor(worker); l != nil && l.Expires > now.Unix() {
		return false
	}
	if a.IsAudit() {
		if orig, err := c.state.GetAssignment(a.AuditOf); err == nil && worker == orig.OriginalWorker {
			return false
		}
		if origRec, ok := c.resolver.Get(a.AuditOf); ok && origRec.Has(worker) {
			return false
		}
	}

	holders := a.Holders(now)
	rec, ok := c.resolver.Get(a.ID)

	if a.Status == Conflicted {
		if !ok {
			// Conflicted by merge, proofs not yet seen; the batch can't be
			// sized until they arrive.
			return false
		}
		pending := 0
		for _, h := range holders {
			if !rec.Has(h) {
				pending++
			}
		}
		return rec.TieBreakOutstanding()-pending > 0
	}

	mix := set.Of(holders...)
	if ok {
		for _, w := range rec.Contributors() {
			mix.Add(w)
		}
	}
	occupied := mix.Len()
	mix.Add(worker)
	return occupied < c.ledger.RequiredConfirmations(mix.List())
}

// leaseRank orders candidate assignments by need: conflicts wait on
// tie-break proofs and stall their range until served, partially confirmed
// ranges are closest to a result, untouched ranges can wait.
func leaseRank(a *Assignment) int {
	switch a.Status {
	case Conflicted:
		return 0
	case Leased:
		return 1
	default:
		return 2
	}
}

// contributed reports whether the worker already has a counted proof on the
// assignment.
func (c *Coordinator) contributed(assignment ids.ID, worker ids.ShortID) bool {
	rec, ok := c.resolver.Get(assignment)
	return ok && rec.Has(worker)
}

// hasProofs reports whether any proof is counted for the assignment.
func (c *Coordinator) hasProofs(assignment ids.ID) bool {
	rec, ok := c.resolver.Get(assignment)
	return ok && rec.Len() > 0
}

// setStatus tracks the completed gauge across status changes.
func (c *Coordinator) setStatus(a *Assignment, s Status) {
	if a.Status == s {
		return
	}
	if a.Status == Completed {
		c.numCompleted--
	}
	if s == Completed {
		c.numCompleted++
	}
	a.Status = s
	c.metrics.completed.Set(float64(c.numCompleted))
}

func (c *Coordinator) infoOf(a *Assignment) resolver.AssignmentInfo {
	return resolver.AssignmentInfo{
		ID:             a.ID,
		RangeStart:     a.RangeStart,
		RangeEnd:       a.RangeEnd,
		OriginalWorker: a.OriginalWorker,
		AuditOf:        a.AuditOf,
	}
}

// sortProofs orders proofs by timestamp so batch ingestion reproduces the
// order live submission saw, which keeps tie-break arithmetic identical
// across replicas.
func sortProofs(proofs []*proof.Proof) {
	slices.SortFunc(proofs, func(x, y *proof.Proof) int {
		if x.Timestamp != y.Timestamp {
			if x.Timestamp < y.Timestamp {
				return -1
			}
			return 1
		}
		return bytes.Compare(x.Worker[:], y.Worker[:])
	})
}
