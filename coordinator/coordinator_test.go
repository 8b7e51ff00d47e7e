// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/proof"
	"github.com/luxfi/quorum/reputation"
	"github.com/luxfi/quorum/resolver"
	"github.com/luxfi/quorum/utils/timer/mockable"
	"github.com/luxfi/quorum/verify"
)

var converged = verify.Result{Converged: true}

func counterexample(v uint64) verify.Result {
	return verify.Result{Counterexample: &v}
}

type harness struct {
	c      *Coordinator
	ledger *reputation.Ledger
	res    *resolver.Resolver
	clock  *mockable.Clock
	digest ids.ID
	cfg    Config

	coordDB  database.Database
	ledgerDB database.Database
	seed     int64
}

func newHarness(t *testing.T, seed int64) *harness {
	h := &harness{
		clock:    &mockable.Clock{},
		digest:   verify.DefaultConfig().Digest(),
		coordDB:  memdb.New(),
		ledgerDB: memdb.New(),
		seed:     seed,
	}
	h.clock.Set(time.Unix(1_700_000_000, 0))
	h.cfg = DefaultConfig(h.digest)
	h.open(require.New(t))
	return h
}

// open builds the ledger, resolver, and coordinator over the harness
// databases. Calling it a second time models a process restart.
func (h *harness) open(require *require.Assertions) {
	ledger, err := reputation.New(h.ledgerDB, log.NoLog{}, h.clock, metric.NewRegistry())
	require.NoError(err)

	res, err := resolver.New(
		ledger,
		proof.DefaultValidationConfig(h.digest),
		h.clock,
		rand.New(rand.NewSource(h.seed)), //#nosec G404
		log.NoLog{},
		metric.NewRegistry(),
	)
	require.NoError(err)

	c, err := New(h.coordDB, ledger, res, h.cfg, h.clock, log.NoLog{}, metric.NewRegistry())
	require.NoError(err)

	h.ledger = ledger
	h.res = res
	h.c = c
}

// newWorker returns a key registered in the ledger with the given score.
func (h *harness) newWorker(require *require.Assertions, score int) *secp256k1.PrivateKey {
	key, err := secp256k1.NewPrivateKey()
	require.NoError(err)

	worker := key.Address()
	require.NoError(h.ledger.RegisterIfAbsent(worker, nil))
	for i := 0; i < score/10; i++ {
		require.NoError(h.ledger.ApplyVerdict(worker, ids.GenerateTestID(), true))
	}
	return key
}

func (h *harness) proofFor(
	require *require.Assertions,
	key *secp256k1.PrivateKey,
	a *Assignment,
	result verify.Result,
) *proof.Proof {
	p, err := proof.Build(key, a.ID, a.RangeStart, a.RangeEnd, h.digest, result, h.clock.Time())
	require.NoError(err)
	return p
}

// confirm submits n fresh verified workers' proofs of result and returns the
// last action.
func (h *harness) confirm(
	require *require.Assertions,
	a *Assignment,
	n int,
	result verify.Result,
) resolver.Action {
	var action resolver.Action
	for i := 0; i < n; i++ {
		worker := h.newWorker(require, 10)
		var err error
		_, action, err = h.c.Submit(h.proofFor(require, worker, a, result), h.clock.Time())
		require.NoError(err)
	}
	return action
}

func (h *harness) generate(require *require.Assertions, count int, size uint64) []*Assignment {
	assignments, err := h.c.GenerateRange(count, size)
	require.NoError(err)
	require.Len(assignments, count)
	return assignments
}

func (h *harness) snapshot(require *require.Assertions) *Snapshot {
	snap, err := h.c.Snapshot()
	require.NoError(err)
	return snap
}

func TestGenerateRangeAdvancesFrontier(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	require.Equal(uint64(1), h.c.Frontier())

	assignments := h.generate(require, 3, 1_000)
	require.Equal(uint64(1), assignments[0].RangeStart)
	require.Equal(uint64(3_001), h.c.Frontier())

	for i, a := range assignments {
		require.Equal(Available, a.Status)
		require.Equal(NewAssignment(a.RangeStart, a.RangeEnd, 0, ids.Empty, 0).ID, a.ID)
		if i > 0 {
			require.Equal(assignments[i-1].RangeEnd, a.RangeStart)
		}
	}

	// The next batch picks up where the last one stopped.
	more := h.generate(require, 1, 500_000)
	require.Equal(uint64(3_001), more[0].RangeStart)
	require.Equal(uint64(503_001), h.c.Frontier())

	// And the frontier survives a restart.
	h.open(require)
	require.Equal(uint64(503_001), h.c.Frontier())
	require.Equal(4, h.c.state.Len())
}

func TestGenerateRangeRejectsInvalidSizes(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	for _, size := range []uint64{0, 999, proof.DefaultMaxRangeSize + 2} {
		_, err := h.c.GenerateRange(1, size)
		require.ErrorIs(err, proof.ErrInvalidRange)
	}
	_, err := h.c.GenerateRange(0, 1_000)
	require.ErrorIs(err, proof.ErrInvalidRange)

	require.Equal(uint64(1), h.c.Frontier())
	require.Zero(h.c.state.Len())
}

func TestGenerateRangeAdoptsSelfAssignedWork(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	// A worker races ahead of generation and self-assigns the frontier
	// range.
	author := h.newWorker(require, 10)
	implied := NewAssignment(1, 1_001, 0, ids.Empty, h.clock.Time().Unix())
	_, action, err := h.c.Submit(h.proofFor(require, author, implied, converged), h.clock.Time())
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)
	require.Equal(uint64(1), h.c.Frontier())

	// Generation walks over the same range and adopts the live assignment
	// instead of minting a hollow twin.
	assignments := h.generate(require, 2, 1_000)
	require.Equal(implied.ID, assignments[0].ID)
	require.Equal(author.Address(), assignments[0].OriginalWorker)
	require.Equal(Leased, assignments[0].Status)
	require.Equal(Available, assignments[1].Status)
	require.Equal(uint64(2_001), h.c.Frontier())
	require.Equal(2, h.c.state.Len())
}

func TestLeaseCapacityFollowsTrustMix(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	a := h.generate(require, 1, 1_000)[0]

	// An elite holder fills the quorum alone.
	elite := h.newWorker(require, 1_000)
	leased, err := h.c.Lease(elite.Address(), now)
	require.NoError(err)
	require.Equal(a.ID, leased.ID)

	second := h.newWorker(require, 1_000)
	_, err = h.c.Lease(second.Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)

	// An unproven candidate raises the bar to its own tier's quorum,
	// reopening the range.
	unproven := h.newWorker(require, 0)
	leased, err = h.c.Lease(unproven.Address(), now)
	require.NoError(err)
	require.Equal(a.ID, leased.ID)

	// Which makes room for the second elite after all.
	leased, err = h.c.Lease(second.Address(), now)
	require.NoError(err)
	require.Equal(a.ID, leased.ID)
	require.Len(leased.Leases, 3)
}

func TestLeaseSlotsMatchQuorum(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	a := h.generate(require, 1, 1_000)[0]

	// Three verified workers need three matching proofs, so exactly three
	// slots open.
	for i := 0; i < 3; i++ {
		worker := h.newWorker(require, 10)
		leased, err := h.c.Lease(worker.Address(), now)
		require.NoError(err)
		require.Equal(a.ID, leased.ID)
	}

	fourth := h.newWorker(require, 10)
	_, err := h.c.Lease(fourth.Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)
}

func TestLeaseResumesHeldLease(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	a := h.generate(require, 1, 1_000)[0]
	worker := h.newWorker(require, 10)

	leased, err := h.c.Lease(worker.Address(), h.clock.Time())
	require.NoError(err)
	require.Equal(a.ID, leased.ID)

	// Asking again refreshes the same lease rather than granting a second
	// slot.
	h.clock.Set(h.clock.Time().Add(10 * time.Minute))
	leased, err = h.c.Lease(worker.Address(), h.clock.Time())
	require.NoError(err)
	require.Equal(a.ID, leased.ID)
	require.Len(leased.Leases, 1)
	require.Equal(h.clock.Time().Add(h.cfg.LeaseTTL).Unix(), leased.Leases[0].Expires)

	// Once the worker has answered, it moves on; with nothing else to do,
	// it idles.
	_, action, err := h.c.Submit(h.proofFor(require, worker, a, converged), h.clock.Time())
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)

	_, err = h.c.Lease(worker.Address(), h.clock.Time())
	require.ErrorIs(err, ErrNoWorkAvailable)
}

func TestLeaseBannedWorker(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	banned := h.newWorker(require, 0)
	for i := 0; i < 3; i++ {
		require.NoError(h.ledger.ApplyVerdict(banned.Address(), ids.GenerateTestID(), false))
	}
	require.True(h.ledger.IsBanned(banned.Address()))

	a := h.generate(require, 1, 1_000)[0]
	_, err := h.c.Lease(banned.Address(), h.clock.Time())
	require.ErrorIs(err, ErrWorkerBanned)

	// Its proofs are discarded without effect.
	_, action, err := h.c.Submit(h.proofFor(require, banned, a, converged), h.clock.Time())
	require.NoError(err)
	require.Equal(resolver.ActionIgnored, action)
}

func TestConflictedAssignmentsLeaseFirst(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	assignments := h.generate(require, 2, 1_000)
	contested := assignments[1]

	w1 := h.newWorker(require, 10)
	_, action, err := h.c.Submit(h.proofFor(require, w1, contested, converged), now)
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)

	w2 := h.newWorker(require, 10)
	_, action, err = h.c.Submit(h.proofFor(require, w2, contested, counterexample(1_500)), now)
	require.ErrorIs(err, resolver.ErrConsensusConflict)
	require.Equal(resolver.ActionConflict, action)

	got, err := h.c.state.GetAssignment(contested.ID)
	require.NoError(err)
	require.Equal(Conflicted, got.Status)
	require.True(got.Excluded(w1.Address()))
	require.True(got.Excluded(w2.Address()))

	// Contributors fall back to untouched work.
	leased, err := h.c.Lease(w1.Address(), now)
	require.NoError(err)
	require.Equal(assignments[0].ID, leased.ID)

	// A fresh worker serves the stalled tie-break before anything else.
	w3 := h.newWorker(require, 10)
	leased, err = h.c.Lease(w3.Address(), now)
	require.NoError(err)
	require.Equal(contested.ID, leased.ID)

	_, action, err = h.c.Submit(h.proofFor(require, w3, contested, converged), now)
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)
}

func TestSubmitCreatesSelfAssignedRange(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	author := h.newWorker(require, 0)
	implied := NewAssignment(50_001, 51_001, 0, ids.Empty, 0)

	rec, action, err := h.c.Submit(h.proofFor(require, author, implied, counterexample(50_500)), now)
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)
	require.True(rec.Has(author.Address()))

	stored, err := h.c.state.GetAssignment(implied.ID)
	require.NoError(err)
	require.Equal(author.Address(), stored.OriginalWorker)
	require.Equal(Leased, stored.Status)
	require.False(stored.IsAudit())

	// The author can neither hold its own range nor pile on a second proof.
	_, err = h.c.Lease(author.Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)

	_, action, err = h.c.Submit(h.proofFor(require, author, implied, counterexample(50_500)), now)
	require.NoError(err)
	require.Equal(resolver.ActionDuplicate, action)

	// Anyone else may confirm or lease it.
	confirmer := h.newWorker(require, 10)
	rec, action, err = h.c.Submit(h.proofFor(require, confirmer, stored, counterexample(50_500)), now)
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)
	require.Equal(2, rec.Len())

	outsider := h.newWorker(require, 10)
	leased, err := h.c.Lease(outsider.Address(), now)
	require.NoError(err)
	require.Equal(implied.ID, leased.ID)
}

func TestSubmitRejectsUnderivableAssignment(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	worker := h.newWorker(require, 10)
	p, err := proof.Build(
		worker,
		ids.GenerateTestID(),
		60_001,
		61_001,
		h.digest,
		converged,
		h.clock.Time(),
	)
	require.NoError(err)

	_, action, err := h.c.Submit(p, h.clock.Time())
	require.ErrorIs(err, ErrUnknownAssignment)
	require.Equal(resolver.ActionInvalid, action)
	require.Zero(h.c.state.Len())
}

func TestQuorumCompletesAssignment(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	a := h.generate(require, 1, 1_000)[0]

	var (
		action  resolver.Action
		workers []*secp256k1.PrivateKey
	)
	for i := 0; i < 3; i++ {
		worker := h.newWorker(require, 10)
		workers = append(workers, worker)

		leased, err := h.c.Lease(worker.Address(), now)
		require.NoError(err)
		require.Equal(a.ID, leased.ID)

		_, action, err = h.c.Submit(h.proofFor(require, worker, leased, converged), now)
		require.NoError(err)
	}
	require.Equal(resolver.ActionFinalized, action)

	got, err := h.c.state.GetAssignment(a.ID)
	require.NoError(err)
	require.Equal(Completed, got.Status)

	stats := h.c.Stats()
	require.Equal(1, stats.Completed)
	require.Equal(uint64(1_001), stats.Verified)
	require.Equal(1, h.c.state.Len()) // no audit was sampled

	for _, worker := range workers {
		record, err := h.ledger.Get(worker.Address())
		require.NoError(err)
		require.Equal(uint32(20), record.Score) // 10 seed + 10 reward
	}

	// Completed work never leases again.
	late := h.newWorker(require, 10)
	_, err = h.c.Lease(late.Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)
}

func TestSpotCheckSpawnsAudit(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	a := h.generate(require, 1, 1_000)[0]

	// Five unproven contributors: quorum 5 and a certain audit.
	var (
		action  resolver.Action
		workers []*secp256k1.PrivateKey
	)
	for i := 0; i < 5; i++ {
		worker := h.newWorker(require, 0)
		workers = append(workers, worker)
		var err error
		_, action, err = h.c.Submit(h.proofFor(require, worker, a, converged), now)
		require.NoError(err)
	}
	require.Equal(resolver.ActionFinalized, action)

	audit, err := h.c.state.GetAssignment(NewAssignment(a.RangeStart, a.RangeEnd, 0, a.ID, 0).ID)
	require.NoError(err)
	require.True(audit.IsAudit())
	require.Equal(Available, audit.Status)
	for _, worker := range workers {
		require.True(audit.Excluded(worker.Address()))
	}

	// Contributors to the original may neither lease nor confirm the audit.
	_, err = h.c.Lease(workers[0].Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)

	_, _, err = h.c.Submit(h.proofFor(require, workers[0], audit, converged), now)
	require.ErrorIs(err, ErrWorkerExcluded)

	// An independent worker serves it.
	outsider := h.newWorker(require, 10)
	leased, err := h.c.Lease(outsider.Address(), now)
	require.NoError(err)
	require.Equal(audit.ID, leased.ID)
}

func TestAuditContradictionReopensOriginal(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	orig := h.generate(require, 1, 1_000)[0]

	// Five unproven workers finalize the wrong result; the audit is
	// guaranteed at their tier.
	var workers []*secp256k1.PrivateKey
	for i := 0; i < 5; i++ {
		worker := h.newWorker(require, 0)
		workers = append(workers, worker)
		_, _, err := h.c.Submit(h.proofFor(require, worker, orig, converged), now)
		require.NoError(err)
	}
	audit, err := h.c.state.GetAssignment(NewAssignment(orig.RangeStart, orig.RangeEnd, 0, orig.ID, 0).ID)
	require.NoError(err)

	// Independent auditors find a counterexample.
	require.Equal(resolver.ActionFinalized, h.confirm(require, audit, 3, counterexample(500)))

	got, err := h.c.state.GetAssignment(orig.ID)
	require.NoError(err)
	require.Equal(Conflicted, got.Status)
	for _, worker := range workers {
		require.True(got.Excluded(worker.Address()))
	}

	rec, ok := h.res.Get(orig.ID)
	require.True(ok)
	require.Equal(resolver.VerdictConflicted, rec.Verdict)
	require.Equal(3, rec.TieBreakOutstanding()) // a fresh batch beyond the 5 counted

	// The contradicted rewards were withdrawn.
	for _, worker := range workers {
		record, err := h.ledger.Get(worker.Address())
		require.NoError(err)
		require.Zero(record.Score)
		require.Zero(record.Correct)
	}

	// The reopened range is the most urgent work on offer.
	fresh := h.newWorker(require, 10)
	leased, err := h.c.Lease(fresh.Address(), now)
	require.NoError(err)
	require.Equal(orig.ID, leased.ID)
	require.Equal(Conflicted, leased.Status)
}

func TestReapReopensExpiredSlots(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	a := h.generate(require, 1, 1_000)[0]

	// One answered lease, two abandoned ones.
	w1 := h.newWorker(require, 10)
	_, err := h.c.Lease(w1.Address(), now)
	require.NoError(err)
	_, action, err := h.c.Submit(h.proofFor(require, w1, a, converged), now)
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)

	for i := 0; i < 2; i++ {
		worker := h.newWorker(require, 10)
		_, err := h.c.Lease(worker.Address(), now)
		require.NoError(err)
	}

	w4 := h.newWorker(require, 10)
	_, err = h.c.Lease(w4.Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)

	h.clock.Set(now.Add(2 * time.Hour))
	now = h.clock.Time()

	dropped, err := h.c.Reap(now)
	require.NoError(err)
	require.Equal(3, dropped)

	// The counted proof stays; only the unmet redundancy reopened.
	got, err := h.c.state.GetAssignment(a.ID)
	require.NoError(err)
	require.Equal(Leased, got.Status)
	require.Empty(got.Leases)

	rec, ok := h.res.Get(a.ID)
	require.True(ok)
	require.Equal(1, rec.Len())

	_, err = h.c.Lease(w4.Address(), now)
	require.NoError(err)
	w5 := h.newWorker(require, 10)
	_, err = h.c.Lease(w5.Address(), now)
	require.NoError(err)
	w6 := h.newWorker(require, 10)
	_, err = h.c.Lease(w6.Address(), now)
	require.ErrorIs(err, ErrNoWorkAvailable)

	// The two resumed slots finish the quorum.
	for _, worker := range []*secp256k1.PrivateKey{w4, w5} {
		var err error
		_, action, err = h.c.Submit(h.proofFor(require, worker, a, converged), now)
		require.NoError(err)
	}
	require.Equal(resolver.ActionFinalized, action)
}

func TestReapSupersedesAbandonedAssignment(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	h.generate(require, 2, 1_000)

	worker := h.newWorker(require, 10)
	claimed, err := h.c.Lease(worker.Address(), now)
	require.NoError(err)

	h.clock.Set(now.Add(25 * time.Hour))
	now = h.clock.Time()

	dropped, err := h.c.Reap(now)
	require.NoError(err)
	require.Equal(1, dropped)

	// The claimed-then-abandoned range was expired and reissued under a
	// fresh salt; the untouched one just waits.
	got, err := h.c.state.GetAssignment(claimed.ID)
	require.NoError(err)
	require.Equal(Expired, got.Status)

	successor, err := h.c.state.GetAssignment(
		NewAssignment(claimed.RangeStart, claimed.RangeEnd, claimed.Salt+1, ids.Empty, 0).ID,
	)
	require.NoError(err)
	require.Equal(Available, successor.Status)
	require.Equal(uint64(1), successor.Salt)

	stats := h.c.Stats()
	require.Equal(2, stats.Available)
	require.Equal(1, stats.Expired)

	// Reaping again changes nothing.
	dropped, err = h.c.Reap(now)
	require.NoError(err)
	require.Zero(dropped)
	require.Equal(3, h.c.state.Len())
}

func TestMergeConverges(t *testing.T) {
	require := require.New(t)

	// Two replicas generate the same work and finalize different halves of
	// it.
	h1 := newHarness(t, 1)
	h2 := newHarness(t, 1)

	first := h1.generate(require, 2, 1_000)
	second := h2.generate(require, 2, 1_000)
	require.Equal(first[0].ID, second[0].ID)
	require.Equal(first[1].ID, second[1].ID)

	require.Equal(resolver.ActionFinalized, h1.confirm(require, first[0], 3, converged))
	require.Equal(resolver.ActionFinalized, h2.confirm(require, second[1], 3, counterexample(1_500)))

	s1 := h1.snapshot(require)
	s2 := h2.snapshot(require)

	// Two fresh replicas apply the snapshots in opposite orders.
	h3 := newHarness(t, 1)
	h4 := newHarness(t, 1)
	require.NoError(h3.c.Merge(s1))
	require.NoError(h3.c.Merge(s2))
	require.NoError(h4.c.Merge(s2))
	require.NoError(h4.c.Merge(s1))

	for _, h := range []*harness{h3, h4} {
		stats := h.c.Stats()
		require.Equal(2, stats.Completed)
		require.Equal(uint64(2_001), stats.Frontier)
		require.Equal(uint64(2_001), stats.Verified)
	}

	a3 := h3.c.state.Assignments()
	a4 := h4.c.state.Assignments()
	require.Equal(len(a3), len(a4))
	for i := range a3 {
		require.Equal(a3[i].ID, a4[i].ID)
		require.Equal(a3[i].Status, a4[i].Status)
	}

	scores := func(h *harness) map[ids.ShortID]uint32 {
		records, err := h.ledger.List()
		require.NoError(err)
		m := make(map[ids.ShortID]uint32, len(records))
		for _, r := range records {
			m[r.Worker] = r.Score
		}
		return m
	}
	require.Equal(scores(h3), scores(h4))

	// Replaying a snapshot is a no-op.
	before := h3.c.Stats()
	require.NoError(h3.c.Merge(s1))
	require.Equal(before, h3.c.Stats())
	require.Equal(scores(h3), scores(h4))
}

func TestMergeHoldsReopenedConflict(t *testing.T) {
	require := require.New(t)

	h1 := newHarness(t, 1)
	h2 := newHarness(t, 1)
	now := h1.clock.Time()

	contested := h1.generate(require, 1, 1_000)[0]
	h2.generate(require, 1, 1_000)

	// This replica sees a live disagreement.
	w1 := h1.newWorker(require, 10)
	_, _, err := h1.c.Submit(h1.proofFor(require, w1, contested, converged), now)
	require.NoError(err)

	w2 := h1.newWorker(require, 10)
	_, action, err := h1.c.Submit(h1.proofFor(require, w2, contested, counterexample(500)), now)
	require.ErrorIs(err, resolver.ErrConsensusConflict)
	require.Equal(resolver.ActionConflict, action)

	// A remote replica finalized the same range off two trusted workers
	// before hearing about the conflict.
	for i := 0; i < 2; i++ {
		trusted := h2.newWorker(require, 100)
		_, action, err = h2.c.Submit(h2.proofFor(require, trusted, contested, converged), now)
		require.NoError(err)
	}
	require.Equal(resolver.ActionFinalized, action)

	// The merged status stays Conflicted: a stale completion must not close
	// a tie-break in flight, but the remote proofs do count toward it.
	require.NoError(h1.c.Merge(h2.snapshot(require)))

	got, err := h1.c.state.GetAssignment(contested.ID)
	require.NoError(err)
	require.Equal(Conflicted, got.Status)

	rec, ok := h1.res.Get(contested.ID)
	require.True(ok)
	require.Equal(resolver.VerdictConflicted, rec.Verdict)
	require.Equal(4, rec.Len())

	// One more proof completes the batch and adjudicates it 4-1.
	w5 := h1.newWorker(require, 10)
	_, action, err = h1.c.Submit(h1.proofFor(require, w5, contested, converged), now)
	require.NoError(err)
	require.Equal(resolver.ActionFinalized, action)

	got, err = h1.c.state.GetAssignment(contested.ID)
	require.NoError(err)
	require.Equal(Completed, got.Status)
	require.Equal("converged", rec.Canonical.Key())

	record, err := h1.ledger.Get(w2.Address())
	require.NoError(err)
	require.Zero(record.Score)
	require.Equal(uint64(1), record.Incorrect)
}

func TestMergeDropsAuthorLease(t *testing.T) {
	require := require.New(t)

	// Two replicas adopt the same implicit salt-0 range from different
	// first submitters, so each sees the other's author as an ordinary
	// worker.
	h1 := newHarness(t, 1)
	h2 := newHarness(t, 1)
	now := h1.clock.Time()

	authorA := h1.newWorker(require, 0)
	authorB := h2.newWorker(require, 0)
	implied := NewAssignment(70_001, 71_001, 0, ids.Empty, 0)

	_, _, err := h1.c.Submit(h1.proofFor(require, authorA, implied, converged), now)
	require.NoError(err)
	_, _, err = h2.c.Submit(h2.proofFor(require, authorB, implied, converged), now)
	require.NoError(err)

	// On the second replica, the first replica's author holds a perfectly
	// valid lease on the range it defined elsewhere.
	require.NoError(h2.ledger.RegisterIfAbsent(authorA.Address(), nil))
	leased, err := h2.c.Lease(authorA.Address(), now)
	require.NoError(err)
	require.Equal(implied.ID, leased.ID)

	// Merging must not let that lease land where the worker is the author.
	require.NoError(h1.c.Merge(h2.snapshot(require)))

	got, err := h1.c.state.GetAssignment(implied.ID)
	require.NoError(err)
	require.Equal(authorA.Address(), got.OriginalWorker)
	require.Nil(got.LeaseFor(authorA.Address()))

	// The confirming proof still counted; only the lease slot is refused.
	rec, ok := h1.res.Get(implied.ID)
	require.True(ok)
	require.True(rec.Has(authorB.Address()))
}

func TestMergeDropsAuthorLeaseFromCraftedSnapshot(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	author := ids.GenerateTestShortID()
	honest := ids.GenerateTestShortID()
	crafted := NewAssignment(80_001, 81_001, 0, ids.Empty, now.Unix())
	crafted.OriginalWorker = author
	crafted.lease(author, now, time.Hour)
	crafted.lease(honest, now, time.Hour)
	crafted.Status = Leased

	// Adoption of an unknown assignment must refuse the author's slot.
	require.NoError(h.c.Merge(&Snapshot{Assignments: []*Assignment{crafted}}))
	got, err := h.c.state.GetAssignment(crafted.ID)
	require.NoError(err)
	require.Nil(got.LeaseFor(author))
	require.NotNil(got.LeaseFor(honest))

	// So must a re-merge into the now-existing twin.
	require.NoError(h.c.Merge(&Snapshot{Assignments: []*Assignment{crafted}}))
	got, err = h.c.state.GetAssignment(crafted.ID)
	require.NoError(err)
	require.Nil(got.LeaseFor(author))
	require.NotNil(got.LeaseFor(honest))
}

func TestLeaseMergeInvariants(t *testing.T) {
	require := require.New(t)
	rng := rand.New(rand.NewSource(7)) //#nosec G404

	h1 := newHarness(t, 1)
	h2 := newHarness(t, 1)
	now := h1.clock.Time()

	// The same implicit range defined by a different author on each
	// replica, plus shared frontier work.
	authorA := h1.newWorker(require, 0)
	authorB := h2.newWorker(require, 0)
	implied := NewAssignment(90_001, 91_001, 0, ids.Empty, 0)
	_, _, err := h1.c.Submit(h1.proofFor(require, authorA, implied, converged), now)
	require.NoError(err)
	_, _, err = h2.c.Submit(h2.proofFor(require, authorB, implied, converged), now)
	require.NoError(err)
	h1.generate(require, 2, 1_000)
	h2.generate(require, 2, 1_000)

	// Untrusted workers known to both replicas: every trust mix requires 5
	// confirmations, so 5 is the lease capacity everywhere.
	keys := []*secp256k1.PrivateKey{authorA, authorB}
	for i := 0; i < 6; i++ {
		key, err := secp256k1.NewPrivateKey()
		require.NoError(err)
		keys = append(keys, key)
	}
	for _, key := range keys {
		require.NoError(h1.ledger.RegisterIfAbsent(key.Address(), nil))
		require.NoError(h2.ledger.RegisterIfAbsent(key.Address(), nil))
	}

	check := func(h *harness) {
		for _, a := range h.c.state.Assignments() {
			require.LessOrEqual(len(a.Leases), 5)
			for _, l := range a.Leases {
				require.False(a.Excluded(l.Worker),
					"worker %s holds a lease on %s it is excluded from",
					l.Worker, a.ID)
			}
		}
	}

	for i := 0; i < 200; i++ {
		switch rng.Intn(4) {
		case 0, 1:
			h := h1
			if rng.Intn(2) == 1 {
				h = h2
			}
			worker := keys[rng.Intn(len(keys))].Address()
			if _, err := h.c.Lease(worker, h.clock.Time()); err != nil {
				require.ErrorIs(err, ErrNoWorkAvailable)
			}
		case 2:
			require.NoError(h2.c.Merge(h1.snapshot(require)))
		case 3:
			require.NoError(h1.c.Merge(h2.snapshot(require)))
		}
		check(h1)
		check(h2)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)
	now := h.clock.Time()

	assignments := h.generate(require, 2, 1_000)

	worker := h.newWorker(require, 10)
	leased, err := h.c.Lease(worker.Address(), now)
	require.NoError(err)
	_, _, err = h.c.Submit(h.proofFor(require, worker, leased, converged), now)
	require.NoError(err)

	snap := h.snapshot(require)
	bytes, err := snap.Bytes()
	require.NoError(err)

	parsed, err := ParseSnapshot(bytes)
	require.NoError(err)
	require.Equal(snap.Frontier, parsed.Frontier)
	require.Equal(snap.Proofs, parsed.Proofs)
	require.Len(parsed.Assignments, len(assignments))
	require.Len(parsed.Records, 1)
	require.Equal(worker.Address(), parsed.Records[0].Worker)

	// A fresh replica reconstructs the full picture, leases included.
	h2 := newHarness(t, 1)
	require.NoError(h2.c.Merge(parsed))

	got, err := h2.c.state.GetAssignment(leased.ID)
	require.NoError(err)
	require.Equal(Leased, got.Status)
	require.NotNil(got.LeaseFor(worker.Address()))

	rec, ok := h2.res.Get(leased.ID)
	require.True(ok)
	require.True(rec.Has(worker.Address()))
}

func TestRestartRebuildsFromProofs(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	a := h.generate(require, 1, 1_000)[0]

	w1 := h.newWorker(require, 10)
	_, action, err := h.c.Submit(h.proofFor(require, w1, a, converged), h.clock.Time())
	require.NoError(err)
	require.Equal(resolver.ActionAdded, action)

	// A restart rebuilds the resolver's view from the persisted proofs.
	h.open(require)
	rec, ok := h.res.Get(a.ID)
	require.True(ok)
	require.Equal(1, rec.Len())
	require.True(rec.Has(w1.Address()))

	// The rebuilt replica picks up where the old one stopped.
	require.Equal(resolver.ActionFinalized, h.confirm(require, a, 2, converged))

	record, err := h.ledger.Get(w1.Address())
	require.NoError(err)
	require.Equal(uint32(20), record.Score)

	// Restarting over finalized state neither re-rewards nor re-audits.
	before := h.c.Stats()
	h.open(require)
	require.Equal(before, h.c.Stats())
	require.Equal(1, h.c.state.Len())

	record, err = h.ledger.Get(w1.Address())
	require.NoError(err)
	require.Equal(uint32(20), record.Score)
}

func TestVerifiedBoundSkipsGaps(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1)

	assignments := h.generate(require, 3, 1_000)

	require.Equal(resolver.ActionFinalized, h.confirm(require, assignments[0], 3, converged))
	require.Equal(resolver.ActionFinalized, h.confirm(require, assignments[2], 3, converged))

	// [2001, 3001) is done but [1001, 2001) isn't: the contiguous bound
	// stops at the hole.
	stats := h.c.Stats()
	require.Equal(2, stats.Completed)
	require.Equal(1, stats.Available)
	require.Equal(uint64(1_001), stats.Verified)

	require.Equal(resolver.ActionFinalized, h.confirm(require, assignments[1], 3, converged))
	require.Equal(uint64(3_001), h.c.Stats().Verified)
}
