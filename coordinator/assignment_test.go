// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func TestAssignmentIDDerivation(t *testing.T) {
	require := require.New(t)

	base := NewAssignment(1_001, 2_001, 0, ids.Empty, 7)

	// Identity is the range, the salt, and the audit link; creation time is
	// bookkeeping.
	require.Equal(base.ID, NewAssignment(1_001, 2_001, 0, ids.Empty, 99).ID)
	require.NotEqual(base.ID, NewAssignment(1_001, 2_001, 1, ids.Empty, 7).ID)
	require.NotEqual(base.ID, NewAssignment(1_001, 2_003, 0, ids.Empty, 7).ID)

	audit := NewAssignment(1_001, 2_001, 0, base.ID, 7)
	require.NotEqual(base.ID, audit.ID)
	require.True(audit.IsAudit())
	require.False(base.IsAudit())
}

func TestLeaseExtendKeepsOriginalClaim(t *testing.T) {
	require := require.New(t)

	a := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	worker := ids.GenerateTestShortID()
	since := time.Unix(1_000, 0)

	a.lease(worker, since, time.Hour)
	a.lease(worker, since.Add(30*time.Minute), time.Hour)

	require.Len(a.Leases, 1)
	require.Equal(since.Unix(), a.Leases[0].Since)
	require.Equal(since.Add(90*time.Minute).Unix(), a.Leases[0].Expires)
}

func TestDropExpiredKeepsLiveLeases(t *testing.T) {
	require := require.New(t)

	a := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	stale := ids.GenerateTestShortID()
	live := ids.GenerateTestShortID()
	start := time.Unix(1_000, 0)

	a.lease(stale, start, time.Hour)
	a.lease(live, start.Add(2*time.Hour), time.Hour)

	now := start.Add(150 * time.Minute)
	require.Equal(1, a.dropExpired(now))
	require.Len(a.Leases, 1)
	require.Equal(live, a.Leases[0].Worker)
	require.Equal([]ids.ShortID{live}, a.Holders(now))
}

func TestMergeLeasesUnionsAndCaps(t *testing.T) {
	require := require.New(t)

	local := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	shared := ids.GenerateTestShortID()
	mine := ids.GenerateTestShortID()

	local.lease(shared, time.Unix(50, 0), time.Hour)
	local.lease(mine, time.Unix(200, 0), time.Hour)

	theirs := ids.GenerateTestShortID()
	late := ids.GenerateTestShortID()
	remote := []*Lease{
		// The remote saw the shared worker claim earlier and renew later.
		{Worker: shared, Since: 10, Expires: 10_000},
		{Worker: theirs, Since: 100, Expires: 4_000},
		{Worker: late, Since: 9_000, Expires: 12_000},
	}

	local.mergeLeases(remote, 3)

	// Union per worker with the earliest claim and latest expiry, ordered
	// by claim time, capped at capacity: the newest claim is shed.
	require.Len(local.Leases, 3)
	require.Equal(shared, local.Leases[0].Worker)
	require.Equal(int64(10), local.Leases[0].Since)
	require.Equal(int64(10_000), local.Leases[0].Expires)
	require.Equal(theirs, local.Leases[1].Worker)
	require.Equal(mine, local.Leases[2].Worker)
}

func TestMergeLeasesDropsExcludedHolders(t *testing.T) {
	require := require.New(t)

	local := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	author := ids.GenerateTestShortID()
	barred := ids.GenerateTestShortID()
	honest := ids.GenerateTestShortID()
	local.OriginalWorker = author
	local.exclude(barred)

	// A remote replica defined the same range under a different author, so
	// it may legitimately hold leases our exclusions forbid.
	remote := []*Lease{
		{Worker: author, Since: 10, Expires: 10_000},
		{Worker: barred, Since: 20, Expires: 10_000},
		{Worker: honest, Since: 30, Expires: 10_000},
	}

	local.mergeLeases(remote, 5)

	require.Len(local.Leases, 1)
	require.Equal(honest, local.Leases[0].Worker)
	require.Nil(local.LeaseFor(author))
	require.Nil(local.LeaseFor(barred))

	// A holder that becomes excluded afterwards is shed on the next merge
	// even with no remote leases at all.
	local.exclude(honest)
	local.mergeLeases(nil, 5)
	require.Empty(local.Leases)
}

func TestDropExcluded(t *testing.T) {
	require := require.New(t)

	a := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	author := ids.GenerateTestShortID()
	honest := ids.GenerateTestShortID()
	a.lease(author, time.Unix(100, 0), time.Hour)
	a.lease(honest, time.Unix(200, 0), time.Hour)

	require.Zero(a.dropExcluded())

	a.OriginalWorker = author
	require.Equal(1, a.dropExcluded())
	require.Len(a.Leases, 1)
	require.Equal(honest, a.Leases[0].Worker)
}

func TestExcludeDedups(t *testing.T) {
	require := require.New(t)

	a := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	worker := ids.GenerateTestShortID()

	a.exclude(worker, worker, ids.ShortEmpty)
	a.exclude(worker)

	require.Len(a.Exclude, 1)
	require.True(a.Excluded(worker))
	require.False(a.Excluded(ids.GenerateTestShortID()))
}

func TestCloneIsDetached(t *testing.T) {
	require := require.New(t)

	a := NewAssignment(1, 1_001, 0, ids.Empty, 0)
	worker := ids.GenerateTestShortID()
	a.lease(worker, time.Unix(1_000, 0), time.Hour)
	a.exclude(ids.GenerateTestShortID())

	c := a.clone()
	c.Status = Completed
	c.Leases[0].Expires = 9
	c.exclude(ids.GenerateTestShortID())

	require.Equal(Available, a.Status)
	require.Equal(time.Unix(1_000, 0).Add(time.Hour).Unix(), a.Leases[0].Expires)
	require.Len(a.Exclude, 1)
}

func TestStatusMergeIsMonotone(t *testing.T) {
	require := require.New(t)

	statuses := []Status{Available, Leased, Expired, Conflicted, Completed}
	for _, x := range statuses {
		for _, y := range statuses {
			require.Equal(x.merge(y), y.merge(x))
			require.Equal(max(x, y), x.merge(y))
		}
	}

	// Completion is absorbing.
	for _, s := range statuses {
		require.Equal(Completed, Completed.merge(s))
	}
	require.True(Completed.Verified())
	require.False(Conflicted.Verified())
}
