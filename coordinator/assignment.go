// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"bytes"
	"slices"
	"time"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"

	"github.com/luxfi/quorum/utils/wrappers"
)

// Lease is one worker's time-bounded claim on a redundancy slot. Expiry is
// advisory: a late proof is still accepted while the assignment's verdict
// can change, the slot just becomes grantable again.
type Lease struct {
	Worker  ids.ShortID `serialize:"true" json:"worker"`
	Since   int64       `serialize:"true" json:"since"`
	Expires int64       `serialize:"true" json:"expires"`
}

// Assignment is a leasable unit of verification work over [RangeStart,
// RangeEnd). Its ID is derived from the range, the salt, and the audit link,
// so replicas that generate the same work generate the same IDs and merges
// of independently created duplicates are no-ops.
type Assignment struct {
	ID         ids.ID `serialize:"true" json:"id"`
	RangeStart uint64 `serialize:"true" json:"rangeStart"`
	RangeEnd   uint64 `serialize:"true" json:"rangeEnd"`

	// Salt distinguishes successive incarnations of the same range: an
	// expired assignment is superseded by one with the next salt.
	Salt uint64 `serialize:"true" json:"salt"`

	// OriginalWorker is the worker whose proof defined this assignment, if
	// it wasn't generated from the frontier. The author may never confirm
	// its own range.
	OriginalWorker ids.ShortID `serialize:"true" json:"originalWorker"`

	// AuditOf is the completed assignment this one re-verifies, if this is a
	// spot-check assignment.
	AuditOf ids.ID `serialize:"true" json:"auditOf"`

	Status    Status   `serialize:"true" json:"status"`
	CreatedAt int64    `serialize:"true" json:"createdAt"`
	Leases    []*Lease `serialize:"true" json:"leases"`

	// Exclude lists workers that may not lease this assignment: prior
	// submitters during a tie-break, prior contributors for an audit.
	Exclude []ids.ShortID `serialize:"true" json:"exclude"`
}

// NewAssignment returns an Available assignment over [start, end) with a
// deterministic ID.
func NewAssignment(start, end, salt uint64, auditOf ids.ID, createdAt int64) *Assignment {
	a := &Assignment{
		RangeStart: start,
		RangeEnd:   end,
		Salt:       salt,
		AuditOf:    auditOf,
		Status:     Available,
		CreatedAt:  createdAt,
	}
	a.ID = a.computeID()
	return a
}

func (a *Assignment) computeID() ids.ID {
	p := wrappers.Packer{MaxSize: 3*wrappers.LongLen + ids.IDLen}
	p.PackLong(a.RangeStart)
	p.PackLong(a.RangeEnd)
	p.PackLong(a.Salt)
	p.PackFixedBytes(a.AuditOf[:])
	return hash.ComputeHash256Array(p.Bytes)
}

// Less orders assignments for lease selection: oldest first, ID as the
// tie-break so the order is total.
func (a *Assignment) Less(than *Assignment) bool {
	if a.CreatedAt != than.CreatedAt {
		return a.CreatedAt < than.CreatedAt
	}
	return bytes.Compare(a.ID[:], than.ID[:]) == -1
}

// IsAudit reports whether this assignment re-verifies a completed one.
func (a *Assignment) IsAudit() bool {
	return a.AuditOf != ids.Empty
}

// clone returns a deep copy, safe to hand outside the coordinator's lock.
func (a *Assignment) clone() *Assignment {
	cp := *a
	cp.Leases = make([]*Lease, len(a.Leases))
	for i, l := range a.Leases {
		lc := *l
		cp.Leases[i] = &lc
	}
	cp.Exclude = slices.Clone(a.Exclude)
	return &cp
}

// LeaseFor returns the worker's lease, expired or not.
func (a *Assignment) LeaseFor(worker ids.ShortID) *Lease {
	for _, l := range a.Leases {
		if l.Worker == worker {
			return l
		}
	}
	return nil
}

// Holders returns the workers holding unexpired leases at now.
func (a *Assignment) Holders(now time.Time) []ids.ShortID {
	ts := now.Unix()
	holders := make([]ids.ShortID, 0, len(a.Leases))
	for _, l := range a.Leases {
		if l.Expires > ts {
			holders = append(holders, l.Worker)
		}
	}
	return holders
}

// Excluded reports whether the worker is barred from leasing this
// assignment.
func (a *Assignment) Excluded(worker ids.ShortID) bool {
	if worker == a.OriginalWorker {
		return true
	}
	return slices.Contains(a.Exclude, worker)
}

// exclude bars workers from future leases of this assignment.
func (a *Assignment) exclude(workers ...ids.ShortID) {
	for _, worker := range workers {
		if worker != ids.ShortEmpty && !slices.Contains(a.Exclude, worker) {
			a.Exclude = append(a.Exclude, worker)
		}
	}
	slices.SortFunc(a.Exclude, func(x, y ids.ShortID) int {
		return bytes.Compare(x[:], y[:])
	})
}

// lease grants or extends the worker's claim. Re-leasing is idempotent: the
// expiry moves forward, the Since timestamp keeps the original grant.
func (a *Assignment) lease(worker ids.ShortID, now time.Time, ttl time.Duration) *Lease {
	expires := now.Add(ttl).Unix()
	if l := a.LeaseFor(worker); l != nil {
		l.Expires = max(l.Expires, expires)
		return l
	}
	l := &Lease{
		Worker:  worker,
		Since:   now.Unix(),
		Expires: expires,
	}
	a.Leases = append(a.Leases, l)
	return l
}

// dropExpired removes leases past their expiry and returns how many were
// dropped. Proofs already counted are unaffected; only the unmet redundancy
// reopens.
func (a *Assignment) dropExpired(now time.Time) int {
	ts := now.Unix()
	kept := a.Leases[:0]
	for _, l := range a.Leases {
		if l.Expires > ts {
			kept = append(kept, l)
		}
	}
	dropped := len(a.Leases) - len(kept)
	a.Leases = kept
	return dropped
}

// dropExcluded removes leases held by workers barred from this assignment
// and returns how many were dropped. A remote replica can legitimately hold
// such a lease: the same salt-0 range defined there by a different author
// puts our author among its confirmers.
func (a *Assignment) dropExcluded() int {
	kept := a.Leases[:0]
	for _, l := range a.Leases {
		if !a.Excluded(l.Worker) {
			kept = append(kept, l)
		}
	}
	dropped := len(a.Leases) - len(kept)
	a.Leases = kept
	return dropped
}

// mergeLeases unions a remote replica's lease set into the local one, capped
// at capacity. Leases held by the author or by excluded workers never enter
// the union, whichever side they came from. The same worker's leases
// collapse to the widest window; when the union exceeds capacity the newest
// grants are dropped, ties broken by worker bytes, so every replica keeps
// the same survivors.
func (a *Assignment) mergeLeases(remote []*Lease, capacity int) {
	byWorker := make(map[ids.ShortID]*Lease, len(a.Leases)+len(remote))
	for _, l := range a.Leases {
		if a.Excluded(l.Worker) {
			continue
		}
		byWorker[l.Worker] = l
	}
	for _, rem := range remote {
		if a.Excluded(rem.Worker) {
			continue
		}
		l, ok := byWorker[rem.Worker]
		if !ok {
			cp := *rem
			byWorker[rem.Worker] = &cp
			continue
		}
		l.Since = min(l.Since, rem.Since)
		l.Expires = max(l.Expires, rem.Expires)
	}

	merged := make([]*Lease, 0, len(byWorker))
	for _, l := range byWorker {
		merged = append(merged, l)
	}
	slices.SortFunc(merged, func(x, y *Lease) int {
		if x.Since != y.Since {
			if x.Since < y.Since {
				return -1
			}
			return 1
		}
		return bytes.Compare(x.Worker[:], y.Worker[:])
	})
	if capacity >= 0 && len(merged) > capacity {
		merged = merged[:capacity]
	}
	a.Leases = merged
}
