// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reputation

import (
	"github.com/luxfi/ids"
)

// Record is a worker's reputation ledger entry. Records are created on a
// worker's first submission and never deleted; a ban is a flag so the audit
// history survives it.
type Record struct {
	Worker     ids.ShortID `serialize:"true" json:"worker"`
	PublicKey  []byte      `serialize:"true" json:"publicKey"`
	Score      uint32      `serialize:"true" json:"score"`
	Correct    uint64      `serialize:"true" json:"correct"`
	Incorrect  uint64      `serialize:"true" json:"incorrect"`
	LastActive int64       `serialize:"true" json:"lastActive"`
	Banned     bool        `serialize:"true" json:"banned"`

	// ConsecutiveIncorrect counts the trailing run of disagreeing verdicts.
	// Three in a row is a ban.
	ConsecutiveIncorrect uint32 `serialize:"true" json:"consecutiveIncorrect"`
}

// Tier returns the worker's current trust tier.
func (r *Record) Tier() Tier {
	if r.Banned {
		return Banned
	}
	return TierFromScore(r.Score)
}

// verdicts returns how many verdicts have been adjudicated against this
// record.
func (r *Record) verdicts() uint64 {
	return r.Correct + r.Incorrect
}

// merge folds a remote replica's view of the same worker into r. Every field
// moves monotonically (counts and activity by max, ban by or), so merging is
// commutative, associative, and idempotent regardless of snapshot order.
func (r *Record) merge(remote *Record) {
	if len(r.PublicKey) == 0 {
		r.PublicKey = remote.PublicKey
	}

	// The trailing-run counter isn't monotone; take it from whichever side
	// has adjudicated more, preferring the larger run on a tie.
	switch local, rem := r.verdicts(), remote.verdicts(); {
	case rem > local:
		r.ConsecutiveIncorrect = remote.ConsecutiveIncorrect
	case rem == local:
		r.ConsecutiveIncorrect = max(r.ConsecutiveIncorrect, remote.ConsecutiveIncorrect)
	}

	r.Score = max(r.Score, remote.Score)
	r.Correct = max(r.Correct, remote.Correct)
	r.Incorrect = max(r.Incorrect, remote.Incorrect)
	r.LastActive = max(r.LastActive, remote.LastActive)
	r.Banned = r.Banned || remote.Banned
}
