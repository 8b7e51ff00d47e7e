// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reputation

// Tier is a worker's trust category. It is derived from the worker's score
// (and ban flag) whenever it is needed, never stored, so score and tier
// cannot drift apart.
type Tier uint8

const (
	Untrusted Tier = iota
	Verified
	Trusted
	Elite
	Banned
)

const (
	// ScoreCap bounds how much accumulated trust a single worker can hold.
	ScoreCap = 10_000

	scoreVerified = 10
	scoreTrusted  = 100
	scoreElite    = 1_000

	// bannedConfirmations can never be satisfied. Banned workers are
	// discarded before quorum computation, so this value only matters if a
	// contributor is banned after its proof was counted.
	bannedConfirmations = 999
)

// TierFromScore maps a reputation score to a trust tier.
func TierFromScore(score uint32) Tier {
	switch {
	case score >= scoreElite:
		return Elite
	case score >= scoreTrusted:
		return Trusted
	case score >= scoreVerified:
		return Verified
	default:
		return Untrusted
	}
}

// Confirmations returns the number of independent matching proofs an
// assignment needs when this tier is its least trusted contributor.
func (t Tier) Confirmations() int {
	switch t {
	case Elite:
		return 1
	case Trusted:
		return 2
	case Verified:
		return 3
	case Banned:
		return bannedConfirmations
	default:
		return 5
	}
}

// SpotCheckRate returns the fraction of this tier's finalized assignments
// that are re-verified by independent workers after completion.
func (t Tier) SpotCheckRate() float64 {
	switch t {
	case Elite:
		return 0.02
	case Trusted:
		return 0.05
	case Verified:
		return 0.10
	case Banned:
		return 0
	default:
		return 1
	}
}

func (t Tier) String() string {
	switch t {
	case Untrusted:
		return "Untrusted"
	case Verified:
		return "Verified"
	case Trusted:
		return "Trusted"
	case Elite:
		return "Elite"
	case Banned:
		return "Banned"
	default:
		return "Unknown"
	}
}
