// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

// Status represents the lifecycle stage of an assignment. The numeric order
// is the merge lattice: when two replicas disagree, the higher status wins.
// Completion is sticky; the only sanctioned regression is a spot-check
// reopening a completed assignment as conflicted, which happens through the
// resolver, never through a merge.
type Status uint8

const (
	Available Status = iota
	Leased
	Expired
	Conflicted
	Completed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Available:
		return "Available"
	case Leased:
		return "Leased"
	case Expired:
		return "Expired"
	case Conflicted:
		return "Conflicted"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Verified reports whether the status carries a finalized result.
func (s Status) Verified() bool {
	return s == Completed
}

// merge returns the more advanced of two statuses.
func (s Status) merge(other Status) Status {
	return max(s, other)
}
