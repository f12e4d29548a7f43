package qos

import (
	"errors"
	"time"
)

// infiniteDuration is the DDS INFINITE sentinel: a zero-value Period or
// LatencyBudget.Duration means "no bound", not "zero".
const infiniteDuration = time.Duration(1<<63 - 1)

func effective(d time.Duration) time.Duration {
	if d == 0 {
		return infiniteDuration
	}
	return d
}

var (
	errInconsistentResourceLimits = errors.New("qos: max_samples_per_instance exceeds max_samples")
	errInconsistentHistoryDepth   = errors.New("qos: KeepLast requires depth > 0")
)

// PolicyID names a QoS policy for status reporting (spec §4.9: "surface
// the first failing policy id ... enumerate all failing ids").
type PolicyID int

const (
	PolicyReliability PolicyID = iota
	PolicyDurability
	PolicyDeadline
	PolicyLatencyBudget
	PolicyOwnership
	PolicyLiveliness
	PolicyPresentation
	PolicyDestinationOrder
	PolicyPartition
)

func (p PolicyID) String() string {
	switch p {
	case PolicyReliability:
		return "Reliability"
	case PolicyDurability:
		return "Durability"
	case PolicyDeadline:
		return "Deadline"
	case PolicyLatencyBudget:
		return "LatencyBudget"
	case PolicyOwnership:
		return "Ownership"
	case PolicyLiveliness:
		return "Liveliness"
	case PolicyPresentation:
		return "Presentation"
	case PolicyDestinationOrder:
		return "DestinationOrder"
	case PolicyPartition:
		return "Partition"
	default:
		return "Unknown"
	}
}

// MatchResult is the outcome of Match: either compatible, or a list of the
// policy ids that failed, in evaluation order (the first is the one a
// synchronous single-policy-id status field would report).
type MatchResult struct {
	Compatible bool
	Failed     []PolicyID
}

// FirstFailure returns the first failing policy id, used for the
// single-id OfferedIncompatibleQos/RequestedIncompatibleQos status field
// (spec §4.9).
func (r MatchResult) FirstFailure() (PolicyID, bool) {
	if len(r.Failed) == 0 {
		return 0, false
	}
	return r.Failed[0], true
}

// Match implements the offered/requested compatibility rule set (spec
// §4.9). offered is the writer's QoS, requested is the reader's.
func Match(offered, requested Policies) MatchResult {
	var failed []PolicyID

	// Reliability: requested Reliable requires offered Reliable.
	if requested.Reliability.Kind == Reliable && offered.Reliability.Kind != Reliable {
		failed = append(failed, PolicyReliability)
	}

	// Durability: offered_kind >= requested_kind.
	if offered.Durability.Kind < requested.Durability.Kind {
		failed = append(failed, PolicyDurability)
	}

	// Deadline: offered.period <= requested.period.
	if effective(offered.Deadline.Period) > effective(requested.Deadline.Period) {
		failed = append(failed, PolicyDeadline)
	}

	// LatencyBudget: offered <= requested.
	if effective(offered.LatencyBudget.Duration) > effective(requested.LatencyBudget.Duration) {
		failed = append(failed, PolicyLatencyBudget)
	}

	// Ownership kind must match exactly (symmetric policy, spec §8
	// property 6).
	if offered.Ownership.Kind != requested.Ownership.Kind {
		failed = append(failed, PolicyOwnership)
	}

	// Liveliness: offered_kind >= requested_kind AND
	// offered.lease_duration <= requested.lease_duration.
	if offered.Liveliness.Kind < requested.Liveliness.Kind ||
		effective(offered.Liveliness.LeaseDuration) > effective(requested.Liveliness.LeaseDuration) {
		failed = append(failed, PolicyLiveliness)
	}

	// Presentation: offered >= requested along the access-scope lattice,
	// plus exact match on coherent_access/ordered_access.
	if offered.Presentation.AccessScope < requested.Presentation.AccessScope ||
		offered.Presentation.CoherentAccess != requested.Presentation.CoherentAccess ||
		offered.Presentation.OrderedAccess != requested.Presentation.OrderedAccess {
		failed = append(failed, PolicyPresentation)
	}

	// DestinationOrder: offered_kind >= requested_kind.
	if offered.DestinationOrder.Kind < requested.DestinationOrder.Kind {
		failed = append(failed, PolicyDestinationOrder)
	}

	// Partition: symmetric; compatible iff both are unpartitioned or they
	// share at least one partition name.
	if !partitionsCompatible(offered.Partition, requested.Partition) {
		failed = append(failed, PolicyPartition)
	}

	return MatchResult{Compatible: len(failed) == 0, Failed: failed}
}

func partitionsCompatible(a, b PartitionPolicy) bool {
	if len(a.Names) == 0 && len(b.Names) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a.Names))
	for _, n := range a.Names {
		set[n] = struct{}{}
	}
	for _, n := range b.Names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}
