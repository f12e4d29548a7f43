// Package qos defines the QoS policy data shapes named in RTPS spec §4.9
// and the offered/requested compatibility matcher.
package qos

import "time"

// ReliabilityKind distinguishes best-effort from reliable delivery.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// ReliabilityPolicy is the Reliability QoS policy.
type ReliabilityPolicy struct {
	Kind            ReliabilityKind
	MaxBlockingTime time.Duration
}

// DurabilityKind orders durability strength; higher values are stronger
// (spec §4.9: Volatile < TransientLocal < Transient < Persistent).
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// DurabilityPolicy is the Durability QoS policy.
type DurabilityPolicy struct {
	Kind DurabilityKind
}

// DeadlinePolicy is the Deadline QoS policy: the maximum expected period
// between updates to an instance.
type DeadlinePolicy struct {
	Period time.Duration
}

// LatencyBudgetPolicy is the LatencyBudget QoS policy.
type LatencyBudgetPolicy struct {
	Duration time.Duration
}

// OwnershipKind selects shared vs. exclusive instance ownership.
type OwnershipKind int

const (
	OwnershipShared OwnershipKind = iota
	OwnershipExclusive
)

// OwnershipPolicy is the Ownership QoS policy.
type OwnershipPolicy struct {
	Kind OwnershipKind
}

// OwnershipStrengthPolicy ranks writers under Exclusive ownership.
type OwnershipStrengthPolicy struct {
	Value int32
}

// LivelinessKind orders liveliness assertion strength; higher values are
// stronger (spec §4.9: Automatic < ManualByParticipant < ManualByTopic).
type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// LivelinessPolicy is the Liveliness QoS policy.
type LivelinessPolicy struct {
	Kind          LivelinessKind
	LeaseDuration time.Duration
}

// PresentationAccessScope orders Presentation QoS scope (spec §4.9:
// Instance < Topic < Group).
type PresentationAccessScope int

const (
	InstancePresentation PresentationAccessScope = iota
	TopicPresentation
	GroupPresentation
)

// PresentationPolicy is the Presentation QoS policy.
type PresentationPolicy struct {
	AccessScope    PresentationAccessScope
	CoherentAccess bool
	OrderedAccess  bool
}

// DestinationOrderKind orders DestinationOrder QoS strength (spec §4.9:
// ByReception < BySource).
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

// DestinationOrderPolicy is the DestinationOrder QoS policy.
type DestinationOrderPolicy struct {
	Kind DestinationOrderKind
}

// HistoryKind selects KeepLast(depth) vs KeepAll.
type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

// HistoryPolicy is the History QoS policy.
type HistoryPolicy struct {
	Kind  HistoryKind
	Depth int
}

// ResourceLimitsPolicy bounds cache admission (spec §4.2 rejection
// reasons).
type ResourceLimitsPolicy struct {
	MaxSamples             int
	MaxInstances           int
	MaxSamplesPerInstance  int
}

// Unlimited is the sentinel value meaning "no limit" for a ResourceLimits
// field.
const Unlimited = -1

// PartitionPolicy is the Partition QoS policy; matching requires a
// non-empty intersection (or both empty), and is symmetric (spec §8
// testable property 6).
type PartitionPolicy struct {
	Names []string
}

// Policies bundles every policy relevant to endpoint matching (spec §4.8:
// "every QoS policy relevant to matching").
type Policies struct {
	Reliability        ReliabilityPolicy
	Durability         DurabilityPolicy
	Deadline           DeadlinePolicy
	LatencyBudget      LatencyBudgetPolicy
	Ownership          OwnershipPolicy
	OwnershipStrength  OwnershipStrengthPolicy
	Liveliness         LivelinessPolicy
	Presentation       PresentationPolicy
	DestinationOrder   DestinationOrderPolicy
	History            HistoryPolicy
	ResourceLimits     ResourceLimitsPolicy
	Partition          PartitionPolicy
}

// Default returns the QoS default profile (best-effort, volatile,
// KeepLast(1), unlimited resources), matching the DDS specification's
// default QoS.
func Default() Policies {
	return Policies{
		Reliability:   ReliabilityPolicy{Kind: BestEffort},
		Durability:    DurabilityPolicy{Kind: Volatile},
		Liveliness:    LivelinessPolicy{Kind: Automatic, LeaseDuration: time.Duration(1<<63 - 1)},
		Presentation:  PresentationPolicy{AccessScope: InstancePresentation},
		History:       HistoryPolicy{Kind: KeepLast, Depth: 1},
		ResourceLimits: ResourceLimitsPolicy{MaxSamples: Unlimited, MaxInstances: Unlimited, MaxSamplesPerInstance: Unlimited},
	}
}

// Validate enforces intra-set QoS constraints (spec §7:
// InconsistentPolicy), e.g. resource_limits.max_samples_per_instance must
// not exceed max_samples, and KeepLast requires a positive depth.
func (p Policies) Validate() error {
	rl := p.ResourceLimits
	if rl.MaxSamplesPerInstance != Unlimited && rl.MaxSamples != Unlimited &&
		rl.MaxSamplesPerInstance > rl.MaxSamples {
		return errInconsistentResourceLimits
	}
	if p.History.Kind == KeepLast && p.History.Depth <= 0 {
		return errInconsistentHistoryDepth
	}
	return nil
}
