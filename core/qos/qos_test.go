package qos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchDefaultsCompatible(t *testing.T) {
	offered := Default()
	requested := Default()
	res := Match(offered, requested)
	require.True(t, res.Compatible)
	require.Empty(t, res.Failed)
}

func TestMatchReliabilityIncompatible(t *testing.T) {
	offered := Default()
	offered.Reliability.Kind = BestEffort
	requested := Default()
	requested.Reliability.Kind = Reliable

	res := Match(offered, requested)
	require.False(t, res.Compatible)
	id, ok := res.FirstFailure()
	require.True(t, ok)
	require.Equal(t, PolicyReliability, id)
}

func TestMatchDurabilityOrdering(t *testing.T) {
	offered := Default()
	offered.Durability.Kind = Volatile
	requested := Default()
	requested.Durability.Kind = Transient

	res := Match(offered, requested)
	require.False(t, res.Compatible)
	require.Contains(t, res.Failed, PolicyDurability)

	offered.Durability.Kind = Persistent
	res = Match(offered, requested)
	require.True(t, res.Compatible)
}

func TestMatchOwnershipExactMatch(t *testing.T) {
	offered := Default()
	offered.Ownership.Kind = OwnershipExclusive
	requested := Default()
	requested.Ownership.Kind = OwnershipShared

	res := Match(offered, requested)
	require.False(t, res.Compatible)
	require.Contains(t, res.Failed, PolicyOwnership)
}

func TestMatchLivelinessAsymmetric(t *testing.T) {
	offered := Default()
	offered.Liveliness.Kind = Automatic
	offered.Liveliness.LeaseDuration = time.Second
	requested := Default()
	requested.Liveliness.Kind = ManualByTopic
	requested.Liveliness.LeaseDuration = time.Second

	res := Match(offered, requested)
	require.False(t, res.Compatible)
}

func TestMatchPartitionSymmetricIntersection(t *testing.T) {
	a := Default()
	a.Partition.Names = []string{"x", "y"}
	b := Default()
	b.Partition.Names = []string{"y", "z"}

	require.True(t, Match(a, b).Compatible)
	require.True(t, Match(b, a).Compatible)

	b.Partition.Names = []string{"z"}
	require.False(t, Match(a, b).Compatible)
	require.False(t, Match(b, a).Compatible)
}

func TestValidateInconsistentResourceLimits(t *testing.T) {
	p := Default()
	p.ResourceLimits = ResourceLimitsPolicy{MaxSamples: 2, MaxSamplesPerInstance: 5}
	require.Error(t, p.Validate())
}

func TestValidateKeepLastRequiresPositiveDepth(t *testing.T) {
	p := Default()
	p.History = HistoryPolicy{Kind: KeepLast, Depth: 0}
	require.Error(t, p.Validate())
}

func TestMultipleFailuresEnumerated(t *testing.T) {
	offered := Default()
	offered.Reliability.Kind = BestEffort
	offered.Durability.Kind = Volatile
	requested := Default()
	requested.Reliability.Kind = Reliable
	requested.Durability.Kind = Persistent

	res := Match(offered, requested)
	require.False(t, res.Compatible)
	require.Len(t, res.Failed, 2)
}
