package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
)

func TestWriterCacheMinMax(t *testing.T) {
	c := NewWriterCache()
	require.Equal(t, types.SequenceNumberUnknown, c.MinSeq())
	c.Add(&CacheChange{SequenceNumber: 1})
	c.Add(&CacheChange{SequenceNumber: 2})
	c.Add(&CacheChange{SequenceNumber: 3})
	require.EqualValues(t, 1, c.MinSeq())
	require.EqualValues(t, 3, c.MaxSeq())
	require.Equal(t, 3, c.Len())

	c.RemoveIf(func(ch *CacheChange) bool { return ch.SequenceNumber <= 1 })
	require.EqualValues(t, 2, c.MinSeq())
	require.Equal(t, 2, c.Len())
}

func TestWriterCacheIterRange(t *testing.T) {
	c := NewWriterCache()
	for i := types.SequenceNumber(1); i <= 5; i++ {
		c.Add(&CacheChange{SequenceNumber: i})
	}
	got := c.IterBySeqRange(2, 4)
	require.Len(t, got, 3)
}

func sampleHandle(b byte) types.InstanceHandle {
	var h types.InstanceHandle
	h[0] = b
	return h
}

func TestReaderCacheKeepLastDepth(t *testing.T) {
	c := NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepLast, Depth: 2}, qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	h := sampleHandle(1)
	for i := types.SequenceNumber(1); i <= 3; i++ {
		ok, _ := c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: i, Timestamp: time.Now()})
		require.True(t, ok)
	}
	samples := c.Read(Filter{})
	require.Len(t, samples, 2)
	require.EqualValues(t, 2, samples[0].Change.SequenceNumber)
	require.EqualValues(t, 3, samples[1].Change.SequenceNumber)
}

func TestReaderCacheSamplesLimitRejected(t *testing.T) {
	c := NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepAll}, qos.ResourceLimitsPolicy{MaxSamples: 2, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	h := sampleHandle(1)
	ok1, _ := c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: 1})
	ok2, _ := c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: 2})
	ok3, reason3 := c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: 3})
	require.True(t, ok1)
	require.True(t, ok2)
	require.False(t, ok3)
	require.Equal(t, RejectedBySamplesLimit, reason3)

	samples := c.Read(Filter{})
	require.LessOrEqual(t, len(samples), 2)
}

func TestReaderCacheDisposeTransitionsInstanceState(t *testing.T) {
	c := NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepAll}, qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	h := sampleHandle(1)
	c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: 1})
	c.TryAdd(&CacheChange{Kind: NotAliveDisposed, InstanceHandle: h, SequenceNumber: 2})

	samples := c.Read(Filter{})
	require.Len(t, samples, 2)
	for _, inst := range c.Instances() {
		require.Equal(t, InstanceNotAliveDisposed, inst.State)
	}
}

func TestReaderCacheViewStateNewOnFirstSample(t *testing.T) {
	c := NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepAll}, qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	h := sampleHandle(1)
	c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: 1})

	samples := c.Read(Filter{})
	require.Len(t, samples, 1)
	require.Equal(t, New, samples[0].ViewState)

	// Reading again should now show NotNew, since Read transitions it.
	samples2 := c.Read(Filter{})
	require.Equal(t, NotNew, samples2[0].ViewState)
}

func TestReadReturnsSamplesInWriteOrderAcrossInstances(t *testing.T) {
	c := NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepAll}, qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	base := time.Now()
	// Three different keyed instances, written in order 1, 2, 3; map
	// iteration over c.instances must not be allowed to reorder them.
	for i, b := range []byte{1, 2, 3} {
		c.TryAdd(&CacheChange{
			Kind:           Alive,
			InstanceHandle: sampleHandle(b),
			SequenceNumber: types.SequenceNumber(i + 1),
			Timestamp:      base.Add(time.Duration(i) * time.Millisecond),
		})
	}

	samples := c.Read(Filter{})
	require.Len(t, samples, 3)
	require.EqualValues(t, 1, samples[0].Change.SequenceNumber)
	require.EqualValues(t, 2, samples[1].Change.SequenceNumber)
	require.EqualValues(t, 3, samples[2].Change.SequenceNumber)
}

func TestTakeRemovesFromCache(t *testing.T) {
	c := NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepAll}, qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	h := sampleHandle(1)
	c.TryAdd(&CacheChange{Kind: Alive, InstanceHandle: h, SequenceNumber: 1})

	taken := c.Take(Filter{})
	require.Len(t, taken, 1)
	require.Empty(t, c.Read(Filter{}))
}
