package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/rtps/history"
)

func TestReaderProxyNextUnsentChange(t *testing.T) {
	cache := history.NewWriterCache()
	cache.Add(&history.CacheChange{SequenceNumber: 1})
	cache.Add(&history.CacheChange{SequenceNumber: 2})

	rp := NewReaderProxy(types.GUID{}, true, types.SequenceNumberUnknown)

	n, ok := rp.NextUnsentChange(cache)
	require.True(t, ok)
	require.EqualValues(t, 1, n)

	n, ok = rp.NextUnsentChange(cache)
	require.True(t, ok)
	require.EqualValues(t, 2, n)

	_, ok = rp.NextUnsentChange(cache)
	require.False(t, ok)
}

func TestReaderProxyAckedChangesSetMonotonic(t *testing.T) {
	rp := NewReaderProxy(types.GUID{}, true, types.SequenceNumberUnknown)
	rp.AckedChangesSet(5)
	rp.AckedChangesSet(3)
	require.EqualValues(t, 5, rp.HighestAcked())
}

func TestReaderProxyRequestedChangesFIFOByValue(t *testing.T) {
	rp := NewReaderProxy(types.GUID{}, true, types.SequenceNumberUnknown)
	set := types.SequenceNumberSet{Base: 1, Set: map[types.SequenceNumber]struct{}{3: {}, 1: {}, 2: {}}}
	rp.RequestedChangesSet(set)

	require.True(t, rp.HasRequestedChanges())
	first, ok := rp.NextRequestedChange()
	require.True(t, ok)
	require.EqualValues(t, 1, first)
	second, ok := rp.NextRequestedChange()
	require.True(t, ok)
	require.EqualValues(t, 2, second)
}

func TestReaderProxyUnackedChanges(t *testing.T) {
	rp := NewReaderProxy(types.GUID{}, true, types.SequenceNumberUnknown)
	require.True(t, rp.UnackedChanges(5))
	rp.AckedChangesSet(5)
	require.False(t, rp.UnackedChanges(5))
}

func TestHeartbeatMachineDueAfterPeriod(t *testing.T) {
	hb := &HeartbeatMachine{}
	now := time.Now()
	require.True(t, hb.IsDue(now, time.Second)) // never sent -> zero-value lastHeartbeat is long ago
	hb.NextCount(now)
	require.False(t, hb.IsDue(now.Add(100*time.Millisecond), time.Second))
	require.True(t, hb.IsDue(now.Add(2*time.Second), time.Second))
}

func TestHeartbeatMachineTriggerForcesDue(t *testing.T) {
	hb := &HeartbeatMachine{}
	now := time.Now()
	hb.NextCount(now)
	require.False(t, hb.IsDue(now, time.Hour))
	hb.Trigger()
	require.True(t, hb.IsDue(now, time.Hour))
}

func TestWriterProxyReceivedAndMissing(t *testing.T) {
	wp := NewWriterProxy(types.GUID{})
	wp.ReceivedChangeSet(1)
	wp.ReceivedChangeSet(3)
	wp.MissingChangesUpdate(3)

	missing := wp.MissingChanges()
	require.Equal(t, []types.SequenceNumber{2}, missing)
	require.EqualValues(t, 1, wp.AvailableChangesMax())
}

func TestWriterProxyIrrelevantClosesGap(t *testing.T) {
	wp := NewWriterProxy(types.GUID{})
	wp.ReceivedChangeSet(1)
	wp.IrrelevantChangeSet(2)
	wp.ReceivedChangeSet(3)

	require.Empty(t, wp.MissingChanges())
	require.EqualValues(t, 3, wp.AvailableChangesMax())
}

func TestWriterProxyLostChangesUpdate(t *testing.T) {
	wp := NewWriterProxy(types.GUID{})
	wp.MissingChangesUpdate(5)
	wp.ReceivedChangeSet(4)

	wp.LostChangesUpdate(4) // 1,2,3 declared lost by the writer
	require.EqualValues(t, 4, wp.AvailableChangesMax())
}

func TestWriterProxyAckNackCountMonotonic(t *testing.T) {
	wp := NewWriterProxy(types.GUID{})
	c1 := wp.NextAckNackCount()
	c2 := wp.NextAckNackCount()
	require.Less(t, uint32(c1), uint32(c2))
}
