package writer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/proxy"
)

func TestStatefulWriterBestEffortSendsEveryChangeOnce(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.BestEffort}, cache, time.Second,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })

	rp := proxy.NewReaderProxy(types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}, false, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)

	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("a"))
	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("b"))

	w.SendPendingBestEffort()
	require.Len(t, sent, 2)

	// A second call with no new changes sends nothing further.
	w.SendPendingBestEffort()
	require.Len(t, sent, 2)
}

func TestStatefulWriterReliableHeartbeatDue(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Millisecond,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })

	rp := proxy.NewReaderProxy(types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)
	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("a"))

	now := time.Now()
	w.SendPendingReliable(now)

	foundData, foundHeartbeat := false, false
	for _, sm := range sent {
		switch sm.ID {
		case wire.SubmessageIDData:
			foundData = true
		case wire.SubmessageIDHeartbeat:
			foundHeartbeat = true
		}
	}
	require.True(t, foundData)
	require.True(t, foundHeartbeat)
}

func TestStatefulWriterHeartbeatFinalReflectsUnackedChanges(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Millisecond,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })

	readerGuid := types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}
	rp := proxy.NewReaderProxy(readerGuid, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)
	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("a"))

	w.SendPendingReliable(time.Now())
	hb := lastHeartbeat(t, sent)
	require.False(t, hb.Final, "unacked change outstanding, Final must be clear")

	rp.AckedChangesSet(1)
	rp.Heartbeat.Trigger()
	sent = nil
	w.SendPendingReliable(time.Now())
	hb = lastHeartbeat(t, sent)
	require.True(t, hb.Final, "everything acked, Final must be set")
}

func lastHeartbeat(t *testing.T, sent []wire.Submessage) wire.HeartbeatBody {
	t.Helper()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].ID == wire.SubmessageIDHeartbeat {
			hb, err := wire.DecodeHeartbeat(sent[i])
			require.NoError(t, err)
			return hb
		}
	}
	t.Fatal("no heartbeat sent")
	return wire.HeartbeatBody{}
}

func TestStatefulWriterHandleAckNackRetransmitsRequested(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Hour,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })

	readerGuid := types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}
	rp := proxy.NewReaderProxy(readerGuid, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)
	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("a"))
	w.SendPendingReliable(time.Now())
	sent = nil

	set := types.NewSequenceNumberSet(1)
	set.Add(1)
	w.HandleAckNack(readerGuid, wire.AckNackBody{ReaderSNState: set, Count: 1, Final: false})
	w.SendPendingReliable(time.Now())

	foundData := false
	for _, sm := range sent {
		if sm.ID == wire.SubmessageIDData {
			foundData = true
		}
	}
	require.True(t, foundData)
}

func TestStatefulWriterHandleAckNackIgnoresStaleCount(t *testing.T) {
	cache := history.NewWriterCache()
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Hour,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) {})

	readerGuid := types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}
	rp := proxy.NewReaderProxy(readerGuid, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)

	set := types.NewSequenceNumberSet(1)
	w.HandleAckNack(readerGuid, wire.AckNackBody{ReaderSNState: set, Count: 5, Final: true})
	require.EqualValues(t, 5, rp.LastReceivedAckNackCount)

	w.HandleAckNack(readerGuid, wire.AckNackBody{ReaderSNState: set, Count: 5, Final: true})
	require.EqualValues(t, 5, rp.LastReceivedAckNackCount)

	w.HandleAckNack(readerGuid, wire.AckNackBody{ReaderSNState: set, Count: 3, Final: true})
	require.EqualValues(t, 5, rp.LastReceivedAckNackCount)
}

func TestStatefulWriterFragmentsLargeChangeAndPacesWithHeartbeatFrag(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Hour,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })
	w.SetFragmentSize(4)
	require.Equal(t, 4, w.FragmentSize())

	readerGuid := types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}
	rp := proxy.NewReaderProxy(readerGuid, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)

	payload := []byte("twelve-bytes") // 12 bytes, 3 fragments of 4
	w.NewChange(history.Alive, types.InstanceHandle{}, payload)
	w.SendPendingReliable(time.Now())

	var frags []wire.DataFragBody
	var hbFrag *wire.HeartbeatFragBody
	for _, sm := range sent {
		switch sm.ID {
		case wire.SubmessageIDDataFrag:
			body, err := wire.DecodeDataFrag(sm)
			require.NoError(t, err)
			frags = append(frags, body)
		case wire.SubmessageIDHeartbeatFrag:
			body, err := wire.DecodeHeartbeatFrag(sm)
			require.NoError(t, err)
			hbFrag = &body
		case wire.SubmessageIDData:
			t.Fatal("change exceeding FragmentSize must never be sent as a single DATA")
		}
	}
	require.Len(t, frags, 3)
	require.NotNil(t, hbFrag)
	require.EqualValues(t, 3, hbFrag.LastFragmentNum)

	reassembled := append(append([]byte{}, frags[0].FragmentData...), frags[1].FragmentData...)
	reassembled = append(reassembled, frags[2].FragmentData...)
	require.Equal(t, payload, reassembled)
}

func TestStatefulWriterHandleNackFragRetransmitsOnlyRequestedFragments(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Hour,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })
	w.SetFragmentSize(4)

	readerGuid := types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}
	rp := proxy.NewReaderProxy(readerGuid, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)

	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("twelve-bytes"))
	w.SendPendingReliable(time.Now())
	sent = nil

	missing := wire.NewFragmentNumberSet(1)
	missing.Add(2)
	w.HandleNackFrag(readerGuid, wire.NackFragBody{WriterSN: 1, FragmentNumberState: missing, Count: 1})

	require.Len(t, sent, 1)
	require.Equal(t, wire.SubmessageIDDataFrag, sent[0].ID)
	body, err := wire.DecodeDataFrag(sent[0])
	require.NoError(t, err)
	require.EqualValues(t, 2, body.FragmentStartingNum)
}

func TestStatefulWriterNackResponseDelayDefersRetransmission(t *testing.T) {
	cache := history.NewWriterCache()
	var sent []wire.Submessage
	w := NewStatefulWriter(types.GUID{}, qos.ReliabilityPolicy{Kind: qos.Reliable}, cache, time.Hour,
		func(rp *proxy.ReaderProxy, sm wire.Submessage) { sent = append(sent, sm) })
	w.SetNackTiming(50*time.Millisecond, 0)

	readerGuid := types.GUID{Entity: types.EntityId{Key: [3]byte{1}}}
	rp := proxy.NewReaderProxy(readerGuid, true, types.SequenceNumberUnknown)
	w.MatchedReaderAdd(rp)
	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("a"))
	w.SendPendingReliable(time.Now())
	sent = nil

	set := types.NewSequenceNumberSet(1)
	set.Add(1)
	now := time.Now()
	w.HandleAckNack(readerGuid, wire.AckNackBody{ReaderSNState: set, Count: 1, Final: false})

	// The response isn't due yet: a tick arriving before the configured
	// delay must not retransmit.
	w.SendPendingReliable(now.Add(10 * time.Millisecond))
	for _, sm := range sent {
		require.NotEqual(t, wire.SubmessageIDData, sm.ID, "retransmission before nack_response_delay elapsed")
	}

	w.SendPendingReliable(now.Add(60 * time.Millisecond))
	foundData := false
	for _, sm := range sent {
		if sm.ID == wire.SubmessageIDData {
			foundData = true
		}
	}
	require.True(t, foundData, "retransmission once nack_response_delay has elapsed")
}

func TestStatelessWriterBroadcastsToAllLocators(t *testing.T) {
	cache := history.NewWriterCache()
	type sentTo struct {
		loc types.Locator
		sm  wire.Submessage
	}
	var sent []sentTo
	locs := []types.Locator{
		types.NewLocatorUDPv4(net.IPv4(239, 255, 0, 1), 7400),
		types.NewLocatorUDPv4(net.IPv4(239, 255, 0, 2), 7400),
	}
	w := NewStatelessWriter(types.GUID{}, cache, locs, func(loc types.Locator, sm wire.Submessage) {
		sent = append(sent, sentTo{loc, sm})
	})

	w.NewChange(history.Alive, types.InstanceHandle{}, []byte("spdp"))
	w.SendPending(types.EntityId{})

	require.Len(t, sent, 2)
}
