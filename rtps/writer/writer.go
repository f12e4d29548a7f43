// Package writer implements the StatefulWriter and StatelessWriter RTPS
// endpoint behaviors (spec §4.4): new-change admission, per-reader output
// scheduling, and ACKNACK-driven retransmission for the reliable case.
package writer

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/proxy"
)

// defaultOrder is the byte order this module emits submessages in. RTPS
// allows either; this module uses network byte order throughout.
var defaultOrder binary.ByteOrder = binary.BigEndian

// Sender is the transport-facing callback a writer uses to hand off a
// submessage addressed to a specific reader proxy. Writers don't know
// about sockets; they know about reader proxies and submessages (spec
// §4.4/§4.6 separation of concerns).
type Sender func(rp *proxy.ReaderProxy, sm wire.Submessage)

// StatefulWriter tracks a set of matched ReaderProxy instances and drives
// reliable or best-effort delivery to them from a WriterCache (spec §4.4).
type StatefulWriter struct {
	mu sync.Mutex

	Guid   types.GUID
	Policy qos.ReliabilityPolicy
	Cache  *history.WriterCache

	readers map[types.GUID]*proxy.ReaderProxy

	heartbeatPeriod time.Duration
	send            Sender

	// fragmentSize is the maximum payload this writer puts in one
	// DATAFRAG fragment. 0 disables fragmentation: a change exceeding it
	// is still sent as a single DATA (spec §8 boundary rule is enforced
	// upstream, at ddsapi Write time, where MTU is known).
	fragmentSize int

	// nackResponseDelay/nackSuppressionDuration pace retransmission of a
	// reader proxy's requested changes per its proxy.DelayMachine (spec
	// §4.3). Both default to zero, reproducing the previous behavior:
	// service a non-final ACKNACK's requests on the very next
	// SendPendingReliable call.
	nackResponseDelay      time.Duration
	nackSuppressionDuration time.Duration

	// OnHeartbeatSent and OnAckNackHandled, when set, let an owning
	// participant layer count protocol traffic (e.g. into prometheus
	// metrics) without this package knowing anything about metrics.
	OnHeartbeatSent  func()
	OnAckNackHandled func()
}

// NewStatefulWriter constructs a StatefulWriter for guid, backed by
// cache, emitting submessages via send.
func NewStatefulWriter(guid types.GUID, policy qos.ReliabilityPolicy, cache *history.WriterCache, heartbeatPeriod time.Duration, send Sender) *StatefulWriter {
	return &StatefulWriter{
		Guid:            guid,
		Policy:          policy,
		Cache:           cache,
		readers:         make(map[types.GUID]*proxy.ReaderProxy),
		heartbeatPeriod: heartbeatPeriod,
		send:            send,
	}
}

// SetFragmentSize configures the maximum DATAFRAG fragment payload this
// writer emits for changes whose data exceeds it. Participants derive n
// from the transport MTU (spec §8).
func (w *StatefulWriter) SetFragmentSize(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fragmentSize = n
}

// FragmentSize returns the configured maximum DATAFRAG fragment payload,
// or 0 if fragmentation is disabled.
func (w *StatefulWriter) FragmentSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fragmentSize
}

// SetNackTiming configures how long this writer waits before servicing a
// non-final ACKNACK's requested changes, and how long it then ignores
// further non-final ACKNACKs from the same reader (spec §4.3
// nack_response_delay/nack_suppression_duration). Participants derive
// both from config.QoSDefaults.
func (w *StatefulWriter) SetNackTiming(responseDelay, suppressionDuration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nackResponseDelay = responseDelay
	w.nackSuppressionDuration = suppressionDuration
}

// MatchedReaderAdd registers rp as a newly matched reader proxy (spec
// §4.3/§4.4 endpoint-matching contract; QoS compatibility is checked
// upstream in discovery/SEDP before this is called).
func (w *StatefulWriter) MatchedReaderAdd(rp *proxy.ReaderProxy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readers[rp.RemoteReaderGuid] = rp
}

// MatchedReaderRemove unregisters a reader proxy, e.g. on unmatch.
func (w *StatefulWriter) MatchedReaderRemove(guid types.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.readers, guid)
}

// MatchedReader returns the reader proxy for guid, if matched.
func (w *StatefulWriter) MatchedReader(guid types.GUID) (*proxy.ReaderProxy, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rp, ok := w.readers[guid]
	return rp, ok
}

// MatchedReaders returns a stable snapshot of currently matched proxies,
// e.g. for discovery to sweep every proxy belonging to a departed
// participant (spec §4.7/§4.8 unmatch-on-lease-expiry).
func (w *StatefulWriter) MatchedReaders() []*proxy.ReaderProxy {
	return w.matchedReaders()
}

// matchedReaders returns a stable snapshot of currently matched proxies.
func (w *StatefulWriter) matchedReaders() []*proxy.ReaderProxy {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*proxy.ReaderProxy, 0, len(w.readers))
	for _, rp := range w.readers {
		out = append(out, rp)
	}
	return out
}

// NewChange appends change to the writer's history cache, assigning it
// the next sequence number (spec §4.4 new_change operation). The caller
// supplies everything but the sequence number. It returns
// ddserror.OutOfResources, unwrapped, if the cache's ResourceLimits
// reject the add, and otherwise enforces a KeepLast History depth by
// evicting the oldest surplus changes from the cache (spec §4.2).
func (w *StatefulWriter) NewChange(kind history.ChangeKind, handle types.InstanceHandle, data []byte) (*history.CacheChange, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.Cache.AssignNext()
	change := &history.CacheChange{
		Kind:           kind,
		WriterGuid:     w.Guid,
		InstanceHandle: handle,
		SequenceNumber: seq,
		Timestamp:      time.Now(),
		DataValue:      data,
	}
	if err := w.Cache.Add(change); err != nil {
		return nil, err
	}

	if hp := w.Cache.HistoryPolicy(); hp.Kind == qos.KeepLast {
		floor := seq - types.SequenceNumber(hp.Depth)
		w.Cache.RemoveIf(func(ch *history.CacheChange) bool {
			return ch.SequenceNumber <= floor
		})
	}
	return change, nil
}

// ReclaimAcknowledged purges every change every matched reliable reader
// has already acknowledged, bounding a Reliable writer's cache growth
// over the life of the process (spec §4.2). Best-effort readers never
// acknowledge, so they're excluded from the floor; a writer with no
// reliable readers matched reclaims nothing.
func (w *StatefulWriter) ReclaimAcknowledged() {
	floor := types.SequenceNumberUnknown
	haveReliable := false
	for _, rp := range w.matchedReaders() {
		if !rp.Reliable {
			continue
		}
		acked := rp.HighestAcked()
		if !haveReliable || acked < floor {
			floor = acked
		}
		haveReliable = true
	}
	if !haveReliable {
		return
	}
	w.Cache.RemoveIf(func(ch *history.CacheChange) bool {
		return ch.SequenceNumber <= floor
	})
}

// dataSubmessageFor builds the DATA submessage for a cached change
// addressed to rp's remote reader entity.
//
// The reader id always comes from rp.RemoteReaderGuid, never from a
// caller-supplied constant: for a matched reader, that is by
// construction the real entity id the remote side registered its
// DataHandler under (for builtin SEDP/SPDP endpoints this is one of
// the well-known entity ids shared by every participant; for
// user-defined endpoints it's whatever SEDP discovered). Stamping
// anything else — in particular ENTITYID_UNKNOWN — would make the
// remote MessageReceiver's exact-match dispatch drop the submessage.
func dataSubmessageFor(change *history.CacheChange, rp *proxy.ReaderProxy, writerID types.EntityId) wire.Submessage {
	body := wire.DataBody{
		ReaderID:     rp.RemoteReaderGuid.Entity,
		WriterID:     writerID,
		WriterSeqNum: change.SequenceNumber,
		HasData:      change.Kind == history.Alive,
		HasKey:       change.Kind != history.Alive,
	}
	if body.HasData || body.HasKey {
		body.SerializedPayload = change.DataValue
	}
	return wire.EncodeData(defaultOrder, body)
}

// sendChange hands change to rp, splitting it into a DATAFRAG series
// paced by a trailing HEARTBEAT_FRAG when it exceeds the configured
// FragmentSize, or sending it as a single DATA otherwise (spec §4.4 item
// 4 "emit DATAFRAG series and pace with HEARTBEAT_FRAG"). Dispose/unregister
// changes carry no payload worth fragmenting regardless of size.
func (w *StatefulWriter) sendChange(rp *proxy.ReaderProxy, change *history.CacheChange, writerID types.EntityId, now time.Time) {
	fragSize := w.FragmentSize()
	if fragSize <= 0 || change.Kind != history.Alive || len(change.DataValue) <= fragSize {
		w.send(rp, dataSubmessageFor(change, rp, writerID))
		return
	}
	w.sendDataFrag(rp, change, writerID, fragSize, now)
}

// sendDataFrag splits change.DataValue into fragSize-byte DATAFRAG
// submessages and follows the series with one HEARTBEAT_FRAG naming the
// last fragment number, so the reader can NACKFRAG whatever didn't
// arrive (spec §4.4 item 4, §4.5 "DATAFRAG handling").
func (w *StatefulWriter) sendDataFrag(rp *proxy.ReaderProxy, change *history.CacheChange, writerID types.EntityId, fragSize int, now time.Time) {
	data := change.DataValue
	total := (len(data) + fragSize - 1) / fragSize
	for i := 0; i < total; i++ {
		start := i * fragSize
		end := start + fragSize
		if end > len(data) {
			end = len(data)
		}
		body := wire.DataFragBody{
			ReaderID:              rp.RemoteReaderGuid.Entity,
			WriterID:              writerID,
			WriterSeqNum:          change.SequenceNumber,
			FragmentStartingNum:   uint32(i + 1),
			FragmentsInSubmessage: 1,
			FragmentSize:          uint16(fragSize),
			SampleSize:            uint32(len(data)),
			FragmentData:          data[start:end],
		}
		w.send(rp, wire.EncodeDataFrag(defaultOrder, body))
	}
	hbBody := wire.HeartbeatFragBody{
		ReaderID:        rp.RemoteReaderGuid.Entity,
		WriterID:        writerID,
		WriterSN:        change.SequenceNumber,
		LastFragmentNum: uint32(total),
		Count:           rp.Heartbeat.NextCount(now),
	}
	w.send(rp, wire.EncodeHeartbeatFrag(defaultOrder, hbBody))
}

// HandleNackFrag retransmits only the fragment numbers body names,
// instead of the whole sample, in response to a NACKFRAG from a reader
// still missing part of a DATAFRAG series (spec §4.5).
func (w *StatefulWriter) HandleNackFrag(readerGuid types.GUID, body wire.NackFragBody) {
	rp, ok := w.MatchedReader(readerGuid)
	if !ok {
		return
	}
	change, found := w.Cache.Get(body.WriterSN)
	if !found {
		w.sendGap(rp, body.WriterSN, body.WriterID)
		return
	}
	fragSize := w.FragmentSize()
	if fragSize <= 0 {
		fragSize = len(change.DataValue)
	}
	data := change.DataValue
	for _, n := range body.FragmentNumberState.Sorted() {
		start := int(n-1) * fragSize
		if start >= len(data) {
			continue
		}
		end := start + fragSize
		if end > len(data) {
			end = len(data)
		}
		frag := wire.DataFragBody{
			ReaderID:              rp.RemoteReaderGuid.Entity,
			WriterID:              body.WriterID,
			WriterSeqNum:          change.SequenceNumber,
			FragmentStartingNum:   n,
			FragmentsInSubmessage: 1,
			FragmentSize:          uint16(fragSize),
			SampleSize:            uint32(len(data)),
			FragmentData:          data[start:end],
		}
		w.send(rp, wire.EncodeDataFrag(defaultOrder, frag))
	}
}

// SendPendingBestEffort pushes every unsent change to every matched
// reader without waiting for acknowledgment, and never retains changes
// for retransmission (spec §4.4 best-effort StatefulWriter behavior).
func (w *StatefulWriter) SendPendingBestEffort() {
	writerID := w.Guid.Entity
	now := time.Now()
	for _, rp := range w.matchedReaders() {
		max := w.Cache.MaxSeq()
		for {
			n, ok := rp.NextUnsentChange(w.Cache)
			if !ok {
				break
			}
			change, found := w.Cache.Get(n)
			if !found {
				continue // purged before send; best-effort drops it silently
			}
			w.sendChange(rp, change, writerID, now)
			rp.AdvanceHighestSent(n)
			if n >= max {
				break
			}
		}
	}
}

// SendPendingReliable pushes unsent and requested changes to every
// matched reader, and emits a HEARTBEAT once the reader's heartbeat
// period has elapsed or a retransmission was just triggered (spec §4.4
// reliable StatefulWriter behavior).
func (w *StatefulWriter) SendPendingReliable(now time.Time) {
	writerID := w.Guid.Entity
	for _, rp := range w.matchedReaders() {
		for {
			n, ok := rp.NextUnsentChange(w.Cache)
			if !ok {
				break
			}
			change, found := w.Cache.Get(n)
			if !found {
				// Already gone from the cache: tell the reader it's
				// irrelevant instead of silently skipping (spec §4.5 GAP
				// contract).
				w.sendGap(rp, n, writerID)
				continue
			}
			w.sendChange(rp, change, writerID, now)
		}
		if rp.HasRequestedChanges() && rp.Nack.Due(now) {
			for rp.HasRequestedChanges() {
				n, ok := rp.NextRequestedChange()
				if !ok {
					break
				}
				change, found := w.Cache.Get(n)
				if !found {
					w.sendGap(rp, n, writerID)
					continue
				}
				w.sendChange(rp, change, writerID, now)
			}
		}
		if rp.Heartbeat.IsDue(now, w.heartbeatPeriod) {
			w.sendHeartbeat(rp, now, writerID)
		}
	}
	w.ReclaimAcknowledged()
}

func (w *StatefulWriter) sendHeartbeat(rp *proxy.ReaderProxy, now time.Time, writerID types.EntityId) {
	count := rp.Heartbeat.NextCount(now)
	body := wire.HeartbeatBody{
		ReaderID: rp.RemoteReaderGuid.Entity,
		WriterID: writerID,
		First:    w.Cache.MinSeq(),
		Last:     w.Cache.MaxSeq(),
		Count:    count,
		// Final clear asks the reader to respond; set once it has nothing
		// outstanding to acknowledge (spec §4.4 Final-flag rule).
		Final: !rp.UnackedChanges(w.Cache.MaxSeq()),
	}
	if body.First == types.SequenceNumberUnknown {
		body.First = 1
	}
	sm := wire.EncodeHeartbeat(defaultOrder, body)
	w.send(rp, sm)
	if w.OnHeartbeatSent != nil {
		w.OnHeartbeatSent()
	}
}

func (w *StatefulWriter) sendGap(rp *proxy.ReaderProxy, n types.SequenceNumber, writerID types.EntityId) {
	set := types.NewSequenceNumberSet(n + 1)
	body := wire.GapBody{
		ReaderID: rp.RemoteReaderGuid.Entity,
		WriterID: writerID,
		GapStart: n,
		GapList:  set,
	}
	sm := wire.EncodeGap(defaultOrder, body)
	w.send(rp, sm)
	rp.AdvanceHighestSent(n)
}

// HandleAckNack applies an incoming ACKNACK to the named reader proxy
// (spec §4.4): acknowledges up to the set's base and records any
// requested sequence numbers for retransmission. A stale (non-increasing)
// Count is ignored, per the wrap-aware comparison in spec §4.3.
func (w *StatefulWriter) HandleAckNack(readerGuid types.GUID, body wire.AckNackBody) {
	rp, ok := w.MatchedReader(readerGuid)
	if !ok {
		return
	}
	if body.Count == rp.LastReceivedAckNackCount || !rp.LastReceivedAckNackCount.Precedes(body.Count) {
		return // stale or duplicate ACKNACK (spec §4.3 wrap-aware Count comparison)
	}
	rp.LastReceivedAckNackCount = body.Count
	rp.AckedChangesSet(body.ReaderSNState.Base - 1)
	rp.RequestedChangesSet(body.ReaderSNState)
	if !body.Final {
		rp.Heartbeat.Trigger()
		rp.Nack.Arm(time.Now(), w.nackResponseDelay, w.nackSuppressionDuration)
	}
	if w.OnAckNackHandled != nil {
		w.OnAckNackHandled()
	}
}
