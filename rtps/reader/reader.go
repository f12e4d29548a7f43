// Package reader implements the StatefulReader and StatelessReader RTPS
// endpoint behaviors (spec §4.5): DATA/GAP/HEARTBEAT/DATAFRAG ingestion,
// writer-proxy bookkeeping, and ACKNACK emission for the reliable case.
package reader

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

// defaultOrder mirrors the writer package's outgoing byte order choice.
var defaultOrder binary.ByteOrder = binary.BigEndian

// AckNackSender hands off an ACKNACK addressed to a specific writer
// proxy's remote writer.
type AckNackSender func(wp *proxy.WriterProxy, sm wire.Submessage)

// StatefulReader tracks a set of matched WriterProxy instances and
// delivers incoming DATA/GAP/HEARTBEAT/DATAFRAG traffic into a
// ReaderCache (spec §4.5).
type StatefulReader struct {
	mu sync.Mutex

	Guid   types.GUID
	Policy qos.ReliabilityPolicy
	Cache  *history.ReaderCache

	writers map[types.GUID]*proxy.WriterProxy

	// fragments holds in-progress reassembly state for DATAFRAG series,
	// keyed by (writer, sequence number) (spec §4.5: "per-(writer,seq)
	// fragment reassembly"). A sample is moved into Cache and removed
	// from here only once every fragment has arrived.
	fragments map[fragKey]*fragAssembly

	// heartbeatResponseDelay/heartbeatSuppressionDuration pace ACKNACK
	// emission per matched writer proxy's proxy.DelayMachine (spec §4.3).
	// Both default to zero, which reproduces the previous synchronous
	// behavior: respond immediately, every time.
	heartbeatResponseDelay       time.Duration
	heartbeatSuppressionDuration time.Duration

	send AckNackSender
}

// fragKey identifies one in-progress DATAFRAG reassembly.
type fragKey struct {
	writer types.GUID
	seq    types.SequenceNumber
}

// fragAssembly accumulates the fragments of one sample as DATAFRAG
// submessages arrive, in whatever order they arrive in.
type fragAssembly struct {
	sampleSize uint32
	fragSize   uint16
	hasKey     bool
	fragments  map[uint32][]byte
}

func (a *fragAssembly) total() int {
	if a.fragSize == 0 {
		return 0
	}
	return int((a.sampleSize + uint32(a.fragSize) - 1) / uint32(a.fragSize))
}

func (a *fragAssembly) complete() bool {
	return a.total() > 0 && len(a.fragments) >= a.total()
}

func (a *fragAssembly) reassemble() []byte {
	out := make([]byte, 0, a.sampleSize)
	for n := 1; n <= a.total(); n++ {
		out = append(out, a.fragments[uint32(n)]...)
	}
	return out
}

// NewStatefulReader constructs a StatefulReader for guid, delivering
// into cache and emitting ACKNACKs via send.
func NewStatefulReader(guid types.GUID, policy qos.ReliabilityPolicy, cache *history.ReaderCache, send AckNackSender) *StatefulReader {
	return &StatefulReader{
		Guid:      guid,
		Policy:    policy,
		Cache:     cache,
		writers:   make(map[types.GUID]*proxy.WriterProxy),
		fragments: make(map[fragKey]*fragAssembly),
		send:      send,
	}
}

// SetHeartbeatTiming configures how long this reader waits before
// answering a HEARTBEAT with an ACKNACK, and how long it then ignores
// further HEARTBEATs from the same writer (spec §4.3
// heartbeat_response_delay/heartbeat_suppression_duration). Participants
// derive both from config.QoSDefaults.
func (r *StatefulReader) SetHeartbeatTiming(responseDelay, suppressionDuration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeatResponseDelay = responseDelay
	r.heartbeatSuppressionDuration = suppressionDuration
}

// MatchedWriterAdd registers wp as a newly matched writer proxy.
func (r *StatefulReader) MatchedWriterAdd(wp *proxy.WriterProxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[wp.RemoteWriterGuid] = wp
}

// MatchedWriterRemove unregisters a writer proxy, e.g. on unmatch. It
// does not change the instance state of samples that writer published:
// the reader cache does not record which writer owns which instance, and
// no instance moves to NotAliveNoWriters on removal.
func (r *StatefulReader) MatchedWriterRemove(guid types.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writers, guid)
}

// MatchedWriter returns the writer proxy for guid, if matched.
func (r *StatefulReader) MatchedWriter(guid types.GUID) (*proxy.WriterProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.writers[guid]
	return wp, ok
}

// MatchedWriters returns a stable snapshot of currently matched proxies,
// e.g. for discovery to sweep every proxy belonging to a departed
// participant (spec §4.7/§4.8 unmatch-on-lease-expiry).
func (r *StatefulReader) MatchedWriters() []*proxy.WriterProxy {
	return r.matchedWriters()
}

func (r *StatefulReader) matchedWriters() []*proxy.WriterProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*proxy.WriterProxy, 0, len(r.writers))
	for _, wp := range r.writers {
		out = append(out, wp)
	}
	return out
}

// maxAvailable implements the history.Filter.MaxAvailable hook: delivery
// is bounded by each matched writer proxy's available_changes_max (spec
// §4.5), so an out-of-order arrival never surfaces ahead of a
// still-missing change.
func (r *StatefulReader) maxAvailable(writerGuid types.GUID) types.SequenceNumber {
	wp, ok := r.MatchedWriter(writerGuid)
	if !ok {
		return types.SequenceNumberMax
	}
	return wp.AvailableChangesMax()
}

// DefaultFilter returns a Filter bound to this reader's writer-proxy
// availability, suitable for Read/Take calls.
func (r *StatefulReader) DefaultFilter() history.Filter {
	return history.Filter{MaxAvailable: r.maxAvailable}
}

func instanceHandleForKey(key []byte) types.InstanceHandle {
	return types.InstanceHandleFromKey(key)
}

// HandleData ingests a DATA submessage from writerGuid into the reader
// cache (spec §4.5). If writerGuid is a matched writer proxy, its
// received-set is updated as well, whatever this reader's reliability.
func (r *StatefulReader) HandleData(writerGuid types.GUID, body wire.DataBody, now time.Time) (accepted bool, reason history.RejectReason) {
	wp, matched := r.MatchedWriter(writerGuid)
	if matched {
		wp.ReceivedChangeSet(body.WriterSeqNum)
	}

	kind := history.Alive
	if body.HasKey && !body.HasData {
		kind = history.NotAliveDisposed
	}
	handle := instanceHandleForKey(body.SerializedPayload)
	change := &history.CacheChange{
		Kind:           kind,
		WriterGuid:     writerGuid,
		InstanceHandle: handle,
		SequenceNumber: body.WriterSeqNum,
		Timestamp:      now,
		DataValue:      body.SerializedPayload,
	}
	return r.Cache.TryAdd(change)
}

// HandleDataFrag ingests one DATAFRAG submessage, folding its fragment(s)
// into the in-progress reassembly for (writerGuid, body.WriterSeqNum).
// Once every fragment of the sample has arrived, it's reassembled and
// admitted to the cache exactly as a whole DATA would be (spec §4.5
// "DATAFRAG handling"); the writer proxy's received-set is only updated
// at that point, so ACKNACK bookkeeping waits for the complete sample.
func (r *StatefulReader) HandleDataFrag(writerGuid types.GUID, body wire.DataFragBody, now time.Time) (accepted bool, reason history.RejectReason) {
	key := fragKey{writer: writerGuid, seq: body.WriterSeqNum}

	r.mu.Lock()
	asm, ok := r.fragments[key]
	if !ok {
		asm = &fragAssembly{sampleSize: body.SampleSize, fragSize: body.FragmentSize, hasKey: body.HasKey, fragments: make(map[uint32][]byte)}
		r.fragments[key] = asm
	}
	size := int(body.FragmentSize)
	data := body.FragmentData
	for i := uint16(0); i < body.FragmentsInSubmessage; i++ {
		start := int(i) * size
		if start >= len(data) {
			break
		}
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		fragNum := body.FragmentStartingNum + uint32(i)
		asm.fragments[fragNum] = append([]byte(nil), data[start:end]...)
	}
	complete := asm.complete()
	var payload []byte
	var hasKey bool
	if complete {
		payload = asm.reassemble()
		hasKey = asm.hasKey
		delete(r.fragments, key)
	}
	r.mu.Unlock()

	if !complete {
		return true, history.NotRejected
	}

	wp, matched := r.MatchedWriter(writerGuid)
	if matched {
		wp.ReceivedChangeSet(body.WriterSeqNum)
	}

	kind := history.Alive
	if hasKey {
		kind = history.NotAliveDisposed
	}
	change := &history.CacheChange{
		Kind:           kind,
		WriterGuid:     writerGuid,
		InstanceHandle: instanceHandleForKey(payload),
		SequenceNumber: body.WriterSeqNum,
		Timestamp:      now,
		DataValue:      payload,
	}
	return r.Cache.TryAdd(change)
}

// HandleHeartbeatFrag answers a HEARTBEAT_FRAG with a NACKFRAG (spec §4.4
// item 4): it asks the writer to resend only the fragments of
// (writerGuid, body.WriterSN) still missing up to body.LastFragmentNum.
// The NACKFRAG is sent at once; heartbeat_response_delay and
// heartbeat_suppression_duration do not apply to it. A sample this reader
// has no in-progress reassembly for (already complete, or nothing
// received yet) is ignored.
func (r *StatefulReader) HandleHeartbeatFrag(writerGuid types.GUID, body wire.HeartbeatFragBody, readerID, writerID types.EntityId) {
	key := fragKey{writer: writerGuid, seq: body.WriterSN}

	r.mu.Lock()
	asm, ok := r.fragments[key]
	var missing wire.FragmentNumberSet
	if ok {
		missing = wire.NewFragmentNumberSet(1)
		for n := uint32(1); n <= body.LastFragmentNum; n++ {
			if _, got := asm.fragments[n]; !got {
				missing.Add(n)
			}
		}
	}
	r.mu.Unlock()

	if !ok || len(missing.Set) == 0 {
		return
	}

	wp, matched := r.MatchedWriter(writerGuid)
	if !matched {
		return
	}
	nfBody := wire.NackFragBody{
		ReaderID:            readerID,
		WriterID:            writerID,
		WriterSN:            body.WriterSN,
		FragmentNumberState: missing,
		Count:               wp.NextAckNackCount(),
	}
	r.send(wp, wire.EncodeNackFrag(defaultOrder, nfBody))
}

// HandleGap applies a GAP submessage from writerGuid: every sequence
// number in [body.GapStart, body.GapList.Base) and every number in
// body.GapList itself is marked irrelevant on the matched writer proxy
// (spec §4.5/§4.3).
func (r *StatefulReader) HandleGap(writerGuid types.GUID, body wire.GapBody) {
	wp, ok := r.MatchedWriter(writerGuid)
	if !ok {
		return
	}
	for n := body.GapStart; n < body.GapList.Base; n++ {
		wp.IrrelevantChangeSet(n)
	}
	for n := range body.GapList.Set {
		wp.IrrelevantChangeSet(n)
	}
}

// HandleHeartbeat applies a HEARTBEAT from writerGuid: updates the
// writer proxy's known range and, for reliable readers, schedules an
// ACKNACK unless the heartbeat was Final and there is nothing missing
// (spec §4.5/§4.3). The ACKNACK is sent immediately if
// heartbeatResponseDelay is zero (the default), and otherwise on the
// next FlushAckNacks call once it comes due; a HEARTBEAT arriving within
// heartbeatSuppressionDuration of the last one answered is ignored.
func (r *StatefulReader) HandleHeartbeat(writerGuid types.GUID, body wire.HeartbeatBody, readerID, writerID types.EntityId) {
	wp, ok := r.MatchedWriter(writerGuid)
	if !ok {
		return
	}
	wp.LostChangesUpdate(body.First)
	wp.MissingChangesUpdate(body.Last)

	if r.Policy.Kind != qos.Reliable {
		return
	}
	missing := wp.MissingChanges()
	if body.Final && len(missing) == 0 {
		return
	}

	r.mu.Lock()
	delay, suppression := r.heartbeatResponseDelay, r.heartbeatSuppressionDuration
	r.mu.Unlock()

	now := time.Now()
	if !wp.AckNack.Arm(now, delay, suppression) {
		return // suppressed: a heartbeat from this writer was just answered
	}
	if wp.AckNack.Due(now) {
		r.sendAckNack(wp, missing, readerID, writerID)
	}
}

// FlushAckNacks sends the ACKNACK for every matched writer proxy whose
// heartbeatResponseDelay has elapsed since HandleHeartbeat scheduled it
// (spec §4.3). Participants call this from their periodic task
// scheduler; it's a no-op for every proxy with nothing currently due.
func (r *StatefulReader) FlushAckNacks(now time.Time) {
	for _, wp := range r.matchedWriters() {
		if !wp.AckNack.Due(now) {
			continue
		}
		r.sendAckNack(wp, wp.MissingChanges(), r.Guid.Entity, wp.RemoteWriterGuid.Entity)
	}
}

func (r *StatefulReader) sendAckNack(wp *proxy.WriterProxy, missing []types.SequenceNumber, readerID, writerID types.EntityId) {
	set := types.NewSequenceNumberSet(wp.AvailableChangesMax() + 1)
	for _, n := range missing {
		set.Add(n)
	}
	body := wire.AckNackBody{
		ReaderID:      readerID,
		WriterID:      writerID,
		ReaderSNState: set,
		Count:         wp.NextAckNackCount(),
		Final:         len(missing) == 0,
	}
	sm := wire.EncodeAckNack(defaultOrder, body)
	r.send(wp, sm)
}
