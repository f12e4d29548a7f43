package proxy

import (
	"sync"

	"github.com/go-rtps/rtps/core/types"
)

// WriterProxy is the per-writer reception state a stateful reader holds
// (spec §3, §4.3): tracks which sequence numbers have been received,
// which are known missing (requested via ACKNACK), and which are
// irrelevant (covered by a GAP), so available_changes_max can be derived.
type WriterProxy struct {
	mu sync.Mutex

	RemoteWriterGuid  types.GUID
	UnicastLocators   []types.Locator
	MulticastLocators []types.Locator

	received   map[types.SequenceNumber]struct{}
	irrelevant map[types.SequenceNumber]struct{}
	maxSeqSeen types.SequenceNumber

	// lastAckNackCount is the last Count this proxy used in an outgoing
	// ACKNACK, for monotonic Count stamping (spec §4.3/§4.4 wrap-aware
	// Count comparison).
	lastAckNackCount types.Count

	// AckNack paces this proxy's ACKNACK response to an incoming
	// HEARTBEAT by heartbeat_response_delay/heartbeat_suppression_duration
	// (spec §4.3).
	AckNack DelayMachine
}

// NewWriterProxy constructs a WriterProxy for a newly matched remote
// writer.
func NewWriterProxy(remote types.GUID) *WriterProxy {
	return &WriterProxy{
		RemoteWriterGuid: remote,
		received:         make(map[types.SequenceNumber]struct{}),
		irrelevant:       make(map[types.SequenceNumber]struct{}),
	}
}

// ReceivedChangeSet records n as received (spec §4.3).
func (p *WriterProxy) ReceivedChangeSet(n types.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received[n] = struct{}{}
	if n > p.maxSeqSeen {
		p.maxSeqSeen = n
	}
}

// IrrelevantChangeSet records n as irrelevant, e.g. covered by a GAP
// submessage (spec §4.3): it will never arrive and must not be waited on.
func (p *WriterProxy) IrrelevantChangeSet(n types.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.irrelevant[n] = struct{}{}
	if n > p.maxSeqSeen {
		p.maxSeqSeen = n
	}
}

// LostChangesUpdate marks every sequence number below firstAvailable that
// was neither received nor already irrelevant as irrelevant, because the
// writer has reported (via HEARTBEAT) that it no longer holds them (spec
// §4.3).
func (p *WriterProxy) LostChangesUpdate(firstAvailable types.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := types.SequenceNumber(1); n < firstAvailable; n++ {
		if _, ok := p.received[n]; ok {
			continue
		}
		p.irrelevant[n] = struct{}{}
	}
}

// MissingChangesUpdate raises the known upper bound from a HEARTBEAT's
// lastSeq, so missing_changes() can enumerate the gap up to it (spec
// §4.3).
func (p *WriterProxy) MissingChangesUpdate(lastSeq types.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lastSeq > p.maxSeqSeen {
		p.maxSeqSeen = lastSeq
	}
}

// MissingChanges returns every sequence number <= maxSeqSeen that is
// neither received nor irrelevant (spec §4.3): the set an ACKNACK should
// request.
func (p *WriterProxy) MissingChanges() []types.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.SequenceNumber
	for n := types.SequenceNumber(1); n <= p.maxSeqSeen; n++ {
		if _, ok := p.received[n]; ok {
			continue
		}
		if _, ok := p.irrelevant[n]; ok {
			continue
		}
		out = append(out, n)
	}
	return out
}

// AvailableChangesMax returns the largest sequence number n such that
// every sequence number <= n has been either received or marked
// irrelevant (spec §4.5: readers only deliver up to this bound, so an
// out-of-order arrival never surfaces ahead of a still-missing change).
func (p *WriterProxy) AvailableChangesMax() types.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := types.SequenceNumber(1)
	for {
		_, gotReceived := p.received[n]
		_, gotIrrelevant := p.irrelevant[n]
		if !gotReceived && !gotIrrelevant {
			return n - 1
		}
		n++
	}
}

// NextAckNackCount returns the next Count to stamp on an outgoing
// ACKNACK, wrap-aware monotonic per spec §4.3/§4.4.
func (p *WriterProxy) NextAckNackCount() types.Count {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAckNackCount++
	return p.lastAckNackCount
}
