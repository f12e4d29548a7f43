// Package proxy implements the ReaderProxy and WriterProxy algorithms
// (spec §4.3): per-peer delivery/reception state machines held by a
// stateful writer and stateful reader, respectively.
package proxy

import (
	"sync"
	"time"

	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/rtps/history"
)

// HeartbeatMachine paces HEARTBEAT emission for a ReaderProxy (spec §4.3,
// §4.4): a heartbeat is due when now-last_heartbeat_time >= period, or
// when explicitly triggered by an ACKNACK requesting retransmission.
type HeartbeatMachine struct {
	mu              sync.Mutex
	lastHeartbeat   time.Time
	count           types.Count
	forceNextDue    bool
}

// IsDue reports whether a heartbeat should be sent now, given period.
func (h *HeartbeatMachine) IsDue(now time.Time, period time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.forceNextDue {
		return true
	}
	return now.Sub(h.lastHeartbeat) >= period
}

// Trigger marks the next IsDue check as due regardless of elapsed time,
// e.g. when a non-final ACKNACK requests retransmission (spec §4.4).
func (h *HeartbeatMachine) Trigger() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forceNextDue = true
}

// NextCount increments and returns the Count to stamp on the next
// HEARTBEAT, and resets the due timer/force flag.
func (h *HeartbeatMachine) NextCount(now time.Time) types.Count {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.lastHeartbeat = now
	h.forceNextDue = false
	return h.count
}

// ReaderProxy is the per-reader delivery state a stateful writer holds
// (spec §3, §4.3).
type ReaderProxy struct {
	mu sync.Mutex

	RemoteReaderGuid    types.GUID
	UnicastLocators     []types.Locator
	MulticastLocators   []types.Locator
	Reliable            bool
	Durability          int
	IsActive            bool

	highestSent              types.SequenceNumber
	highestAcked             types.SequenceNumber
	requestedChanges         map[types.SequenceNumber]struct{}
	firstRelevantSampleSeqNum types.SequenceNumber

	LastReceivedAckNackCount types.Count
	Heartbeat                HeartbeatMachine

	// Nack paces this proxy's retransmission response to a non-final
	// ACKNACK by nack_response_delay/nack_suppression_duration (spec
	// §4.3).
	Nack DelayMachine
}

// NewReaderProxy constructs a ReaderProxy for a newly matched remote
// reader. firstRelevant is the lowest sequence number this proxy should
// ever be asked about (spec §3: ReaderProxy invariant
// "requested_changes ⊆ (first_relevant..=last_written)").
func NewReaderProxy(remote types.GUID, reliable bool, firstRelevant types.SequenceNumber) *ReaderProxy {
	return &ReaderProxy{
		RemoteReaderGuid:          remote,
		Reliable:                  reliable,
		IsActive:                  true,
		requestedChanges:          make(map[types.SequenceNumber]struct{}),
		firstRelevantSampleSeqNum: firstRelevant,
	}
}

// HighestSent returns the highest sequence number sent so far.
func (p *ReaderProxy) HighestSent() types.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highestSent
}

// HighestAcked returns the highest sequence number acknowledged so far.
func (p *ReaderProxy) HighestAcked() types.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highestAcked
}

// AckedChangesSet monotonically raises highest_acked_seq_num (spec §4.3).
func (p *ReaderProxy) AckedChangesSet(n types.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.highestAcked {
		p.highestAcked = n
	}
}

// NextUnsentChange returns the minimum sequence number in the cache
// strictly greater than highest_sent, if any, and advances highest_sent as
// a side effect (spec §4.3).
func (p *ReaderProxy) NextUnsentChange(cache *history.WriterCache) (types.SequenceNumber, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	max := cache.MaxSeq()
	if max == types.SequenceNumberUnknown || p.highestSent >= max {
		return types.SequenceNumberUnknown, false
	}
	next := p.highestSent + 1
	p.highestSent = next
	return next, true
}

// UnsentChanges returns every sequence number in (highest_sent, max(cache)]
// without mutating state, for callers that need to enumerate the whole
// batch up front (e.g. best-effort GAP computation).
func (p *ReaderProxy) UnsentChanges(maxSeq types.SequenceNumber) []types.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.SequenceNumber
	for n := p.highestSent + 1; n <= maxSeq; n++ {
		out = append(out, n)
	}
	return out
}

// AdvanceHighestSent raises highest_sent to n if n is larger, used when
// the caller (not NextUnsentChange) determines the send order, e.g. when
// draining UnsentChanges in bulk.
func (p *ReaderProxy) AdvanceHighestSent(n types.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.highestSent {
		p.highestSent = n
	}
}

// RequestedChangesSet unions set into requested_changes (spec §4.3).
func (p *ReaderProxy) RequestedChangesSet(set types.SequenceNumberSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := range set.Set {
		if n >= p.firstRelevantSampleSeqNum || p.firstRelevantSampleSeqNum == types.SequenceNumberUnknown {
			p.requestedChanges[n] = struct{}{}
		}
	}
}

// NextRequestedChange pops the minimum of requested_changes, if any (spec
// §4.3).
func (p *ReaderProxy) NextRequestedChange() (types.SequenceNumber, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requestedChanges) == 0 {
		return types.SequenceNumberUnknown, false
	}
	min := types.SequenceNumber(0)
	first := true
	for n := range p.requestedChanges {
		if first || n < min {
			min = n
			first = false
		}
	}
	delete(p.requestedChanges, min)
	return min, true
}

// RequestedChangesSnapshot returns every currently requested sequence
// number, without popping them.
func (p *ReaderProxy) RequestedChangesSnapshot() []types.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.SequenceNumber, 0, len(p.requestedChanges))
	for n := range p.requestedChanges {
		out = append(out, n)
	}
	return out
}

// HasRequestedChanges reports whether any retransmission is pending.
func (p *ReaderProxy) HasRequestedChanges() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requestedChanges) > 0
}

// UnackedChanges reports whether the proxy has samples up to and including
// cacheMax it has not yet acknowledged (spec §4.3).
func (p *ReaderProxy) UnackedChanges(cacheMax types.SequenceNumber) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highestAcked < cacheMax
}
