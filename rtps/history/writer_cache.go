package history

import (
	"sync"

	"github.com/go-rtps/rtps/core/ddserror"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
)

// WriterCache is the append-only (from the writer's perspective) ordered
// store of CacheChanges at a writer (spec §4.2). Sequence numbers are
// dense and strictly increasing in insertion order (spec §4.2 invariant).
type WriterCache struct {
	mu      sync.RWMutex
	changes []*CacheChange
	nextSeq types.SequenceNumber

	history qos.HistoryPolicy
	limits  qos.ResourceLimitsPolicy
}

// NewWriterCache constructs an empty WriterCache with no History or
// ResourceLimits enforcement (KeepAll, Unlimited). Call SetPolicies to
// configure it once the owning writer's QoS is known.
func NewWriterCache() *WriterCache {
	return &WriterCache{
		history: qos.HistoryPolicy{Kind: qos.KeepAll},
		limits:  qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited},
	}
}

// SetPolicies configures the History/ResourceLimits QoS this cache
// enforces on Add.
func (c *WriterCache) SetPolicies(history qos.HistoryPolicy, limits qos.ResourceLimitsPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = history
	c.limits = limits
}

// HistoryPolicy returns the History QoS this cache currently enforces.
func (c *WriterCache) HistoryPolicy() qos.HistoryPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history
}

// AssignNext returns the next sequence number to assign to a new change.
// It is a monotonic counter kept independent of the cache's physical
// contents, so evicting the currently-highest change via RemoveIf never
// causes a later change to reuse or regress a sequence number (spec §4.2
// "dense and strictly increasing").
func (c *WriterCache) AssignNext() types.SequenceNumber {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	return c.nextSeq
}

// Add appends a change to the cache, assuming the caller already
// assigned its sequence number (see AssignNext). It rejects the change
// with ddserror.OutOfResources once ResourceLimits.MaxSamples is reached
// rather than silently dropping it (spec §4.4).
func (c *WriterCache) Add(change *CacheChange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limits.MaxSamples != qos.Unlimited && len(c.changes) >= c.limits.MaxSamples {
		return ddserror.New(ddserror.OutOfResources, "writer cache at MaxSamples limit (%d)", c.limits.MaxSamples)
	}
	c.changes = append(c.changes, change)
	return nil
}

// RemoveIf removes every change for which pred returns true, e.g. to
// enforce a KeepLast depth bound or to drop changes every matched reader
// has acknowledged.
func (c *WriterCache) RemoveIf(pred func(*CacheChange) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.changes[:0]
	for _, ch := range c.changes {
		if !pred(ch) {
			kept = append(kept, ch)
		}
	}
	c.changes = kept
}

// Get returns the change with the given sequence number, if still present
// (it may have been purged).
func (c *WriterCache) Get(n types.SequenceNumber) (*CacheChange, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.changes {
		if ch.SequenceNumber == n {
			return ch, true
		}
	}
	return nil, false
}

// IterBySeqRange returns every change with sequence number in [lo, hi].
func (c *WriterCache) IterBySeqRange(lo, hi types.SequenceNumber) []*CacheChange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*CacheChange
	for _, ch := range c.changes {
		if ch.SequenceNumber >= lo && ch.SequenceNumber <= hi {
			out = append(out, ch)
		}
	}
	return out
}

// MinSeq returns the smallest sequence number still in the cache, or
// SequenceNumberUnknown if empty.
func (c *WriterCache) MinSeq() types.SequenceNumber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.changes) == 0 {
		return types.SequenceNumberUnknown
	}
	min := c.changes[0].SequenceNumber
	for _, ch := range c.changes[1:] {
		if ch.SequenceNumber < min {
			min = ch.SequenceNumber
		}
	}
	return min
}

// MaxSeq returns the largest sequence number in the cache, or
// SequenceNumberUnknown if empty.
func (c *WriterCache) MaxSeq() types.SequenceNumber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	max := types.SequenceNumberUnknown
	for _, ch := range c.changes {
		if ch.SequenceNumber > max {
			max = ch.SequenceNumber
		}
	}
	return max
}

// Len returns the number of changes currently retained.
func (c *WriterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.changes)
}
