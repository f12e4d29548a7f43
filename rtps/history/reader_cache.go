package history

import (
	"sort"
	"sync"

	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
)

// SampleState is whether the application has read a sample yet.
type SampleState int

const (
	NotRead SampleState = iota
	Read
)

// ViewState is whether this is the first sample seen for an instance since
// it was last "new" (spec §4.2).
type ViewState int

const (
	New ViewState = iota
	NotNew
)

// InstanceState tracks instance liveliness/disposal (spec §4.2).
type InstanceState int

const (
	InstanceAlive InstanceState = iota
	InstanceNotAliveDisposed
	InstanceNotAliveNoWriters
)

// Sample is one received CacheChange plus the per-sample state a
// read/take filter operates over.
type Sample struct {
	Change      *CacheChange
	SampleState SampleState
	ViewState   ViewState
	Valid       bool // false if deserialization failed (spec §4.5)
}

// Instance groups samples sharing a key, plus the per-instance generation
// counters (spec §4.2).
type Instance struct {
	Handle                  types.InstanceHandle
	State                   InstanceState
	DisposedGenerationCount  int
	NoWritersGenerationCount int
	Samples                 []*Sample
}

// RejectReason names why TryAdd refused a sample (spec §4.2).
type RejectReason int

const (
	NotRejected RejectReason = iota
	RejectedBySamplesLimit
	RejectedByInstancesLimit
	RejectedBySamplesPerInstanceLimit
)

// ReaderCache is the reader-side history cache: a keyed map from
// InstanceHandle to instance state plus a sample deque (spec §4.2).
type ReaderCache struct {
	mu        sync.RWMutex
	instances map[types.InstanceHandle]*Instance
	limits    qos.ResourceLimitsPolicy
	history   qos.HistoryPolicy
	totalSamples int
}

// NewReaderCache constructs an empty ReaderCache governed by the given
// History and ResourceLimits policies.
func NewReaderCache(history qos.HistoryPolicy, limits qos.ResourceLimitsPolicy) *ReaderCache {
	return &ReaderCache{
		instances: make(map[types.InstanceHandle]*Instance),
		limits:    limits,
		history:   history,
	}
}

// TryAdd inserts change, returning whether it was accepted and, if not,
// why (spec §4.2: SamplesLimit, InstancesLimit, SamplesPerInstanceLimit).
// Depth enforcement (KeepLast N vs KeepAll) happens here too.
func (c *ReaderCache) TryAdd(change *CacheChange) (accepted bool, reason RejectReason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, exists := c.instances[change.InstanceHandle]
	if !exists {
		if c.limits.MaxInstances != qos.Unlimited && len(c.instances) >= c.limits.MaxInstances {
			return false, RejectedByInstancesLimit
		}
		inst = &Instance{Handle: change.InstanceHandle, State: InstanceAlive}
		c.instances[change.InstanceHandle] = inst
	}

	if c.limits.MaxSamples != qos.Unlimited && c.totalSamples >= c.limits.MaxSamples {
		return false, RejectedBySamplesLimit
	}
	if c.limits.MaxSamplesPerInstance != qos.Unlimited && len(inst.Samples) >= c.limits.MaxSamplesPerInstance {
		return false, RejectedBySamplesPerInstanceLimit
	}

	view := NotNew
	wasEmptyOrDisposed := len(inst.Samples) == 0 || inst.State != InstanceAlive
	if change.Kind == Alive && wasEmptyOrDisposed {
		view = New
	}

	switch change.Kind {
	case NotAliveDisposed:
		inst.State = InstanceNotAliveDisposed
		inst.DisposedGenerationCount++
	case Alive:
		inst.State = InstanceAlive
	}

	sample := &Sample{Change: change, SampleState: NotRead, ViewState: view, Valid: true}
	inst.Samples = append(inst.Samples, sample)
	c.totalSamples++

	// History QoS depth enforcement: KeepLast(N) drops the oldest sample(s)
	// in this instance beyond N; KeepAll enforces only the resource limits
	// above.
	if c.history.Kind == qos.KeepLast {
		for len(inst.Samples) > c.history.Depth {
			inst.Samples = inst.Samples[1:]
			c.totalSamples--
		}
	}

	return true, NotRejected
}

// MarkNoWriters transitions an instance to NotAliveNoWriters, e.g. on
// writer-unmatch with no explicit Dispose sample (spec §4.2:
// "instance_state transitions are driven by ... writer-unmatch events").
func (c *ReaderCache) MarkNoWriters(handle types.InstanceHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.instances[handle]; ok && inst.State == InstanceAlive {
		inst.State = InstanceNotAliveNoWriters
		inst.NoWritersGenerationCount++
	}
}

// Filter selects which samples Read/Take returns, by state mask (spec
// §4.5). A nil mask slice for a given dimension matches everything.
type Filter struct {
	SampleStates  []SampleState
	ViewStates    []ViewState
	InstanceStates []InstanceState
	// MaxAvailable bounds delivery to sequence numbers the writer proxy
	// has marked available (spec §4.5: "Only samples with sequence_number
	// <= writer_proxy.available_changes_max() are returned"). A nil func
	// means unbounded (used by readers with no writer proxies).
	MaxAvailable func(writerGuid types.GUID) types.SequenceNumber
}

func matches(set []SampleState, s SampleState) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func matchesView(set []ViewState, v ViewState) bool {
	if len(set) == 0 {
		return true
	}
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

func matchesInstance(set []InstanceState, v InstanceState) bool {
	if len(set) == 0 {
		return true
	}
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

func (c *ReaderCache) selectSamples(f Filter, consume bool) []*Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Sample
	for _, inst := range c.instances {
		kept := inst.Samples[:0]
		for _, s := range inst.Samples {
			avail := true
			if f.MaxAvailable != nil {
				avail = s.Change.SequenceNumber <= f.MaxAvailable(s.Change.WriterGuid)
			}
			if avail && matches(f.SampleStates, s.SampleState) &&
				matchesView(f.ViewStates, s.ViewState) &&
				matchesInstance(f.InstanceStates, inst.State) {
				out = append(out, s)
				if !consume {
					s.SampleState = Read
					s.ViewState = NotNew
					kept = append(kept, s)
				} else {
					c.totalSamples--
				}
				continue
			}
			kept = append(kept, s)
		}
		inst.Samples = kept
	}

	// c.instances is a Go map, so iteration above visits instances in
	// unspecified order; sort the merged result into write order (spec §8
	// scenario S1) before returning.
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Change.Timestamp, out[j].Change.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Change.SequenceNumber < out[j].Change.SequenceNumber
	})
	return out
}

// Read returns borrowed samples matching filter, marking them Read/NotNew
// but leaving them in the cache.
func (c *ReaderCache) Read(f Filter) []*Sample {
	return c.selectSamples(f, false)
}

// Take returns owned samples matching filter, removing them from the
// cache.
func (c *ReaderCache) Take(f Filter) []*Sample {
	return c.selectSamples(f, true)
}

// Instances returns a snapshot of every tracked instance, for diagnostics
// and tests.
func (c *ReaderCache) Instances() []*Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		out = append(out, inst)
	}
	return out
}
