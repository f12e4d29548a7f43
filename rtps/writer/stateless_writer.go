package writer

import (
	"sync"

	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
)

// LocatorSender hands off a submessage addressed to a fixed locator (e.g.
// the SPDP well-known multicast address), rather than to a matched
// reader proxy — there is no discovery handshake to have matched one
// (spec §4.7).
type LocatorSender func(loc types.Locator, sm wire.Submessage)

// StatelessWriter is the best-effort, no-ACK writer used for builtin
// participant discovery traffic (spec §4.7 SPDP): it unconditionally
// broadcasts every new change to a fixed set of locators and keeps no
// per-reader state.
type StatelessWriter struct {
	mu sync.Mutex

	Guid      types.GUID
	Cache     *history.WriterCache
	Locators  []types.Locator
	highSent  types.SequenceNumber
	send      LocatorSender
}

// NewStatelessWriter constructs a StatelessWriter broadcasting to locs.
func NewStatelessWriter(guid types.GUID, cache *history.WriterCache, locs []types.Locator, send LocatorSender) *StatelessWriter {
	return &StatelessWriter{Guid: guid, Cache: cache, Locators: locs, send: send}
}

// NewChange appends change to the cache, assigning the next sequence
// number from the cache's monotonic counter so a later RemoveIf-driven
// eviction can never cause sequence-number reuse. It returns
// ddserror.OutOfResources, unwrapped, if the cache's ResourceLimits
// reject the add.
func (w *StatelessWriter) NewChange(kind history.ChangeKind, handle types.InstanceHandle, data []byte) (*history.CacheChange, error) {
	seq := w.Cache.AssignNext()
	change := &history.CacheChange{
		Kind:           kind,
		WriterGuid:     w.Guid,
		InstanceHandle: handle,
		SequenceNumber: seq,
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

// SendPending broadcasts every change added since the last call to every
// configured locator, addressed to the unknown/wildcard reader entity id
// (ENTITYID_UNKNOWN), since stateless writers have no matched readers.
func (w *StatelessWriter) SendPending(writerID types.EntityId) {
	w.mu.Lock()
	max := w.Cache.MaxSeq()
	from := w.highSent + 1
	w.highSent = max
	w.mu.Unlock()

	if max == types.SequenceNumberUnknown || from > max {
		return
	}
	for n := from; n <= max; n++ {
		change, ok := w.Cache.Get(n)
		if !ok {
			continue
		}
		body := wire.DataBody{
			ReaderID:     types.EntityIdUnknown,
			WriterID:     writerID,
			WriterSeqNum: change.SequenceNumber,
			HasData:      change.Kind == history.Alive,
			HasKey:       change.Kind != history.Alive,
		}
		if body.HasData || body.HasKey {
			body.SerializedPayload = change.DataValue
		}
		sm := wire.EncodeData(defaultOrder, body)
		for _, loc := range w.Locators {
			w.send(loc, sm)
		}
	}
}
