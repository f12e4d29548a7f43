package reader

import (
	"time"

	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
)

// StatelessReader delivers best-effort DATA directly into a ReaderCache
// with no writer-proxy bookkeeping and no ACKNACK path, used for builtin
// participant discovery traffic (spec §4.7 SPDP).
type StatelessReader struct {
	Guid  types.GUID
	Cache *history.ReaderCache
}

// NewStatelessReader constructs a StatelessReader delivering into cache.
func NewStatelessReader(guid types.GUID, cache *history.ReaderCache) *StatelessReader {
	return &StatelessReader{Guid: guid, Cache: cache}
}

// HandleData ingests a DATA submessage, keyed by writerGuid only for
// provenance (no matching/proxy requirement, unlike StatefulReader).
func (r *StatelessReader) HandleData(writerGuid types.GUID, body wire.DataBody, now time.Time) (accepted bool, reason history.RejectReason) {
	kind := history.Alive
	if body.HasKey && !body.HasData {
		kind = history.NotAliveDisposed
	}
	change := &history.CacheChange{
		Kind:           kind,
		WriterGuid:     writerGuid,
		InstanceHandle: instanceHandleForKey(body.SerializedPayload),
		SequenceNumber: body.WriterSeqNum,
		Timestamp:      now,
		DataValue:      body.SerializedPayload,
	}
	return r.Cache.TryAdd(change)
}
