// Package history implements the writer-side and reader-side history
// caches (spec §4.2).
package history

import (
	"time"

	"github.com/go-rtps/rtps/core/types"
)

// ChangeKind enumerates a cache change's sample kind (spec §3).
type ChangeKind int

const (
	Alive ChangeKind = iota
	NotAliveDisposed
	NotAliveUnregistered
)

// CacheChange is one published sample plus its metadata (spec §3). It is
// owned exclusively by one history cache; it is cloned/referenced into
// submessages for transmission, never mutated after insertion.
type CacheChange struct {
	Kind           ChangeKind
	WriterGuid     types.GUID
	InstanceHandle types.InstanceHandle
	SequenceNumber types.SequenceNumber
	Timestamp      time.Time
	DataValue      []byte
	InlineQos      []byte
}
