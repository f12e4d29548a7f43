package ddsapi

import (
	"time"

	"github.com/go-rtps/rtps/core/ddserror"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/rtps/writer"
)

// ackPollInterval paces WaitForAcknowledgments' poll loop.
const ackPollInterval = 5 * time.Millisecond

// DataWriter publishes samples of one Topic (spec §6).
type DataWriter struct {
	entity

	dp    *DomainParticipant
	w     *writer.StatefulWriter
	topic *Topic
	cond  *StatusCondition
}

// StatusCondition returns the condition that fires on this writer's
// status events (publication-matched, offered-incompatible-QoS).
func (dw *DataWriter) StatusCondition() *StatusCondition {
	return dw.cond
}

// SetListener installs l to receive this writer's status events.
func (dw *DataWriter) SetListener(l DataWriterListener) error {
	return dw.setListener(l)
}

// GetListener returns the currently installed listener, or nil.
func (dw *DataWriter) GetListener() DataWriterListener {
	l, _ := dw.getListener().(DataWriterListener)
	return l
}

// Write publishes sample under handle (spec §6 write()). If handle is the
// unknown/zero InstanceHandle, it's derived from sample's serialized key.
func (dw *DataWriter) Write(sample Serializer, handle types.InstanceHandle) error {
	if err := dw.requireEnabled(); err != nil {
		return err
	}
	data, err := sample.Serialize(false)
	if err != nil {
		return ddserror.New(ddserror.BadParameter, "serialize: %v", err)
	}
	if handle.IsUnknown() {
		key, err := sample.Serialize(true)
		if err != nil {
			return ddserror.New(ddserror.BadParameter, "serialize key: %v", err)
		}
		handle = types.InstanceHandleFromKey(key)
	}
	if fragSize := dw.w.FragmentSize(); fragSize <= 0 {
		mtu := dw.dp.p.Config().Transport.MTU
		if len(data) > mtu {
			return ddserror.New(ddserror.OutOfResources, "sample of %d bytes exceeds transport MTU %d with fragmentation disabled", len(data), mtu)
		}
	}
	return dw.dp.p.Write(dw.w, handle, data)
}

// Dispose publishes a NotAliveDisposed change for handle (spec §6
// dispose()).
func (dw *DataWriter) Dispose(handle types.InstanceHandle) error {
	if err := dw.requireEnabled(); err != nil {
		return err
	}
	return dw.dp.p.Dispose(dw.w, handle)
}

// WaitForAcknowledgments blocks until every matched reliable reader has
// acknowledged every change currently in the writer's cache, or timeout
// elapses (spec §6). A best-effort writer has no acknowledgment concept
// and returns immediately.
func (dw *DataWriter) WaitForAcknowledgments(timeout time.Duration) error {
	if err := dw.requireEnabled(); err != nil {
		return err
	}
	if dw.w.Policy.Kind != qos.Reliable {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for {
		if dw.allAcknowledged() {
			return nil
		}
		if time.Now().After(deadline) {
			return ddserror.New(ddserror.Timeout, "wait_for_acknowledgments: %s elapsed", timeout)
		}
		time.Sleep(ackPollInterval)
	}
}

func (dw *DataWriter) allAcknowledged() bool {
	max := dw.w.Cache.MaxSeq()
	for _, rp := range dw.w.MatchedReaders() {
		if rp.HighestAcked() < max {
			return false
		}
	}
	return true
}
