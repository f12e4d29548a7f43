package ddsapi

import (
	"github.com/go-rtps/rtps/core/ddserror"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/reader"
)

// DataReader subscribes to samples of one Topic (spec §6).
type DataReader struct {
	entity

	dp    *DomainParticipant
	r     *reader.StatefulReader
	topic *Topic
	cond  *StatusCondition
}

// StatusCondition returns the condition that fires on this reader's
// status events (subscription-matched, requested-incompatible-QoS,
// requested-deadline-missed).
func (dr *DataReader) StatusCondition() *StatusCondition {
	return dr.cond
}

// SetListener installs l to receive this reader's status events.
func (dr *DataReader) SetListener(l DataReaderListener) error {
	return dr.setListener(l)
}

// GetListener returns the currently installed listener, or nil.
func (dr *DataReader) GetListener() DataReaderListener {
	l, _ := dr.getListener().(DataReaderListener)
	return l
}

// Read returns every available sample without removing it from the
// reader's history cache (spec §6 read()), or NoData if none are
// available.
func (dr *DataReader) Read() ([]*history.Sample, error) {
	if err := dr.requireEnabled(); err != nil {
		return nil, err
	}
	samples := dr.dp.p.Read(dr.r, dr.r.DefaultFilter())
	if len(samples) == 0 {
		return nil, ddserror.New(ddserror.NoData, "")
	}
	return samples, nil
}

// Take returns and removes every available sample (spec §6 take()), or
// NoData if none are available.
func (dr *DataReader) Take() ([]*history.Sample, error) {
	if err := dr.requireEnabled(); err != nil {
		return nil, err
	}
	samples := dr.dp.p.Take(dr.r, dr.r.DefaultFilter())
	if len(samples) == 0 {
		return nil, ddserror.New(ddserror.NoData, "")
	}
	return samples, nil
}
