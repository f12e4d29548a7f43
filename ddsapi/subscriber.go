package ddsapi

import (
	"github.com/go-rtps/rtps/core/qos"
)

// Subscriber groups the DataReaders it creates (spec §6).
type Subscriber struct {
	entity
	dp *DomainParticipant
}

// CreateDataReader creates a DataReader subscribing to topic under
// policies.
func (sub *Subscriber) CreateDataReader(topic *Topic, policies qos.Policies) (*DataReader, error) {
	if err := sub.requireEnabled(); err != nil {
		return nil, err
	}
	if err := topic.requireEnabled(); err != nil {
		return nil, err
	}

	r, err := sub.dp.p.CreateDataReader(topic.Name, topic.TypeName, policies)
	if err != nil {
		return nil, err
	}

	dr := &DataReader{entity: entity{enabled: true}, dp: sub.dp, r: r, topic: topic, cond: newStatusCondition()}
	sub.dp.mu.Lock()
	sub.dp.readers[r.Guid] = dr
	sub.dp.mu.Unlock()
	return dr, nil
}

// DeleteDataReader withdraws dr's SEDP announcement and marks it deleted.
func (sub *Subscriber) DeleteDataReader(dr *DataReader) error {
	if err := sub.dp.p.DeleteDataReader(dr.r); err != nil {
		return err
	}
	dr.markDeleted()
	sub.dp.mu.Lock()
	delete(sub.dp.readers, dr.r.Guid)
	sub.dp.mu.Unlock()
	return nil
}
