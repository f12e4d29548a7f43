package ddsapi

import (
	"github.com/go-rtps/rtps/core/qos"
)

// Publisher groups the DataWriters it creates (spec §6). It carries no QoS
// of its own beyond what spec.md scopes to entity creation — Presentation/
// Partition grouping semantics live on the policies passed to
// CreateDataWriter, not on Publisher itself.
type Publisher struct {
	entity
	dp *DomainParticipant
}

// CreateDataWriter creates a DataWriter publishing topic under policies
// (spec §4.8 "on enable" — the writer announces itself over SEDP
// immediately, since every entity here is created already-enabled).
func (pub *Publisher) CreateDataWriter(topic *Topic, policies qos.Policies) (*DataWriter, error) {
	if err := pub.requireEnabled(); err != nil {
		return nil, err
	}
	if err := topic.requireEnabled(); err != nil {
		return nil, err
	}

	w, err := pub.dp.p.CreateDataWriter(topic.Name, topic.TypeName, policies)
	if err != nil {
		return nil, err
	}

	dw := &DataWriter{entity: entity{enabled: true}, dp: pub.dp, w: w, topic: topic, cond: newStatusCondition()}
	pub.dp.mu.Lock()
	pub.dp.writers[w.Guid] = dw
	pub.dp.mu.Unlock()
	return dw, nil
}

// DeleteDataWriter withdraws dw's SEDP announcement and marks it deleted
// (spec §7: further use returns AlreadyDeleted).
func (pub *Publisher) DeleteDataWriter(dw *DataWriter) error {
	if err := pub.dp.p.DeleteDataWriter(dw.w); err != nil {
		return err
	}
	dw.markDeleted()
	pub.dp.mu.Lock()
	delete(pub.dp.writers, dw.w.Guid)
	pub.dp.mu.Unlock()
	return nil
}
