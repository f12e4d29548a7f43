package ddsapi

// Topic names a stream of samples of one type under a DomainParticipant
// (spec §6). It carries no protocol state of its own — SEDP's topic
// matching operates on the TopicName/TypeName string pair a DataWriter or
// DataReader announces, not on a dedicated wire entity — so Topic here is
// purely the ddsapi-level handle CreatePublisher/CreateSubscriber's
// CreateDataWriter/CreateDataReader consume.
type Topic struct {
	entity

	dp       *DomainParticipant
	Name     string
	TypeName string
	cond     *StatusCondition
}

// StatusCondition returns the condition that fires on this topic's status
// events (currently just inconsistent-topic).
func (t *Topic) StatusCondition() *StatusCondition {
	return t.cond
}

// SetListener installs l to receive this topic's status events.
func (t *Topic) SetListener(l TopicListener) error {
	return t.setListener(l)
}

// GetListener returns the currently installed listener, or nil.
func (t *Topic) GetListener() TopicListener {
	l, _ := t.getListener().(TopicListener)
	return l
}
