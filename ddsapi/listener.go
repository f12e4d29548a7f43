package ddsapi

import (
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
)

// DataWriterListener receives the status events of one DataWriter (spec
// §4.9/§6), narrowed from participant.Listener's participant-wide,
// GUID-addressed callbacks to the single entity they concern.
type DataWriterListener interface {
	OnPublicationMatched(countChange int)
	OnOfferedIncompatibleQos(policy qos.PolicyID)
}

// DataReaderListener receives the status events of one DataReader.
type DataReaderListener interface {
	OnSubscriptionMatched(countChange int)
	OnRequestedIncompatibleQos(policy qos.PolicyID)
	OnRequestedDeadlineMissed(handle types.InstanceHandle)
}

// TopicListener receives a Topic's inconsistent-topic status event.
type TopicListener interface {
	OnInconsistentTopic()
}
