package ddsapi

import (
	"sync"

	"github.com/go-rtps/rtps/core/config"
	"github.com/go-rtps/rtps/core/ddserror"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/participant"
)

// DomainParticipantFactory creates DomainParticipants. It holds no state
// of its own: every call is independent, rather than routing through a
// process-wide singleton.
type DomainParticipantFactory struct{}

// CreateParticipant builds a DomainParticipant from cfg. The returned
// participant is created disabled; call Enable to open its sockets and
// join the domain (spec §6 Entity.Enable).
func (DomainParticipantFactory) CreateParticipant(cfg config.Config) (*DomainParticipant, error) {
	p, err := participant.New(cfg)
	if err != nil {
		return nil, err
	}
	dp := &DomainParticipant{
		p:       p,
		types:   NewTypeSupportRegistry(),
		writers: make(map[types.GUID]*DataWriter),
		readers: make(map[types.GUID]*DataReader),
		topics:  make(map[string]*Topic),
	}
	p.Listener = dp
	return dp, nil
}

// DomainParticipant is the top-level DDS entity: it owns the underlying
// protocol participant, and is the factory for Publishers, Subscribers,
// and Topics (spec §6). It implements participant.Listener, demultiplexing
// the protocol engine's GUID-addressed status events back to the specific
// DataWriter/DataReader/Topic entity each one concerns.
type DomainParticipant struct {
	entity

	p     *participant.Participant
	types *TypeSupportRegistry

	mu      sync.Mutex
	writers map[types.GUID]*DataWriter
	readers map[types.GUID]*DataReader
	topics  map[string]*Topic
}

// Enable opens this participant's sockets and starts its background
// goroutines (spec §4.10/§5), exactly once regardless of how many times
// Enable is called (spec §6 Entity.Enable is idempotent). Every entity
// created under this participant — Publisher, Subscriber, Topic,
// DataWriter, DataReader — is created already enabled, matching the DDS
// default ENTITY_FACTORY QoS (autoenable_created_entities = true); only
// the participant itself gates a real side effect behind an explicit call.
func (dp *DomainParticipant) Enable() error {
	return dp.enableWith(dp.p.Start)
}

// RegisterType records ts so CreateTopic can validate against it.
func (dp *DomainParticipant) RegisterType(ts TypeSupport) error {
	return dp.types.Register(ts)
}

// CreateTopic creates a Topic bound to typeName, which must already be
// registered via RegisterType (spec §6; spec §7 BadParameter otherwise).
func (dp *DomainParticipant) CreateTopic(name, typeName string) (*Topic, error) {
	if err := dp.requireEnabled(); err != nil {
		return nil, err
	}
	if _, ok := dp.types.Lookup(typeName); !ok {
		return nil, ddserror.New(ddserror.BadParameter, "type %q is not registered", typeName)
	}

	dp.mu.Lock()
	defer dp.mu.Unlock()
	if _, exists := dp.topics[name]; exists {
		return nil, ddserror.New(ddserror.PreconditionNotMet, "topic %q already exists", name)
	}
	t := &Topic{entity: entity{enabled: true}, dp: dp, Name: name, TypeName: typeName, cond: newStatusCondition()}
	dp.topics[name] = t
	return t, nil
}

// CreatePublisher creates a Publisher under this participant.
func (dp *DomainParticipant) CreatePublisher() (*Publisher, error) {
	if err := dp.requireEnabled(); err != nil {
		return nil, err
	}
	return &Publisher{entity: entity{enabled: true}, dp: dp}, nil
}

// CreateSubscriber creates a Subscriber under this participant.
func (dp *DomainParticipant) CreateSubscriber() (*Subscriber, error) {
	if err := dp.requireEnabled(); err != nil {
		return nil, err
	}
	return &Subscriber{entity: entity{enabled: true}, dp: dp}, nil
}

// Close disposes this participant and every entity it owns, and closes
// its transport (spec §5 "graceful shutdown").
func (dp *DomainParticipant) Close() error {
	dp.markDeleted()
	return dp.p.Close()
}

// The following methods satisfy participant.Listener. Each looks up the
// specific entity the event concerns, triggers that entity's
// StatusCondition unconditionally, and additionally invokes its listener
// if one was installed (spec §6: StatusCondition and listener are both
// live at once, not an either/or).

func (dp *DomainParticipant) OnPublicationMatched(writerGuid, readerGuid types.GUID, countChange int) {
	dw := dp.lookupWriter(writerGuid)
	if dw == nil {
		return
	}
	dw.cond.trigger()
	if l := dw.GetListener(); l != nil {
		l.OnPublicationMatched(countChange)
	}
}

func (dp *DomainParticipant) OnSubscriptionMatched(readerGuid, writerGuid types.GUID, countChange int) {
	dr := dp.lookupReader(readerGuid)
	if dr == nil {
		return
	}
	dr.cond.trigger()
	if l := dr.GetListener(); l != nil {
		l.OnSubscriptionMatched(countChange)
	}
}

func (dp *DomainParticipant) OnOfferedIncompatibleQos(writerGuid types.GUID, policy qos.PolicyID) {
	dw := dp.lookupWriter(writerGuid)
	if dw == nil {
		return
	}
	dw.cond.trigger()
	if l := dw.GetListener(); l != nil {
		l.OnOfferedIncompatibleQos(policy)
	}
}

func (dp *DomainParticipant) OnRequestedIncompatibleQos(readerGuid types.GUID, policy qos.PolicyID) {
	dr := dp.lookupReader(readerGuid)
	if dr == nil {
		return
	}
	dr.cond.trigger()
	if l := dr.GetListener(); l != nil {
		l.OnRequestedIncompatibleQos(policy)
	}
}

func (dp *DomainParticipant) OnInconsistentTopic(topicName string) {
	dp.mu.Lock()
	t := dp.topics[topicName]
	dp.mu.Unlock()
	if t == nil {
		return
	}
	t.cond.trigger()
	if l := t.GetListener(); l != nil {
		l.OnInconsistentTopic()
	}
}

func (dp *DomainParticipant) OnRequestedDeadlineMissed(readerGuid types.GUID, handle types.InstanceHandle) {
	dr := dp.lookupReader(readerGuid)
	if dr == nil {
		return
	}
	dr.cond.trigger()
	if l := dr.GetListener(); l != nil {
		l.OnRequestedDeadlineMissed(handle)
	}
}

func (dp *DomainParticipant) lookupWriter(guid types.GUID) *DataWriter {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.writers[guid]
}

func (dp *DomainParticipant) lookupReader(guid types.GUID) *DataReader {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.readers[guid]
}
