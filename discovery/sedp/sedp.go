// Package sedp implements the Simple Endpoint Discovery Protocol (spec
// §4.8): three reliable stateful endpoint pairs (publications,
// subscriptions, topics) that announce and discover builtin-topic-data
// for user endpoints, and the topic-name/type-name/QoS matching rule
// that turns a discovered peer into a ReaderProxy or WriterProxy.
package sedp

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-rtps/rtps/discovery"

	rtpslog "github.com/go-rtps/rtps/core/log"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/proxy"
	"github.com/go-rtps/rtps/rtps/reader"
	"github.com/go-rtps/rtps/rtps/writer"
)

// EndpointData is the decoded DiscoveredWriterData/DiscoveredReaderData
// builtin-topic-data payload (spec §4.8).
type EndpointData struct {
	EndpointGuid     types.GUID
	TopicName        string
	TypeName         string
	Policies         qos.Policies
	UnicastLocators  []types.Locator
	MulticastLocators []types.Locator

	// Extension carries implementation-specific fields outside the
	// standard builtin-topic-data field set.
	Extension discovery.VendorExtension
}

// TopicData is the decoded DiscoveredTopicData payload (spec §4.8).
type TopicData struct {
	TopicName string
	TypeName  string
	Policies  qos.Policies
}

func encodeLocators(order binary.ByteOrder, locs []types.Locator) []byte {
	buf := make([]byte, 0, 24*len(locs))
	for _, l := range locs {
		entry := make([]byte, 24)
		order.PutUint32(entry[0:4], uint32(l.Kind))
		order.PutUint32(entry[4:8], l.Port)
		copy(entry[8:24], l.Address[:])
		buf = append(buf, entry...)
	}
	return buf
}

func decodeLocator(order binary.ByteOrder, b []byte) types.Locator {
	var l types.Locator
	if len(b) < 24 {
		return l
	}
	l.Kind = types.LocatorKind(int32(order.Uint32(b[0:4])))
	l.Port = order.Uint32(b[4:8])
	copy(l.Address[:], b[8:24])
	return l
}

func encodeQos(order binary.ByteOrder, pl *wire.ParameterList, p qos.Policies) {
	relBuf := make([]byte, 8)
	order.PutUint32(relBuf[0:4], uint32(p.Reliability.Kind))
	order.PutUint32(relBuf[4:8], uint32(p.Reliability.MaxBlockingTime))
	pl.Add(wire.PIDReliability, relBuf)

	durBuf := make([]byte, 4)
	order.PutUint32(durBuf, uint32(p.Durability.Kind))
	pl.Add(wire.PIDDurability, durBuf)

	deadlineBuf := make([]byte, 8)
	order.PutUint64(deadlineBuf, uint64(p.Deadline.Period))
	pl.Add(wire.PIDDeadline, deadlineBuf)

	latencyBuf := make([]byte, 8)
	order.PutUint64(latencyBuf, uint64(p.LatencyBudget.Duration))
	pl.Add(wire.PIDLatencyBudget, latencyBuf)

	ownBuf := make([]byte, 4)
	order.PutUint32(ownBuf, uint32(p.Ownership.Kind))
	pl.Add(wire.PIDOwnership, ownBuf)

	liveBuf := make([]byte, 12)
	order.PutUint32(liveBuf[0:4], uint32(p.Liveliness.Kind))
	order.PutUint64(liveBuf[4:12], uint64(p.Liveliness.LeaseDuration))
	pl.Add(wire.PIDLiveliness, liveBuf)

	presBuf := make([]byte, 4)
	presBuf[0] = byte(p.Presentation.AccessScope)
	if p.Presentation.CoherentAccess {
		presBuf[1] = 1
	}
	if p.Presentation.OrderedAccess {
		presBuf[2] = 1
	}
	pl.Add(wire.PIDPresentation, presBuf)

	doBuf := make([]byte, 4)
	order.PutUint32(doBuf, uint32(p.DestinationOrder.Kind))
	pl.Add(wire.PIDDestinationOrder, doBuf)

	for _, name := range p.Partition.Names {
		pl.Add(wire.PIDPartition, []byte(name))
	}
}

func decodeQos(order binary.ByteOrder, pl wire.ParameterList) qos.Policies {
	var p qos.Policies
	if b, ok := pl.Get(wire.PIDReliability); ok && len(b) >= 8 {
		p.Reliability.Kind = qos.ReliabilityKind(order.Uint32(b[0:4]))
		p.Reliability.MaxBlockingTime = time.Duration(order.Uint32(b[4:8]))
	}
	if b, ok := pl.Get(wire.PIDDurability); ok && len(b) >= 4 {
		p.Durability.Kind = qos.DurabilityKind(order.Uint32(b))
	}
	if b, ok := pl.Get(wire.PIDDeadline); ok && len(b) >= 8 {
		p.Deadline.Period = time.Duration(order.Uint64(b))
	}
	if b, ok := pl.Get(wire.PIDLatencyBudget); ok && len(b) >= 8 {
		p.LatencyBudget.Duration = time.Duration(order.Uint64(b))
	}
	if b, ok := pl.Get(wire.PIDOwnership); ok && len(b) >= 4 {
		p.Ownership.Kind = qos.OwnershipKind(order.Uint32(b))
	}
	if b, ok := pl.Get(wire.PIDLiveliness); ok && len(b) >= 12 {
		p.Liveliness.Kind = qos.LivelinessKind(order.Uint32(b[0:4]))
		p.Liveliness.LeaseDuration = time.Duration(order.Uint64(b[4:12]))
	}
	if b, ok := pl.Get(wire.PIDPresentation); ok && len(b) >= 3 {
		p.Presentation.AccessScope = qos.PresentationAccessScope(b[0])
		p.Presentation.CoherentAccess = b[1] != 0
		p.Presentation.OrderedAccess = b[2] != 0
	}
	if b, ok := pl.Get(wire.PIDDestinationOrder); ok && len(b) >= 4 {
		p.DestinationOrder.Kind = qos.DestinationOrderKind(order.Uint32(b))
	}
	for _, param := range pl.Params {
		if param.ID == wire.PIDPartition {
			p.Partition.Names = append(p.Partition.Names, string(param.Value))
		}
	}
	return p
}

// EncodeEndpoint renders an EndpointData as a ParameterList.
func EncodeEndpoint(order binary.ByteOrder, d EndpointData) wire.ParameterList {
	var pl wire.ParameterList

	guidBuf := make([]byte, types.GuidPrefixLength+4)
	copy(guidBuf, d.EndpointGuid.Prefix[:])
	copy(guidBuf[types.GuidPrefixLength:], d.EndpointGuid.Entity.Key[:])
	guidBuf[types.GuidPrefixLength+3] = byte(d.EndpointGuid.Entity.Kind)
	pl.Add(wire.PIDEndpointGuid, guidBuf)

	pl.Add(wire.PIDTopicName, []byte(d.TopicName))
	pl.Add(wire.PIDTypeName, []byte(d.TypeName))

	encodeQos(order, &pl, d.Policies)

	for _, l := range d.UnicastLocators {
		pl.Add(wire.PIDDefaultUnicastLocator, encodeLocators(order, []types.Locator{l}))
	}
	for _, l := range d.MulticastLocators {
		pl.Add(wire.PIDDefaultMulticastLocator, encodeLocators(order, []types.Locator{l}))
	}

	discovery.EncodeVendorExtension(&pl, d.Extension)

	return pl
}

// DecodeEndpoint parses a ParameterList into EndpointData.
func DecodeEndpoint(order binary.ByteOrder, pl wire.ParameterList) EndpointData {
	var d EndpointData
	if b, ok := pl.Get(wire.PIDEndpointGuid); ok && len(b) >= types.GuidPrefixLength+4 {
		copy(d.EndpointGuid.Prefix[:], b[:types.GuidPrefixLength])
		copy(d.EndpointGuid.Entity.Key[:], b[types.GuidPrefixLength:types.GuidPrefixLength+3])
		d.EndpointGuid.Entity.Kind = types.EntityKind(b[types.GuidPrefixLength+3])
	}
	if b, ok := pl.Get(wire.PIDTopicName); ok {
		d.TopicName = string(b)
	}
	if b, ok := pl.Get(wire.PIDTypeName); ok {
		d.TypeName = string(b)
	}
	d.Policies = decodeQos(order, pl)
	if ext, ok, err := discovery.DecodeVendorExtension(pl); err == nil && ok {
		d.Extension = ext
	}
	for _, p := range pl.Params {
		switch p.ID {
		case wire.PIDDefaultUnicastLocator:
			d.UnicastLocators = append(d.UnicastLocators, decodeLocator(order, p.Value))
		case wire.PIDDefaultMulticastLocator:
			d.MulticastLocators = append(d.MulticastLocators, decodeLocator(order, p.Value))
		}
	}
	return d
}

// EncodeTopic renders a TopicData as a ParameterList.
func EncodeTopic(order binary.ByteOrder, d TopicData) wire.ParameterList {
	var pl wire.ParameterList
	pl.Add(wire.PIDTopicName, []byte(d.TopicName))
	pl.Add(wire.PIDTypeName, []byte(d.TypeName))
	encodeQos(order, &pl, d.Policies)
	return pl
}

// DecodeTopic parses a ParameterList into TopicData.
func DecodeTopic(order binary.ByteOrder, pl wire.ParameterList) TopicData {
	var d TopicData
	if b, ok := pl.Get(wire.PIDTopicName); ok {
		d.TopicName = string(b)
	}
	if b, ok := pl.Get(wire.PIDTypeName); ok {
		d.TypeName = string(b)
	}
	d.Policies = decodeQos(order, pl)
	return d
}

// LocalWriter is a published user endpoint SEDP can match discovered
// readers against.
type LocalWriter struct {
	Endpoint EndpointData
	Writer   *writer.StatefulWriter
}

// LocalReader is a subscribed user endpoint SEDP can match discovered
// writers against.
type LocalReader struct {
	Endpoint EndpointData
	Reader   *reader.StatefulReader
}

// MatchListener is notified of match-state transitions raised while
// processing discovered endpoints (spec §4.8).
type MatchListener interface {
	PublicationMatched(local types.GUID, remote types.GUID, countChange int)
	SubscriptionMatched(local types.GUID, remote types.GUID, countChange int)
	OfferedIncompatibleQos(local types.GUID, failed qos.PolicyID)
	RequestedIncompatibleQos(local types.GUID, failed qos.PolicyID)
	InconsistentTopic(topicName string)
}

// Endpoints tracks every local published/subscribed endpoint and every
// discovered remote counterpart, applying the spec §4.8 matching rule.
type Endpoints struct {
	mu sync.Mutex

	localWriters map[types.GUID]*LocalWriter
	localReaders map[types.GUID]*LocalReader

	knownTopics map[string]TopicData

	listener MatchListener
	log      interface {
		Debugf(format string, args ...interface{})
	}
}

// NewEndpoints constructs an empty Endpoints table reporting matches to
// listener.
func NewEndpoints(listener MatchListener) *Endpoints {
	return &Endpoints{
		localWriters: make(map[types.GUID]*LocalWriter),
		localReaders: make(map[types.GUID]*LocalReader),
		knownTopics:  make(map[string]TopicData),
		listener:     listener,
		log:          rtpslog.NewEngineLogger("discovery.sedp"),
	}
}

// AddLocalWriter registers a local publication.
func (e *Endpoints) AddLocalWriter(lw *LocalWriter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localWriters[lw.Endpoint.EndpointGuid] = lw
}

// AddLocalReader registers a local subscription.
func (e *Endpoints) AddLocalReader(lr *LocalReader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localReaders[lr.Endpoint.EndpointGuid] = lr
}

func sameTopic(a, b EndpointData) bool {
	return a.TopicName == b.TopicName && a.TypeName == b.TypeName
}

// HandleDiscoveredReader matches remote against every local writer (spec
// §4.8 "Matching").
func (e *Endpoints) HandleDiscoveredReader(remote EndpointData) {
	e.mu.Lock()
	writers := make([]*LocalWriter, 0, len(e.localWriters))
	for _, lw := range e.localWriters {
		writers = append(writers, lw)
	}
	e.mu.Unlock()

	for _, lw := range writers {
		if !sameTopic(lw.Endpoint, remote) {
			continue
		}
		result := qos.Match(lw.Endpoint.Policies, remote.Policies)
		if !result.Compatible {
			if id, ok := result.FirstFailure(); ok && e.listener != nil {
				e.listener.OfferedIncompatibleQos(lw.Endpoint.EndpointGuid, id)
			}
			continue
		}
		rp := proxy.NewReaderProxy(remote.EndpointGuid, remote.Policies.Reliability.Kind == qos.Reliable, 1)
		rp.UnicastLocators = remote.UnicastLocators
		rp.MulticastLocators = remote.MulticastLocators
		rp.Durability = int(remote.Policies.Durability.Kind)
		lw.Writer.MatchedReaderAdd(rp)
		if e.listener != nil {
			e.listener.PublicationMatched(lw.Endpoint.EndpointGuid, remote.EndpointGuid, 1)
		}
	}
}

// HandleDiscoveredWriter matches remote against every local reader,
// symmetric to HandleDiscoveredReader.
func (e *Endpoints) HandleDiscoveredWriter(remote EndpointData) {
	e.mu.Lock()
	readers := make([]*LocalReader, 0, len(e.localReaders))
	for _, lr := range e.localReaders {
		readers = append(readers, lr)
	}
	e.mu.Unlock()

	for _, lr := range readers {
		if !sameTopic(lr.Endpoint, remote) {
			continue
		}
		result := qos.Match(remote.Policies, lr.Endpoint.Policies)
		if !result.Compatible {
			if id, ok := result.FirstFailure(); ok && e.listener != nil {
				e.listener.RequestedIncompatibleQos(lr.Endpoint.EndpointGuid, id)
			}
			continue
		}
		wp := proxy.NewWriterProxy(remote.EndpointGuid)
		wp.UnicastLocators = remote.UnicastLocators
		wp.MulticastLocators = remote.MulticastLocators
		lr.Reader.MatchedWriterAdd(wp)
		if e.listener != nil {
			e.listener.SubscriptionMatched(lr.Endpoint.EndpointGuid, remote.EndpointGuid, 1)
		}
	}
}

// RemoveDiscoveredEndpoint unmatches remote from every local endpoint it
// was matched against, on dispose or participant lease expiry (spec
// §4.8 "Unmatch").
func (e *Endpoints) RemoveDiscoveredEndpoint(remote types.GUID) {
	e.mu.Lock()
	writers := make([]*LocalWriter, 0, len(e.localWriters))
	for _, lw := range e.localWriters {
		writers = append(writers, lw)
	}
	readers := make([]*LocalReader, 0, len(e.localReaders))
	for _, lr := range e.localReaders {
		readers = append(readers, lr)
	}
	e.mu.Unlock()

	for _, lw := range writers {
		if _, ok := lw.Writer.MatchedReader(remote); ok {
			lw.Writer.MatchedReaderRemove(remote)
			if e.listener != nil {
				e.listener.PublicationMatched(lw.Endpoint.EndpointGuid, remote, -1)
			}
		}
	}
	for _, lr := range readers {
		if _, ok := lr.Reader.MatchedWriter(remote); ok {
			lr.Reader.MatchedWriterRemove(remote)
			if e.listener != nil {
				e.listener.SubscriptionMatched(lr.Endpoint.EndpointGuid, remote, -1)
			}
		}
	}
}

// keyAffectingMismatch reports whether two topics disagree on QoS that
// affects key semantics (spec §4.8 "key-affecting QoS"): History and
// ResourceLimits shape how instances are tracked and must agree for two
// participants to interoperate on the same topic.
func keyAffectingMismatch(a, b qos.Policies) bool {
	return a.History.Kind != b.History.Kind || a.ResourceLimits.MaxInstances != b.ResourceLimits.MaxInstances
}

// HandleDiscoveredTopic checks an incoming DiscoveredTopicData against
// any topic of the same name we already know, raising InconsistentTopic
// on a type_name or key-affecting QoS mismatch (spec §4.8 "Topic
// consistency").
func (e *Endpoints) HandleDiscoveredTopic(remote TopicData) {
	e.mu.Lock()
	existing, known := e.knownTopics[remote.TopicName]
	if !known {
		e.knownTopics[remote.TopicName] = remote
	}
	e.mu.Unlock()

	if !known {
		return
	}
	if existing.TypeName != remote.TypeName || keyAffectingMismatch(existing.Policies, remote.Policies) {
		if e.listener != nil {
			e.listener.InconsistentTopic(remote.TopicName)
		}
	}
}
