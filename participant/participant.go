// Package participant implements the Participant Engine (spec §4.10): the
// actor that owns one domain participant's transport, discovery agents,
// endpoint registries, and periodic task scheduler, and serializes every
// user-facing operation onto a single executor goroutine (spec §5).
package participant

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-rtps/rtps/core/config"
	"github.com/go-rtps/rtps/core/ddserror"
	rtpslog "github.com/go-rtps/rtps/core/log"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/discovery/sedp"
	"github.com/go-rtps/rtps/discovery/spdp"
	"github.com/go-rtps/rtps/internal/worker"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/proxy"
	"github.com/go-rtps/rtps/rtps/reader"
	"github.com/go-rtps/rtps/rtps/receiver"
	"github.com/go-rtps/rtps/rtps/writer"
	"github.com/go-rtps/rtps/transport"

	charmlog "github.com/charmbracelet/log"
)

// defaultOrder is the byte order every wire structure in this package
// uses, matching the rest of the protocol engine.
var defaultOrder binary.ByteOrder = binary.BigEndian

// spdpMulticastAddress is the RTPS well-known SPDP multicast group.
var spdpMulticastAddress = net.IPv4(239, 255, 0, 1)

// taskPeriod paces the periodic task scheduler: SEDP/user-writer
// heartbeat and retransmission maintenance, liveliness assertion, and
// deadline monitoring (spec §4.10).
const taskPeriod = 100 * time.Millisecond

// rtpsOverheadBytes bounds the RTPS message header plus one DATA/DATAFRAG
// submessage header and its inline QoS allowance, leaving the rest of the
// configured MTU for fragment payload (spec §8 boundary rule).
const rtpsOverheadBytes = 88

// fragmentPayloadSize derives the per-DATAFRAG payload size from the
// configured transport MTU.
func fragmentPayloadSize(cfg config.Config) int {
	n := cfg.Transport.MTU - rtpsOverheadBytes
	if n < 1 {
		n = 1
	}
	return n
}

// Listener receives the status events a participant's entities raise
// (spec §4.9/§4.10). A nil field on Participant means events are
// dropped; ddsapi installs one per entity in front of this.
type Listener interface {
	OnPublicationMatched(writerGuid, readerGuid types.GUID, countChange int)
	OnSubscriptionMatched(readerGuid, writerGuid types.GUID, countChange int)
	OnOfferedIncompatibleQos(writerGuid types.GUID, policy qos.PolicyID)
	OnRequestedIncompatibleQos(readerGuid types.GUID, policy qos.PolicyID)
	OnInconsistentTopic(topicName string)
	OnRequestedDeadlineMissed(readerGuid types.GUID, handle types.InstanceHandle)
}

// userWriter bundles a created DataWriter with the QoS it was created
// with, so the periodic task scheduler can find liveliness/heartbeat
// work without threading policies through every call site.
type userWriter struct {
	writer   *writer.StatefulWriter
	policies qos.Policies
	topic    string
}

type userReader struct {
	reader   *reader.StatefulReader
	policies qos.Policies
	topic    string
}

// Participant is the actor owning one domain participant's identity,
// transport, discovery agents, and user endpoints (spec §4.10). Every
// method that touches shared state is dispatched through mailbox onto
// the single executor goroutine started by Start.
type Participant struct {
	worker.Worker

	GuidPrefix types.GuidPrefix
	cfg        config.Config

	Transport *transport.Transport
	Receiver  *receiver.MessageReceiver
	endpoints receiver.EndpointLookup

	SPDP *spdp.Agent
	SEDP *sedp.Agent

	spdpReader      *reader.StatelessReader
	sedpPubWriter   *writer.StatefulWriter
	sedpSubWriter   *writer.StatefulWriter
	sedpTopicWriter *writer.StatefulWriter
	sedpPubReader   *reader.StatefulReader
	sedpSubReader   *reader.StatefulReader
	sedpTopicReader *reader.StatefulReader

	metatrafficUnicastLoc types.Locator
	defaultUnicastLoc     types.Locator
	spdpMulticastLoc      types.Locator
	userMulticastLoc      types.Locator

	mu            sync.Mutex
	userWriters   map[types.GUID]*userWriter
	userReaders   map[types.GUID]*userReader
	entityCounter uint32

	mailbox *Mailbox

	// Registry is this participant's own prometheus collector registry
	// (not the global DefaultRegisterer), since a single process may
	// host more than one Participant and each needs its own metric
	// instances. A caller wanting to expose them wires Registry into a
	// promhttp.Handler.
	Registry *prometheus.Registry
	Metrics  *Metrics

	Listener Listener

	log *charmlog.Logger
}

// New builds a Participant from cfg but does not yet open any socket or
// start any goroutine; call Start for that.
func New(cfg config.Config) (*Participant, error) {
	prefix, err := newGuidPrefix()
	if err != nil {
		return nil, ddserror.New(ddserror.OutOfResources, "generating guid prefix: %v", err)
	}

	ports := types.DefaultPortParams()
	domainID := cfg.Domain.DomainID
	participantID := cfg.Domain.ParticipantID

	prefixLabel := "participant"
	if cfg.Domain.DomainTag != "" {
		prefixLabel = "participant[" + cfg.Domain.DomainTag + "]"
	}

	registry := prometheus.NewRegistry()
	p := &Participant{
		GuidPrefix:  prefix,
		cfg:         cfg,
		Transport:   transport.NewTransport(256),
		userWriters: make(map[types.GUID]*userWriter),
		userReaders: make(map[types.GUID]*userReader),
		mailbox:     NewMailbox(),
		Registry:    registry,
		Metrics:     NewMetrics(registry),
		log:         rtpslog.NewClientLogger(prefixLabel),
	}

	p.spdpMulticastLoc = types.NewLocatorUDPv4(spdpMulticastAddress, ports.SpdpMulticastPort(domainID))
	p.metatrafficUnicastLoc = types.NewLocatorUDPv4(net.IPv4(127, 0, 0, 1), ports.MetatrafficUnicastPort(domainID, participantID))
	p.defaultUnicastLoc = types.NewLocatorUDPv4(net.IPv4(127, 0, 0, 1), ports.UserUnicastPort(domainID, participantID))
	p.userMulticastLoc = types.NewLocatorUDPv4(net.IPv4(239, 255, 0, 2), ports.UserMulticastPort(domainID))

	p.endpoints = receiver.EndpointLookup{
		DataReaders:          make(map[types.EntityId]receiver.DataHandler),
		GapReaders:           make(map[types.EntityId]receiver.GapHandler),
		HeartbeatReaders:     make(map[types.EntityId]receiver.HeartbeatHandler),
		AckNackWriters:       make(map[types.EntityId]receiver.AckNackHandler),
		DataFragReaders:      make(map[types.EntityId]receiver.DataFragHandler),
		HeartbeatFragReaders: make(map[types.EntityId]receiver.HeartbeatFragHandler),
		NackFragWriters:      make(map[types.EntityId]receiver.NackFragHandler),
	}
	p.Receiver = receiver.NewMessageReceiver(prefix, p.endpoints)

	p.buildSpdp(cfg, domainID, participantID)
	p.buildSedp(cfg)

	p.SPDP.OnParticipantRemoved = p.handleParticipantRemoved

	return p, nil
}

// Config returns the configuration this participant was built from.
func (p *Participant) Config() config.Config {
	return p.cfg
}

func newGuidPrefix() (types.GuidPrefix, error) {
	var prefix types.GuidPrefix
	_, err := rand.Read(prefix[:])
	return prefix, err
}

func (p *Participant) buildSpdp(cfg config.Config, domainID, participantID uint32) {
	spdpHistory := qos.HistoryPolicy{Kind: qos.KeepLast, Depth: 1}
	spdpLimits := qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited}

	spdpCache := history.NewWriterCache()
	spdpCache.SetPolicies(spdpHistory, spdpLimits)
	w := writer.NewStatelessWriter(
		types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSpdpWriter},
		spdpCache,
		[]types.Locator{p.spdpMulticastLoc},
		p.sendToLocator,
	)

	readerCache := history.NewReaderCache(spdpHistory, spdpLimits)
	p.spdpReader = reader.NewStatelessReader(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSpdpReader}, readerCache)

	local := spdp.ParticipantData{
		DomainId:               int32(domainID),
		DomainTag:              cfg.Domain.DomainTag,
		ProtocolVersion:        wire.ProtocolVersion2_3,
		VendorId:               wire.VendorIdThis,
		GuidPrefix:             p.GuidPrefix,
		MetatrafficUnicastLocs: []types.Locator{p.metatrafficUnicastLoc},
		DefaultUnicastLocs:     []types.Locator{p.defaultUnicastLoc},
		DefaultMulticastLocs:   []types.Locator{p.userMulticastLoc},
		AvailableBuiltinEndpoints: spdp.BuiltinParticipantAnnouncer | spdp.BuiltinParticipantDetector |
			spdp.BuiltinPublicationsAnnouncer | spdp.BuiltinPublicationsDetector |
			spdp.BuiltinSubscriptionsAnnouncer | spdp.BuiltinSubscriptionsDetector |
			spdp.BuiltinTopicsAnnouncer | spdp.BuiltinTopicsDetector,
		LeaseDuration: cfg.Discovery.LeaseDuration.Duration,
	}

	p.SPDP = spdp.NewAgent(local, cfg.Discovery.SPDPAnnounceInterval.Duration, w, p.spdpReader)
	// SPDP's StatelessWriter has no matched readers to address, so it
	// stamps ReaderID as ENTITYID_UNKNOWN on every DATA it broadcasts
	// (spec §4.7). There is exactly one local SPDP reader, so keying its
	// handler off the same wildcard is unambiguous and lets the message
	// receiver's exact-match dispatch find it.
	p.endpoints.DataReaders[types.EntityIdUnknown] = dataHandlerFunc(p.handleSpdpData)
}

func (p *Participant) buildSedp(cfg config.Config) {
	hb := cfg.QoS.HeartbeatPeriod.Duration

	builtinLimits := qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited}
	builtinHistory := qos.HistoryPolicy{Kind: qos.KeepLast, Depth: 1}
	reliablePolicy := qos.ReliabilityPolicy{Kind: qos.Reliable}

	sedpPubCache := history.NewWriterCache()
	sedpPubCache.SetPolicies(builtinHistory, builtinLimits)
	p.sedpPubWriter = writer.NewStatefulWriter(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSedpPubWriter}, reliablePolicy, sedpPubCache, hb, p.sendToReader)
	pubR := reader.NewStatefulReader(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSedpPubReader}, reliablePolicy, history.NewReaderCache(builtinHistory, builtinLimits), p.sendToWriter)

	sedpSubCache := history.NewWriterCache()
	sedpSubCache.SetPolicies(builtinHistory, builtinLimits)
	p.sedpSubWriter = writer.NewStatefulWriter(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSedpSubWriter}, reliablePolicy, sedpSubCache, hb, p.sendToReader)
	subR := reader.NewStatefulReader(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSedpSubReader}, reliablePolicy, history.NewReaderCache(builtinHistory, builtinLimits), p.sendToWriter)

	sedpTopicCache := history.NewWriterCache()
	sedpTopicCache.SetPolicies(builtinHistory, builtinLimits)
	p.sedpTopicWriter = writer.NewStatefulWriter(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSedpTopicWriter}, reliablePolicy, sedpTopicCache, hb, p.sendToReader)
	topicR := reader.NewStatefulReader(types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityIdSedpTopicReader}, reliablePolicy, history.NewReaderCache(builtinHistory, builtinLimits), p.sendToWriter)

	fragSize := fragmentPayloadSize(cfg)
	for _, w := range []*writer.StatefulWriter{p.sedpPubWriter, p.sedpSubWriter, p.sedpTopicWriter} {
		w.OnHeartbeatSent = p.Metrics.HeartbeatsSent.Inc
		w.OnAckNackHandled = p.Metrics.AckNacksReceived.Inc
		w.SetFragmentSize(fragSize)
		w.SetNackTiming(cfg.QoS.NackResponseDelay.Duration, cfg.QoS.NackSuppressionDuration.Duration)
	}
	p.sedpPubReader, p.sedpSubReader, p.sedpTopicReader = pubR, subR, topicR
	for _, r := range []*reader.StatefulReader{pubR, subR, topicR} {
		r.SetHeartbeatTiming(cfg.QoS.HeartbeatResponseDelay.Duration, cfg.QoS.HeartbeatSuppressionDuration.Duration)
	}

	p.SEDP = sedp.NewAgent(
		sedp.NewPair(p.sedpPubWriter, pubR),
		sedp.NewPair(p.sedpSubWriter, subR),
		sedp.NewPair(p.sedpTopicWriter, topicR),
		p,
	)

	p.endpoints.DataReaders[types.EntityIdSedpPubReader] = dataHandlerFunc(p.SEDP.HandlePublicationData)
	p.endpoints.DataReaders[types.EntityIdSedpSubReader] = dataHandlerFunc(p.SEDP.HandleSubscriptionData)
	p.endpoints.DataReaders[types.EntityIdSedpTopicReader] = dataHandlerFunc(p.SEDP.HandleTopicData)
	p.endpoints.GapReaders[types.EntityIdSedpPubReader] = pubR
	p.endpoints.GapReaders[types.EntityIdSedpSubReader] = subR
	p.endpoints.GapReaders[types.EntityIdSedpTopicReader] = topicR
	p.endpoints.HeartbeatReaders[types.EntityIdSedpPubReader] = pubR
	p.endpoints.HeartbeatReaders[types.EntityIdSedpSubReader] = subR
	p.endpoints.HeartbeatReaders[types.EntityIdSedpTopicReader] = topicR
	p.endpoints.AckNackWriters[types.EntityIdSedpPubWriter] = p.sedpPubWriter
	p.endpoints.AckNackWriters[types.EntityIdSedpSubWriter] = p.sedpSubWriter
	p.endpoints.AckNackWriters[types.EntityIdSedpTopicWriter] = p.sedpTopicWriter
	p.endpoints.DataFragReaders[types.EntityIdSedpPubReader] = pubR
	p.endpoints.DataFragReaders[types.EntityIdSedpSubReader] = subR
	p.endpoints.DataFragReaders[types.EntityIdSedpTopicReader] = topicR
	p.endpoints.HeartbeatFragReaders[types.EntityIdSedpPubReader] = pubR
	p.endpoints.HeartbeatFragReaders[types.EntityIdSedpSubReader] = subR
	p.endpoints.HeartbeatFragReaders[types.EntityIdSedpTopicReader] = topicR
	p.endpoints.NackFragWriters[types.EntityIdSedpPubWriter] = p.sedpPubWriter
	p.endpoints.NackFragWriters[types.EntityIdSedpSubWriter] = p.sedpSubWriter
	p.endpoints.NackFragWriters[types.EntityIdSedpTopicWriter] = p.sedpTopicWriter
}

// dataHandlerFunc adapts a plain function to receiver.DataHandler, the
// same function-as-interface idiom as net/http.HandlerFunc.
type dataHandlerFunc func(types.GUID, wire.DataBody, time.Time) (bool, history.RejectReason)

func (f dataHandlerFunc) HandleData(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
	return f(writerGuid, body, now)
}

func (p *Participant) handleSpdpData(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
	accepted, reason := p.spdpReader.HandleData(writerGuid, body, now)
	if body.HasKey && !body.HasData {
		p.SPDP.HandleDispose(writerGuid.Prefix)
		return accepted, reason
	}
	if !accepted || !body.HasData {
		return accepted, reason
	}
	pl, _, err := wire.DecodeParameterList(defaultOrder, body.SerializedPayload)
	if err != nil {
		return accepted, reason
	}
	p.SPDP.HandleAnnouncement(spdp.Decode(defaultOrder, pl))
	return accepted, reason
}

func (p *Participant) handleParticipantRemoved(prefix types.GuidPrefix) {
	p.SEDP.RemoveParticipant(prefix)
}

// The following methods satisfy sedp.MatchListener: Participant is its
// own SEDP match listener, forwarding every event into the optional
// Listener and into Metrics, keeping the protocol engine decoupled from
// whatever owns StatusCondition/WaitSet semantics above it (spec §6).

func (p *Participant) PublicationMatched(local, remote types.GUID, countChange int) {
	p.Metrics.MatchedReaders.Add(float64(countChange))
	if p.Listener != nil {
		p.Listener.OnPublicationMatched(local, remote, countChange)
	}
}

func (p *Participant) SubscriptionMatched(local, remote types.GUID, countChange int) {
	p.Metrics.MatchedWriters.Add(float64(countChange))
	if p.Listener != nil {
		p.Listener.OnSubscriptionMatched(local, remote, countChange)
	}
}

func (p *Participant) OfferedIncompatibleQos(local types.GUID, failed qos.PolicyID) {
	if p.Listener != nil {
		p.Listener.OnOfferedIncompatibleQos(local, failed)
	}
}

func (p *Participant) RequestedIncompatibleQos(local types.GUID, failed qos.PolicyID) {
	if p.Listener != nil {
		p.Listener.OnRequestedIncompatibleQos(local, failed)
	}
}

func (p *Participant) InconsistentTopic(topicName string) {
	if p.Listener != nil {
		p.Listener.OnInconsistentTopic(topicName)
	}
}

// sendToReader addresses sm to rp's preferred locator, used by every
// StatefulWriter this participant owns (spec §4.4/§4.6).
func (p *Participant) sendToReader(rp *proxy.ReaderProxy, sm wire.Submessage) {
	p.sendToLocator(pickLocator(rp.UnicastLocators, rp.MulticastLocators), sm)
}

// sendToWriter addresses sm (an ACKNACK) to wp's preferred locator, used
// by every StatefulReader this participant owns.
func (p *Participant) sendToWriter(wp *proxy.WriterProxy, sm wire.Submessage) {
	p.sendToLocator(pickLocator(wp.UnicastLocators, wp.MulticastLocators), sm)
}

func pickLocator(unicast, multicast []types.Locator) types.Locator {
	if len(unicast) > 0 {
		return unicast[0]
	}
	if len(multicast) > 0 {
		return multicast[0]
	}
	return types.InvalidLocator
}

func (p *Participant) sendToLocator(loc types.Locator, sm wire.Submessage) {
	if loc == types.InvalidLocator {
		return
	}
	msg := wire.Message{
		Header: wire.Header{
			Version:    wire.ProtocolVersion2_3,
			Vendor:     wire.VendorIdThis,
			GuidPrefix: p.GuidPrefix,
		},
		Submessages: []wire.Submessage{sm},
	}
	if err := p.Transport.Send(loc, wire.EncodeMessage(msg)); err != nil {
		p.log.Debug("send failed", "locator", loc.String(), "err", err)
	}
}

// Start opens this participant's sockets and launches its background
// goroutines: the executor, the inbound-message pump, and SPDP's own
// announce/sweep loop (spec §4.10/§5).
func (p *Participant) Start() error {
	if err := p.Transport.Listen(p.spdpMulticastLoc); err != nil {
		return err
	}
	if err := p.Transport.Listen(p.metatrafficUnicastLoc); err != nil {
		return err
	}
	if err := p.Transport.Listen(p.defaultUnicastLoc); err != nil {
		return err
	}

	p.SPDP.Start(types.EntityIdSpdpWriter)
	p.Go(p.executorLoop)
	p.Go(p.receiveLoop)
	return nil
}

func (p *Participant) executorLoop() {
	ticker := time.NewTicker(taskPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.HaltCh():
			return
		case raw := <-p.mailbox.Out():
			run(raw)
		case now := <-ticker.C:
			p.runPeriodicTasks(now)
		}
	}
}

func (p *Participant) receiveLoop() {
	for {
		select {
		case <-p.HaltCh():
			return
		case dg := <-p.Transport.Inbound():
			payload := dg.Payload
			_, err := p.mailbox.Submit(func() (interface{}, error) {
				return nil, p.Receiver.ProcessMessage(payload)
			})
			if err != nil {
				p.log.Debug("dropping undecodable datagram", "from", dg.From.String(), "err", err)
			}
		}
	}
}

// runPeriodicTasks implements the scheduler entries of spec §4.10 not
// already driven by SPDP's own goroutine (announcement, lease sweep):
// SEDP/user-writer retransmission and heartbeat pacing, delayed ACKNACK
// flushing, liveliness assertion, and deadline monitoring. HandleHeartbeat
// still answers synchronously whenever heartbeat_response_delay is zero;
// FlushAckNacks only has work to do for a writer proxy it deferred.
func (p *Participant) runPeriodicTasks(now time.Time) {
	p.sedpPubWriter.SendPendingReliable(now)
	p.sedpSubWriter.SendPendingReliable(now)
	p.sedpTopicWriter.SendPendingReliable(now)

	for _, r := range []*reader.StatefulReader{p.sedpPubReader, p.sedpSubReader, p.sedpTopicReader} {
		r.FlushAckNacks(now)
	}

	p.mu.Lock()
	writers := make([]*userWriter, 0, len(p.userWriters))
	for _, uw := range p.userWriters {
		writers = append(writers, uw)
	}
	readers := make([]*userReader, 0, len(p.userReaders))
	for _, ur := range p.userReaders {
		readers = append(readers, ur)
	}
	p.mu.Unlock()

	assertManual := false
	for _, uw := range writers {
		if uw.policies.Reliability.Kind == qos.Reliable {
			uw.writer.SendPendingReliable(now)
		} else {
			uw.writer.SendPendingBestEffort()
		}
		if uw.policies.Liveliness.Kind == qos.ManualByParticipant {
			assertManual = true
		}
	}
	if assertManual {
		p.SPDP.Local.ManualLivelinessCount++
	}

	for _, ur := range readers {
		ur.reader.FlushAckNacks(now)
		p.checkDeadline(ur, now)
	}
}

func (p *Participant) checkDeadline(ur *userReader, now time.Time) {
	if ur.policies.Deadline.Period <= 0 {
		return
	}
	for _, inst := range ur.reader.Cache.Instances() {
		if len(inst.Samples) == 0 {
			continue
		}
		last := inst.Samples[len(inst.Samples)-1]
		if now.Sub(last.Change.Timestamp) > ur.policies.Deadline.Period {
			if p.Listener != nil {
				p.Listener.OnRequestedDeadlineMissed(ur.reader.Guid, inst.Handle)
			}
		}
	}
}

func (p *Participant) nextEntityId(kind types.EntityKind) types.EntityId {
	n := atomic.AddUint32(&p.entityCounter, 1)
	return types.EntityId{Key: [3]byte{byte(n >> 16), byte(n >> 8), byte(n)}, Kind: kind}
}

// CreateDataWriter creates a reliable or best-effort StatefulWriter for
// topicName/typeName under policies, registers it for ACKNACK dispatch,
// and announces it via SEDP (spec §4.8 "on enable").
func (p *Participant) CreateDataWriter(topicName, typeName string, policies qos.Policies) (*writer.StatefulWriter, error) {
	if err := policies.Validate(); err != nil {
		return nil, ddserror.New(ddserror.InconsistentPolicy, "%v", err)
	}
	res, err := p.mailbox.Submit(func() (interface{}, error) {
		return p.createDataWriterLocked(topicName, typeName, policies)
	})
	if err != nil {
		return nil, err
	}
	return res.(*writer.StatefulWriter), nil
}

func (p *Participant) createDataWriterLocked(topicName, typeName string, policies qos.Policies) (*writer.StatefulWriter, error) {
	guid := types.GUID{Prefix: p.GuidPrefix, Entity: p.nextEntityId(types.EntityKindUserDefinedWriterKey)}
	wc := history.NewWriterCache()
	wc.SetPolicies(policies.History, policies.ResourceLimits)
	w := writer.NewStatefulWriter(guid, policies.Reliability, wc, p.cfg.QoS.HeartbeatPeriod.Duration, p.sendToReader)
	w.OnHeartbeatSent = p.Metrics.HeartbeatsSent.Inc
	w.OnAckNackHandled = p.Metrics.AckNacksReceived.Inc
	w.SetFragmentSize(fragmentPayloadSize(p.cfg))
	w.SetNackTiming(p.cfg.QoS.NackResponseDelay.Duration, p.cfg.QoS.NackSuppressionDuration.Duration)

	p.mu.Lock()
	p.userWriters[guid] = &userWriter{writer: w, policies: policies, topic: topicName}
	p.mu.Unlock()

	p.endpoints.AckNackWriters[guid.Entity] = w
	p.endpoints.NackFragWriters[guid.Entity] = w

	lw := &sedp.LocalWriter{
		Endpoint: sedp.EndpointData{
			EndpointGuid:    guid,
			TopicName:       topicName,
			TypeName:        typeName,
			Policies:        policies,
			UnicastLocators: []types.Locator{p.defaultUnicastLoc},
		},
		Writer: w,
	}
	p.SEDP.AnnounceWriter(lw)
	return w, nil
}

// CreateDataReader creates a StatefulReader for topicName/typeName under
// policies, registers it for DATA/GAP/HEARTBEAT dispatch, and announces
// the subscription via SEDP.
func (p *Participant) CreateDataReader(topicName, typeName string, policies qos.Policies) (*reader.StatefulReader, error) {
	if err := policies.Validate(); err != nil {
		return nil, ddserror.New(ddserror.InconsistentPolicy, "%v", err)
	}
	res, err := p.mailbox.Submit(func() (interface{}, error) {
		return p.createDataReaderLocked(topicName, typeName, policies)
	})
	if err != nil {
		return nil, err
	}
	return res.(*reader.StatefulReader), nil
}

func (p *Participant) createDataReaderLocked(topicName, typeName string, policies qos.Policies) (*reader.StatefulReader, error) {
	guid := types.GUID{Prefix: p.GuidPrefix, Entity: p.nextEntityId(types.EntityKindUserDefinedReaderKey)}
	cache := history.NewReaderCache(policies.History, policies.ResourceLimits)
	r := reader.NewStatefulReader(guid, policies.Reliability, cache, p.sendToWriter)
	r.SetHeartbeatTiming(p.cfg.QoS.HeartbeatResponseDelay.Duration, p.cfg.QoS.HeartbeatSuppressionDuration.Duration)

	p.mu.Lock()
	p.userReaders[guid] = &userReader{reader: r, policies: policies, topic: topicName}
	p.mu.Unlock()

	p.endpoints.DataReaders[guid.Entity] = dataHandlerFunc(func(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
		accepted, reason := r.HandleData(writerGuid, body, now)
		if reason != history.NotRejected {
			p.Metrics.SamplesRejected.Inc()
		}
		return accepted, reason
	})
	p.endpoints.GapReaders[guid.Entity] = r
	p.endpoints.HeartbeatReaders[guid.Entity] = r
	p.endpoints.DataFragReaders[guid.Entity] = r
	p.endpoints.HeartbeatFragReaders[guid.Entity] = r

	lr := &sedp.LocalReader{
		Endpoint: sedp.EndpointData{
			EndpointGuid:    guid,
			TopicName:       topicName,
			TypeName:        typeName,
			Policies:        policies,
			UnicastLocators: []types.Locator{p.defaultUnicastLoc},
		},
		Reader: r,
	}
	p.SEDP.AnnounceReader(lr)
	return r, nil
}

// DeleteDataWriter withdraws w's SEDP announcement and removes it from
// every registry (spec §7: further use of w after this returns
// AlreadyDeleted, left to ddsapi's entity-lifecycle layer to enforce).
func (p *Participant) DeleteDataWriter(w *writer.StatefulWriter) error {
	_, err := p.mailbox.Submit(func() (interface{}, error) {
		p.SEDP.WithdrawWriter(w.Guid)
		p.mu.Lock()
		delete(p.userWriters, w.Guid)
		p.mu.Unlock()
		delete(p.endpoints.AckNackWriters, w.Guid.Entity)
		delete(p.endpoints.NackFragWriters, w.Guid.Entity)
		return nil, nil
	})
	return err
}

// DeleteDataReader withdraws r's SEDP announcement and removes it from
// every registry.
func (p *Participant) DeleteDataReader(r *reader.StatefulReader) error {
	_, err := p.mailbox.Submit(func() (interface{}, error) {
		p.SEDP.WithdrawReader(r.Guid)
		p.mu.Lock()
		delete(p.userReaders, r.Guid)
		p.mu.Unlock()
		delete(p.endpoints.DataReaders, r.Guid.Entity)
		delete(p.endpoints.GapReaders, r.Guid.Entity)
		delete(p.endpoints.HeartbeatReaders, r.Guid.Entity)
		delete(p.endpoints.DataFragReaders, r.Guid.Entity)
		delete(p.endpoints.HeartbeatFragReaders, r.Guid.Entity)
		return nil, nil
	})
	return err
}

// Write publishes data under handle through w, triggering an immediate
// send attempt to every matched reader (spec §4.4 new_change plus
// §6 write()).
func (p *Participant) Write(w *writer.StatefulWriter, handle types.InstanceHandle, data []byte) error {
	_, err := p.mailbox.Submit(func() (interface{}, error) {
		if _, err := w.NewChange(history.Alive, handle, data); err != nil {
			return nil, err
		}
		if w.Policy.Kind == qos.Reliable {
			w.SendPendingReliable(time.Now())
		} else {
			w.SendPendingBestEffort()
		}
		return nil, nil
	})
	return err
}

// Dispose publishes a NotAliveDisposed change for handle through w (spec
// §6 dispose()).
func (p *Participant) Dispose(w *writer.StatefulWriter, handle types.InstanceHandle) error {
	_, err := p.mailbox.Submit(func() (interface{}, error) {
		if _, err := w.NewChange(history.NotAliveDisposed, handle, nil); err != nil {
			return nil, err
		}
		if w.Policy.Kind == qos.Reliable {
			w.SendPendingReliable(time.Now())
		} else {
			w.SendPendingBestEffort()
		}
		return nil, nil
	})
	return err
}

// Take returns and removes every sample from r matching f (spec §6
// take()). Delivery is bounded by r's writer-proxy availability only when
// f carries MaxAvailable, as r.DefaultFilter() does.
func (p *Participant) Take(r *reader.StatefulReader, f history.Filter) []*history.Sample {
	res, _ := p.mailbox.Submit(func() (interface{}, error) {
		return r.Cache.Take(f), nil
	})
	samples, _ := res.([]*history.Sample)
	return samples
}

// Read returns every sample from r matching f without removing it (spec
// §6 read()).
func (p *Participant) Read(r *reader.StatefulReader, f history.Filter) []*history.Sample {
	res, _ := p.mailbox.Submit(func() (interface{}, error) {
		return r.Cache.Read(f), nil
	})
	samples, _ := res.([]*history.Sample)
	return samples
}

// Close cancels the periodic task scheduler, announces this
// participant's departure over SPDP, and closes the transport (spec §5
// "graceful shutdown").
func (p *Participant) Close() error {
	disposeHandle := types.InstanceHandleFromKey(p.GuidPrefix[:])
	p.SPDP.Writer.NewChange(history.NotAliveDisposed, disposeHandle, nil)
	p.SPDP.Writer.SendPending(types.EntityIdSpdpWriter)

	p.SPDP.Stop()
	p.Halt()
	p.Wait()
	return p.Transport.Close()
}
