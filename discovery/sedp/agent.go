package sedp

import (
	"encoding/binary"
	"time"

	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/reader"
	"github.com/go-rtps/rtps/rtps/writer"
)

// defaultOrder matches the wire order used by the rest of this module
// (network byte order).
var defaultOrder binary.ByteOrder = binary.BigEndian

// statusInfoDisposed/statusInfoUnregistered are the PIDStatusInfo bits a
// dispose/unregister sample sets inline (spec §4.8 "Unmatch").
const (
	statusInfoDisposed     = 1 << 0
	statusInfoUnregistered = 1 << 1
)

func isDisposed(body wire.DataBody) bool {
	if !body.HasInlineQos {
		return false
	}
	b, ok := body.InlineQos.Get(wire.PIDStatusInfo)
	if !ok || len(b) < 4 {
		return false
	}
	flags := defaultOrder.Uint32(b)
	return flags&(statusInfoDisposed|statusInfoUnregistered) != 0
}

// pair bundles one SEDP reliable writer/reader endpoint pair (one of
// publications, subscriptions, topics; spec §4.8).
type pair struct {
	writer *writer.StatefulWriter
	reader *reader.StatefulReader
}

// Agent drives the three SEDP endpoint pairs for one participant (spec
// §4.8): announcing local endpoint/topic data on enable, disposing it on
// deletion, and forwarding every discovered sample into an Endpoints
// match table.
type Agent struct {
	publications  pair
	subscriptions pair
	topics        pair

	Endpoints *Endpoints
}

// NewAgent constructs an Agent wrapping the three already-built SEDP
// builtin reader/writer pairs and reporting matches via listener.
func NewAgent(publications, subscriptions, topics pair, listener MatchListener) *Agent {
	return &Agent{
		publications:  publications,
		subscriptions: subscriptions,
		topics:        topics,
		Endpoints:     NewEndpoints(listener),
	}
}

// NewPair constructs a publications/subscriptions/topics pair from an
// already-built StatefulWriter/StatefulReader.
func NewPair(w *writer.StatefulWriter, r *reader.StatefulReader) pair {
	return pair{writer: w, reader: r}
}

// AnnounceWriter publishes lw's EndpointData on the publications writer
// (spec §4.8: "publishes one DiscoveredWriterData ... on enable") and
// registers it in the match table so discovered readers can match it.
func (a *Agent) AnnounceWriter(lw *LocalWriter) {
	a.Endpoints.AddLocalWriter(lw)
	pl := EncodeEndpoint(defaultOrder, lw.Endpoint)
	payload := wire.EncodeParameterList(defaultOrder, pl)
	handle := types.InstanceHandleFromKey(lw.Endpoint.EndpointGuid.Entity.Key[:])
	a.publications.writer.NewChange(history.Alive, handle, payload)
}

// AnnounceReader publishes lr's EndpointData on the subscriptions writer,
// symmetric to AnnounceWriter.
func (a *Agent) AnnounceReader(lr *LocalReader) {
	a.Endpoints.AddLocalReader(lr)
	pl := EncodeEndpoint(defaultOrder, lr.Endpoint)
	payload := wire.EncodeParameterList(defaultOrder, pl)
	handle := types.InstanceHandleFromKey(lr.Endpoint.EndpointGuid.Entity.Key[:])
	a.subscriptions.writer.NewChange(history.Alive, handle, payload)
}

// AnnounceTopic publishes a DiscoveredTopicData sample for a local topic.
func (a *Agent) AnnounceTopic(t TopicData) {
	pl := EncodeTopic(defaultOrder, t)
	payload := wire.EncodeParameterList(defaultOrder, pl)
	handle := types.InstanceHandleFromKey([]byte(t.TopicName))
	a.topics.writer.NewChange(history.Alive, handle, payload)
}

// WithdrawWriter disposes the DiscoveredWriterData instance for guid
// (spec §4.8: "disposes it on deletion").
func (a *Agent) WithdrawWriter(guid types.GUID) {
	handle := types.InstanceHandleFromKey(guid.Entity.Key[:])
	a.publications.writer.NewChange(history.NotAliveDisposed, handle, nil)
}

// WithdrawReader disposes the DiscoveredReaderData instance for guid.
func (a *Agent) WithdrawReader(guid types.GUID) {
	handle := types.InstanceHandleFromKey(guid.Entity.Key[:])
	a.subscriptions.writer.NewChange(history.NotAliveDisposed, handle, nil)
}

// HandlePublicationData processes one DiscoveredWriterData sample
// received on the publications reader (spec §4.8 matching/unmatch).
func (a *Agent) HandlePublicationData(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
	accepted, reason := a.publications.reader.HandleData(writerGuid, body, now)
	if !accepted || !body.HasData {
		return accepted, reason
	}
	pl, _, err := wire.DecodeParameterList(defaultOrder, body.SerializedPayload)
	if err != nil {
		return accepted, reason
	}
	remote := DecodeEndpoint(defaultOrder, pl)
	if isDisposed(body) {
		a.Endpoints.RemoveDiscoveredEndpoint(remote.EndpointGuid)
		return accepted, reason
	}
	a.Endpoints.HandleDiscoveredWriter(remote)
	return accepted, reason
}

// HandleSubscriptionData processes one DiscoveredReaderData sample
// received on the subscriptions reader.
func (a *Agent) HandleSubscriptionData(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
	accepted, reason := a.subscriptions.reader.HandleData(writerGuid, body, now)
	if !accepted || !body.HasData {
		return accepted, reason
	}
	pl, _, err := wire.DecodeParameterList(defaultOrder, body.SerializedPayload)
	if err != nil {
		return accepted, reason
	}
	remote := DecodeEndpoint(defaultOrder, pl)
	if isDisposed(body) {
		a.Endpoints.RemoveDiscoveredEndpoint(remote.EndpointGuid)
		return accepted, reason
	}
	a.Endpoints.HandleDiscoveredReader(remote)
	return accepted, reason
}

// HandleTopicData processes one DiscoveredTopicData sample received on
// the topics reader.
func (a *Agent) HandleTopicData(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
	accepted, reason := a.topics.reader.HandleData(writerGuid, body, now)
	if !accepted || !body.HasData || isDisposed(body) {
		return accepted, reason
	}
	pl, _, err := wire.DecodeParameterList(defaultOrder, body.SerializedPayload)
	if err != nil {
		return accepted, reason
	}
	a.Endpoints.HandleDiscoveredTopic(DecodeTopic(defaultOrder, pl))
	return accepted, reason
}

// RemoveParticipant unmatches every discovered endpoint owned by prefix,
// invoked on SPDP lease expiry or Dispose (spec §4.7 "Remove
// participant" feeding spec §4.8 "Unmatch").
func (a *Agent) RemoveParticipant(prefix types.GuidPrefix) {
	a.Endpoints.mu.Lock()
	var remotes []types.GUID
	for _, lw := range a.Endpoints.localWriters {
		for _, rp := range lw.Writer.MatchedReaders() {
			if rp.RemoteReaderGuid.Prefix == prefix {
				remotes = append(remotes, rp.RemoteReaderGuid)
			}
		}
	}
	for _, lr := range a.Endpoints.localReaders {
		for _, wp := range lr.Reader.MatchedWriters() {
			if wp.RemoteWriterGuid.Prefix == prefix {
				remotes = append(remotes, wp.RemoteWriterGuid)
			}
		}
	}
	a.Endpoints.mu.Unlock()

	for _, remote := range remotes {
		a.Endpoints.RemoveDiscoveredEndpoint(remote)
	}
}
