package participant

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/config"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/proxy"
)

func fastTestConfig(participantID uint32) config.Config {
	cfg := config.Default()
	cfg.Domain.ParticipantID = participantID
	cfg.Discovery.SPDPAnnounceInterval = config.Duration{Duration: 15 * time.Millisecond}
	cfg.QoS.HeartbeatPeriod = config.Duration{Duration: 20 * time.Millisecond}
	return cfg
}

func TestNewAssignsDistinctLocatorsPerParticipantID(t *testing.T) {
	a, err := New(fastTestConfig(1))
	require.NoError(t, err)
	b, err := New(fastTestConfig(2))
	require.NoError(t, err)

	require.NotEqual(t, a.defaultUnicastLoc, b.defaultUnicastLoc)
	require.NotEqual(t, a.GuidPrefix, b.GuidPrefix)
	require.Equal(t, a.spdpMulticastLoc, b.spdpMulticastLoc, "same domain shares one SPDP multicast group")
}

type recordingParticipantListener struct {
	pubMatched     []int
	subMatched     []int
	deadlineMissed int
}

func (l *recordingParticipantListener) OnPublicationMatched(writerGuid, readerGuid types.GUID, countChange int) {
	l.pubMatched = append(l.pubMatched, countChange)
}

func (l *recordingParticipantListener) OnSubscriptionMatched(readerGuid, writerGuid types.GUID, countChange int) {
	l.subMatched = append(l.subMatched, countChange)
}

func (l *recordingParticipantListener) OnOfferedIncompatibleQos(types.GUID, qos.PolicyID) {}

func (l *recordingParticipantListener) OnRequestedIncompatibleQos(types.GUID, qos.PolicyID) {}

func (l *recordingParticipantListener) OnInconsistentTopic(string) {}

func (l *recordingParticipantListener) OnRequestedDeadlineMissed(types.GUID, types.InstanceHandle) {
	l.deadlineMissed++
}

// Participant implements sedp.MatchListener directly; this exercises
// that forwarding without needing a live SEDP exchange.
func TestParticipantForwardsMatchEventsAndUpdatesMetrics(t *testing.T) {
	p, err := New(fastTestConfig(3))
	require.NoError(t, err)
	l := &recordingParticipantListener{}
	p.Listener = l

	writerGuid := types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityId{Key: [3]byte{1}}}
	readerGuid := types.GUID{Prefix: p.GuidPrefix, Entity: types.EntityId{Key: [3]byte{2}}}

	p.PublicationMatched(writerGuid, readerGuid, 1)
	p.SubscriptionMatched(readerGuid, writerGuid, 1)

	require.Equal(t, []int{1}, l.pubMatched)
	require.Equal(t, []int{1}, l.subMatched)
	require.Equal(t, float64(1), testutil.ToFloat64(p.Metrics.MatchedReaders))
	require.Equal(t, float64(1), testutil.ToFloat64(p.Metrics.MatchedWriters))

	p.PublicationMatched(writerGuid, readerGuid, -1)
	require.Equal(t, float64(0), testutil.ToFloat64(p.Metrics.MatchedReaders))
}

// TestParticipantWriteDeliversToMatchedReaderOverTransport wires two real participants
// together over loopback unicast UDP, matching their endpoints by hand
// (standing in for SEDP discovery, which this test deliberately doesn't
// exercise) to check the write -> transport -> receiver -> take path end
// to end, including heartbeat-driven reliable delivery.
func TestParticipantWriteDeliversToMatchedReaderOverTransport(t *testing.T) {
	pw, err := New(fastTestConfig(10))
	require.NoError(t, err)
	require.NoError(t, pw.Transport.Listen(pw.defaultUnicastLoc))
	pw.Go(pw.executorLoop)
	pw.Go(pw.receiveLoop)
	defer func() {
		pw.Halt()
		pw.Wait()
		pw.Transport.Close()
	}()

	pr, err := New(fastTestConfig(11))
	require.NoError(t, err)
	require.NoError(t, pr.Transport.Listen(pr.defaultUnicastLoc))
	pr.Go(pr.executorLoop)
	pr.Go(pr.receiveLoop)
	defer func() {
		pr.Halt()
		pr.Wait()
		pr.Transport.Close()
	}()

	policies := qos.Default()
	policies.Reliability.Kind = qos.Reliable

	w, err := pw.CreateDataWriter("temperature", "SensorSample", policies)
	require.NoError(t, err)
	r, err := pr.CreateDataReader("temperature", "SensorSample", policies)
	require.NoError(t, err)

	rp := proxy.NewReaderProxy(r.Guid, true, types.SequenceNumberUnknown)
	rp.UnicastLocators = []types.Locator{pr.defaultUnicastLoc}
	w.MatchedReaderAdd(rp)

	wp := proxy.NewWriterProxy(w.Guid)
	wp.UnicastLocators = []types.Locator{pw.defaultUnicastLoc}
	r.MatchedWriterAdd(wp)

	handle := types.InstanceHandleFromKey([]byte("sensor-1"))
	require.NoError(t, pw.Write(w, handle, []byte("21.5C")))

	var samples []*history.Sample
	require.Eventually(t, func() bool {
		samples = pr.Take(r, r.DefaultFilter())
		return len(samples) > 0
	}, 2*time.Second, 10*time.Millisecond, "reliable sample never reached the matched reader")

	require.Len(t, samples, 1)
	require.Equal(t, "21.5C", string(samples[0].Change.DataValue))
}
