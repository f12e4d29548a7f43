package ddsapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/config"
	"github.com/go-rtps/rtps/core/ddserror"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/rtps/history"
)

func fastTestConfig(participantID uint32) config.Config {
	cfg := config.Default()
	cfg.Domain.ParticipantID = participantID
	cfg.Discovery.SPDPAnnounceInterval = config.Duration{Duration: 15 * time.Millisecond}
	cfg.QoS.HeartbeatPeriod = config.Duration{Duration: 20 * time.Millisecond}
	return cfg
}

type textSample struct {
	key   string
	value string
}

func (s textSample) Serialize(key bool) ([]byte, error) {
	if key {
		return []byte(s.key), nil
	}
	return []byte(s.value), nil
}

func TestEntityEnableIsIdempotentAndRejectsAfterDelete(t *testing.T) {
	dp, err := DomainParticipantFactory{}.CreateParticipant(fastTestConfig(20))
	require.NoError(t, err)

	require.False(t, dp.Enabled())
	require.NoError(t, dp.Enable())
	require.True(t, dp.Enabled())
	require.NoError(t, dp.Enable()) // idempotent, doesn't re-Start
	defer dp.Close()

	require.NoError(t, dp.setListener(nil)) // entity.setListener reachable from this package

	dp.markDeleted()
	err = dp.Enable()
	require.Error(t, err)
	kind, ok := ddserror.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ddserror.AlreadyDeleted, kind)
}

func TestCreateTopicRejectsUnregisteredType(t *testing.T) {
	dp, err := DomainParticipantFactory{}.CreateParticipant(fastTestConfig(21))
	require.NoError(t, err)
	require.NoError(t, dp.Enable())
	defer dp.Close()

	_, err = dp.CreateTopic("temperature", "SensorSample")
	require.Error(t, err)
	kind, ok := ddserror.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ddserror.BadParameter, kind)

	require.NoError(t, dp.RegisterType(TypeSupport{TypeName: "SensorSample"}))
	topic, err := dp.CreateTopic("temperature", "SensorSample")
	require.NoError(t, err)
	require.Equal(t, "temperature", topic.Name)

	_, err = dp.CreateTopic("temperature", "SensorSample")
	require.Error(t, err)
	kind, ok = ddserror.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ddserror.PreconditionNotMet, kind)
}

func TestDataReaderTakeReturnsNoDataWhenEmpty(t *testing.T) {
	dp, err := DomainParticipantFactory{}.CreateParticipant(fastTestConfig(22))
	require.NoError(t, err)
	require.NoError(t, dp.Enable())
	defer dp.Close()
	require.NoError(t, dp.RegisterType(TypeSupport{TypeName: "SensorSample"}))

	topic, err := dp.CreateTopic("temperature", "SensorSample")
	require.NoError(t, err)
	sub, err := dp.CreateSubscriber()
	require.NoError(t, err)
	dr, err := sub.CreateDataReader(topic, qos.Default())
	require.NoError(t, err)

	_, err = dr.Take()
	require.Error(t, err)
	kind, ok := ddserror.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ddserror.NoData, kind)
}

func TestWaitSetTimesOutWhenNoConditionFires(t *testing.T) {
	ws := NewWaitSet()
	cond := newStatusCondition()
	ws.Attach(cond)

	err := ws.Wait(20 * time.Millisecond)
	require.Error(t, err)
	kind, ok := ddserror.KindOf(err)
	require.True(t, ok)
	require.Equal(t, ddserror.Timeout, kind)
}

func TestWaitSetWakesOnConditionTrigger(t *testing.T) {
	ws := NewWaitSet()
	cond := newStatusCondition()
	ws.Attach(cond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cond.trigger()
	}()

	require.NoError(t, ws.Wait(2*time.Second))
}

// TestDataWriterWriteDeliversToMatchedDataReader wires two real
// DomainParticipants together over loopback UDP and drives discovery for
// real (SPDP finds the peer, SEDP matches the publication to the
// subscription), then checks Write -> reliable delivery -> Take.
func TestDataWriterWriteDeliversToMatchedDataReader(t *testing.T) {
	pub, err := DomainParticipantFactory{}.CreateParticipant(fastTestConfig(30))
	require.NoError(t, err)
	require.NoError(t, pub.RegisterType(TypeSupport{TypeName: "SensorSample"}))
	require.NoError(t, pub.Enable())
	defer pub.Close()

	sub, err := DomainParticipantFactory{}.CreateParticipant(fastTestConfig(31))
	require.NoError(t, err)
	require.NoError(t, sub.RegisterType(TypeSupport{TypeName: "SensorSample"}))
	require.NoError(t, sub.Enable())
	defer sub.Close()

	policies := qos.Default()
	policies.Reliability.Kind = qos.Reliable

	pubTopic, err := pub.CreateTopic("temperature", "SensorSample")
	require.NoError(t, err)
	publisher, err := pub.CreatePublisher()
	require.NoError(t, err)
	dw, err := publisher.CreateDataWriter(pubTopic, policies)
	require.NoError(t, err)

	subTopic, err := sub.CreateTopic("temperature", "SensorSample")
	require.NoError(t, err)
	subscriber, err := sub.CreateSubscriber()
	require.NoError(t, err)
	dr, err := subscriber.CreateDataReader(subTopic, policies)
	require.NoError(t, err)

	// A new ReaderProxy always starts from sequence 1 (discovery/sedp.go),
	// so a change written before the SEDP match completes is still
	// delivered once matching and the next retransmit tick land.
	sample := textSample{key: "sensor-1", value: "21.5C"}
	require.NoError(t, dw.Write(sample, types.InstanceHandle{}))

	var taken []*history.Sample
	require.Eventually(t, func() bool {
		samples, takeErr := dr.Take()
		if takeErr != nil {
			return false
		}
		taken = samples
		return len(taken) > 0
	}, 3*time.Second, 20*time.Millisecond, "reliable sample never reached the matched reader")

	require.Len(t, taken, 1)
	require.Equal(t, "21.5C", string(taken[0].Change.DataValue))
	require.NoError(t, dw.WaitForAcknowledgments(2*time.Second))
}
