package spdp

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/reader"
	"github.com/go-rtps/rtps/rtps/writer"
)

func sampleData(prefix byte) ParticipantData {
	var gp types.GuidPrefix
	gp[0] = prefix
	return ParticipantData{
		DomainId:        0,
		DomainTag:       "",
		ProtocolVersion: wire.ProtocolVersion2_3,
		VendorId:        wire.VendorIdThis,
		GuidPrefix:      gp,
		MetatrafficUnicastLocs: []types.Locator{
			types.NewLocatorUDPv4(net.IPv4(10, 0, 0, 1), 7410),
		},
		DefaultUnicastLocs: []types.Locator{
			types.NewLocatorUDPv4(net.IPv4(10, 0, 0, 1), 7411),
		},
		AvailableBuiltinEndpoints: BuiltinPublicationsAnnouncer | BuiltinSubscriptionsDetector,
		LeaseDuration:             30 * time.Second,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := sampleData(5)
	pl := Encode(binary.BigEndian, d)
	got := Decode(binary.BigEndian, pl)

	require.Equal(t, d.DomainId, got.DomainId)
	require.Equal(t, d.ProtocolVersion, got.ProtocolVersion)
	require.Equal(t, d.VendorId, got.VendorId)
	require.Equal(t, d.GuidPrefix, got.GuidPrefix)
	require.Equal(t, d.AvailableBuiltinEndpoints, got.AvailableBuiltinEndpoints)
	require.Equal(t, d.LeaseDuration, got.LeaseDuration)
	require.Len(t, got.MetatrafficUnicastLocs, 1)
	require.Equal(t, d.MetatrafficUnicastLocs[0], got.MetatrafficUnicastLocs[0])
	require.Len(t, got.DefaultUnicastLocs, 1)
	require.Equal(t, d.DefaultUnicastLocs[0], got.DefaultUnicastLocs[0])
}

func newTestAgent(local ParticipantData) *Agent {
	writerGuid := types.GUID{Prefix: local.GuidPrefix, Entity: types.EntityIdSpdpWriter}
	readerGuid := types.GUID{Prefix: local.GuidPrefix, Entity: types.EntityIdSpdpReader}

	wc := history.NewWriterCache()
	w := writer.NewStatelessWriter(writerGuid, wc, nil, func(loc types.Locator, sm wire.Submessage) {})

	rc := history.NewReaderCache(qos.HistoryPolicy{Kind: qos.KeepLast, Depth: 1}, qos.ResourceLimitsPolicy{MaxSamples: qos.Unlimited, MaxInstances: qos.Unlimited, MaxSamplesPerInstance: qos.Unlimited})
	r := reader.NewStatelessReader(readerGuid, rc)

	return NewAgent(local, 50*time.Millisecond, w, r)
}

func TestAgentHandleAnnouncementAddsPeerOnceAndInvokesCallback(t *testing.T) {
	local := sampleData(1)
	a := newTestAgent(local)

	var added []ParticipantData
	a.OnParticipantAdded = func(d ParticipantData) { added = append(added, d) }

	peer := sampleData(2)
	a.HandleAnnouncement(peer)
	a.HandleAnnouncement(peer)

	require.Len(t, added, 1)
	require.Len(t, a.Peers(), 1)
}

func TestAgentHandleAnnouncementIgnoresOtherDomain(t *testing.T) {
	local := sampleData(1)
	a := newTestAgent(local)

	peer := sampleData(2)
	peer.DomainId = local.DomainId + 1

	var added bool
	a.OnParticipantAdded = func(d ParticipantData) { added = true }
	a.HandleAnnouncement(peer)

	require.False(t, added)
	require.Empty(t, a.Peers())
}

func TestAgentHandleDisposeRemovesPeer(t *testing.T) {
	local := sampleData(1)
	a := newTestAgent(local)

	peer := sampleData(2)
	a.HandleAnnouncement(peer)
	require.Len(t, a.Peers(), 1)

	var removed types.GuidPrefix
	a.OnParticipantRemoved = func(prefix types.GuidPrefix) { removed = prefix }
	a.HandleDispose(peer.GuidPrefix)

	require.Equal(t, peer.GuidPrefix, removed)
	require.Empty(t, a.Peers())
}

func TestAgentSweepExpiredRemovesStalePeer(t *testing.T) {
	local := sampleData(1)
	a := newTestAgent(local)

	peer := sampleData(2)
	peer.LeaseDuration = 0
	a.HandleAnnouncement(peer)

	a.mu.Lock()
	a.peers[peer.GuidPrefix].LastSeen = time.Now().Add(-(LeaseSlack + time.Second))
	a.mu.Unlock()

	var removed bool
	a.OnParticipantRemoved = func(prefix types.GuidPrefix) { removed = true }
	a.sweepExpired()

	require.True(t, removed)
	require.Empty(t, a.Peers())
}
