// Package spdp implements the Simple Participant Discovery Protocol
// (spec §4.7): a best-effort stateless writer/reader pair exchanging
// SpdpDiscoveredParticipantData over a well-known multicast locator, and
// the lease-tracking table that detects a crashed or departed peer.
package spdp

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-rtps/rtps/discovery"

	rtpslog "github.com/go-rtps/rtps/core/log"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/internal/worker"
	"github.com/go-rtps/rtps/rtps/history"
	"github.com/go-rtps/rtps/rtps/reader"
	"github.com/go-rtps/rtps/rtps/writer"
)

// LeaseSlack absorbs announcement jitter before a missed participant is
// declared gone (spec §4.7: "lease_duration + slack").
const LeaseSlack = 10 * time.Second

// BuiltinEndpointSet bits (spec §4.7/§6): which builtin SEDP endpoints a
// participant has enabled.
type BuiltinEndpointSet uint32

const (
	BuiltinParticipantAnnouncer BuiltinEndpointSet = 1 << iota
	BuiltinParticipantDetector
	BuiltinPublicationsAnnouncer
	BuiltinPublicationsDetector
	BuiltinSubscriptionsAnnouncer
	BuiltinSubscriptionsDetector
	BuiltinTopicsAnnouncer
	BuiltinTopicsDetector
)

// ParticipantData is the decoded SpdpDiscoveredParticipantData payload
// (spec §4.7).
type ParticipantData struct {
	DomainId                int32
	DomainTag               string
	ProtocolVersion         wire.ProtocolVersion
	VendorId                wire.VendorId
	GuidPrefix              types.GuidPrefix
	MetatrafficUnicastLocs  []types.Locator
	MetatrafficMulticastLocs []types.Locator
	DefaultUnicastLocs      []types.Locator
	DefaultMulticastLocs    []types.Locator
	AvailableBuiltinEndpoints BuiltinEndpointSet
	LeaseDuration           time.Duration
	ManualLivelinessCount   types.Count

	// Extension carries implementation-specific fields outside the
	// standard SPDP field set (spec §3 vendor-specific PID range).
	Extension discovery.VendorExtension
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

func decodeLocatorParam(order binary.ByteOrder, b []byte) types.Locator {
	var l types.Locator
	if len(b) < 24 {
		return l
	}
	l.Kind = types.LocatorKind(int32(order.Uint32(b[0:4])))
	l.Port = order.Uint32(b[4:8])
	copy(l.Address[:], b[8:24])
	return l
}

// Encode renders ParticipantData as a ParameterList (spec §4.7 over
// §4.1's PID grammar). Each locator list parameter is repeated once per
// locator, matching the RTPS convention that locator-list PIDs may
// appear multiple times.
func Encode(order binary.ByteOrder, d ParticipantData) wire.ParameterList {
	var pl wire.ParameterList

	domainBuf := make([]byte, 4)
	order.PutUint32(domainBuf, uint32(d.DomainId))
	pl.Add(wire.PIDDomainId, domainBuf)

	if d.DomainTag != "" {
		pl.Add(wire.PIDDomainTag, []byte(d.DomainTag))
	}

	verBuf := []byte{d.ProtocolVersion.Major, d.ProtocolVersion.Minor, 0, 0}
	pl.Add(wire.PIDProtocolVersion, verBuf)
	pl.Add(wire.PIDVendorId, []byte{d.VendorId[0], d.VendorId[1], 0, 0})

	guidBuf := make([]byte, types.GuidPrefixLength)
	copy(guidBuf, d.GuidPrefix[:])
	pl.Add(wire.PIDParticipantGuid, guidBuf)

	for _, l := range d.MetatrafficUnicastLocs {
		pl.Add(wire.PIDMetatrafficUnicastLoc, encodeLocators(order, []types.Locator{l}))
	}
	for _, l := range d.MetatrafficMulticastLocs {
		pl.Add(wire.PIDMetatrafficMulticastLoc, encodeLocators(order, []types.Locator{l}))
	}
	for _, l := range d.DefaultUnicastLocs {
		pl.Add(wire.PIDDefaultUnicastLocator, encodeLocators(order, []types.Locator{l}))
	}
	for _, l := range d.DefaultMulticastLocs {
		pl.Add(wire.PIDDefaultMulticastLocator, encodeLocators(order, []types.Locator{l}))
	}

	bepBuf := make([]byte, 4)
	order.PutUint32(bepBuf, uint32(d.AvailableBuiltinEndpoints))
	pl.Add(wire.PIDBuiltinEndpointSet, bepBuf)

	leaseBuf := make([]byte, 8)
	order.PutUint32(leaseBuf[0:4], uint32(d.LeaseDuration/time.Second))
	order.PutUint32(leaseBuf[4:8], 0)
	pl.Add(wire.PIDLeaseDuration, leaseBuf)

	discovery.EncodeVendorExtension(&pl, d.Extension)

	return pl
}

// Decode parses a ParameterList into ParticipantData.
func Decode(order binary.ByteOrder, pl wire.ParameterList) ParticipantData {
	var d ParticipantData
	if b, ok := pl.Get(wire.PIDDomainId); ok && len(b) >= 4 {
		d.DomainId = int32(order.Uint32(b))
	}
	if b, ok := pl.Get(wire.PIDDomainTag); ok {
		d.DomainTag = string(b)
	}
	if b, ok := pl.Get(wire.PIDProtocolVersion); ok && len(b) >= 2 {
		d.ProtocolVersion = wire.ProtocolVersion{Major: b[0], Minor: b[1]}
	}
	if b, ok := pl.Get(wire.PIDVendorId); ok && len(b) >= 2 {
		d.VendorId = wire.VendorId{b[0], b[1]}
	}
	if b, ok := pl.Get(wire.PIDParticipantGuid); ok && len(b) >= types.GuidPrefixLength {
		copy(d.GuidPrefix[:], b[:types.GuidPrefixLength])
	}
	if b, ok := pl.Get(wire.PIDBuiltinEndpointSet); ok && len(b) >= 4 {
		d.AvailableBuiltinEndpoints = BuiltinEndpointSet(order.Uint32(b))
	}
	if b, ok := pl.Get(wire.PIDLeaseDuration); ok && len(b) >= 4 {
		d.LeaseDuration = time.Duration(order.Uint32(b[0:4])) * time.Second
	}
	if ext, ok, err := discovery.DecodeVendorExtension(pl); err == nil && ok {
		d.Extension = ext
	}
	for _, p := range pl.Params {
		switch p.ID {
		case wire.PIDMetatrafficUnicastLoc:
			d.MetatrafficUnicastLocs = append(d.MetatrafficUnicastLocs, decodeLocatorParam(order, p.Value))
		case wire.PIDMetatrafficMulticastLoc:
			d.MetatrafficMulticastLocs = append(d.MetatrafficMulticastLocs, decodeLocatorParam(order, p.Value))
		case wire.PIDDefaultUnicastLocator:
			d.DefaultUnicastLocs = append(d.DefaultUnicastLocs, decodeLocatorParam(order, p.Value))
		case wire.PIDDefaultMulticastLocator:
			d.DefaultMulticastLocs = append(d.DefaultMulticastLocs, decodeLocatorParam(order, p.Value))
		}
	}
	return d
}

// discoveredPeer is the lease-tracked record for one remote participant.
type discoveredPeer struct {
	Data       ParticipantData
	LastSeen   time.Time
}

// Agent drives SPDP announcement and discovery for one local participant
// (spec §4.7): periodic broadcast of our own ParticipantData, ingestion
// of peers' announcements, and lease-expiry sweeping.
type Agent struct {
	worker.Worker
	mu sync.Mutex

	Local       ParticipantData
	AnnouncePeriod time.Duration

	Writer *writer.StatelessWriter
	Reader *reader.StatelessReader

	peers map[types.GuidPrefix]*discoveredPeer

	// OnParticipantAdded/OnParticipantRemoved let the owning participant
	// layer react to SPDP events (spec §4.7 add/remove participant),
	// e.g. to seed SEDP proxies or tear them down.
	OnParticipantAdded   func(ParticipantData)
	OnParticipantRemoved func(types.GuidPrefix)

	log interface {
		Debugf(format string, args ...interface{})
		Infof(format string, args ...interface{})
	}
}

// NewAgent constructs an Agent for local, broadcasting via w and
// ingesting via r.
func NewAgent(local ParticipantData, period time.Duration, w *writer.StatelessWriter, r *reader.StatelessReader) *Agent {
	return &Agent{
		Local:          local,
		AnnouncePeriod: period,
		Writer:         w,
		Reader:         r,
		peers:          make(map[types.GuidPrefix]*discoveredPeer),
		log:            rtpslog.NewEngineLogger("discovery.spdp"),
	}
}

// Start launches the periodic announce/sweep loop.
func (a *Agent) Start(writerID types.EntityId) {
	a.Go(func() { a.loop(writerID) })
}

func (a *Agent) loop(writerID types.EntityId) {
	ticker := time.NewTicker(a.AnnouncePeriod)
	defer ticker.Stop()
	sweepTicker := time.NewTicker(a.AnnouncePeriod * 4)
	defer sweepTicker.Stop()

	a.announce(writerID)
	for {
		select {
		case <-a.HaltCh():
			return
		case <-ticker.C:
			a.announce(writerID)
		case <-sweepTicker.C:
			a.sweepExpired()
		}
	}
}

func (a *Agent) announce(writerID types.EntityId) {
	pl := Encode(binary.BigEndian, a.Local)
	payload := wire.EncodeParameterList(binary.BigEndian, pl)
	a.Writer.NewChange(history.Alive, types.InstanceHandleFromKey(a.Local.GuidPrefix[:]), payload)
	a.Writer.SendPending(writerID)
}

// HandleAnnouncement ingests a decoded SpdpDiscoveredParticipantData
// sample, adding a new peer or refreshing an existing one's lease (spec
// §4.7 "add participant").
func (a *Agent) HandleAnnouncement(d ParticipantData) {
	if d.DomainId != a.Local.DomainId || d.DomainTag != a.Local.DomainTag {
		return
	}
	a.mu.Lock()
	_, existed := a.peers[d.GuidPrefix]
	a.peers[d.GuidPrefix] = &discoveredPeer{Data: d, LastSeen: time.Now()}
	a.mu.Unlock()

	if !existed && a.OnParticipantAdded != nil {
		a.OnParticipantAdded(d)
	}
}

// HandleDispose removes prefix immediately, e.g. on a Dispose SPDP
// sample (spec §4.7 "remove participant").
func (a *Agent) HandleDispose(prefix types.GuidPrefix) {
	a.mu.Lock()
	_, existed := a.peers[prefix]
	delete(a.peers, prefix)
	a.mu.Unlock()
	if existed && a.OnParticipantRemoved != nil {
		a.OnParticipantRemoved(prefix)
	}
}

func (a *Agent) sweepExpired() {
	now := time.Now()
	var expired []types.GuidPrefix
	a.mu.Lock()
	for prefix, peer := range a.peers {
		if now.Sub(peer.LastSeen) > peer.Data.LeaseDuration+LeaseSlack {
			expired = append(expired, prefix)
		}
	}
	for _, prefix := range expired {
		delete(a.peers, prefix)
	}
	a.mu.Unlock()

	for _, prefix := range expired {
		if a.OnParticipantRemoved != nil {
			a.OnParticipantRemoved(prefix)
		}
	}
}

// Peers returns a snapshot of every currently live discovered
// participant.
func (a *Agent) Peers() []ParticipantData {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ParticipantData, 0, len(a.peers))
	for _, p := range a.peers {
		out = append(out, p.Data)
	}
	return out
}

// Stop halts the announce/sweep loop.
func (a *Agent) Stop() {
	a.Halt()
	a.Wait()
}
