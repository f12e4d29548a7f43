package types

import (
	"fmt"
	"net"
)

// Locator kind values, per the RTPS specification.
const (
	LocatorKindInvalid LocatorKind = -1
	LocatorKindUDPv4    LocatorKind = 1
	LocatorKindUDPv6    LocatorKind = 2
)

// LocatorKind tags the address family/transport a Locator refers to.
type LocatorKind int32

// Locator is a transport-independent endpoint address: {kind, port,
// 16-byte address} (spec §3). IPv4 addresses are stored in the last 4 bytes
// of Address, per RTPS convention.
type Locator struct {
	Kind    LocatorKind
	Port    uint32
	Address [16]byte
}

// InvalidLocator is the RTPS LOCATOR_INVALID value.
var InvalidLocator = Locator{Kind: LocatorKindInvalid}

// NewLocatorUDPv4 builds a Locator for a UDPv4 address:port.
func NewLocatorUDPv4(ip net.IP, port uint32) Locator {
	var loc Locator
	loc.Kind = LocatorKindUDPv4
	loc.Port = port
	v4 := ip.To4()
	if v4 != nil {
		copy(loc.Address[12:], v4)
	}
	return loc
}

// UDPAddr renders the Locator as a net.UDPAddr, for kinds this module
// transports over (UDPv4).
func (l Locator) UDPAddr() *net.UDPAddr {
	switch l.Kind {
	case LocatorKindUDPv4:
		return &net.UDPAddr{IP: net.IP(l.Address[12:16]), Port: int(l.Port)}
	case LocatorKindUDPv6:
		ip := make(net.IP, 16)
		copy(ip, l.Address[:])
		return &net.UDPAddr{IP: ip, Port: int(l.Port)}
	default:
		return nil
	}
}

func (l Locator) String() string {
	if l.Kind == LocatorKindInvalid {
		return "LOCATOR_INVALID"
	}
	if a := l.UDPAddr(); a != nil {
		return a.String()
	}
	return fmt.Sprintf("locator{kind=%d port=%d}", l.Kind, l.Port)
}

// IsMulticast reports whether the locator's address is a multicast address.
func (l Locator) IsMulticast() bool {
	if a := l.UDPAddr(); a != nil {
		return a.IP.IsMulticast()
	}
	return false
}

// Well-known port formula constants (spec §6): default values for
// PB/DG/PG/D0-D3.
const (
	DefaultPB uint32 = 7400
	DefaultDG uint32 = 250
	DefaultPG uint32 = 2
	DefaultD0 uint32 = 0
	DefaultD1 uint32 = 10
	DefaultD2 uint32 = 1
	DefaultD3 uint32 = 11
)

// PortParams bundles the PB/DG/PG/D0-D3 constants used by the well-known
// port formulas, so a domain can override them without touching call
// sites.
type PortParams struct {
	PB, DG, PG, D0, D1, D2, D3 uint32
}

// DefaultPortParams returns the RTPS-specified default port parameters.
func DefaultPortParams() PortParams {
	return PortParams{
		PB: DefaultPB, DG: DefaultDG, PG: DefaultPG,
		D0: DefaultD0, D1: DefaultD1, D2: DefaultD2, D3: DefaultD3,
	}
}

// SpdpMulticastPort computes the well-known SPDP multicast port for a
// domain: PB + DG*domainId + D0.
func (p PortParams) SpdpMulticastPort(domainID uint32) uint32 {
	return p.PB + p.DG*domainID + p.D0
}

// MetatrafficUnicastPort computes the per-participant metatraffic unicast
// port: PB + DG*domainId + D1 + PG*participantId.
func (p PortParams) MetatrafficUnicastPort(domainID, participantID uint32) uint32 {
	return p.PB + p.DG*domainID + p.D1 + p.PG*participantID
}

// UserMulticastPort computes the well-known user-traffic multicast port:
// PB + DG*domainId + D2.
func (p PortParams) UserMulticastPort(domainID uint32) uint32 {
	return p.PB + p.DG*domainID + p.D2
}

// UserUnicastPort computes the per-participant user-traffic unicast port:
// PB + DG*domainId + D3 + PG*participantId.
func (p PortParams) UserUnicastPort(domainID, participantID uint32) uint32 {
	return p.PB + p.DG*domainID + p.D3 + p.PG*participantID
}
