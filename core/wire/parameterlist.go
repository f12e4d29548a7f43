package wire

import (
	"encoding/binary"
	"fmt"
)

// ParameterId identifies one entry in a ParameterList (spec §3).
type ParameterId uint16

// Well-known PIDs used by SPDP/SEDP builtin topic data (spec §6, §4.7,
// §4.8).
const (
	PIDPad                      ParameterId = 0x0000
	PIDSentinel                 ParameterId = 0x0001
	PIDParticipantGuid          ParameterId = 0x0050
	PIDEndpointGuid             ParameterId = 0x005a
	PIDGroupGuid                ParameterId = 0x0052
	PIDTopicName                ParameterId = 0x0005
	PIDTypeName                 ParameterId = 0x0007
	PIDReliability              ParameterId = 0x001a
	PIDDurability               ParameterId = 0x001d
	PIDDeadline                 ParameterId = 0x0023
	PIDLatencyBudget            ParameterId = 0x0027
	PIDOwnership                ParameterId = 0x001f
	PIDLiveliness               ParameterId = 0x001b
	PIDPresentation             ParameterId = 0x0021
	PIDDestinationOrder         ParameterId = 0x0025
	PIDPartition                ParameterId = 0x0029
	PIDDefaultUnicastLocator    ParameterId = 0x0031
	PIDDefaultMulticastLocator  ParameterId = 0x0048
	PIDMetatrafficUnicastLoc    ParameterId = 0x0032
	PIDMetatrafficMulticastLoc  ParameterId = 0x0033
	PIDProtocolVersion          ParameterId = 0x0015
	PIDVendorId                 ParameterId = 0x0016
	PIDDomainId                 ParameterId = 0x000f
	PIDDomainTag                ParameterId = 0x4014
	PIDLeaseDuration            ParameterId = 0x0002
	PIDBuiltinEndpointSet       ParameterId = 0x0058
	PIDKeyHash                  ParameterId = 0x0070
	PIDStatusInfo               ParameterId = 0x0071
	PIDVendorExtensionCBOR      ParameterId = 0x8001 // vendor-specific range; carries the Kaetzchen-style CBOR side channel (SPEC_FULL §10)
)

// Parameter is one {id, value} entry in a ParameterList.
type Parameter struct {
	ID    ParameterId
	Value []byte
}

// ParameterList is an ordered, sentinel-terminated sequence of Parameters
// (spec §3). Unknown must-understand PIDs (the high bit of the PID set)
// cause rejection per spec §4.1; other PIDs this module does not model are
// kept in Params and left unread by the decoders that consume the list.
type ParameterList struct {
	Params []Parameter
}

// mustUnderstandBit is the PID bit RTPS reserves to mark a parameter as
// required; an unknown PID with this bit set must cause rejection of the
// whole ParameterList (spec §4.1).
const mustUnderstandBit = 0x8000

// Get returns the first parameter with the given id, if present.
func (pl ParameterList) Get(id ParameterId) ([]byte, bool) {
	for _, p := range pl.Params {
		if p.ID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// Add appends a parameter.
func (pl *ParameterList) Add(id ParameterId, value []byte) {
	pl.Params = append(pl.Params, Parameter{ID: id, Value: value})
}

// ErrUnknownMustUnderstand is returned when decoding a ParameterList that
// contains a must-understand PID this module does not recognize.
type ErrUnknownMustUnderstand struct {
	ID ParameterId
}

func (e *ErrUnknownMustUnderstand) Error() string {
	return fmt.Sprintf("wire: unknown must-understand parameter id 0x%04x", e.ID)
}

// knownPIDs lists the must-understand-flagged PIDs this module recognizes;
// DecodeParameterList rejects any other PID with mustUnderstandBit set.
var knownPIDs = map[ParameterId]bool{PIDVendorExtensionCBOR: true}

// EncodeParameterList renders pl to its padded, sentinel-terminated wire
// form using the given byte order. Each parameter value is padded to a
// 4-byte boundary (spec §4.1).
func EncodeParameterList(order binary.ByteOrder, pl ParameterList) []byte {
	buf := make([]byte, 0, 32*len(pl.Params)+4)
	for _, p := range pl.Params {
		padded := pad4(len(p.Value))
		hdr := make([]byte, 4)
		order.PutUint16(hdr[0:2], uint16(p.ID))
		order.PutUint16(hdr[2:4], uint16(padded))
		buf = append(buf, hdr...)
		start := len(buf)
		buf = append(buf, p.Value...)
		for len(buf) < start+padded {
			buf = append(buf, 0)
		}
	}
	sentinel := make([]byte, 4)
	order.PutUint16(sentinel[0:2], uint16(PIDSentinel))
	buf = append(buf, sentinel...)
	return buf
}

// DecodeParameterList parses a sentinel-terminated ParameterList from buf,
// returning the list and the number of bytes consumed (including the
// sentinel).
func DecodeParameterList(order binary.ByteOrder, buf []byte) (ParameterList, int, error) {
	var pl ParameterList
	offset := 0
	for {
		if len(buf)-offset < 4 {
			return pl, offset, ErrTruncated
		}
		id := ParameterId(order.Uint16(buf[offset : offset+2]))
		length := int(order.Uint16(buf[offset+2 : offset+4]))
		offset += 4
		if id == PIDSentinel {
			return pl, offset, nil
		}
		if len(buf)-offset < length {
			return pl, offset, ErrTruncated
		}
		value := buf[offset : offset+length]
		offset += length
		if id&mustUnderstandBit != 0 && !knownPIDs[id] {
			return pl, offset, &ErrUnknownMustUnderstand{ID: id}
		}
		pl.Params = append(pl.Params, Parameter{ID: id, Value: append([]byte(nil), value...)})
	}
}
