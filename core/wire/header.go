// Package wire implements the bit-exact RTPS message grammar: the message
// header, the submessage stream, and the ParameterList codec (spec §4.1).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-rtps/rtps/core/types"
)

// ProtocolMagic is the 4-byte "RTPS" magic that opens every message.
var ProtocolMagic = [4]byte{'R', 'T', 'P', 'S'}

// ProtocolVersion is {major, minor}.
type ProtocolVersion struct {
	Major, Minor byte
}

// ProtocolVersion2_3 is the version this module emits.
var ProtocolVersion2_3 = ProtocolVersion{Major: 2, Minor: 3}

// VendorId identifies the implementation that produced a message.
type VendorId [2]byte

// VendorIdUnknown is the wire value for "vendor not known".
var VendorIdUnknown = VendorId{0x00, 0x00}

// VendorIdThis is the vendor id this module stamps on outgoing messages.
var VendorIdThis = VendorId{0x01, 0xff}

// Header is the fixed RTPS message header preceding the submessage stream.
type Header struct {
	Version    ProtocolVersion
	Vendor     VendorId
	GuidPrefix types.GuidPrefix
}

// HeaderLength is the wire size in bytes of Header.
const HeaderLength = 4 + 2 + 2 + types.GuidPrefixLength

// ErrTruncated is returned when a buffer ends before a complete structure
// could be decoded.
var ErrTruncated = errors.New("wire: truncated")

// ErrBadMagic is returned when a buffer does not begin with the RTPS magic.
var ErrBadMagic = errors.New("wire: bad magic")

// EncodeHeader appends the wire form of h to buf.
func EncodeHeader(buf []byte, h Header) []byte {
	buf = append(buf, ProtocolMagic[:]...)
	buf = append(buf, h.Version.Major, h.Version.Minor)
	buf = append(buf, h.Vendor[:]...)
	buf = append(buf, h.GuidPrefix[:]...)
	return buf
}

// DecodeHeader parses a Header from the front of buf, returning the
// remaining bytes.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderLength {
		return Header{}, nil, ErrTruncated
	}
	if buf[0] != ProtocolMagic[0] || buf[1] != ProtocolMagic[1] ||
		buf[2] != ProtocolMagic[2] || buf[3] != ProtocolMagic[3] {
		return Header{}, nil, ErrBadMagic
	}
	var h Header
	h.Version = ProtocolVersion{Major: buf[4], Minor: buf[5]}
	copy(h.Vendor[:], buf[6:8])
	copy(h.GuidPrefix[:], buf[8:8+types.GuidPrefixLength])
	return h, buf[HeaderLength:], nil
}

// byteOrderFor selects the binary.ByteOrder implied by a submessage flags
// byte's low bit (spec §4.1: the low bit of flags selects endianness for
// the body and length field).
func byteOrderFor(flags byte) binary.ByteOrder {
	if flags&0x01 != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// pad4 returns n rounded up to the next multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}

func fmtUnknownID(id SubmessageID) string {
	return fmt.Sprintf("0x%02x", byte(id))
}
