package wire

import (
	"encoding/binary"
)

// SubmessageID identifies a submessage kind (spec §4.1).
type SubmessageID byte

const (
	SubmessageIDPad           SubmessageID = 0x01
	SubmessageIDAckNack       SubmessageID = 0x06
	SubmessageIDHeartbeat     SubmessageID = 0x07
	SubmessageIDGap           SubmessageID = 0x08
	SubmessageIDInfoTS        SubmessageID = 0x09
	SubmessageIDInfoSrc       SubmessageID = 0x0c
	SubmessageIDInfoReply     SubmessageID = 0x0d
	SubmessageIDInfoDst       SubmessageID = 0x0e
	SubmessageIDNackFrag      SubmessageID = 0x12
	SubmessageIDHeartbeatFrag SubmessageID = 0x13
	SubmessageIDData          SubmessageID = 0x15
	SubmessageIDDataFrag      SubmessageID = 0x16
)

// Flag bits common across submessages. Bit 0 (endianness) is interpreted by
// the codec itself and is left set in the Flags returned to callers.
const (
	FlagEndianness byte = 0x01
)

// Submessage is the generic {id, flags, length, body} unit the message
// stream is built from (spec §4.1). Flags includes the endianness bit;
// callers that need the byte order for Body should use ByteOrder().
type Submessage struct {
	ID    SubmessageID
	Flags byte
	Body  []byte
}

// ByteOrder returns the binary.ByteOrder implied by this submessage's
// flags.
func (s Submessage) ByteOrder() binary.ByteOrder {
	return byteOrderFor(s.Flags)
}

// Message is a decoded RTPS packet: a header followed by an ordered list
// of submessages.
type Message struct {
	Header      Header
	Submessages []Submessage
}

// EncodeMessage renders msg to its wire form. Submessage lengths are
// always computed (never the length=0 "rest of datagram" form), so
// encoding is deterministic (spec §4.1 contract).
func EncodeMessage(msg Message) []byte {
	buf := make([]byte, 0, HeaderLength+64*len(msg.Submessages))
	buf = EncodeHeader(buf, msg.Header)
	for _, sm := range msg.Submessages {
		buf = encodeSubmessage(buf, sm)
	}
	return buf
}

func encodeSubmessage(buf []byte, sm Submessage) []byte {
	order := sm.ByteOrder()
	padded := pad4(len(sm.Body))
	buf = append(buf, byte(sm.ID), sm.Flags)
	lenField := make([]byte, 2)
	order.PutUint16(lenField, uint16(padded))
	buf = append(buf, lenField...)
	start := len(buf)
	buf = append(buf, sm.Body...)
	for len(buf) < start+padded {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeMessage parses a full RTPS packet. Per spec §4.1: unknown
// submessage ids are skipped using their declared length; a submessage
// that claims more bytes than remain aborts decoding of the rest of the
// datagram (the submessages decoded so far are still returned, along with
// the error).
func DecodeMessage(buf []byte) (Message, error) {
	hdr, rest, err := DecodeHeader(buf)
	if err != nil {
		return Message{}, err
	}
	msg := Message{Header: hdr}
	for len(rest) > 0 {
		if len(rest) < 4 {
			return msg, ErrTruncated
		}
		id := SubmessageID(rest[0])
		flags := rest[1]
		order := byteOrderFor(flags)
		length := int(order.Uint16(rest[2:4]))
		body := rest[4:]

		if length == 0 {
			// Consumes the rest of the datagram (spec §4.1); only valid for
			// a terminal submessage.
			sm := Submessage{ID: id, Flags: flags, Body: body}
			msg.Submessages = append(msg.Submessages, sm)
			return msg, nil
		}
		if len(body) < length {
			return msg, ErrTruncated
		}
		sm := Submessage{ID: id, Flags: flags, Body: body[:length]}
		msg.Submessages = append(msg.Submessages, sm)
		rest = body[length:]
	}
	return msg, nil
}
