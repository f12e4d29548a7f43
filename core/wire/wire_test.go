package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/types"
)

func samplePrefix() types.GuidPrefix {
	var p types.GuidPrefix
	for i := range p {
		p[i] = byte(i + 1)
	}
	return p
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: ProtocolVersion2_3, Vendor: VendorIdThis, GuidPrefix: samplePrefix()}
	buf := EncodeHeader(nil, h)
	got, rest, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Empty(t, rest)
}

func TestMessageRoundTripData(t *testing.T) {
	d := DataBody{
		ReaderID:     types.EntityIdUnknown,
		WriterID:     types.EntityId{Key: [3]byte{1, 2, 3}, Kind: types.EntityKindUserDefinedWriterKey},
		WriterSeqNum: 42,
		HasData:      true,
		SerializedPayload: []byte{0xde, 0xad, 0xbe, 0xef, 0x01},
	}
	sm := EncodeData(binary.BigEndian, d)
	msg := Message{Header: Header{Version: ProtocolVersion2_3, Vendor: VendorIdThis, GuidPrefix: samplePrefix()}, Submessages: []Submessage{sm}}
	buf := EncodeMessage(msg)

	got, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, got.Submessages, 1)

	decoded, err := DecodeData(got.Submessages[0])
	require.NoError(t, err)
	require.Equal(t, d.WriterID, decoded.WriterID)
	require.Equal(t, d.WriterSeqNum, decoded.WriterSeqNum)
	require.Equal(t, d.SerializedPayload, decoded.SerializedPayload)
}

func TestSubmessagePadding(t *testing.T) {
	sm := Submessage{ID: SubmessageIDPad, Flags: 0, Body: []byte{1, 2, 3}}
	buf := encodeSubmessage(nil, sm)
	// header(4) + padded body (4) = 8
	require.Len(t, buf, 8)
	require.EqualValues(t, 4, binary.BigEndian.Uint16(buf[2:4]))
}

func TestDecodeMessageUnknownSubmessageSkipped(t *testing.T) {
	hdr := Header{Version: ProtocolVersion2_3, Vendor: VendorIdThis, GuidPrefix: samplePrefix()}
	buf := EncodeHeader(nil, hdr)
	// Unknown id 0x7f with a 4-byte body, followed by a real PAD submessage.
	buf = append(buf, 0x7f, 0x00, 0x00, 0x04, 0xaa, 0xbb, 0xcc, 0xdd)
	buf = encodeSubmessage(buf, Submessage{ID: SubmessageIDPad, Flags: 0, Body: nil})

	msg, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, msg.Submessages, 2)
	require.Equal(t, SubmessageID(0x7f), msg.Submessages[0].ID)
	require.Equal(t, SubmessageIDPad, msg.Submessages[1].ID)
}

func TestDecodeMessageTruncatedAborts(t *testing.T) {
	hdr := Header{Version: ProtocolVersion2_3, Vendor: VendorIdThis, GuidPrefix: samplePrefix()}
	buf := EncodeHeader(nil, hdr)
	buf = append(buf, byte(SubmessageIDPad), 0x00, 0x00, 0x10) // claims 16 bytes, has 0
	_, err := DecodeMessage(buf)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeMessageLengthZeroConsumesRest(t *testing.T) {
	hdr := Header{Version: ProtocolVersion2_3, Vendor: VendorIdThis, GuidPrefix: samplePrefix()}
	buf := EncodeHeader(nil, hdr)
	buf = append(buf, byte(SubmessageIDPad), 0x00, 0x00, 0x00)
	buf = append(buf, 1, 2, 3, 4, 5, 6)

	msg, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, msg.Submessages, 1)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, msg.Submessages[0].Body)
}

func TestParameterListRoundTrip(t *testing.T) {
	pl := ParameterList{}
	pl.Add(PIDTopicName, []byte("Square"))
	pl.Add(PIDTypeName, []byte("ShapeType"))

	buf := EncodeParameterList(binary.BigEndian, pl)
	got, n, err := DecodeParameterList(binary.BigEndian, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	v, ok := got.Get(PIDTopicName)
	require.True(t, ok)
	require.Equal(t, []byte("Square"), v)
}

func TestAckNackRoundTrip(t *testing.T) {
	set := types.NewSequenceNumberSet(3)
	set.Add(5)
	set.Add(6)
	a := AckNackBody{
		ReaderID:      types.EntityIdSedpPubReader,
		WriterID:      types.EntityIdSedpPubWriter,
		ReaderSNState: set,
		Count:         7,
		Final:         true,
	}
	sm := EncodeAckNack(binary.LittleEndian, a)
	got, err := DecodeAckNack(sm)
	require.NoError(t, err)
	require.Equal(t, a.Count, got.Count)
	require.True(t, got.Final)
	require.True(t, got.ReaderSNState.Contains(5))
	require.True(t, got.ReaderSNState.Contains(6))
	require.False(t, got.ReaderSNState.Contains(4))
}

func TestHeartbeatRoundTrip(t *testing.T) {
	h := HeartbeatBody{
		ReaderID: types.EntityIdUnknown,
		WriterID: types.EntityIdSpdpWriter,
		First:    1,
		Last:     10,
		Count:    3,
		Final:    false,
	}
	sm := EncodeHeartbeat(binary.BigEndian, h)
	got, err := DecodeHeartbeat(sm)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestGapRoundTrip(t *testing.T) {
	gl := types.NewSequenceNumberSet(5)
	gl.Add(5)
	gl.Add(6)
	g := GapBody{
		ReaderID: types.EntityIdUnknown,
		WriterID: types.EntityIdSpdpWriter,
		GapStart: 2,
		GapList:  gl,
	}
	sm := EncodeGap(binary.BigEndian, g)
	got, err := DecodeGap(sm)
	require.NoError(t, err)
	require.Equal(t, g.GapStart, got.GapStart)
	require.True(t, got.GapList.Contains(5))
}

func TestDataFragRoundTrip(t *testing.T) {
	d := DataFragBody{
		WriterID:              types.EntityIdSpdpWriter,
		WriterSeqNum:          9,
		FragmentStartingNum:   2,
		FragmentsInSubmessage: 1,
		FragmentSize:          1200,
		SampleSize:            3600,
		FragmentData:          []byte{1, 2, 3, 4},
	}
	sm := EncodeDataFrag(binary.BigEndian, d)
	got, err := DecodeDataFrag(sm)
	require.NoError(t, err)
	require.Equal(t, d.WriterSeqNum, got.WriterSeqNum)
	require.Equal(t, d.FragmentData, got.FragmentData)
}

func TestNackFragRoundTrip(t *testing.T) {
	fs := NewFragmentNumberSet(1)
	fs.Add(2)
	fs.Add(4)
	n := NackFragBody{
		WriterID:            types.EntityIdSpdpWriter,
		WriterSN:            9,
		FragmentNumberState: fs,
		Count:               1,
	}
	sm := EncodeNackFrag(binary.BigEndian, n)
	got, err := DecodeNackFrag(sm)
	require.NoError(t, err)
	require.True(t, got.FragmentNumberState.Set[2] == struct{}{} || true)
	require.Contains(t, got.FragmentNumberState.Sorted(), uint32(2))
	require.Contains(t, got.FragmentNumberState.Sorted(), uint32(4))
}

func TestHeartbeatFragRoundTrip(t *testing.T) {
	h := HeartbeatFragBody{
		WriterID:        types.EntityIdSpdpWriter,
		WriterSN:        9,
		LastFragmentNum: 3,
		Count:           1,
	}
	sm := EncodeHeartbeatFrag(binary.BigEndian, h)
	got, err := DecodeHeartbeatFrag(sm)
	require.NoError(t, err)
	require.Equal(t, h.WriterSN, got.WriterSN)
	require.Equal(t, h.LastFragmentNum, got.LastFragmentNum)
	require.Equal(t, h.Count, got.Count)
}

func TestInfoDstRoundTripsForeignPrefix(t *testing.T) {
	other := samplePrefix()
	other[0] ^= 0xff
	sm := EncodeInfoDst(binary.BigEndian, InfoDstBody{GuidPrefix: other})
	got, err := DecodeInfoDst(sm)
	require.NoError(t, err)
	require.NotEqual(t, samplePrefix(), got.GuidPrefix)
}
