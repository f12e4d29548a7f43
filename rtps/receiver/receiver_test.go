package receiver

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/core/wire"
	"github.com/go-rtps/rtps/rtps/history"
)

type fakeDataHandler struct {
	received []wire.DataBody
	writer   types.GUID
}

func (f *fakeDataHandler) HandleData(writerGuid types.GUID, body wire.DataBody, now time.Time) (bool, history.RejectReason) {
	f.writer = writerGuid
	f.received = append(f.received, body)
	return true, history.NotRejected
}

type fakeGapHandler struct {
	gaps   []wire.GapBody
	writer types.GUID
}

func (f *fakeGapHandler) HandleGap(writerGuid types.GUID, body wire.GapBody) {
	f.writer = writerGuid
	f.gaps = append(f.gaps, body)
}

type fakeHeartbeatHandler struct {
	beats  []wire.HeartbeatBody
	writer types.GUID
}

func (f *fakeHeartbeatHandler) HandleHeartbeat(writerGuid types.GUID, body wire.HeartbeatBody, readerID, writerID types.EntityId) {
	f.writer = writerGuid
	f.beats = append(f.beats, body)
}

type fakeAckNackHandler struct {
	acks   []wire.AckNackBody
	reader types.GUID
}

func (f *fakeAckNackHandler) HandleAckNack(readerGuid types.GUID, body wire.AckNackBody) {
	f.reader = readerGuid
	f.acks = append(f.acks, body)
}

var userReaderID = types.EntityId{Key: [3]byte{1, 0, 0}, Kind: types.EntityKindUserDefinedReaderKey}
var userWriterID = types.EntityId{Key: [3]byte{2, 0, 0}, Kind: types.EntityKindUserDefinedWriterKey}

func TestMessageReceiverDispatchesDataToMatchingReader(t *testing.T) {
	var sourcePrefix types.GuidPrefix
	sourcePrefix[0] = 7

	handler := &fakeDataHandler{}
	mr := NewMessageReceiver(types.GuidPrefix{}, EndpointLookup{
		DataReaders: map[types.EntityId]DataHandler{userReaderID: handler},
	})

	msg := wire.Message{
		Header: wire.Header{Version: wire.ProtocolVersion2_3, Vendor: wire.VendorIdThis, GuidPrefix: sourcePrefix},
		Submessages: []wire.Submessage{
			wire.EncodeData(binary.BigEndian, wire.DataBody{ReaderID: userReaderID, WriterID: userWriterID, WriterSeqNum: 1, HasData: true, SerializedPayload: []byte("hi")}),
		},
	}
	raw := wire.EncodeMessage(msg)

	err := mr.ProcessMessage(raw)
	require.NoError(t, err)
	require.Len(t, handler.received, 1)
	require.Equal(t, sourcePrefix, handler.writer.Prefix)
	require.Equal(t, userWriterID, handler.writer.Entity)
}

func TestMessageReceiverDropsUnaddressedSubmessagesAfterInfoDst(t *testing.T) {
	var sourcePrefix, otherPrefix types.GuidPrefix
	sourcePrefix[0] = 7
	otherPrefix[0] = 99

	handler := &fakeDataHandler{}
	mr := NewMessageReceiver(types.GuidPrefix{1: 1}, EndpointLookup{
		DataReaders: map[types.EntityId]DataHandler{userReaderID: handler},
	})

	msg := wire.Message{
		Header: wire.Header{Version: wire.ProtocolVersion2_3, Vendor: wire.VendorIdThis, GuidPrefix: sourcePrefix},
		Submessages: []wire.Submessage{
			wire.EncodeInfoDst(binary.BigEndian, wire.InfoDstBody{GuidPrefix: otherPrefix}),
			wire.EncodeData(binary.BigEndian, wire.DataBody{ReaderID: userReaderID, WriterID: userWriterID, WriterSeqNum: 1, HasData: true, SerializedPayload: []byte("hi")}),
		},
	}
	raw := wire.EncodeMessage(msg)

	err := mr.ProcessMessage(raw)
	require.NoError(t, err)
	require.Empty(t, handler.received)
}

func TestMessageReceiverDispatchesGapHeartbeatAckNack(t *testing.T) {
	var sourcePrefix types.GuidPrefix
	sourcePrefix[0] = 7

	gapH := &fakeGapHandler{}
	hbH := &fakeHeartbeatHandler{}
	anH := &fakeAckNackHandler{}

	mr := NewMessageReceiver(types.GuidPrefix{}, EndpointLookup{
		GapReaders:       map[types.EntityId]GapHandler{userReaderID: gapH},
		HeartbeatReaders: map[types.EntityId]HeartbeatHandler{userReaderID: hbH},
		AckNackWriters:   map[types.EntityId]AckNackHandler{userWriterID: anH},
	})

	set := types.NewSequenceNumberSet(3)
	msg := wire.Message{
		Header: wire.Header{Version: wire.ProtocolVersion2_3, Vendor: wire.VendorIdThis, GuidPrefix: sourcePrefix},
		Submessages: []wire.Submessage{
			wire.EncodeGap(binary.BigEndian, wire.GapBody{ReaderID: userReaderID, WriterID: userWriterID, GapStart: 1, GapList: set}),
			wire.EncodeHeartbeat(binary.BigEndian, wire.HeartbeatBody{ReaderID: userReaderID, WriterID: userWriterID, First: 1, Last: 3, Count: 1}),
			wire.EncodeAckNack(binary.BigEndian, wire.AckNackBody{ReaderID: userReaderID, WriterID: userWriterID, ReaderSNState: set, Count: 1}),
		},
	}
	raw := wire.EncodeMessage(msg)

	err := mr.ProcessMessage(raw)
	require.NoError(t, err)
	require.Len(t, gapH.gaps, 1)
	require.Len(t, hbH.beats, 1)
	require.Len(t, anH.acks, 1)
	require.Equal(t, sourcePrefix, anH.reader.Prefix)
}
