package wire

import (
	"encoding/binary"

	"github.com/go-rtps/rtps/core/types"
)

// Per-submessage flag bits, beyond FlagEndianness (bit 0). These follow the
// RTPS specification's submessage flag layouts.
const (
	FlagDataInlineQos byte = 0x02 // DATA/DATAFRAG: Q
	FlagDataPresent   byte = 0x04 // DATA: D
	FlagDataKey       byte = 0x08 // DATA/DATAFRAG: K
	FlagHeartbeatFinal byte = 0x02 // HEARTBEAT: F
	FlagHeartbeatLive  byte = 0x04 // HEARTBEAT: L
	FlagAckNackFinal   byte = 0x02 // ACKNACK: F
	FlagInfoTSInvalidate byte = 0x02 // INFO_TS: I
	FlagInfoReplyMulticast byte = 0x02 // INFO_REPLY: M
)

func entityIdBytes(order binary.ByteOrder, e types.EntityId) [4]byte {
	// EntityId is always {key[3], kind[1]} regardless of submessage
	// endianness; only multi-byte integer fields are order-dependent.
	return e.Bytes()
}

func putSeq(order binary.ByteOrder, b []byte, s types.SequenceNumber) {
	order.PutUint32(b[0:4], uint32(s.High()))
	order.PutUint32(b[4:8], s.Low())
}

func getSeq(order binary.ByteOrder, b []byte) types.SequenceNumber {
	return types.SequenceNumberFromHalves(int32(order.Uint32(b[0:4])), order.Uint32(b[4:8]))
}

func putSeqSet(order binary.ByteOrder, buf []byte, s types.SequenceNumberSet) []byte {
	head := make([]byte, 8)
	putSeq(order, head, s.Base)
	buf = append(buf, head...)
	sorted := s.Sorted()
	numBits := 0
	if len(sorted) > 0 {
		numBits = int(sorted[len(sorted)-1]-s.Base) + 1
	}
	numBitsB := make([]byte, 4)
	order.PutUint32(numBitsB, uint32(numBits))
	buf = append(buf, numBitsB...)
	numWords := (numBits + 31) / 32
	bitmap := make([]uint32, numWords)
	for _, n := range sorted {
		idx := int(n - s.Base)
		bitmap[idx/32] |= 1 << uint(31-idx%32)
	}
	for _, w := range bitmap {
		wb := make([]byte, 4)
		order.PutUint32(wb, w)
		buf = append(buf, wb...)
	}
	return buf
}

func getSeqSet(order binary.ByteOrder, buf []byte) (types.SequenceNumberSet, int, error) {
	if len(buf) < 12 {
		return types.SequenceNumberSet{}, 0, ErrTruncated
	}
	base := getSeq(order, buf[0:8])
	numBits := int(order.Uint32(buf[8:12]))
	numWords := (numBits + 31) / 32
	offset := 12
	if len(buf) < offset+numWords*4 {
		return types.SequenceNumberSet{}, 0, ErrTruncated
	}
	set := types.NewSequenceNumberSet(base)
	for w := 0; w < numWords; w++ {
		word := order.Uint32(buf[offset+w*4 : offset+w*4+4])
		for bit := 0; bit < 32; bit++ {
			idx := w*32 + bit
			if idx >= numBits {
				break
			}
			if word&(1<<uint(31-bit)) != 0 {
				set.Add(base + types.SequenceNumber(idx))
			}
		}
	}
	offset += numWords * 4
	return set, offset, nil
}

// DataBody is the decoded form of a DATA submessage.
type DataBody struct {
	ReaderID      types.EntityId
	WriterID      types.EntityId
	WriterSeqNum  types.SequenceNumber
	InlineQos     ParameterList
	HasInlineQos  bool
	HasData       bool
	HasKey        bool
	SerializedPayload []byte
}

// EncodeData renders a DataBody to a Submessage using order for multi-byte
// fields.
func EncodeData(order binary.ByteOrder, d DataBody) Submessage {
	flags := FlagEndiannessFlag(order)
	if d.HasInlineQos {
		flags |= FlagDataInlineQos
	}
	if d.HasData {
		flags |= FlagDataPresent
	}
	if d.HasKey {
		flags |= FlagDataKey
	}
	buf := make([]byte, 0, 24+len(d.SerializedPayload))
	buf = append(buf, 0, 0) // extraFlags, reserved by spec; unused here
	octetsToInlineQos := make([]byte, 2)
	// octetsToInlineQos counts from just after this field to the start of
	// inlineQos/payload; with no extra header content it is fixed at 16
	// (readerId+writerId+writerSeqNum).
	order.PutUint16(octetsToInlineQos, 16)
	buf = append(buf, octetsToInlineQos...)
	rid := entityIdBytes(order, d.ReaderID)
	wid := entityIdBytes(order, d.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	seq := make([]byte, 8)
	putSeq(order, seq, d.WriterSeqNum)
	buf = append(buf, seq...)
	if d.HasInlineQos {
		buf = append(buf, EncodeParameterList(order, d.InlineQos)...)
	}
	if d.HasData || d.HasKey {
		buf = append(buf, d.SerializedPayload...)
	}
	return Submessage{ID: SubmessageIDData, Flags: flags, Body: buf}
}

// DecodeData parses a DATA submessage body.
func DecodeData(sm Submessage) (DataBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 20 {
		return DataBody{}, ErrTruncated
	}
	octetsToInlineQos := int(order.Uint16(b[2:4]))
	d := DataBody{
		HasInlineQos: sm.Flags&FlagDataInlineQos != 0,
		HasData:      sm.Flags&FlagDataPresent != 0,
		HasKey:       sm.Flags&FlagDataKey != 0,
	}
	d.ReaderID = types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]})
	d.WriterID = types.EntityIdFromBytes([4]byte{b[8], b[9], b[10], b[11]})
	d.WriterSeqNum = getSeq(order, b[12:20])
	rest := b[4+octetsToInlineQos:]
	if d.HasInlineQos {
		pl, n, err := DecodeParameterList(order, rest)
		if err != nil {
			return DataBody{}, err
		}
		d.InlineQos = pl
		rest = rest[n:]
	}
	if d.HasData || d.HasKey {
		d.SerializedPayload = append([]byte(nil), rest...)
	}
	return d, nil
}

// GapBody is the decoded form of a GAP submessage: an irrelevant-range
// [GapStart, GapList.Base) plus an explicit irrelevant GapList (spec §4.5).
type GapBody struct {
	ReaderID types.EntityId
	WriterID types.EntityId
	GapStart types.SequenceNumber
	GapList  types.SequenceNumberSet
}

// EncodeGap renders a GapBody to a Submessage.
func EncodeGap(order binary.ByteOrder, g GapBody) Submessage {
	buf := make([]byte, 0, 32)
	rid := entityIdBytes(order, g.ReaderID)
	wid := entityIdBytes(order, g.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	start := make([]byte, 8)
	putSeq(order, start, g.GapStart)
	buf = append(buf, start...)
	buf = putSeqSet(order, buf, g.GapList)
	return Submessage{ID: SubmessageIDGap, Flags: FlagEndiannessFlag(order), Body: buf}
}

// DecodeGap parses a GAP submessage body.
func DecodeGap(sm Submessage) (GapBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 16 {
		return GapBody{}, ErrTruncated
	}
	g := GapBody{
		ReaderID: types.EntityIdFromBytes([4]byte{b[0], b[1], b[2], b[3]}),
		WriterID: types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]}),
		GapStart: getSeq(order, b[8:16]),
	}
	set, _, err := getSeqSet(order, b[16:])
	if err != nil {
		return GapBody{}, err
	}
	g.GapList = set
	return g, nil
}

// HeartbeatBody is the decoded form of a HEARTBEAT submessage.
type HeartbeatBody struct {
	ReaderID types.EntityId
	WriterID types.EntityId
	First    types.SequenceNumber
	Last     types.SequenceNumber
	Count    types.Count
	Final    bool
	Liveliness bool
}

// EncodeHeartbeat renders a HeartbeatBody to a Submessage.
func EncodeHeartbeat(order binary.ByteOrder, h HeartbeatBody) Submessage {
	flags := FlagEndiannessFlag(order)
	if h.Final {
		flags |= FlagHeartbeatFinal
	}
	if h.Liveliness {
		flags |= FlagHeartbeatLive
	}
	buf := make([]byte, 0, 28)
	rid := entityIdBytes(order, h.ReaderID)
	wid := entityIdBytes(order, h.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	first := make([]byte, 8)
	putSeq(order, first, h.First)
	buf = append(buf, first...)
	last := make([]byte, 8)
	putSeq(order, last, h.Last)
	buf = append(buf, last...)
	count := make([]byte, 4)
	order.PutUint32(count, uint32(h.Count))
	buf = append(buf, count...)
	return Submessage{ID: SubmessageIDHeartbeat, Flags: flags, Body: buf}
}

// DecodeHeartbeat parses a HEARTBEAT submessage body.
func DecodeHeartbeat(sm Submessage) (HeartbeatBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 28 {
		return HeartbeatBody{}, ErrTruncated
	}
	return HeartbeatBody{
		ReaderID:   types.EntityIdFromBytes([4]byte{b[0], b[1], b[2], b[3]}),
		WriterID:   types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]}),
		First:      getSeq(order, b[8:16]),
		Last:       getSeq(order, b[16:24]),
		Count:      types.Count(order.Uint32(b[24:28])),
		Final:      sm.Flags&FlagHeartbeatFinal != 0,
		Liveliness: sm.Flags&FlagHeartbeatLive != 0,
	}, nil
}

// AckNackBody is the decoded form of an ACKNACK submessage.
type AckNackBody struct {
	ReaderID types.EntityId
	WriterID types.EntityId
	ReaderSNState types.SequenceNumberSet
	Count    types.Count
	Final    bool
}

// EncodeAckNack renders an AckNackBody to a Submessage.
func EncodeAckNack(order binary.ByteOrder, a AckNackBody) Submessage {
	flags := FlagEndiannessFlag(order)
	if a.Final {
		flags |= FlagAckNackFinal
	}
	buf := make([]byte, 0, 32)
	rid := entityIdBytes(order, a.ReaderID)
	wid := entityIdBytes(order, a.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	buf = putSeqSet(order, buf, a.ReaderSNState)
	count := make([]byte, 4)
	order.PutUint32(count, uint32(a.Count))
	buf = append(buf, count...)
	return Submessage{ID: SubmessageIDAckNack, Flags: flags, Body: buf}
}

// DecodeAckNack parses an ACKNACK submessage body.
func DecodeAckNack(sm Submessage) (AckNackBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 8 {
		return AckNackBody{}, ErrTruncated
	}
	a := AckNackBody{
		ReaderID: types.EntityIdFromBytes([4]byte{b[0], b[1], b[2], b[3]}),
		WriterID: types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]}),
		Final:    sm.Flags&FlagAckNackFinal != 0,
	}
	set, n, err := getSeqSet(order, b[8:])
	if err != nil {
		return AckNackBody{}, err
	}
	a.ReaderSNState = set
	offset := 8 + n
	if len(b) < offset+4 {
		return AckNackBody{}, ErrTruncated
	}
	a.Count = types.Count(order.Uint32(b[offset : offset+4]))
	return a, nil
}

// HeartbeatFragBody is the decoded form of a HEARTBEAT_FRAG submessage: it
// paces DATAFRAG delivery the way HEARTBEAT paces whole-sample DATA, naming
// the last fragment of WriterSN the writer has sent so far (spec §4.4 item
// 4).
type HeartbeatFragBody struct {
	ReaderID        types.EntityId
	WriterID        types.EntityId
	WriterSN        types.SequenceNumber
	LastFragmentNum uint32
	Count           types.Count
}

// EncodeHeartbeatFrag renders a HeartbeatFragBody to a Submessage.
func EncodeHeartbeatFrag(order binary.ByteOrder, h HeartbeatFragBody) Submessage {
	buf := make([]byte, 0, 24)
	rid := entityIdBytes(order, h.ReaderID)
	wid := entityIdBytes(order, h.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	seq := make([]byte, 8)
	putSeq(order, seq, h.WriterSN)
	buf = append(buf, seq...)
	last := make([]byte, 4)
	order.PutUint32(last, h.LastFragmentNum)
	buf = append(buf, last...)
	count := make([]byte, 4)
	order.PutUint32(count, uint32(h.Count))
	buf = append(buf, count...)
	return Submessage{ID: SubmessageIDHeartbeatFrag, Flags: FlagEndiannessFlag(order), Body: buf}
}

// DecodeHeartbeatFrag parses a HEARTBEAT_FRAG submessage body.
func DecodeHeartbeatFrag(sm Submessage) (HeartbeatFragBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 24 {
		return HeartbeatFragBody{}, ErrTruncated
	}
	return HeartbeatFragBody{
		ReaderID:        types.EntityIdFromBytes([4]byte{b[0], b[1], b[2], b[3]}),
		WriterID:        types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]}),
		WriterSN:        getSeq(order, b[8:16]),
		LastFragmentNum: order.Uint32(b[16:20]),
		Count:           types.Count(order.Uint32(b[20:24])),
	}, nil
}

// FragmentNumberSet is a sparse set of 1-based fragment numbers, used by
// NACKFRAG and carried by DATAFRAG reassembly state.
type FragmentNumberSet struct {
	Base uint32
	Set  map[uint32]struct{}
}

// NewFragmentNumberSet constructs an empty set based at base.
func NewFragmentNumberSet(base uint32) FragmentNumberSet {
	return FragmentNumberSet{Base: base, Set: make(map[uint32]struct{})}
}

// Add inserts n into the set.
func (s FragmentNumberSet) Add(n uint32) { s.Set[n] = struct{}{} }

// Sorted returns the set's members in ascending order.
func (s FragmentNumberSet) Sorted() []uint32 {
	out := make([]uint32, 0, len(s.Set))
	for n := range s.Set {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// NackFragBody is the decoded form of a NACKFRAG submessage.
type NackFragBody struct {
	ReaderID    types.EntityId
	WriterID    types.EntityId
	WriterSN    types.SequenceNumber
	FragmentNumberState FragmentNumberSet
	Count       types.Count
}

// EncodeNackFrag renders a NackFragBody to a Submessage.
func EncodeNackFrag(order binary.ByteOrder, n NackFragBody) Submessage {
	buf := make([]byte, 0, 32)
	rid := entityIdBytes(order, n.ReaderID)
	wid := entityIdBytes(order, n.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	seq := make([]byte, 8)
	putSeq(order, seq, n.WriterSN)
	buf = append(buf, seq...)

	sorted := n.FragmentNumberState.Sorted()
	numBits := 0
	if len(sorted) > 0 {
		numBits = int(sorted[len(sorted)-1]-n.FragmentNumberState.Base) + 1
	}
	baseB := make([]byte, 4)
	order.PutUint32(baseB, n.FragmentNumberState.Base)
	buf = append(buf, baseB...)
	numBitsB := make([]byte, 4)
	order.PutUint32(numBitsB, uint32(numBits))
	buf = append(buf, numBitsB...)
	numWords := (numBits + 31) / 32
	bitmap := make([]uint32, numWords)
	for _, f := range sorted {
		idx := int(f - n.FragmentNumberState.Base)
		bitmap[idx/32] |= 1 << uint(31-idx%32)
	}
	for _, w := range bitmap {
		wb := make([]byte, 4)
		order.PutUint32(wb, w)
		buf = append(buf, wb...)
	}
	count := make([]byte, 4)
	order.PutUint32(count, uint32(n.Count))
	buf = append(buf, count...)
	return Submessage{ID: SubmessageIDNackFrag, Flags: FlagEndiannessFlag(order), Body: buf}
}

// DecodeNackFrag parses a NACKFRAG submessage body.
func DecodeNackFrag(sm Submessage) (NackFragBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 24 {
		return NackFragBody{}, ErrTruncated
	}
	n := NackFragBody{
		ReaderID: types.EntityIdFromBytes([4]byte{b[0], b[1], b[2], b[3]}),
		WriterID: types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]}),
		WriterSN: getSeq(order, b[8:16]),
	}
	base := order.Uint32(b[16:20])
	numBits := int(order.Uint32(b[20:24]))
	numWords := (numBits + 31) / 32
	offset := 24
	if len(b) < offset+numWords*4+4 {
		return NackFragBody{}, ErrTruncated
	}
	set := NewFragmentNumberSet(base)
	for w := 0; w < numWords; w++ {
		word := order.Uint32(b[offset+w*4 : offset+w*4+4])
		for bit := 0; bit < 32; bit++ {
			idx := w*32 + bit
			if idx >= numBits {
				break
			}
			if word&(1<<uint(31-bit)) != 0 {
				set.Add(base + uint32(idx))
			}
		}
	}
	offset += numWords * 4
	n.FragmentNumberState = set
	n.Count = types.Count(order.Uint32(b[offset : offset+4]))
	return n, nil
}

// DataFragBody is the decoded form of a DATAFRAG submessage.
type DataFragBody struct {
	ReaderID       types.EntityId
	WriterID       types.EntityId
	WriterSeqNum   types.SequenceNumber
	FragmentStartingNum uint32
	FragmentsInSubmessage uint16
	FragmentSize   uint16
	SampleSize     uint32
	HasInlineQos   bool
	InlineQos      ParameterList
	HasKey         bool
	FragmentData   []byte
}

// EncodeDataFrag renders a DataFragBody to a Submessage.
func EncodeDataFrag(order binary.ByteOrder, d DataFragBody) Submessage {
	flags := FlagEndiannessFlag(order)
	if d.HasInlineQos {
		flags |= FlagDataInlineQos
	}
	if d.HasKey {
		flags |= FlagDataKey
	}
	buf := make([]byte, 0, 32+len(d.FragmentData))
	buf = append(buf, 0, 0)
	octetsToInlineQos := make([]byte, 2)
	order.PutUint16(octetsToInlineQos, 28)
	buf = append(buf, octetsToInlineQos...)
	rid := entityIdBytes(order, d.ReaderID)
	wid := entityIdBytes(order, d.WriterID)
	buf = append(buf, rid[:]...)
	buf = append(buf, wid[:]...)
	seq := make([]byte, 8)
	putSeq(order, seq, d.WriterSeqNum)
	buf = append(buf, seq...)
	u32 := make([]byte, 4)
	order.PutUint32(u32, d.FragmentStartingNum)
	buf = append(buf, u32...)
	u16 := make([]byte, 2)
	order.PutUint16(u16, d.FragmentsInSubmessage)
	buf = append(buf, u16...)
	order.PutUint16(u16, d.FragmentSize)
	buf = append(buf, u16...)
	order.PutUint32(u32, d.SampleSize)
	buf = append(buf, u32...)
	if d.HasInlineQos {
		buf = append(buf, EncodeParameterList(order, d.InlineQos)...)
	}
	buf = append(buf, d.FragmentData...)
	return Submessage{ID: SubmessageIDDataFrag, Flags: flags, Body: buf}
}

// DecodeDataFrag parses a DATAFRAG submessage body.
func DecodeDataFrag(sm Submessage) (DataFragBody, error) {
	order := sm.ByteOrder()
	b := sm.Body
	if len(b) < 32 {
		return DataFragBody{}, ErrTruncated
	}
	octetsToInlineQos := int(order.Uint16(b[2:4]))
	d := DataFragBody{
		HasInlineQos: sm.Flags&FlagDataInlineQos != 0,
		HasKey:       sm.Flags&FlagDataKey != 0,
	}
	d.ReaderID = types.EntityIdFromBytes([4]byte{b[4], b[5], b[6], b[7]})
	d.WriterID = types.EntityIdFromBytes([4]byte{b[8], b[9], b[10], b[11]})
	d.WriterSeqNum = getSeq(order, b[12:20])
	d.FragmentStartingNum = order.Uint32(b[20:24])
	d.FragmentsInSubmessage = order.Uint16(b[24:26])
	d.FragmentSize = order.Uint16(b[26:28])
	d.SampleSize = order.Uint32(b[28:32])
	rest := b[4+octetsToInlineQos:]
	if d.HasInlineQos {
		pl, n, err := DecodeParameterList(order, rest)
		if err != nil {
			return DataFragBody{}, err
		}
		d.InlineQos = pl
		rest = rest[n:]
	}
	d.FragmentData = append([]byte(nil), rest...)
	return d, nil
}

// InfoTSBody is the decoded form of an INFO_TS submessage: sets the
// receiver timestamp (spec §4.1, §4.6), unless Invalidate is set.
type InfoTSBody struct {
	Invalidate bool
	Seconds    int32
	Fraction   uint32
}

// EncodeInfoTS renders an InfoTSBody to a Submessage.
func EncodeInfoTS(order binary.ByteOrder, t InfoTSBody) Submessage {
	flags := FlagEndiannessFlag(order)
	if t.Invalidate {
		flags |= FlagInfoTSInvalidate
		return Submessage{ID: SubmessageIDInfoTS, Flags: flags, Body: nil}
	}
	buf := make([]byte, 8)
	order.PutUint32(buf[0:4], uint32(t.Seconds))
	order.PutUint32(buf[4:8], t.Fraction)
	return Submessage{ID: SubmessageIDInfoTS, Flags: flags, Body: buf}
}

// DecodeInfoTS parses an INFO_TS submessage body.
func DecodeInfoTS(sm Submessage) (InfoTSBody, error) {
	if sm.Flags&FlagInfoTSInvalidate != 0 {
		return InfoTSBody{Invalidate: true}, nil
	}
	order := sm.ByteOrder()
	if len(sm.Body) < 8 {
		return InfoTSBody{}, ErrTruncated
	}
	return InfoTSBody{
		Seconds:  int32(order.Uint32(sm.Body[0:4])),
		Fraction: order.Uint32(sm.Body[4:8]),
	}, nil
}

// InfoSrcBody rewrites the receiver's notion of source vendor/version/
// prefix (spec §4.1, §4.6).
type InfoSrcBody struct {
	Version    ProtocolVersion
	Vendor     VendorId
	GuidPrefix types.GuidPrefix
}

// EncodeInfoSrc renders an InfoSrcBody to a Submessage.
func EncodeInfoSrc(order binary.ByteOrder, s InfoSrcBody) Submessage {
	buf := make([]byte, 4, 4+types.GuidPrefixLength)
	buf[0], buf[1] = s.Version.Major, s.Version.Minor
	buf[2], buf[3] = s.Vendor[0], s.Vendor[1]
	buf = append(buf, s.GuidPrefix[:]...)
	return Submessage{ID: SubmessageIDInfoSrc, Flags: FlagEndiannessFlag(order), Body: buf}
}

// DecodeInfoSrc parses an INFO_SRC submessage body.
func DecodeInfoSrc(sm Submessage) (InfoSrcBody, error) {
	b := sm.Body
	if len(b) < 4+types.GuidPrefixLength {
		return InfoSrcBody{}, ErrTruncated
	}
	var s InfoSrcBody
	s.Version = ProtocolVersion{Major: b[0], Minor: b[1]}
	s.Vendor = VendorId{b[2], b[3]}
	copy(s.GuidPrefix[:], b[4:4+types.GuidPrefixLength])
	return s, nil
}

// InfoDstBody sets the destination GuidPrefix; if it does not match ours,
// the remainder of the datagram is dropped for entity submessages (spec
// §4.1, §4.6).
type InfoDstBody struct {
	GuidPrefix types.GuidPrefix
}

// EncodeInfoDst renders an InfoDstBody to a Submessage.
func EncodeInfoDst(order binary.ByteOrder, d InfoDstBody) Submessage {
	buf := append([]byte(nil), d.GuidPrefix[:]...)
	return Submessage{ID: SubmessageIDInfoDst, Flags: FlagEndiannessFlag(order), Body: buf}
}

// DecodeInfoDst parses an INFO_DST submessage body.
func DecodeInfoDst(sm Submessage) (InfoDstBody, error) {
	if len(sm.Body) < types.GuidPrefixLength {
		return InfoDstBody{}, ErrTruncated
	}
	var d InfoDstBody
	copy(d.GuidPrefix[:], sm.Body[:types.GuidPrefixLength])
	return d, nil
}

// InfoReplyBody carries the locators a reply should be sent to (spec
// §4.1).
type InfoReplyBody struct {
	UnicastLocators   []types.Locator
	Multicast         bool
	MulticastLocators []types.Locator
}

func encodeLocatorList(order binary.ByteOrder, locs []types.Locator) []byte {
	buf := make([]byte, 4)
	order.PutUint32(buf, uint32(len(locs)))
	for _, l := range locs {
		entry := make([]byte, 24)
		order.PutUint32(entry[0:4], uint32(l.Kind))
		order.PutUint32(entry[4:8], l.Port)
		copy(entry[8:24], l.Address[:])
		buf = append(buf, entry...)
	}
	return buf
}

func decodeLocatorList(order binary.ByteOrder, b []byte) ([]types.Locator, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrTruncated
	}
	n := int(order.Uint32(b[0:4]))
	offset := 4
	out := make([]types.Locator, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < offset+24 {
			return nil, 0, ErrTruncated
		}
		var l types.Locator
		l.Kind = types.LocatorKind(int32(order.Uint32(b[offset : offset+4])))
		l.Port = order.Uint32(b[offset+4 : offset+8])
		copy(l.Address[:], b[offset+8:offset+24])
		out = append(out, l)
		offset += 24
	}
	return out, offset, nil
}

// EncodeInfoReply renders an InfoReplyBody to a Submessage.
func EncodeInfoReply(order binary.ByteOrder, r InfoReplyBody) Submessage {
	flags := FlagEndiannessFlag(order)
	buf := encodeLocatorList(order, r.UnicastLocators)
	if r.Multicast {
		flags |= FlagInfoReplyMulticast
		buf = append(buf, encodeLocatorList(order, r.MulticastLocators)...)
	}
	return Submessage{ID: SubmessageIDInfoReply, Flags: flags, Body: buf}
}

// DecodeInfoReply parses an INFO_REPLY submessage body.
func DecodeInfoReply(sm Submessage) (InfoReplyBody, error) {
	order := sm.ByteOrder()
	ucast, n, err := decodeLocatorList(order, sm.Body)
	if err != nil {
		return InfoReplyBody{}, err
	}
	r := InfoReplyBody{UnicastLocators: ucast}
	if sm.Flags&FlagInfoReplyMulticast != 0 {
		mcast, _, err := decodeLocatorList(order, sm.Body[n:])
		if err != nil {
			return InfoReplyBody{}, err
		}
		r.Multicast = true
		r.MulticastLocators = mcast
	}
	return r, nil
}

// FlagEndiannessFlag returns the FlagEndianness bit for the given byte
// order (set for little-endian, clear for big-endian, per spec §4.1).
func FlagEndiannessFlag(order binary.ByteOrder) byte {
	if order == binary.LittleEndian {
		return FlagEndianness
	}
	return 0
}
