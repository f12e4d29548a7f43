// Package types holds the RTPS wire-level identity and value types shared
// across the protocol engine: GUID, EntityId, SequenceNumber, Locator,
// InstanceHandle. These are plain data with small helper methods,
// not protocol behavior.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// GuidPrefixLength is the size in bytes of a GuidPrefix (spec §3).
const GuidPrefixLength = 12

// EntityIdLength is the size in bytes of an EntityId (spec §3).
const EntityIdLength = 4

// GuidPrefix identifies a participant; it is identical for every entity
// belonging to that participant.
type GuidPrefix [GuidPrefixLength]byte

func (p GuidPrefix) String() string {
	return fmt.Sprintf("%x", p[:])
}

// EntityKind enumerates the fixed RTPS entity-kind byte values (spec §3:
// writer/reader x with-key/no-key x user-defined/built-in).
type EntityKind byte

const (
	EntityKindUnknown               EntityKind = 0x00
	EntityKindUserDefinedWriterNoKey EntityKind = 0x03
	EntityKindUserDefinedWriterKey   EntityKind = 0x02
	EntityKindUserDefinedReaderNoKey EntityKind = 0x04
	EntityKindUserDefinedReaderKey   EntityKind = 0x07
	EntityKindBuiltinWriterNoKey     EntityKind = 0xc3
	EntityKindBuiltinWriterKey       EntityKind = 0xc2
	EntityKindBuiltinReaderNoKey     EntityKind = 0xc4
	EntityKindBuiltinReaderKey       EntityKind = 0xc7
	EntityKindBuiltinParticipant     EntityKind = 0xc1
)

// IsWriter reports whether the entity kind denotes a writer.
func (k EntityKind) IsWriter() bool {
	switch k {
	case EntityKindUserDefinedWriterNoKey, EntityKindUserDefinedWriterKey,
		EntityKindBuiltinWriterNoKey, EntityKindBuiltinWriterKey:
		return true
	}
	return false
}

// IsReader reports whether the entity kind denotes a reader.
func (k EntityKind) IsReader() bool {
	switch k {
	case EntityKindUserDefinedReaderNoKey, EntityKindUserDefinedReaderKey,
		EntityKindBuiltinReaderNoKey, EntityKindBuiltinReaderKey:
		return true
	}
	return false
}

// IsBuiltin reports whether the entity kind denotes a built-in (discovery)
// endpoint rather than a user-defined one.
func (k EntityKind) IsBuiltin() bool {
	return k&0xc0 == 0xc0
}

// EntityId is the 4-byte {key (3 bytes), kind (1 byte)} pair identifying an
// entity within a participant.
type EntityId struct {
	Key  [3]byte
	Kind EntityKind
}

// Well-known builtin EntityIds (SPDP/SEDP), per the RTPS specification.
var (
	EntityIdParticipant        = EntityId{Key: [3]byte{0x00, 0x00, 0x01}, Kind: EntityKindBuiltinParticipant}
	EntityIdSpdpWriter         = EntityId{Key: [3]byte{0x00, 0x01, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSpdpReader         = EntityId{Key: [3]byte{0x00, 0x01, 0x00}, Kind: EntityKindBuiltinReaderKey}
	EntityIdSedpPubWriter      = EntityId{Key: [3]byte{0x00, 0x03, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSedpPubReader      = EntityId{Key: [3]byte{0x00, 0x03, 0x00}, Kind: EntityKindBuiltinReaderKey}
	EntityIdSedpSubWriter      = EntityId{Key: [3]byte{0x00, 0x04, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSedpSubReader      = EntityId{Key: [3]byte{0x00, 0x04, 0x00}, Kind: EntityKindBuiltinReaderKey}
	EntityIdSedpTopicWriter    = EntityId{Key: [3]byte{0x00, 0x02, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSedpTopicReader    = EntityId{Key: [3]byte{0x00, 0x02, 0x00}, Kind: EntityKindBuiltinReaderKey}
	EntityIdUnknown            = EntityId{}
)

// Bytes serializes the EntityId to its 4-byte wire form.
func (e EntityId) Bytes() [4]byte {
	return [4]byte{e.Key[0], e.Key[1], e.Key[2], byte(e.Kind)}
}

// EntityIdFromBytes parses the 4-byte wire form of an EntityId.
func EntityIdFromBytes(b [4]byte) EntityId {
	return EntityId{Key: [3]byte{b[0], b[1], b[2]}, Kind: EntityKind(b[3])}
}

// GUID is the 16-byte {GuidPrefix, EntityId} global identifier (spec §3).
type GUID struct {
	Prefix GuidPrefix
	Entity EntityId
}

func (g GUID) String() string {
	eb := g.Entity.Bytes()
	return fmt.Sprintf("%s:%x", g.Prefix, eb[:])
}

// IsUnknown reports whether the GUID is the zero value.
func (g GUID) IsUnknown() bool {
	return g == GUID{}
}

// InstanceHandleLength is the size in bytes of an InstanceHandle (spec §3).
const InstanceHandleLength = 16

// InstanceHandle is the opaque identity of a keyed sample, derived from the
// serialized key.
type InstanceHandle [InstanceHandleLength]byte

// InstanceHandleFromKey derives the InstanceHandle for a serialized key
// value. Two samples whose serialized keys are byte-identical map to the
// same instance, per spec §3.
func InstanceHandleFromKey(serializedKey []byte) InstanceHandle {
	sum := sha256.Sum256(serializedKey)
	var h InstanceHandle
	copy(h[:], sum[:InstanceHandleLength])
	return h
}

// IsUnknown reports whether the handle is the zero value (no-key topic).
func (h InstanceHandle) IsUnknown() bool {
	return h == InstanceHandle{}
}

// PutUint32BE writes v big-endian into b[0:4], regardless of any
// submessage's chosen body endianness.
func PutUint32BE(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}
