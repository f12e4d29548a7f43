package ddsapi

import (
	"sync"

	"github.com/go-rtps/rtps/core/ddserror"
)

// Serializer is implemented by any sample value a DataWriter can Write
// (spec §6 XTypes/CDR boundary). Serialize(true) returns the sample's
// serialized key fields, used to derive the InstanceHandle when the
// caller doesn't supply one directly; Serialize(false) returns the full
// serialized sample placed on the wire. No CDR codec ships with this
// package (spec Non-goals) — callers provide their own encoding.
type Serializer interface {
	Serialize(key bool) ([]byte, error)
}

// TypeSupport binds a logical DDS type name to the application type that
// represents its samples. It carries no behavior itself (spec §6: "QoS
// policy structs are plain data ... the matching behavior lives in
// core/qos" applies equally here — encode/decode behavior lives on the
// Serializer the caller passes to Write, not on TypeSupport).
type TypeSupport struct {
	TypeName string
}

// TypeSupportRegistry is the per-participant set of registered
// TypeSupports. CreateTopic consults it so a topic can't be created
// against a typo'd or never-registered type name.
type TypeSupportRegistry struct {
	mu    sync.Mutex
	types map[string]TypeSupport
}

// NewTypeSupportRegistry constructs an empty registry.
func NewTypeSupportRegistry() *TypeSupportRegistry {
	return &TypeSupportRegistry{types: make(map[string]TypeSupport)}
}

// Register records ts, failing with BadParameter if its TypeName was
// already registered under a different value.
func (r *TypeSupportRegistry) Register(ts TypeSupport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[ts.TypeName]; ok && existing != ts {
		return ddserror.New(ddserror.BadParameter, "type %q already registered with different definition", ts.TypeName)
	}
	r.types[ts.TypeName] = ts
	return nil
}

// Lookup returns the TypeSupport registered under typeName, if any.
func (r *TypeSupportRegistry) Lookup(typeName string) (TypeSupport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.types[typeName]
	return ts, ok
}
