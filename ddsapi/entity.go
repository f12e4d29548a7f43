// Package ddsapi is the minimal external DDS entity API surface (spec §6):
// DomainParticipantFactory/Participant/Publisher/Subscriber/Topic/
// DataWriter/DataReader, plus a StatusCondition/WaitSet pair and the
// Serializer/TypeSupport boundary to a not-yet-implemented CDR codec. It is
// a thin layer over package participant, translating its mailbox-backed
// GUID API into entity handles with Enable/SetListener/delete semantics
// (spec §7).
package ddsapi

import (
	"sync"

	"github.com/go-rtps/rtps/core/ddserror"
)

// entity is embedded by every DDS entity handle in this package. It tracks
// the enabled/deleted bits of the Entity lifecycle (spec §6 Entity.Enable)
// and holds whatever per-kind listener SetListener installed, stored as
// interface{} since each entity kind has its own listener interface.
type entity struct {
	mu       sync.Mutex
	enabled  bool
	deleted  bool
	listener interface{}
}

// Enable transitions the entity to the enabled state. Calling Enable on an
// already-enabled entity is a no-op, matching the DDS specification's
// idempotent Enable (spec §6).
func (e *entity) Enable() error {
	return e.enableWith(nil)
}

// enableWith transitions the entity to enabled, running start exactly
// once — on whichever call performs the transition — so a side effect
// like opening a socket never runs twice under Enable's idempotence
// (spec §6). DomainParticipant is the only entity in this package with
// such a side effect; every other entity passes nil.
func (e *entity) enableWith(start func() error) error {
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return ddserror.New(ddserror.AlreadyDeleted, "")
	}
	if e.enabled {
		e.mu.Unlock()
		return nil
	}
	e.enabled = true
	e.mu.Unlock()
	if start != nil {
		return start()
	}
	return nil
}

// Enabled reports whether Enable has been called.
func (e *entity) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// setListener installs l as the entity's listener, replacing any
// previously installed one.
func (e *entity) setListener(l interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ddserror.New(ddserror.AlreadyDeleted, "")
	}
	e.listener = l
	return nil
}

// getListener returns the currently installed listener, or nil if none was
// ever set or the entity has since been deleted. Resolves the open
// question on get_listener: a lookup before any SetListener call, or after
// delete, returns nil rather than panicking (see DESIGN.md).
func (e *entity) getListener() interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil
	}
	return e.listener
}

// markDeleted marks the entity deleted; further Enable/SetListener calls
// fail with AlreadyDeleted.
func (e *entity) markDeleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
}

// requireEnabled returns NotEnabled if Enable hasn't been called yet, or
// AlreadyDeleted if the entity was deleted (spec §7: operations on a
// not-yet-enabled entity that require it to be active fail this way).
func (e *entity) requireEnabled() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ddserror.New(ddserror.AlreadyDeleted, "")
	}
	if !e.enabled {
		return ddserror.New(ddserror.NotEnabled, "")
	}
	return nil
}
