// Package ddserror defines the DDS error taxonomy. Each kind is a
// distinct wrapped type following a ConnectError/PKIError/ProtocolError
// style pattern: a typed struct carrying an inner Err, satisfying
// errors.Is against the kind's sentinel.
package ddserror

import (
	"errors"
	"fmt"
)

// Kind enumerates the distinct error taxonomy members from spec §7.
type Kind int

const (
	_ Kind = iota
	AlreadyDeleted
	PreconditionNotMet
	BadParameter
	InconsistentPolicy
	ImmutablePolicy
	NotEnabled
	OutOfResources
	Timeout
	NoData
)

func (k Kind) String() string {
	switch k {
	case AlreadyDeleted:
		return "AlreadyDeleted"
	case PreconditionNotMet:
		return "PreconditionNotMet"
	case BadParameter:
		return "BadParameter"
	case InconsistentPolicy:
		return "InconsistentPolicy"
	case ImmutablePolicy:
		return "ImmutablePolicy"
	case NotEnabled:
		return "NotEnabled"
	case OutOfResources:
		return "OutOfResources"
	case Timeout:
		return "Timeout"
	case NoData:
		return "NoData"
	default:
		return "Unknown"
	}
}

// sentinels let callers do errors.Is(err, ddserror.ErrNotEnabled) without
// reaching into the wrapped struct.
var (
	ErrAlreadyDeleted     = errors.New("already deleted")
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrBadParameter       = errors.New("bad parameter")
	ErrInconsistentPolicy = errors.New("inconsistent policy")
	ErrImmutablePolicy    = errors.New("immutable policy")
	ErrNotEnabled         = errors.New("not enabled")
	ErrOutOfResources     = errors.New("out of resources")
	ErrTimeout            = errors.New("timeout")
	ErrNoData             = errors.New("no data")
)

func sentinelFor(k Kind) error {
	switch k {
	case AlreadyDeleted:
		return ErrAlreadyDeleted
	case PreconditionNotMet:
		return ErrPreconditionNotMet
	case BadParameter:
		return ErrBadParameter
	case InconsistentPolicy:
		return ErrInconsistentPolicy
	case ImmutablePolicy:
		return ErrImmutablePolicy
	case NotEnabled:
		return ErrNotEnabled
	case OutOfResources:
		return ErrOutOfResources
	case Timeout:
		return ErrTimeout
	case NoData:
		return ErrNoData
	default:
		return errors.New("unknown ddserror kind")
	}
}

// Error is the error used to indicate a DDS-level API failure.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap lets errors.Is/As reach the inner error; the kind sentinel is
// matched by Is.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind, so
// errors.Is(err, ddserror.ErrNotEnabled) works without a type assertion.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// New constructs an Error of the given Kind, wrapping the formatted inner
// error.
func New(k Kind, f string, a ...interface{}) error {
	var err error
	if f != "" {
		err = fmt.Errorf(f, a...)
	}
	return &Error{Kind: k, Err: err}
}

// KindOf extracts the Kind from err, if err is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
