// Package errs implements the closed error taxonomy shared by every
// fallible operation in the driver, parser and transport layers.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy members from the error handling design.
type Kind int

const (
	Success Kind = iota
	Done
	Unsupported
	InvalidArgs
	NoMemory
	NoAccess
	NoDevice
	Cancelled
	Timeout
	Protocol
	DataFormat
	IO
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Done:
		return "done"
	case Unsupported:
		return "unsupported"
	case InvalidArgs:
		return "invalid arguments"
	case NoMemory:
		return "no memory"
	case NoAccess:
		return "no access"
	case NoDevice:
		return "no device"
	case Cancelled:
		return "cancelled"
	case Timeout:
		return "timeout"
	case Protocol:
		return "protocol error"
	case DataFormat:
		return "data format error"
	case IO:
		return "io error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the structured error value returned across package boundaries.
// Op names the failing operation ("read", "handshake", "crc"); Family, when
// non-empty, names the device family state machine that raised the error.
type Error struct {
	Op     string
	Family string
	Kind   Kind
	Inner  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Family != "" {
		msg = e.Family + "/" + msg
	}
	if e.Inner != nil {
		msg += ": " + e.Inner.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is against both *Error and a bare Kind wrapped in New.
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// New builds an *Error of the given kind, optionally wrapping inner.
func New(op string, kind Kind, inner error) *Error {
	return &Error{Op: op, Kind: kind, Inner: inner}
}

// NewFamily is New with a family tag attached, for driver state machines.
func NewFamily(family, op string, kind Kind, inner error) *Error {
	return &Error{Op: op, Family: family, Kind: kind, Inner: inner}
}

// KindOf extracts the Kind from err, defaulting to IO for unrecognized
// errors (anything not produced by this package is treated as an opaque
// I/O failure, matching the teacher's wrapErr fallback behavior).
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return IO
}

// Retryable reports whether a failed packet exchange may be retried under
// the family retry policy: protocol and timeout errors only. IO, NoAccess
// and NoDevice are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Protocol, Timeout:
		return true
	default:
		return false
	}
}
