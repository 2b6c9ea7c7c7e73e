// Package cgerrors defines the chunked graph's error taxonomy.
//
// Every component returns errors wrapping one of the sentinel Kind values
// below, so callers can both `errors.Is` against a sentinel and, via
// `errors.As`, recover the richer *Error for logging or HTTP status mapping
// at the (out of scope) transport boundary.
package cgerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error per the taxonomy.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = iota
	// KindBadRequest covers malformed input: bad timestamps, unknown
	// tables, endpoints too far apart, identical terminals, disconnected
	// terminals, unsupported table for undo/redo/rollback.
	KindBadRequest
	// KindPrecondition covers graph state that forbids an edit: illegal
	// split, invariant violation.
	KindPrecondition
	// KindPostcondition covers an edit that produced no new roots; callers
	// surface this as KindInternal per spec.
	KindPostcondition
	// KindLocking covers a root lock busy past the retry budget.
	KindLocking
	// KindConflict covers a store CAS rejection; retried internally and
	// surfaced only after the retry budget is exhausted.
	KindConflict
	// KindNotFound covers a node or operation unknown at the requested
	// time.
	KindNotFound
	// KindUnavailable covers store or messaging transport failure.
	KindUnavailable
	// KindInvariant covers a violated structural invariant (e.g. a node
	// appearing in both sources and sinks).
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindPrecondition:
		return "PreconditionError"
	case KindPostcondition:
		return "Postcondition"
	case KindLocking:
		return "LockingError"
	case KindConflict:
		return "Conflict"
	case KindNotFound:
		return "NotFound"
	case KindUnavailable:
		return "Unavailable"
	case KindInvariant:
		return "Invariant"
	default:
		return "Internal"
	}
}

// Error is a typed error carrying a Kind, a human message, and an optional
// wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for e's Kind, so that
// errors.Is(err, cgerrors.ErrNotFound) works against a wrapped *Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*sentinelError)
	return ok && sentinel.kind == e.Kind
}

// sentinelError is a bare marker for a Kind, usable as the target of
// errors.Is against any *Error of the same Kind.
type sentinelError struct{ kind Kind }

func (s *sentinelError) Error() string { return s.kind.String() }

var (
	// ErrBadRequest is the sentinel for KindBadRequest.
	ErrBadRequest = &sentinelError{KindBadRequest}
	// ErrPrecondition is the sentinel for KindPrecondition.
	ErrPrecondition = &sentinelError{KindPrecondition}
	// ErrPostcondition is the sentinel for KindPostcondition.
	ErrPostcondition = &sentinelError{KindPostcondition}
	// ErrLocking is the sentinel for KindLocking.
	ErrLocking = &sentinelError{KindLocking}
	// ErrConflict is the sentinel for KindConflict.
	ErrConflict = &sentinelError{KindConflict}
	// ErrNotFound is the sentinel for KindNotFound.
	ErrNotFound = &sentinelError{KindNotFound}
	// ErrUnavailable is the sentinel for KindUnavailable.
	ErrUnavailable = &sentinelError{KindUnavailable}
	// ErrInvariant is the sentinel for KindInvariant.
	ErrInvariant = &sentinelError{KindInvariant}
	// ErrInternal is the sentinel for KindInternal.
	ErrInternal = &sentinelError{KindInternal}
)

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
