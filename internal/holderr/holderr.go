// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package holderr defines the Seat Lock Engine's error taxonomy as a single
// typed error, so that transport and logging layers never branch on error
// strings.
package holderr

import "fmt"

// Kind enumerates the error taxonomy. Kind is not itself a language type per
// caller; every error crossing a package boundary is a *Error with one of
// these kinds set.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindStale
	KindNotFound
	KindIdempotencyMismatch
	KindRateLimited
	KindTimeout
	KindStorageError
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindStale:
		return "stale"
	case KindNotFound:
		return "not-found"
	case KindIdempotencyMismatch:
		return "invalid-idempotency-key"
	case KindRateLimited:
		return "rate-limited"
	case KindTimeout:
		return "timeout"
	case KindStorageError:
		return "storage-error"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the Seat Lock Engine's sole error type. Kind drives HTTP status
// and Problem Details type URI mapping in the transport shim; Code is a
// short machine-stable token distinct from Kind (e.g. "SEAT_ALREADY_SOLD").
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Seats carries the conflicting/affected seat ids, when applicable
	// (Conflict, Stale).
	Seats []string
	// Cause is the wrapped underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with a message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: cause.Error(), Cause: cause}
}

// WithSeats returns a copy of e carrying the given seat ids.
func (e *Error) WithSeats(seats []string) *Error {
	out := *e
	out.Seats = seats
	return &out
}

// Conflict builds a Conflict error carrying the exact conflicting seat ids.
func Conflict(code string, seats []string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: "seats unavailable", Seats: seats}
}

// Is reports whether err is itself a *Error of the given kind. It does not
// unwrap err; for a wrapped error use errors.As and inspect Kind.
func Is(err error, kind Kind) bool {
	var he *Error
	if e, ok := err.(*Error); ok {
		he = e
	} else {
		return false
	}
	return he.Kind == kind
}
