// Package fault defines the error taxonomy shared by the collab components.
//
// Every failure surfaced by the core falls into one of four kinds:
// validation of a malformed model or definition, a singular model whose
// solution is undefined, a protocol violation by a remote peer, or a
// transport failure on the shared-state bus.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindValidation marks malformed models, definitions and configuration.
	KindValidation Kind = iota + 1

	// KindSingular marks a model whose coupling matrix cannot be inverted.
	KindSingular

	// KindProtocol marks updates that break the attribute protocol
	// (duplicate index claims, unknown remote objects, undecodable values).
	KindProtocol

	// KindTransport marks failures of the underlying bus.
	KindTransport
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSingular:
		return "singular"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type returned by collab operations.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "model.New" or "bus.Push"
	Detail string // human readable detail including the offending value
	Err    error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Detail != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Detail
	}
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err, or any error it wraps, is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Validation builds a KindValidation error with a formatted detail.
func Validation(op string, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Singular builds a KindSingular error wrapping err.
func Singular(op string, err error) *Error {
	return &Error{Kind: KindSingular, Op: op, Err: err}
}

// Protocol builds a KindProtocol error with a formatted detail.
func Protocol(op string, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Transport wraps a bus failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// Wrap attaches kind and op to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
