// Package bperrors classifies BuildPulse's failures into named kinds, so
// the entry point can decide what is fatal-at-startup versus
// logged-and-continue versus the final non-zero exit status.
package bperrors

import "fmt"

// Kind is one of the error categories below. Invariant violations (a
// Finding whose referenced source field is absent) are not given a Kind
// here: internal/parser never constructs a Finding against a field it
// hasn't confirmed is present, so the violation is structurally
// impossible rather than a runtime condition this package classifies.
type Kind int

const (
	// Configuration: invalid TOML, bad regex, bad severity constant,
	// malformed view expression. Fatal at startup.
	Configuration Kind = iota
	// Storage: I/O, SQL, serialization. Propagated, except a lookup miss
	// recovered as a cache-miss never reaches this classification at all.
	Storage
	// Transport: a per-request CI-server failure. Logged against the
	// offending Run; does not abort the batch.
	Transport
	// Subprocess: spawn/IO failures in an artifact post-processor. Yields
	// empty output with a warning; not fatal.
	Subprocess
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Storage:
		return "storage"
	case Transport:
		return "transport"
	case Subprocess:
		return "subprocess"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with the underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap attaches a Kind to err. A nil err yields a nil *Error (so
// `return bperrors.Wrap(Storage, err)` is always safe to return directly).
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: err}
}
