// Package errs defines the error taxonomy shared across the pipeline (spec
// §7). Classification determines how the Dispatcher reacts to a stage
// failure: retry with backoff, dead-letter, or short-circuit to a decline.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed error-classification enum.
type Kind string

const (
	KindAuthMissing     Kind = "AuthMissing"
	KindStale           Kind = "Stale"
	KindReplay          Kind = "Replay"
	KindBadSignature    Kind = "BadSignature"
	KindInvalidPayload  Kind = "InvalidPayload"
	KindHardFail        Kind = "HardFail"
	KindTransient       Kind = "Transient"
	KindBreakerOpen     Kind = "BreakerOpen"
	KindSchemaViolation Kind = "SchemaViolation"
	KindPermanent       Kind = "Permanent"
	KindTimeout         Kind = "Timeout"
	KindNotFound        Kind = "NotFound"
)

// Error is a typed pipeline error carrying its classification.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a classified *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsRetryable reports whether the Dispatcher should retry on this error
// (spec §4.4, §7): Transient, BreakerOpen (treated as Transient), and
// Timeout are retryable; everything else dead-letters or short-circuits
// immediately.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindTransient, KindBreakerOpen, KindTimeout:
		return true
	default:
		return false
	}
}
