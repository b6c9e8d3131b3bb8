// Package errs provides the structured error taxonomy shared across the
// connection, pool, and provider layers of apq.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for handling strategy and diagnostics.
type Kind string

const (
	// ConnectionStartFailed means the protocol driver refused to begin connecting.
	ConnectionStartFailed Kind = "connection_start_failed"
	// AssignSocketFailed means the reactor could not register the connection's fd.
	AssignSocketFailed Kind = "assign_socket_failed"
	// ConnectionStatusBad means the protocol reports a bad connection at entry.
	ConnectionStatusBad Kind = "connection_status_bad"
	// ConnectPollFailed means the handshake poll reported failure or illegal Active.
	ConnectPollFailed Kind = "connect_poll_failed"
	// BusyConnection means the operation requires an idle Connection but waits are outstanding.
	BusyConnection Kind = "busy_connection"
	// Cancelled means a wait was cancelled.
	Cancelled Kind = "cancelled"
	// TimedOut means a deadline expired.
	TimedOut Kind = "timed_out"
	// QueueTimeout means the pool wait-queue deadline expired.
	QueueTimeout Kind = "queue_timeout"
	// QueueOverflow means the pool wait queue is full.
	QueueOverflow Kind = "queue_overflow"
	// Io is a pass-through of a reactor-level I/O error.
	Io Kind = "io"
	// NotSupported means the operation is not implemented on this platform.
	NotSupported Kind = "not_supported"
)

// Error is a structured error carrying a Kind, a human message, an optional
// wrapped cause, and free-form diagnostic detail.
//
// Modeled on the teacher's api.Error (code + message + context map).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Detail  map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value diagnostic and returns the receiver for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any, 1)
	}
	e.Detail[key] = value
	return e
}

// New creates an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of kind that preserves cause for errors.Is/As.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=true.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
