// Package apperr defines the error kinds shared by every gateway component.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and for HTTP mapping.
type Kind string

const (
	InvalidTimeWindow Kind = "invalid_time_window"
	InvalidState      Kind = "invalid_state"
	NotFound          Kind = "not_found"
	MalformedPayload  Kind = "malformed_payload"
	Forbidden         Kind = "forbidden"
	Unauthenticated   Kind = "unauthenticated"
	Conflict          Kind = "conflict"
	NetworkError      Kind = "network_error"
	Unknown           Kind = "unknown"
)

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New builds an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithDetail builds an error of the given kind that also matches detail via errors.Is.
func WithDetail(kind Kind, op string, detail error) *Error {
	return &Error{Kind: kind, Op: op, Message: detail.Error(), Err: detail}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of err. Unclassified errors are Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkError
	}
	return Unknown
}

// Retryable reports whether the caller may retry the operation unchanged.
func Retryable(err error) bool {
	return KindOf(err) == NetworkError
}

// UserMessage returns the message suitable for display.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil && e.Kind != Unknown && e.Kind != NetworkError {
			return e.Err.Error()
		}
		switch e.Kind {
		case NetworkError:
			return "booking service unreachable, please retry"
		case Unknown:
			return "unexpected error"
		}
		return string(e.Kind)
	}
	return "unexpected error"
}
