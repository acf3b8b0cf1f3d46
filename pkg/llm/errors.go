// Package llm defines the LLMInvoker capability consumed by the orchestration
// core, its streaming chunk types, the invocation error taxonomy, and the
// tolerant structured-output parser.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies invocation-layer failures.
type ErrorKind string

const (
	// ErrKindTimeout means the invocation exceeded its timeout.
	ErrKindTimeout ErrorKind = "llm_timeout"
	// ErrKindUnavailable means the backend could not be reached or started.
	ErrKindUnavailable ErrorKind = "llm_unavailable"
	// ErrKindInvalidOutput means the structured payload stayed unparseable
	// after best-effort repair.
	ErrKindInvalidOutput ErrorKind = "llm_invalid_output"
	// ErrKindCanceled means the caller's cancellation handle fired.
	ErrKindCanceled ErrorKind = "canceled"
)

// Error is an invocation-layer failure. Raw preserves the backend's output
// so the caller can inspect or archive it.
type Error struct {
	Kind ErrorKind
	Raw  string
	Err  error
}

// Error returns the formatted message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an invocation error of the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the error kind, mapping context errors to their invocation
// equivalents. Unknown errors classify as unavailable.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindUnavailable
}

// IsCanceled reports whether the error is a cancellation.
func IsCanceled(err error) bool {
	return KindOf(err) == ErrKindCanceled
}
