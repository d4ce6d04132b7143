// Package apperr defines the closed error taxonomy the core uses to
// communicate failures across service boundaries. Every error a caller-facing
// operation returns is either nil or an *Error with one of the kinds below;
// handlers at the API boundary map Kind to an HTTP status and never leak the
// underlying cause to non-administrator callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error categories the core distinguishes.
type Kind string

const (
	NotFound                Kind = "NOT_FOUND"
	InvalidInput            Kind = "INVALID_INPUT"
	Unauthorized            Kind = "UNAUTHORIZED"
	Forbidden               Kind = "FORBIDDEN"
	InvalidStateTransition  Kind = "INVALID_STATE_TRANSITION"
	ProofRequired           Kind = "PROOF_REQUIRED"
	Conflict                Kind = "CONFLICT"
	DependencyUnavailable   Kind = "DEPENDENCY_UNAVAILABLE"
	RateLimited             Kind = "RATE_LIMITED"
	Internal                Kind = "INTERNAL"
)

// Error is the structured failure the core returns. Details carries kind-
// specific context (e.g. from/to state, complaint id) that administrators are
// shown in full and other roles are shown selectively, per the propagation
// policy.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error of the given kind with no extra detail.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around an existing error. Use this
// at adapter boundaries (store, classifier, attachment) so the caller sees a
// taxonomy member instead of a driver-specific error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields and returns the same error
// for chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal for errors that
// never passed through this package (e.g. a raw driver error that escaped a
// store boundary).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// NotFoundf is a convenience constructor for the common missing-resource case.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// InvalidInputf is a convenience constructor for request validation failures.
func InvalidInputf(format string, args ...any) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

// Forbiddenf is a convenience constructor for authorization failures where
// the identity is valid but the role/ownership check fails.
func Forbiddenf(format string, args ...any) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

// InvalidStateTransitionf is a convenience constructor for a transition
// table rejection.
func InvalidStateTransitionf(format string, args ...any) *Error {
	return New(InvalidStateTransition, fmt.Sprintf(format, args...))
}

// Conflictf is a convenience constructor for an optimistic concurrency
// failure (a stored version that no longer matches the caller's expected
// value).
func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}
