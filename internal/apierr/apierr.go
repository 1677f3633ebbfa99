// Package apierr defines the error taxonomy surfaced to HTTP callers
// and operators. Every user-facing error in the submission
// controller and the shared leaves is expressed as one of these kinds so
// the HTTP layer can map it to a status code without string sniffing.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation          Kind = "VALIDATION"
	NotFound            Kind = "NOT_FOUND"
	Forbidden           Kind = "FORBIDDEN"
	UpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	NoCredentials       Kind = "NO_CREDENTIALS"
	LMDenied            Kind = "LM_DENIED"
)

// Error is a typed application error carrying a short, human-safe
// message. Internal causes are wrapped but never rendered to callers.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case UpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WorkerExitCode maps a Kind to the executor's process exit code.
func WorkerExitCode(kind Kind) int {
	switch kind {
	case NoCredentials:
		return 1
	case LMDenied:
		return 2
	default:
		return 1
	}
}
