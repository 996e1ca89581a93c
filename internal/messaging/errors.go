// internal/messaging/errors.go

package messaging

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is returned when a request carries neither content nor
	// attachments, or an unknown message kind.
	ErrValidation = errors.New("validation failed")

	// ErrAccessDenied is returned when the caller is not a participant of
	// the conversation it is acting on.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned for absent or inactive conversations/messages.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a non-sender tries to edit or delete
	// someone else's message.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable wraps durable-store failures so callers can decide on
	// retry. It is never swallowed.
	ErrUnavailable = errors.New("store unavailable")
)

// unavailable wraps a store error, keeping the cause in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// StatusCode maps a domain error onto an HTTP status for the REST surface.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
