// Package apperr carries HTTP-aware error values across the CRM layers.
package apperr

import (
	"errors"
	"net/http"
)

// ErrNotFound is returned when a conversation or template id does not exist.
var ErrNotFound = errors.New("not found")

// Error is a rejected request. Details lists every violated rule when more
// than one applies.
type Error struct {
	Status  int
	Message string
	Details []string
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(message string, details ...string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Details: details}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

// StatusOf maps err to the HTTP status a handler should answer with.
func StatusOf(err error) int {
	var appErr *Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &appErr):
		return appErr.Status
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// DetailsOf returns the rule list attached to err, or nil.
func DetailsOf(err error) []string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}
