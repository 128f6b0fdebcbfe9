package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/nudge/internal/auth"
	"github.com/fentz26/nudge/internal/reminder"
)

// Sentinel errors for control plane operations.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrAmbiguousID       = errors.New("task id prefix matches more than one task")
	ErrInvalidTransition = reminder.ErrInvalidTransition
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
)

// statusForError maps a service error to its HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAmbiguousID), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRecurrence), errors.Is(err, ErrValidation),
		errors.Is(err, reminder.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, reminder.ErrNothingToResolve):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
