// Package apperr holds the error kinds shared by the queue-service engines.
//
// Every domain error wraps exactly one kind so callers can branch with
// errors.Is on either the specific error or its kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrState      = errors.New("invalid state")
	ErrNotFound   = errors.New("not found")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns an error of the given kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// NotFound reports a missing entity, e.g. NotFound("appointment", 7).
func NotFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
}

var (
	ErrSlotNotAvailable     = New(ErrConflict, "slot not available")
	ErrDuplicateAppointment = New(ErrConflict, "an active appointment already exists for this category")
	ErrStaleAppointment     = New(ErrConflict, "appointment was changed concurrently")

	ErrSlotOutOfRange       = New(ErrValidation, "slot out of range")
	ErrCategoryNotScheduled = New(ErrValidation, "category is not scheduled")
	ErrCategoryScheduled    = New(ErrValidation, "category is scheduled")
	ErrSamePosition         = New(ErrValidation, "appointment already at requested position")
	ErrInvalidTarget        = New(ErrValidation, "previous appointment is not active")
	ErrCategoryMismatch     = New(ErrValidation, "category does not belong to organization")
	ErrOrganizationInactive = New(ErrValidation, "organization is not active")
	ErrCategoryInactive     = New(ErrValidation, "category is not active")

	ErrInvalidState      = New(ErrState, "appointment is not in the required state")
	ErrInvalidTransition = New(ErrState, "transition not allowed")
)

// Kind returns the kind wrapped by err, or nil when err carries none.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrConflict, ErrState, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
