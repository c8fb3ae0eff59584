package shipment

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected user input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown shipment or user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition marks a status change outside the allowed graph.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPermission marks an actor that may not touch the shipment.
	ErrPermission = errors.New("permission denied")
	// ErrPersistence marks a store failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrDelivery marks a notification that could not be delivered.
	ErrDelivery = errors.New("delivery failed")
)

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Code is used as err_code in handler logs.
func (e *ValidationError) Code() string { return "validation_" + e.Field }

// Invalid builds a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("status %s -> %s is not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func (e *TransitionError) Code() string { return "invalid_transition" }

// Code maps an error onto a short stable identifier.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	}
	return "internal"
}
