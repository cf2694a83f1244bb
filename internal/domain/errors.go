package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrTransient           = errors.New("transient failure, please try again")
	ErrInsufficientBalance = errors.New("insufficient points balance")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUnauthenticated     = errors.New("no user is logged in")
	ErrInvalidCredentials  = errors.New("invalid phone number or password")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTooManyAttempts     = errors.New("too many attempts")
)

// ValidationError lists the offending fields. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, tag))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
