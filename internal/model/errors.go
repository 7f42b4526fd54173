package model

import (
	"errors"
	"strings"
)

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRejected        = errors.New("rejected by hook")
	// ErrNoMatch reports a lookup term that has never been interned, so no
	// row can possibly match it.
	ErrNoMatch = errors.New("no match")
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidArgument.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}
