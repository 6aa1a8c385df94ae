package services

import (
	"errors"
	"fmt"
)

// ErrNotFound wraps gorm.ErrRecordNotFound at the service boundary so
// handlers can map it to 404 without importing gorm.
var ErrNotFound = errors.New("record not found")

// ValidationError means the caller's request violates an amount or state
// precondition. Handlers map it to 4xx; it is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError marks a state conflict that is not simply invalid input,
// e.g. processing a refund request twice. Handlers map it to 409.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
