package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Closed set of failure kinds the repository and service surface. Callers
// branch with errors.Is / errors.As, never by message text.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrEmailTaken          = errors.New("email already registered")
	ErrIdempotencyConflict = errors.New("request with this idempotency key in progress")
)

// FieldError describes one constraint violation on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every constraint violation found in a request.
// Inputs that fail validation are rejected before any persistence happens.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation and returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}

// Or returns nil when no violations were recorded.
func (e *ValidationError) Or() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
