package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrOwnerMissing occurs when a request carries no tenant scope.
	ErrOwnerMissing = errors.New("owner scope missing")
)

// ValidationError collects every input problem found in one pass.
type ValidationError struct {
	Messages []string
}

// NewValidationError builds a ValidationError from messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: append([]string(nil), messages...)}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Messages) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Addf appends a formatted message.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

// Merge appends the messages of another validation error.
func (e *ValidationError) Merge(other error) {
	var verr *ValidationError
	if errors.As(other, &verr) && verr != nil {
		e.Messages = append(e.Messages, verr.Messages...)
		return
	}
	if other != nil {
		e.Messages = append(e.Messages, other.Error())
	}
}

// Err returns nil when no messages were collected.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Messages) == 0 {
		return nil
	}
	return e
}
