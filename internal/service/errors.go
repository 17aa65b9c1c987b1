package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrURLNotFound         = errors.New("short URL not found")
	ErrBackendUnavailable  = errors.New("storage backend unavailable")
	ErrAllocationExhausted = errors.New("failed to generate unique short code")
	ErrStatsUnavailable    = errors.New("statistics require the remote store")
)

// ValidationError reports input rejected before it reaches the allocator.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidURL) match every validation failure.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidURL
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError reports whether err carries a *ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
