package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidGuestCount = errors.New("guest count must be between 10 and 2000")
	ErrInvalidDate       = errors.New("function date must be in the future")
)

// ValidationError reports a user-correctable problem with a QuoteRequest.
// Code is one of the package sentinels, so callers can use errors.Is.
type ValidationError struct {
	Code  error
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Code.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code.Error(), e.Field)
}

func (e *ValidationError) Unwrap() error {
	return e.Code
}

func invalid(code error, field string) *ValidationError {
	return &ValidationError{Code: code, Field: field}
}
