package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrZeroDate     = errors.New("date parameter cannot be zero")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateDate ensures a date parameter is set.
func validateDate(d time.Time, paramName string) error {
	if d.IsZero() {
		return fmt.Errorf("%w: %s", ErrZeroDate, paramName)
	}
	return nil
}
