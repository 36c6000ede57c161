package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable indicates the language-model backend is unreachable
	// or the requested model is not installed
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStorePersistence indicates a vector store write did not complete
	ErrStorePersistence = errors.New("store persistence failed")
)

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsInvalidInput checks if error stems from bad user input
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsModelUnavailable checks if error is a model unavailable error
func IsModelUnavailable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}

// IsStorePersistence checks if error is a store persistence error
func IsStorePersistence(err error) bool {
	return errors.Is(err, ErrStorePersistence)
}
