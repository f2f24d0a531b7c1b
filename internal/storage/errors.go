package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	// A verdict without check results is never persisted.
	ErrInvalidInput = errors.New("invalid input")
)
