package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a transaction could not be serialized
	// against a concurrent one. Nothing was committed; the caller may retry.
	ErrConflict = errors.New("transaction conflict")

	// ErrReadOnly is returned when a mutation is attempted inside View.
	ErrReadOnly = errors.New("read-only transaction")
)
