package domain

import "errors"

// Sentinel errors shared across storage and engine layers. Callers test
// with errors.Is.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned when a write is rejected for missing or
	// malformed fields.
	ErrInvalidInput = errors.New("invalid input")
)
