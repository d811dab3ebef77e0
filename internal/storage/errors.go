package storage

import "errors"

// Sentinel errors shared by all store implementations. Callers match them
// with errors.Is; implementations translate driver errors into these.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey indicates an insert hit an existing key. All stores
	// are append-only, so a duplicate is never overwritten.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput indicates the record failed validation before any
	// database round-trip.
	ErrInvalidInput = errors.New("invalid input")
)
