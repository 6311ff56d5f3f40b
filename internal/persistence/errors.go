package persistence

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("persistence: record not found")
	// ErrDuplicate is returned when a create collides with an existing id.
	// Callers materializing deterministic ids treat it as convergence.
	ErrDuplicate = errors.New("persistence: duplicate record")
)
