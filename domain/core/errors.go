package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrExperimentNotFound = fmt.Errorf("%w: experiment", ErrNotFound)
	ErrActualNotFound     = fmt.Errorf("%w: actual election results", ErrNotFound)

	// Validation errors
	ErrEmptyRoster = errors.New("district has no candidate roster")

	// Determinism errors
	ErrSeedMismatch = errors.New("seed mismatch")
	ErrHashMismatch = errors.New("config snapshot hash mismatch")

	// Lifecycle errors
	ErrIDCollision       = errors.New("experiment id already exists")
	ErrInvalidTransition = errors.New("invalid experiment status transition")
	ErrRecordFinalized   = errors.New("experiment record already finalized")
)

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrSeedMismatch) || errors.Is(err, ErrHashMismatch)
}
