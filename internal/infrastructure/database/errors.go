package database

import "errors"

// Errors returned by the database package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrPoolExhausted is returned when no pooled connection became free
	// within the acquire timeout.
	ErrPoolExhausted = errors.New("database: connection pool exhausted")

	// ErrInvalidCheckpointMode is returned for a wal_checkpoint mode other
	// than PASSIVE, FULL, RESTART or TRUNCATE.
	ErrInvalidCheckpointMode = errors.New("database: invalid checkpoint mode")
)
