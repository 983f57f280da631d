package checkpoint

import "errors"

var (
	// ErrInvalidRunID is returned when a run id is not a run timestamp.
	ErrInvalidRunID = errors.New("invalid run id")

	// ErrRunExists is returned when creating a run whose directory exists.
	ErrRunExists = errors.New("run directory already exists")

	// ErrRunNotFound is returned when a run directory does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrChunkExists is returned when finalizing a chunk would overwrite an
	// existing one.
	ErrChunkExists = errors.New("output chunk already exists")

	// ErrChunkClosed is returned when appending to a closed chunk writer.
	ErrChunkClosed = errors.New("output chunk is closed")
)
