package crawler

import "errors"

var (
	// ErrSecondaryRateLimit is the terminal error of a run stopped by the
	// secondary rate limit.
	ErrSecondaryRateLimit = errors.New("secondary rate limit exceeded")

	// ErrInterrupted is the cancellation cause used when the operator stops
	// a run.
	ErrInterrupted = errors.New("interrupted")
)
