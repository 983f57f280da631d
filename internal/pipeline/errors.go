package pipeline

import "errors"

var (
	// ErrNoRuns is returned when the latest run is requested and the
	// checkpoint directory holds none.
	ErrNoRuns = errors.New("no runs found")

	// ErrNoState is returned when a run directory has no state file.
	ErrNoState = errors.New("run has no saved state")

	// ErrConfigMismatch is returned when a resumed run is given a crawl
	// configuration different from the one it was started with.
	ErrConfigMismatch = errors.New("crawl configuration differs from the run's starting configuration")

	// ErrNothingToResume is returned when a completed run has no
	// unresolved tasks left.
	ErrNothingToResume = errors.New("run has no unresolved tasks")

	// ErrNoSession is returned when a step needs a run that no earlier step
	// loaded or created.
	ErrNoSession = errors.New("no run loaded")
)
