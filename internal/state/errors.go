package state

import "errors"

var (
	// ErrDuplicateTask is returned when a task id is already known to the run.
	ErrDuplicateTask = errors.New("task id already exists in the run")

	// ErrUnknownParent is returned when a task names a parent the run never saw.
	ErrUnknownParent = errors.New("parent task does not exist in the run")

	// ErrNotUnresolved is returned when a task that is not unresolved is
	// resolved or recorded as errored.
	ErrNotUnresolved = errors.New("task is not unresolved")

	// ErrNotErrored is returned when requeueing a task that is not errored.
	ErrNotErrored = errors.New("task is not errored")

	// ErrRunCompleted is returned when the driver mutates a completed run.
	// Reopen the run first.
	ErrRunCompleted = errors.New("run is already completed")

	// ErrEmptyRange is returned when the crawl's upper bound lies before the
	// exclusion floor.
	ErrEmptyRange = errors.New("crawl date range is empty")
)
