package model

import "time"

// RunStatus is the lifecycle state of a crawl run as seen from its
// checkpoint.
type RunStatus int

const (
	// RunIncomplete means the run has no completion date: it is still
	// running or the process died before finishing.
	RunIncomplete RunStatus = iota

	// RunComplete means every task was resolved without errors.
	RunComplete

	// RunCompleteWithErrors means the queue drained but some tasks were
	// recorded as errored. They can be requeued.
	RunCompleteWithErrors

	// RunPaused means the run stopped cleanly on the rate-limit stop margin
	// and still has unresolved tasks. It can be resumed once the budget
	// resets.
	RunPaused

	// RunAborted means the run stopped with a terminal error, such as a
	// secondary rate limit or an interrupt.
	RunAborted
)

// String returns a human-readable representation of the status.
func (s RunStatus) String() string {
	switch s {
	case RunIncomplete:
		return "incomplete"
	case RunComplete:
		return "complete"
	case RunCompleteWithErrors:
		return "complete with errors"
	case RunPaused:
		return "paused"
	case RunAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Resumable reports whether resuming the run can make progress.
func (s RunStatus) Resumable() bool {
	return s == RunIncomplete || s == RunPaused || s == RunAborted
}

// RunSummary is a flattened view of one crawl run.
type RunSummary struct {
	RunID           string     `json:"runId"`
	Kind            string     `json:"kind"`
	Status          RunStatus  `json:"-"`
	StatusText      string     `json:"status"`
	StartDate       time.Time  `json:"startDate"`
	CompletionDate  *time.Time `json:"completionDate,omitempty"`
	CompletionError string     `json:"completionError,omitempty"`
	ConfigDigest    string     `json:"configDigest,omitempty"`

	Unresolved int `json:"unresolved"`
	Resolved   int `json:"resolved"`
	Errored    int `json:"errored"`
	Archived   int `json:"archived"`

	// Items is the number of output records across all chunks.
	Items int `json:"items"`

	Chunks  []string         `json:"chunks"`
	History []SubRunSummary  `json:"history,omitempty"`
	Errors  []TaskErrorEntry `json:"errors,omitempty"`
}

// SubRunSummary describes one finished sub-run of a resumed crawl.
type SubRunSummary struct {
	StartDate       time.Time `json:"startDate"`
	CompletionDate  time.Time `json:"completionDate"`
	CompletionError string    `json:"completionError,omitempty"`
	Resolved        int       `json:"resolved"`
}

// TaskErrorEntry is one errored task.
type TaskErrorEntry struct {
	TaskID  string `json:"taskId"`
	Window  string `json:"window"`
	Cursor  string `json:"cursor,omitempty"`
	Message string `json:"message"`
}

// NewRunSummary creates a RunSummary and derives its status from the
// completion fields and set sizes.
func NewRunSummary(runID string, startDate time.Time, completionDate *time.Time, completionError string, unresolved, resolved, errored, archived int) *RunSummary {
	s := &RunSummary{
		RunID:           runID,
		StartDate:       startDate,
		CompletionDate:  completionDate,
		CompletionError: completionError,
		Unresolved:      unresolved,
		Resolved:        resolved,
		Errored:         errored,
		Archived:        archived,
		Chunks:          make([]string, 0),
	}
	s.Status = s.deriveStatus()
	s.StatusText = s.Status.String()
	return s
}

func (s *RunSummary) deriveStatus() RunStatus {
	switch {
	case s.CompletionDate == nil:
		return RunIncomplete
	case s.CompletionError != "":
		return RunAborted
	case s.Unresolved > 0:
		return RunPaused
	case s.Errored > 0:
		return RunCompleteWithErrors
	default:
		return RunComplete
	}
}

// Total returns the number of task ids known to the run.
func (s *RunSummary) Total() int {
	return s.Unresolved + s.Resolved + s.Errored + s.Archived
}

// Progress returns the fraction of tasks that left the unresolved set,
// between 0 and 1.
func (s *RunSummary) Progress() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(total-s.Unresolved) / float64(total)
}
