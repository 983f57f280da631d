package state

import (
	"fmt"
	"time"

	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/task"
)

// StartingConfig is the configuration that produced the initial partition.
// It is set once when the run is created.
type StartingConfig struct {
	Kind  task.Kind          `json:"kind"`
	Crawl config.CrawlConfig `json:"crawl"`

	// UpperBound is the last day covered by the run, fixed at creation so
	// that a resumed run searches the same range.
	UpperBound time.Time `json:"upperBound"`
}

// ErrorRecord is the entry of an errored task.
type ErrorRecord struct {
	Message string    `json:"message"`
	Spec    task.Spec `json:"spec"`
}

// SubRun is a finished execution of a run. A run resumed N times has N
// history entries once the last execution is reopened.
type SubRun struct {
	StartDate       time.Time `json:"startDate"`
	CompletionDate  time.Time `json:"completionDate"`
	CompletionError *string   `json:"completionError"`
	Resolved        int       `json:"resolved"`
}

// ProcessState is the resumable state of one crawl run.
type ProcessState struct {
	StartDate       time.Time  `json:"startDate"`
	SubRunStartDate time.Time  `json:"subRunStartDate"`
	CompletionDate  *time.Time `json:"completionDate"`
	CompletionError *string    `json:"completionError"`

	StartingConfig StartingConfig `json:"startingConfig"`
	ConfigDigest   string         `json:"configDigest"`

	// OutputFileName is the prefix of the run's output chunk files.
	OutputFileName string `json:"outputFileName"`

	Unresolved map[string]task.Spec   `json:"unresolved"`
	Resolved   IDSet                  `json:"resolved"`
	Errored    map[string]ErrorRecord `json:"errored"`
	Archived   IDSet                  `json:"archived"`

	History []SubRun `json:"history"`
}

// New creates the state of a fresh run seeded by Partition.
func New(kind task.Kind, cc config.CrawlConfig, now time.Time, opts ...PartitionOption) (*ProcessState, error) {
	seeds, err := Partition(kind, cc, now, opts...)
	if err != nil {
		return nil, err
	}

	digest, err := ConfigDigest(kind, cc)
	if err != nil {
		return nil, err
	}

	st := &ProcessState{
		StartDate:       now,
		SubRunStartDate: now,
		StartingConfig: StartingConfig{
			Kind:       kind,
			Crawl:      cc,
			UpperBound: cc.UpperBound(now),
		},
		ConfigDigest:   digest,
		OutputFileName: string(kind),
		Unresolved:     make(map[string]task.Spec, len(seeds)),
		Resolved:       NewIDSet(),
		Errored:        make(map[string]ErrorRecord),
		Archived:       NewIDSet(),
		History:        make([]SubRun, 0),
	}

	for _, spec := range seeds {
		if err := st.AddUnresolved(spec); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Normalize replaces nil collections of a decoded state with empty ones.
func (s *ProcessState) Normalize() {
	if s.Unresolved == nil {
		s.Unresolved = make(map[string]task.Spec)
	}
	if s.Resolved == nil {
		s.Resolved = NewIDSet()
	}
	if s.Errored == nil {
		s.Errored = make(map[string]ErrorRecord)
	}
	if s.Archived == nil {
		s.Archived = NewIDSet()
	}
	if s.History == nil {
		s.History = make([]SubRun, 0)
	}
}

// Has reports whether id is known to the run in any set.
func (s *ProcessState) Has(id string) bool {
	if _, ok := s.Unresolved[id]; ok {
		return true
	}
	if _, ok := s.Errored[id]; ok {
		return true
	}
	return s.Resolved.Has(id) || s.Archived.Has(id)
}

// IsCompleted reports whether the run has a completion date.
func (s *ProcessState) IsCompleted() bool {
	return s.CompletionDate != nil
}

// AddUnresolved queues spec. The id must be new to the run and the parent,
// if any, must already be known.
func (s *ProcessState) AddUnresolved(spec task.Spec) error {
	if s.IsCompleted() {
		return ErrRunCompleted
	}
	return s.insert(spec)
}

func (s *ProcessState) insert(spec task.Spec) error {
	if s.Has(spec.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, spec.ID)
	}
	if spec.ParentID != nil && !s.Has(*spec.ParentID) {
		return fmt.Errorf("%w: %s", ErrUnknownParent, *spec.ParentID)
	}
	s.Unresolved[spec.ID] = spec
	return nil
}

// Resolve moves id from unresolved to resolved.
func (s *ProcessState) Resolve(id string) error {
	if s.IsCompleted() {
		return ErrRunCompleted
	}
	if _, ok := s.Unresolved[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotUnresolved, id)
	}
	delete(s.Unresolved, id)
	s.Resolved.Add(id)
	return nil
}

// RecordError moves id from unresolved to errored with message.
func (s *ProcessState) RecordError(id, message string) error {
	if s.IsCompleted() {
		return ErrRunCompleted
	}
	spec, ok := s.Unresolved[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotUnresolved, id)
	}
	delete(s.Unresolved, id)
	s.Errored[id] = ErrorRecord{Message: message, Spec: spec}
	return nil
}

// Requeue retires the errored task id into archived and queues a copy of
// its spec under newID. The copy keeps the window, cursor and originating
// task, and names id as its parent. It returns the queued spec.
func (s *ProcessState) Requeue(id, newID string) (task.Spec, error) {
	rec, ok := s.Errored[id]
	if !ok {
		return task.Spec{}, fmt.Errorf("%w: %s", ErrNotErrored, id)
	}

	spec := rec.Spec.Clone()
	spec.ID = newID
	parent := id
	spec.ParentID = &parent

	delete(s.Errored, id)
	s.Archived.Add(id)

	if err := s.insert(spec); err != nil {
		// Restore the errored entry so that the sets stay consistent.
		s.Archived.Remove(id)
		s.Errored[id] = rec
		return task.Spec{}, err
	}
	return spec, nil
}

// Complete marks the run as finished. A nil err records a clean stop.
func (s *ProcessState) Complete(now time.Time, err error) {
	s.CompletionDate = &now
	s.CompletionError = nil
	if err != nil {
		msg := err.Error()
		s.CompletionError = &msg
	}
}

// Reopen prepares a completed run for resumption: the previous execution is
// appended to the history and the completion fields are cleared. Reopening
// a run that was never completed (for example after a crash) only starts a
// new sub-run.
func (s *ProcessState) Reopen(now time.Time) {
	if s.CompletionDate != nil {
		s.History = append(s.History, SubRun{
			StartDate:       s.SubRunStartDate,
			CompletionDate:  *s.CompletionDate,
			CompletionError: s.CompletionError,
			Resolved:        len(s.Resolved),
		})
	}
	s.CompletionDate = nil
	s.CompletionError = nil
	s.SubRunStartDate = now
}

// Counts returns the sizes of the four sets.
func (s *ProcessState) Counts() (unresolved, resolved, errored, archived int) {
	return len(s.Unresolved), len(s.Resolved), len(s.Errored), len(s.Archived)
}
