package task

import (
	"fmt"
	"time"
)

// DateLayout is the date format of the search qualifiers.
const DateLayout = "2006-01-02"

// Kind names a search operation.
type Kind string

const (
	// KindRepositories searches repositories by creation date and popularity.
	KindRepositories Kind = "repositories"

	// KindUsers searches users by creation date.
	KindUsers Kind = "users"
)

// Window is the date range searched by a task. Both ends are inclusive and
// have day granularity.
type Window struct {
	CreatedAfter  time.Time `json:"createdAfter"`
	CreatedBefore time.Time `json:"createdBefore"`

	// HasActivityAfter is the fixed upper bound of the run, shared by all
	// windows.
	HasActivityAfter time.Time `json:"hasActivityAfter"`
}

// String renders the window as "YYYY-MM-DD..YYYY-MM-DD".
func (w Window) String() string {
	return w.CreatedAfter.Format(DateLayout) + ".." + w.CreatedBefore.Format(DateLayout)
}

// Filters are the search thresholds copied verbatim from the crawl
// configuration into every seed task.
type Filters struct {
	MinStars          int `json:"minStars"`
	MinForks          int `json:"minForks"`
	MinSizeInKb       int `json:"minSizeInKb"`
	MaxInactivityDays int `json:"maxInactivityDays"`
}

// Spec describes one unit of work. Specs are values; derive new ones
// instead of mutating a Spec that is already queued.
type Spec struct {
	// ID is unique within a run and never reused.
	ID string `json:"id"`

	// ParentID is the task whose pagination produced this one, nil for seeds.
	ParentID *string `json:"parentId"`

	// OriginatingTaskID is the root of the pagination chain. It is set when
	// the first child is spawned and propagated unchanged afterwards.
	OriginatingTaskID *string `json:"originatingTaskId"`

	Kind     Kind    `json:"kind"`
	Window   Window  `json:"window"`
	Filters  Filters `json:"filters"`
	PageSize int     `json:"pageSize"`

	// StartCursor is nil on the first page of a window and the previous
	// page's end cursor afterwards.
	StartCursor *string `json:"startCursor"`
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	c := s
	c.ParentID = clonePtr(s.ParentID)
	c.OriginatingTaskID = clonePtr(s.OriginatingTaskID)
	c.StartCursor = clonePtr(s.StartCursor)
	return c
}

// ChainID returns the id of the originating task, or the task's own id when
// it starts a chain.
func (s Spec) ChainID() string {
	if s.OriginatingTaskID != nil {
		return *s.OriginatingTaskID
	}
	return s.ID
}

// String returns a short description used in log lines.
func (s Spec) String() string {
	cursor := "first page"
	if s.StartCursor != nil {
		cursor = "after " + *s.StartCursor
	}
	return fmt.Sprintf("%s %s (%s)", s.Kind, s.Window, cursor)
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
