package task

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nao1215/ghcrawl/internal/github"
)

// Querier executes a GraphQL query. *github.Client implements it.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]any) (*github.Response, error)
}

// Context is the execution environment shared by all tasks of a run.
// It is never serialized.
type Context struct {
	// Client issues the queries.
	Client Querier

	// RateLimitStopPercent is the share of the call budget, in percent,
	// below which no new calls are issued.
	RateLimitStopPercent float64

	// Logger receives task diagnostics. Nil discards them.
	Logger *slog.Logger

	// Seen holds the node ids already emitted in the run.
	Seen *SeenSet

	// NewID generates task ids. Nil uses random UUIDs.
	NewID func() string
}

// NewContext creates a Context with an empty seen set.
func NewContext(client Querier, stopPercent float64, logger *slog.Logger) *Context {
	return &Context{
		Client:               client,
		RateLimitStopPercent: stopPercent,
		Logger:               logger,
		Seen:                 NewSeenSet(),
		NewID:                NewID,
	}
}

// NewID returns a random task id.
func NewID() string {
	return uuid.NewString()
}

func (tc *Context) logger() *slog.Logger {
	if tc.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return tc.Logger
}

func (tc *Context) newID() string {
	if tc.NewID == nil {
		return NewID()
	}
	return tc.NewID()
}

// SeenSet is a concurrent, append-only set of node ids.
type SeenSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSeenSet creates an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Add inserts id and reports whether it was not present before.
// Concurrent adds of the same id return true exactly once.
func (s *SeenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Contains reports whether id is in the set.
func (s *SeenSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids in the set.
func (s *SeenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.ids)
}
