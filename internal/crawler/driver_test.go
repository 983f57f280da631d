package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/github"
	"github.com/nao1215/ghcrawl/internal/state"
	"github.com/nao1215/ghcrawl/internal/task"
)

// fakeAPI serves a fixed number of pages per search window.
type fakeAPI struct {
	pages   int
	perPage int

	// remaining returns the remaining budget reported by the n-th call.
	// Nil reports a full budget.
	remaining func(call int) int

	// fail, when it returns an error, makes the call fail.
	fail func(call int, window, after string) error

	mu     sync.Mutex
	calls  int
	served []string
}

func (a *fakeAPI) Query(ctx context.Context, _ string, vars map[string]any) (*github.Response, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()

	window := windowOf(vars["searchQuery"].(string))
	after, _ := vars["after"].(string)

	if a.fail != nil {
		if err := a.fail(call, window, after); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &github.QueryError{Kind: github.KindTransport, Message: err.Error(), Err: err}
	}

	remaining := 4000
	if a.remaining != nil {
		remaining = a.remaining(call)
	}

	a.mu.Lock()
	a.served = append(a.served, window+"|"+after)
	a.mu.Unlock()

	return &github.Response{Data: a.page(window, after, remaining), StatusCode: http.StatusOK}, nil
}

// page builds the search payload of the page following after.
func (a *fakeAPI) page(window, after string, remaining int) json.RawMessage {
	index := 0
	if after != "" {
		_, _ = fmt.Sscanf(after, "c%d", &index)
	}

	nodes := make([]map[string]any, 0, a.perPage)
	for i := range a.perPage {
		nodes = append(nodes, map[string]any{"id": fmt.Sprintf("%s#%d-%d", window, index, i)})
	}

	hasNext := index+1 < a.pages
	var cursor any
	if hasNext {
		cursor = fmt.Sprintf("c%d", index+1)
	}

	data, err := json.Marshal(map[string]any{
		"rateLimit": map[string]any{"limit": 5000, "remaining": remaining, "cost": 1},
		"search": map[string]any{
			"repositoryCount": a.pages * a.perPage,
			"pageInfo":        map[string]any{"hasNextPage": hasNext, "endCursor": cursor},
			"nodes":           nodes,
		},
	})
	if err != nil {
		panic(err)
	}
	return data
}

func (a *fakeAPI) servedKeys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := slices.Clone(a.served)
	slices.Sort(keys)
	return keys
}

func (a *fakeAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func windowOf(searchQuery string) string {
	for _, field := range strings.Fields(searchQuery) {
		if w, ok := strings.CutPrefix(field, "created:"); ok {
			return w
		}
	}
	return ""
}

// memStore is an in-memory Checkpointer keeping the last saved state as JSON.
type memStore struct {
	mu    sync.Mutex
	saves int
	last  []byte
	err   error
}

func (m *memStore) Save(_ string, st *state.ProcessState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.saves++
	m.last = data
	return nil
}

func (m *memStore) load(t *testing.T) *state.ProcessState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var st state.ProcessState
	if err := json.Unmarshal(m.last, &st); err != nil {
		t.Fatalf("failed to decode saved state: %v", err)
	}
	st.Normalize()
	return &st
}

// memOutput collects output records.
type memOutput struct {
	records []state.OutputRecord
}

func (m *memOutput) Append(rec state.OutputRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memOutput) itemIDs() []string {
	var ids []string
	for _, rec := range m.records {
		for _, it := range rec.Result.Items {
			ids = append(ids, it.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// newRunState creates the state of a run with the given number of 10-day
// windows.
func newRunState(t *testing.T, windows int) *state.ProcessState {
	t.Helper()

	floor, _ := config.ParseDate("2023-01-01")
	cc := config.CrawlConfig{
		MinStars:             10,
		ExcludeCreatedBefore: floor,
		SearchWindowDays:     10,
		PageSize:             2,
	}
	now := floor.AddDate(0, 0, 10*windows-1)

	n := 0
	st, err := state.New(task.KindRepositories, cc, now, state.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("seed-%d", n)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return st
}

func newTestRun(st *state.ProcessState, api task.Querier, out OutputWriter) *Run {
	tc := task.NewContext(api, 10, nil)
	var mu sync.Mutex
	n := 0
	tc.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("page-%d", n)
	}
	return &Run{ID: "run", State: st, Context: tc, Output: out}
}

// TestDriver_Drain tests a run that drains every window.
func TestDriver_Drain(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: 3, perPage: 2}
	store := &memStore{}
	out := &memOutput{}
	st := newRunState(t, 3)

	var mu sync.Mutex
	executed := make(map[string]task.Spec)
	factory := func(spec task.Spec) (task.Task, error) {
		mu.Lock()
		executed[spec.ID] = spec
		mu.Unlock()
		return task.New(spec)
	}

	d := NewDriver(store, WithConcurrency(4), WithTaskFactory(factory))
	stats, err := d.Run(t.Context(), newTestRun(st, api, out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unresolved, resolved, errored, _ := st.Counts()
	if unresolved != 0 || resolved != 9 || errored != 0 {
		t.Errorf("Counts() = %d unresolved, %d resolved, %d errored", unresolved, resolved, errored)
	}
	if stats.Resolved != 9 || stats.Items != 18 || stats.Paused {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(out.records) != 9 {
		t.Errorf("expected 9 output records, got %d", len(out.records))
	}
	if !st.IsCompleted() || st.CompletionError != nil {
		t.Errorf("expected a clean completion, got %v %v", st.CompletionDate, st.CompletionError)
	}
	if store.saves != 10 {
		t.Errorf("expected one save per outcome plus the final one, got %d", store.saves)
	}

	t.Run("pagination lineage", func(t *testing.T) {
		for _, spec := range executed {
			switch {
			case spec.StartCursor == nil:
				if spec.ParentID != nil || spec.OriginatingTaskID != nil {
					t.Errorf("seed %s has lineage set", spec.ID)
				}
			default:
				parent, ok := executed[*spec.ParentID]
				if !ok {
					t.Fatalf("page %s names unknown parent %s", spec.ID, *spec.ParentID)
				}
				if parent.Window != spec.Window {
					t.Errorf("page %s changed window", spec.ID)
				}
				if *spec.OriginatingTaskID != parent.ChainID() {
					t.Errorf("page %s originating = %s, expected %s", spec.ID, *spec.OriginatingTaskID, parent.ChainID())
				}
				if !strings.HasPrefix(*spec.OriginatingTaskID, "seed-") {
					t.Errorf("page %s originating task %s is not a seed", spec.ID, *spec.OriginatingTaskID)
				}
			}
		}
	})
}

// TestDriver_CircuitBreaker tests that the stop margin stops dequeuing.
func TestDriver_CircuitBreaker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remaining func(call int) int
		wantCalls int
	}{
		{
			name:      "first call crosses the margin",
			remaining: func(int) int { return 100 },
			wantCalls: 1,
		},
		{
			name: "third call crosses the margin",
			remaining: func(call int) int {
				if call >= 3 {
					return 499
				}
				return 4000
			},
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{pages: 2, perPage: 1, remaining: tt.remaining}
			st := newRunState(t, 3)
			out := &memOutput{}

			stats, err := NewDriver(&memStore{}, WithConcurrency(1)).Run(t.Context(), newTestRun(st, api, out))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if api.callCount() != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, api.callCount())
			}
			if !stats.Paused {
				t.Error("expected the run to be paused")
			}
			if st.CompletionError != nil {
				t.Errorf("breaker stop must not be an error, got %q", *st.CompletionError)
			}
			if len(st.Resolved) != tt.wantCalls || len(out.records) != tt.wantCalls {
				t.Errorf("expected %d resolved tasks with output, got %d and %d", tt.wantCalls, len(st.Resolved), len(out.records))
			}
			// The untouched seeds and the queued second pages stay unresolved.
			if len(st.Unresolved) != 3 {
				t.Errorf("expected 3 unresolved tasks, got %d", len(st.Unresolved))
			}
		})
	}
}

// TestDriver_MissingTelemetry tests that a result without telemetry stops
// the run.
func TestDriver_MissingTelemetry(t *testing.T) {
	t.Parallel()

	q := querierFunc(func(context.Context, string, map[string]any) (*github.Response, error) {
		return &github.Response{Data: json.RawMessage(`{"search":{"repositoryCount":0,"pageInfo":{"hasNextPage":false},"nodes":[]}}`)}, nil
	})
	st := newRunState(t, 2)

	stats, err := NewDriver(&memStore{}, WithConcurrency(1)).Run(t.Context(), newTestRun(st, q, &memOutput{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.Paused || len(st.Resolved) != 1 || len(st.Unresolved) != 1 {
		t.Errorf("expected to stop after one task: paused=%v resolved=%d unresolved=%d", stats.Paused, len(st.Resolved), len(st.Unresolved))
	}
}

type querierFunc func(ctx context.Context, query string, vars map[string]any) (*github.Response, error)

func (f querierFunc) Query(ctx context.Context, query string, vars map[string]any) (*github.Response, error) {
	return f(ctx, query, vars)
}

// TestDriver_SecondaryRateLimit tests the immediate abort on a retry directive.
func TestDriver_SecondaryRateLimit(t *testing.T) {
	t.Parallel()

	retry := time.Minute
	api := &fakeAPI{pages: 2, perPage: 1, fail: func(_ int, window, _ string) error {
		if strings.HasPrefix(window, "2023-01-11") {
			return &github.QueryError{
				Kind:       github.KindHTTP,
				StatusCode: http.StatusForbidden,
				Message:    "You have exceeded a secondary rate limit",
				Headers:    http.Header{"Retry-After": []string{"60"}},
				RetryAfter: &retry,
			}
		}
		return nil
	}}
	st := newRunState(t, 3)
	store := &memStore{}

	_, err := NewDriver(store, WithConcurrency(1)).Run(t.Context(), newTestRun(st, api, &memOutput{}))
	if !errors.Is(err, ErrSecondaryRateLimit) {
		t.Fatalf("expected ErrSecondaryRateLimit, got %v", err)
	}

	if _, ok := st.Unresolved["seed-2"]; !ok {
		t.Error("the rate-limited task must stay unresolved")
	}
	if _, ok := st.Unresolved["seed-3"]; !ok {
		t.Error("tasks not started must stay unresolved")
	}
	if len(st.Errored) != 0 {
		t.Errorf("expected no errored tasks, got %d", len(st.Errored))
	}
	if api.callCount() != 2 {
		t.Errorf("expected no call after the abort, got %d calls", api.callCount())
	}
	if st.CompletionError == nil || !strings.Contains(*st.CompletionError, "secondary rate limit") {
		t.Errorf("expected the terminal error to be recorded, got %v", st.CompletionError)
	}

	saved := store.load(t)
	if saved.CompletionError == nil {
		t.Error("expected the terminal state to be checkpointed")
	}
}

// TestDriver_SecondaryRateLimitInFlight tests that tasks cancelled by the
// abort stay unresolved next to the rate-limited one.
func TestDriver_SecondaryRateLimitInFlight(t *testing.T) {
	t.Parallel()

	retry := time.Minute
	entered := make(chan struct{}, 2)
	api := querierFunc(func(ctx context.Context, _ string, vars map[string]any) (*github.Response, error) {
		if strings.HasPrefix(windowOf(vars["searchQuery"].(string)), "2023-01-11") {
			for range 2 {
				select {
				case <-entered:
				case <-ctx.Done():
					return nil, &github.QueryError{Kind: github.KindTransport, Message: ctx.Err().Error(), Err: ctx.Err()}
				}
			}
			return nil, &github.QueryError{
				Kind:       github.KindHTTP,
				StatusCode: http.StatusForbidden,
				Message:    "You have exceeded a secondary rate limit",
				Headers:    http.Header{"Retry-After": []string{"60"}},
				RetryAfter: &retry,
			}
		}

		entered <- struct{}{}
		<-ctx.Done()
		return nil, &github.QueryError{Kind: github.KindTransport, Message: ctx.Err().Error(), Err: ctx.Err()}
	})
	st := newRunState(t, 3)

	_, err := NewDriver(&memStore{}, WithConcurrency(3)).Run(t.Context(), newTestRun(st, api, &memOutput{}))
	if !errors.Is(err, ErrSecondaryRateLimit) {
		t.Fatalf("expected ErrSecondaryRateLimit, got %v", err)
	}

	unresolved, resolved, errored, _ := st.Counts()
	if unresolved != 3 {
		t.Errorf("unresolved = %d, expected 3", unresolved)
	}
	if resolved != 0 {
		t.Errorf("resolved = %d, expected 0", resolved)
	}
	if errored != 0 {
		t.Errorf("errored = %d, expected 0", errored)
	}
	for _, id := range []string{"seed-1", "seed-2", "seed-3"} {
		if _, ok := st.Unresolved[id]; !ok {
			t.Errorf("%s must stay unresolved", id)
		}
	}
}

// TestDriver_PartialResponse tests that a partial payload is kept.
func TestDriver_PartialResponse(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: 2, perPage: 2}
	api.fail = func(_ int, _ string, after string) error {
		if after != "" {
			return nil
		}
		return &github.QueryError{
			Kind:       github.KindGraphQL,
			StatusCode: http.StatusOK,
			Message:    "timeout",
			Headers:    http.Header{},
			Errors:     []github.GraphQLError{{Type: "TIMEOUT", Message: "timeout"}},
			Data:       api.page("2023-01-01..2023-01-10", "", 4000),
		}
	}
	st := newRunState(t, 1)
	out := &memOutput{}

	stats, err := NewDriver(&memStore{}).Run(t.Context(), newTestRun(st, api, out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Partial != 1 {
		t.Errorf("expected one partial response, got %d", stats.Partial)
	}
	if len(st.Resolved) != 2 || len(st.Errored) != 0 {
		t.Errorf("expected both pages resolved, got %d resolved %d errored", len(st.Resolved), len(st.Errored))
	}
	if len(out.itemIDs()) != 4 {
		t.Errorf("expected 4 items, got %v", out.itemIDs())
	}
}

// TestDriver_HardError tests that hard errors are recorded and the run goes on.
func TestDriver_HardError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{pages: 1, perPage: 1, fail: func(_ int, window, _ string) error {
		if strings.HasPrefix(window, "2023-01-11") {
			return &github.QueryError{
				Kind:       github.KindHTTP,
				StatusCode: http.StatusBadGateway,
				Message:    "502 Bad Gateway",
				Headers:    http.Header{"X-Github-Request-Id": []string{"ABCD"}},
			}
		}
		return nil
	}}
	st := newRunState(t, 3)

	stats, err := NewDriver(&memStore{}, WithConcurrency(2)).Run(t.Context(), newTestRun(st, api, &memOutput{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Errored != 1 || len(st.Resolved) != 2 || len(st.Unresolved) != 0 {
		t.Errorf("unexpected outcome: stats=%+v resolved=%d unresolved=%d", stats, len(st.Resolved), len(st.Unresolved))
	}
	rec, ok := st.Errored["seed-2"]
	if !ok {
		t.Fatal("expected seed-2 to be errored")
	}
	if !strings.Contains(rec.Message, "502") || !strings.Contains(rec.Message, "ABCD") {
		t.Errorf("unexpected diagnostic %q", rec.Message)
	}
	if st.CompletionError != nil {
		t.Errorf("hard errors must not abort the run, got %q", *st.CompletionError)
	}
}

// TestDriver_UnknownKind tests that a spec without a task variant is recorded.
func TestDriver_UnknownKind(t *testing.T) {
	t.Parallel()

	st := newRunState(t, 1)
	spec := st.Unresolved["seed-1"]
	spec.ID = "odd"
	spec.Kind = "gists"
	if err := st.AddUnresolved(spec); err != nil {
		t.Fatal(err)
	}

	_, err := NewDriver(&memStore{}).Run(t.Context(), newTestRun(st, &fakeAPI{pages: 1, perPage: 1}, &memOutput{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec, ok := st.Errored["odd"]; !ok || !strings.Contains(rec.Message, "unknown task kind") {
		t.Errorf("expected odd to be errored, got %+v", st.Errored)
	}
}

// TestDriver_Interrupted tests cancellation by the operator.
func TestDriver_Interrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(t.Context())
	defer cancel(nil)

	api := &fakeAPI{pages: 1, perPage: 1, fail: func(call int, _, _ string) error {
		if call == 2 {
			cancel(ErrInterrupted)
			return &github.QueryError{Kind: github.KindTransport, Message: "canceled", Err: context.Canceled}
		}
		return nil
	}}
	st := newRunState(t, 3)

	_, err := NewDriver(&memStore{}, WithConcurrency(1)).Run(ctx, newTestRun(st, api, &memOutput{}))
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}

	if len(st.Resolved) != 1 || len(st.Unresolved) != 2 || len(st.Errored) != 0 {
		t.Errorf("unexpected sets: resolved=%d unresolved=%d errored=%d", len(st.Resolved), len(st.Unresolved), len(st.Errored))
	}
	if st.CompletionError == nil || *st.CompletionError != "interrupted" {
		t.Errorf("expected completion error %q, got %v", "interrupted", st.CompletionError)
	}
}

// TestDriver_CheckpointFailure tests that a failing store stops the run.
func TestDriver_CheckpointFailure(t *testing.T) {
	t.Parallel()

	store := &memStore{err: errors.New("disk full")}
	api := &fakeAPI{pages: 1, perPage: 1}
	st := newRunState(t, 3)

	_, err := NewDriver(store, WithConcurrency(1)).Run(t.Context(), newTestRun(st, api, &memOutput{}))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected the save error, got %v", err)
	}
	if api.callCount() != 1 {
		t.Errorf("expected no call after the failed save, got %d", api.callCount())
	}
}

// TestDriver_CheckpointEvery tests batched checkpoint saves.
func TestDriver_CheckpointEvery(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	st := newRunState(t, 4)

	_, err := NewDriver(store, WithCheckpointEvery(3)).Run(t.Context(), newTestRun(st, &fakeAPI{pages: 1, perPage: 1}, &memOutput{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One batch of three, then the final save.
	if store.saves != 2 {
		t.Errorf("expected 2 saves, got %d", store.saves)
	}
}

// TestDriver_CompletedRun tests that a completed state is rejected.
func TestDriver_CompletedRun(t *testing.T) {
	t.Parallel()

	st := newRunState(t, 1)
	st.Complete(time.Now(), nil)

	_, err := NewDriver(&memStore{}).Run(t.Context(), newTestRun(st, &fakeAPI{}, &memOutput{}))
	if !errors.Is(err, state.ErrRunCompleted) {
		t.Errorf("expected ErrRunCompleted, got %v", err)
	}
}

// TestDriver_Resume tests that an interrupted and resumed run ends in the
// same state as an uninterrupted one.
func TestDriver_Resume(t *testing.T) {
	t.Parallel()

	// Uninterrupted reference run.
	refAPI := &fakeAPI{pages: 3, perPage: 2}
	refState := newRunState(t, 3)
	refOut := &memOutput{}
	if _, err := NewDriver(&memStore{}, WithConcurrency(1)).Run(t.Context(), newTestRun(refState, refAPI, refOut)); err != nil {
		t.Fatalf("reference run: %v", err)
	}

	// First sub-run stops on the margin after four calls.
	api := &fakeAPI{pages: 3, perPage: 2, remaining: func(call int) int {
		if call == 4 {
			return 1
		}
		return 4000
	}}
	store := &memStore{}
	out := &memOutput{}
	stats, err := NewDriver(store, WithConcurrency(1)).Run(t.Context(), newTestRun(newRunState(t, 3), api, out))
	if err != nil {
		t.Fatalf("first sub-run: %v", err)
	}
	if !stats.Paused {
		t.Fatal("expected the first sub-run to pause")
	}

	// Resume from the checkpoint with a fresh context.
	st := store.load(t)
	st.Reopen(time.Now())
	run := newTestRun(st, api, out)
	run.Context.NewID = task.NewID
	for _, rec := range out.records {
		for _, it := range rec.Result.Items {
			run.Context.Seen.Add(it.ID)
		}
	}
	api.remaining = nil

	if _, err := NewDriver(store, WithConcurrency(3)).Run(t.Context(), run); err != nil {
		t.Fatalf("resumed sub-run: %v", err)
	}

	if len(st.History) != 1 {
		t.Errorf("expected one history entry, got %d", len(st.History))
	}

	refU, refR, refE, refA := refState.Counts()
	u, r, e, a := st.Counts()
	if refU != u || refR != r || refE != e || refA != a {
		t.Errorf("counts differ: reference %d/%d/%d/%d, resumed %d/%d/%d/%d", refU, refR, refE, refA, u, r, e, a)
	}
	if got, want := api.servedKeys(), refAPI.servedKeys(); !slices.Equal(got, want) {
		t.Errorf("served pages differ:\n got  %v\n want %v", got, want)
	}
	if got, want := out.itemIDs(), refOut.itemIDs(); !slices.Equal(got, want) {
		t.Errorf("output differs:\n got  %v\n want %v", got, want)
	}
}
