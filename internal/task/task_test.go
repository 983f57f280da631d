package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/ghcrawl/internal/github"
)

// fakeQuerier answers every query with a fixed response or error.
type fakeQuerier struct {
	resp  *github.Response
	err   error
	calls atomic.Int32
}

func (f *fakeQuerier) Query(context.Context, string, map[string]any) (*github.Response, error) {
	f.calls.Add(1)
	return f.resp, f.err
}

func strPtr(s string) *string {
	return &s
}

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testSpec(kind Kind) Spec {
	return Spec{
		ID:   "seed",
		Kind: kind,
		Window: Window{
			CreatedAfter:     date("2023-01-01"),
			CreatedBefore:    date("2023-01-07"),
			HasActivityAfter: date("2023-03-01"),
		},
		Filters:  Filters{MinStars: 10, MinForks: 2, MinSizeInKb: 100, MaxInactivityDays: 30},
		PageSize: 50,
	}
}

func testContext(q Querier) *Context {
	tc := NewContext(q, 10, nil)
	var n atomic.Int32
	tc.NewID = func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
	return tc
}

const searchData = `{
  "rateLimit": {"limit": 5000, "remaining": 4000, "cost": 1, "resetAt": "2023-03-01T12:00:00Z"},
  "search": {
    "repositoryCount": 3,
    "pageInfo": {"hasNextPage": true, "endCursor": "Y3Vyc29yOjI="},
    "nodes": [
      {"id": "R_1", "nameWithOwner": "a/one", "stargazerCount": 12},
      null,
      {"id": "R_2", "nameWithOwner": "b/two", "stargazerCount": 40},
      {"id": "R_1", "nameWithOwner": "a/one", "stargazerCount": 12}
    ]
  }
}`

// TestNew tests the task factory.
func TestNew(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindRepositories, KindUsers} {
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			tk, err := New(testSpec(kind))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tk.Spec().Kind != kind {
				t.Errorf("Spec().Kind = %q, expected %q", tk.Spec().Kind, kind)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		_, err := New(testSpec("issues"))
		if !errors.Is(err, ErrUnknownKind) {
			t.Errorf("expected ErrUnknownKind, got %v", err)
		}
	})
}

// TestTask_QueryAndParams tests the query text and variables.
func TestTask_QueryAndParams(t *testing.T) {
	t.Parallel()

	t.Run("repositories first page", func(t *testing.T) {
		t.Parallel()

		tk, _ := New(testSpec(KindRepositories))
		tc := testContext(nil)

		if !strings.Contains(tk.Query(tc), "search(type: REPOSITORY") {
			t.Errorf("unexpected query: %s", tk.Query(tc))
		}
		if !strings.Contains(tk.Query(tc), "rateLimit") {
			t.Error("expected the query to select rate limit telemetry")
		}

		params := tk.Params(tc)
		want := "stars:>=10 forks:>=2 size:>=100 pushed:>=2023-01-30 created:2023-01-01..2023-01-07 archived:false fork:false"
		if params["searchQuery"] != want {
			t.Errorf("searchQuery = %q, expected %q", params["searchQuery"], want)
		}
		if params["first"] != 50 {
			t.Errorf("first = %v, expected 50", params["first"])
		}
		if params["after"] != nil {
			t.Errorf("after = %v, expected nil", params["after"])
		}
	})

	t.Run("users later page", func(t *testing.T) {
		t.Parallel()

		spec := testSpec(KindUsers)
		spec.StartCursor = strPtr("Y3Vyc29yOjUw")
		tk, _ := New(spec)
		tc := testContext(nil)

		if !strings.Contains(tk.Query(tc), "search(type: USER") {
			t.Errorf("unexpected query: %s", tk.Query(tc))
		}
		params := tk.Params(tc)
		if params["searchQuery"] != "created:2023-01-01..2023-01-07 repos:>=1" {
			t.Errorf("unexpected searchQuery %q", params["searchQuery"])
		}
		if params["after"] != "Y3Vyc29yOjUw" {
			t.Errorf("after = %v, expected the start cursor", params["after"])
		}
	})
}

// TestTask_Execute tests execution and decoding.
func TestTask_Execute(t *testing.T) {
	t.Parallel()

	t.Run("decodes and deduplicates nodes", func(t *testing.T) {
		t.Parallel()

		q := &fakeQuerier{resp: &github.Response{Data: json.RawMessage(searchData), StatusCode: 200}}
		tc := testContext(q)
		tc.Seen.Add("R_2")

		tk, _ := New(testSpec(KindRepositories))
		result, err := tk.Execute(t.Context(), tc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Items) != 1 || result.Items[0].ID != "R_1" {
			t.Fatalf("expected only R_1 to be emitted, got %+v", result.Items)
		}
		if !strings.Contains(string(result.Items[0].Data), "a/one") {
			t.Errorf("expected raw node data, got %s", result.Items[0].Data)
		}
		if result.TotalCount != 3 {
			t.Errorf("TotalCount = %d, expected 3", result.TotalCount)
		}
		if result.RateLimit == nil || result.RateLimit.Remaining != 4000 || result.RateLimit.Limit != 5000 {
			t.Errorf("unexpected rate limit %+v", result.RateLimit)
		}
		if !result.PageInfo.HasNextPage || result.PageInfo.EndCursor == nil || *result.PageInfo.EndCursor != "Y3Vyc29yOjI=" {
			t.Errorf("unexpected page info %+v", result.PageInfo)
		}
		if tc.Seen.Len() != 2 {
			t.Errorf("Seen.Len() = %d, expected 2", tc.Seen.Len())
		}
	})

	t.Run("falls back to rate limit headers", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set("X-RateLimit-Limit", "5000")
		h.Set("X-RateLimit-Remaining", "12")
		h.Set("X-RateLimit-Reset", "1700000000")
		q := &fakeQuerier{resp: &github.Response{
			Data:    json.RawMessage(`{"search":{"userCount":0,"pageInfo":{"hasNextPage":false,"endCursor":null},"nodes":[]}}`),
			Headers: h,
		}}

		tk, _ := New(testSpec(KindUsers))
		result, err := tk.Execute(t.Context(), testContext(q))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.RateLimit == nil {
			t.Fatal("expected rate limit from headers")
		}
		if result.RateLimit.Remaining != 12 || result.RateLimit.Limit != 5000 {
			t.Errorf("unexpected rate limit %+v", result.RateLimit)
		}
		if !result.RateLimit.ResetAt.Equal(time.Unix(1700000000, 0)) {
			t.Errorf("ResetAt = %v", result.RateLimit.ResetAt)
		}
	})

	t.Run("skips nodes outside the selection", func(t *testing.T) {
		t.Parallel()

		q := &fakeQuerier{resp: &github.Response{
			Data: json.RawMessage(`{"rateLimit":{"limit":5000,"remaining":4999},"search":{"userCount":2,"pageInfo":{"hasNextPage":false},"nodes":[{},{"id":"U_1","login":"octocat"}]}}`),
		}}

		tk, _ := New(testSpec(KindUsers))
		result, err := tk.Execute(t.Context(), testContext(q))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Items) != 1 || result.Items[0].ID != "U_1" {
			t.Errorf("expected only U_1, got %+v", result.Items)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()

		q := &fakeQuerier{resp: &github.Response{Data: json.RawMessage(`{"search":{"nodes":"nope"}}`)}}
		tk, _ := New(testSpec(KindRepositories))

		_, err := tk.Execute(t.Context(), testContext(q))
		if !errors.Is(err, ErrMalformedResult) {
			t.Errorf("expected ErrMalformedResult, got %v", err)
		}
	})

	t.Run("malformed node leaves seen set untouched", func(t *testing.T) {
		t.Parallel()

		q := &fakeQuerier{resp: &github.Response{
			Data: json.RawMessage(`{"search":{"repositoryCount":2,"pageInfo":{"hasNextPage":false},"nodes":[{"id":"A"},{"id":5}]}}`),
		}}
		tc := testContext(q)
		tk, _ := New(testSpec(KindRepositories))

		result, err := tk.Execute(t.Context(), tc)
		if !errors.Is(err, ErrMalformedResult) {
			t.Fatalf("expected ErrMalformedResult, got %v", err)
		}
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}
		if tc.Seen.Contains("A") {
			t.Error("expected A to stay out of the seen set")
		}
		if tc.Seen.Len() != 0 {
			t.Errorf("Seen.Len() = %d, expected 0", tc.Seen.Len())
		}
	})

	t.Run("propagates query errors unchanged", func(t *testing.T) {
		t.Parallel()

		queryErr := &github.QueryError{Kind: github.KindHTTP, StatusCode: 502}
		q := &fakeQuerier{err: queryErr}
		tk, _ := New(testSpec(KindRepositories))

		_, err := tk.Execute(t.Context(), testContext(q))
		if err != queryErr { //nolint:errorlint // identity is the property under test
			t.Errorf("expected the query error itself, got %v", err)
		}
	})

	t.Run("aborted when already cancelled", func(t *testing.T) {
		t.Parallel()

		q := &fakeQuerier{resp: &github.Response{Data: json.RawMessage(searchData)}}
		tk, _ := New(testSpec(KindRepositories))

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := tk.Execute(ctx, testContext(q))
		if !errors.Is(err, ErrAborted) {
			t.Errorf("expected ErrAborted, got %v", err)
		}
		if q.calls.Load() != 0 {
			t.Errorf("expected no query to be issued, got %d", q.calls.Load())
		}
	})
}

// TestTask_ShouldAbort tests the primary circuit breaker.
func TestTask_ShouldAbort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		rateLimit   *RateLimit
		stopPercent float64
		want        bool
	}{
		{name: "missing telemetry", rateLimit: nil, stopPercent: 10, want: true},
		{name: "plenty left", rateLimit: &RateLimit{Limit: 5000, Remaining: 4000}, stopPercent: 10, want: false},
		{name: "exactly at margin", rateLimit: &RateLimit{Limit: 5000, Remaining: 500}, stopPercent: 10, want: false},
		{name: "just below margin", rateLimit: &RateLimit{Limit: 5000, Remaining: 499}, stopPercent: 10, want: true},
		{name: "zero stop percent never trips", rateLimit: &RateLimit{Limit: 5000, Remaining: 0}, stopPercent: 0, want: false},
		{name: "fractional percent", rateLimit: &RateLimit{Limit: 1000, Remaining: 4}, stopPercent: 0.5, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tc := testContext(nil)
			tc.RateLimitStopPercent = tt.stopPercent
			tk, _ := New(testSpec(KindRepositories))

			if got := tk.ShouldAbort(tc, &Result{RateLimit: tt.rateLimit}); got != tt.want {
				t.Errorf("ShouldAbort() = %v, expected %v", got, tt.want)
			}
		})
	}

	t.Run("nil result", func(t *testing.T) {
		t.Parallel()

		tk, _ := New(testSpec(KindRepositories))
		if !tk.ShouldAbort(testContext(nil), nil) {
			t.Error("expected nil result to abort")
		}
	})
}

// TestTask_ErrorClassification tests the abort/record/partial decisions.
func TestTask_ErrorClassification(t *testing.T) {
	t.Parallel()

	retry := time.Minute
	headers := http.Header{"X-Github-Request-Id": []string{"abc"}}

	tests := []struct {
		name       string
		err        error
		wantAbort  bool
		wantRecord bool
	}{
		{
			name:       "secondary rate limit",
			err:        &github.QueryError{Kind: github.KindHTTP, StatusCode: 403, Headers: headers, RetryAfter: &retry},
			wantAbort:  true,
			wantRecord: true,
		},
		{
			name:       "wrapped secondary rate limit",
			err:        fmt.Errorf("page failed: %w", &github.QueryError{Kind: github.KindHTTP, RetryAfter: &retry}),
			wantAbort:  true,
			wantRecord: true,
		},
		{
			name:       "partial response",
			err:        &github.QueryError{Kind: github.KindGraphQL, Headers: headers, Data: json.RawMessage(`{"search":null}`)},
			wantAbort:  false,
			wantRecord: false,
		},
		{
			name:       "partial data without response metadata",
			err:        &github.QueryError{Kind: github.KindGraphQL, Data: json.RawMessage(`{"search":null}`)},
			wantAbort:  false,
			wantRecord: true,
		},
		{
			name:       "http error without data",
			err:        &github.QueryError{Kind: github.KindHTTP, StatusCode: 502, Headers: headers},
			wantAbort:  false,
			wantRecord: true,
		},
		{
			name:       "plain error",
			err:        errors.New("connection reset"),
			wantAbort:  false,
			wantRecord: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tc := testContext(nil)
			tk, _ := New(testSpec(KindRepositories))

			if got := tk.ShouldAbortAfterError(tc, tt.err); got != tt.wantAbort {
				t.Errorf("ShouldAbortAfterError() = %v, expected %v", got, tt.wantAbort)
			}
			if got := tk.ShouldRecordAsError(tc, tt.err); got != tt.wantRecord {
				t.Errorf("ShouldRecordAsError() = %v, expected %v", got, tt.wantRecord)
			}
		})
	}
}

// TestTask_ExtractOutputFromError tests partial payload extraction.
func TestTask_ExtractOutputFromError(t *testing.T) {
	t.Parallel()

	t.Run("partial payload is decoded", func(t *testing.T) {
		t.Parallel()

		err := &github.QueryError{
			Kind:    github.KindGraphQL,
			Headers: http.Header{},
			Data:    json.RawMessage(searchData),
		}
		tk, _ := New(testSpec(KindRepositories))

		result, extractErr := tk.ExtractOutputFromError(testContext(nil), err)
		if extractErr != nil {
			t.Fatalf("unexpected error: %v", extractErr)
		}
		if len(result.Items) != 2 {
			t.Errorf("expected 2 items, got %d", len(result.Items))
		}
		if !result.PageInfo.HasNextPage {
			t.Error("expected pagination info to survive")
		}
	})

	t.Run("no payload", func(t *testing.T) {
		t.Parallel()

		tk, _ := New(testSpec(KindRepositories))
		_, err := tk.ExtractOutputFromError(testContext(nil), errors.New("boom"))
		if !errors.Is(err, ErrNoPartialData) {
			t.Errorf("expected ErrNoPartialData, got %v", err)
		}
	})
}

// TestTask_ErrorMessage tests the diagnostic string.
func TestTask_ErrorMessage(t *testing.T) {
	t.Parallel()

	err := &github.QueryError{
		Kind:       github.KindGraphQL,
		StatusCode: 200,
		Message:    "timeout",
		Headers:    http.Header{"X-Github-Request-Id": []string{"ABCD"}},
		Errors:     []github.GraphQLError{{Type: "TIMEOUT", Message: "timeout"}},
		Data:       json.RawMessage(`{"search":{"nodes":[` + strings.Repeat(`{"id":"R_x"},`, 100) + `{}]}}`),
	}
	tk, _ := New(testSpec(KindRepositories))

	msg := tk.ErrorMessage(testContext(nil), err)
	for _, want := range []string{"task seed", "timeout", "X-Github-Request-Id=ABCD", "TIMEOUT: timeout", "data: ", "..."} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}

	plain := tk.ErrorMessage(testContext(nil), errors.New("boom"))
	if plain != "task seed: boom" {
		t.Errorf("ErrorMessage() = %q", plain)
	}
}

// TestTask_NextTask tests pagination lineage.
func TestTask_NextTask(t *testing.T) {
	t.Parallel()

	t.Run("first page starts a chain", func(t *testing.T) {
		t.Parallel()

		spec := testSpec(KindRepositories)
		tk, _ := New(spec)
		result := &Result{PageInfo: PageInfo{HasNextPage: true, EndCursor: strPtr("c1")}}

		next := tk.NextTask(testContext(nil), result)
		if next == nil {
			t.Fatal("expected a next task")
		}
		if next.ID == "" || next.ID == spec.ID {
			t.Errorf("expected a fresh id, got %q", next.ID)
		}
		if next.ParentID != nil {
			t.Errorf("expected ParentID to be unset, got %q", *next.ParentID)
		}
		if next.OriginatingTaskID == nil || *next.OriginatingTaskID != "seed" {
			t.Errorf("expected OriginatingTaskID seed, got %v", next.OriginatingTaskID)
		}
		if next.StartCursor == nil || *next.StartCursor != "c1" {
			t.Errorf("expected StartCursor c1, got %v", next.StartCursor)
		}
		if next.Window != spec.Window || next.Filters != spec.Filters || next.PageSize != spec.PageSize || next.Kind != spec.Kind {
			t.Errorf("expected domain parameters to be copied, got %+v", next)
		}
	})

	t.Run("later page keeps the originating task", func(t *testing.T) {
		t.Parallel()

		spec := testSpec(KindRepositories)
		spec.ID = "page-2"
		spec.ParentID = strPtr("seed")
		spec.OriginatingTaskID = strPtr("seed")
		spec.StartCursor = strPtr("c1")
		tk, _ := New(spec)

		next := tk.NextTask(testContext(nil), &Result{PageInfo: PageInfo{HasNextPage: true, EndCursor: strPtr("c2")}})
		if next == nil {
			t.Fatal("expected a next task")
		}
		if *next.OriginatingTaskID != "seed" {
			t.Errorf("OriginatingTaskID = %q, expected seed", *next.OriginatingTaskID)
		}
		if *next.StartCursor != "c2" {
			t.Errorf("StartCursor = %q, expected c2", *next.StartCursor)
		}

		// The derived spec must not alias the parent's pointers.
		*next.OriginatingTaskID = "changed"
		if *spec.OriginatingTaskID != "seed" {
			t.Error("next task aliases the parent spec")
		}
	})

	t.Run("last page", func(t *testing.T) {
		t.Parallel()

		tk, _ := New(testSpec(KindRepositories))
		if next := tk.NextTask(testContext(nil), &Result{PageInfo: PageInfo{HasNextPage: false, EndCursor: strPtr("c9")}}); next != nil {
			t.Errorf("expected nil, got %+v", next)
		}
		if next := tk.NextTask(testContext(nil), nil); next != nil {
			t.Errorf("expected nil for nil result, got %+v", next)
		}
	})
}

// TestSeenSet_ConcurrentAdd tests that concurrent adds of one id succeed once.
func TestSeenSet_ConcurrentAdd(t *testing.T) {
	t.Parallel()

	s := NewSeenSet()
	var added atomic.Int32
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("R_1") {
				added.Add(1)
			}
		}()
	}
	wg.Wait()

	if added.Load() != 1 {
		t.Errorf("expected exactly one successful add, got %d", added.Load())
	}
	if !s.Contains("R_1") || s.Len() != 1 {
		t.Errorf("unexpected set state: len=%d", s.Len())
	}
}

// TestSpec_String tests the log description.
func TestSpec_String(t *testing.T) {
	t.Parallel()

	spec := testSpec(KindUsers)
	if got := spec.String(); got != "users 2023-01-01..2023-01-07 (first page)" {
		t.Errorf("String() = %q", got)
	}
	spec.StartCursor = strPtr("c1")
	if got := spec.String(); got != "users 2023-01-01..2023-01-07 (after c1)" {
		t.Errorf("String() = %q", got)
	}
}
