package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/nao1215/ghcrawl/internal/github"
)

// maxDiagnosticData bounds the partial payload quoted in error messages.
const maxDiagnosticData = 512

// Task is the executable form of a Spec.
type Task interface {
	// Spec returns the description of the task.
	Spec() Spec

	// Query returns the GraphQL query text.
	Query(tc *Context) string

	// Params returns the query variables.
	Params(tc *Context) map[string]any

	// Execute issues the query bound to ctx. It fails with ErrAborted if ctx
	// is already done, and otherwise returns query errors unchanged.
	Execute(ctx context.Context, tc *Context) (*Result, error)

	// ShouldAbort reports whether the result crossed the rate-limit stop
	// margin, or carried no telemetry at all.
	ShouldAbort(tc *Context, result *Result) bool

	// ShouldAbortAfterError reports whether err signals the secondary rate
	// limit and must stop the whole run.
	ShouldAbortAfterError(tc *Context, err error) bool

	// ShouldRecordAsError reports whether err is a hard error. It is false
	// for partial responses, which carry both response metadata and data.
	ShouldRecordAsError(tc *Context, err error) bool

	// ExtractOutputFromError decodes the partial payload of err.
	// It fails with ErrNoPartialData when there is none.
	ExtractOutputFromError(tc *Context, err error) (*Result, error)

	// ErrorMessage formats err for logs and the errored set.
	ErrorMessage(tc *Context, err error) string

	// NextTask returns the Spec of the following page, or nil on the last
	// page. ParentID is left unset; the driver assigns it.
	NextTask(tc *Context, result *Result) *Spec
}

// New builds the Task for spec.
func New(spec Spec) (Task, error) {
	switch spec.Kind {
	case KindRepositories:
		return newRepositoriesTask(spec), nil
	case KindUsers:
		return newUsersTask(spec), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

// decodeFunc turns a response payload into a Result.
type decodeFunc func(tc *Context, data json.RawMessage, headers http.Header) (*Result, error)

// base implements the parts of Task shared by all variants: execution,
// classification and pagination.
type base struct {
	spec   Spec
	query  func(tc *Context) string
	params func(tc *Context) map[string]any
	decode decodeFunc
}

func (b *base) Spec() Spec {
	return b.spec
}

func (b *base) Query(tc *Context) string {
	return b.query(tc)
}

func (b *base) Params(tc *Context) map[string]any {
	return b.params(tc)
}

func (b *base) Execute(ctx context.Context, tc *Context) (*Result, error) {
	if ctx.Err() != nil {
		tc.logger().Error("task started after cancellation", "task", b.spec.ID)
		return nil, fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
	}

	resp, err := tc.Client.Query(ctx, b.Query(tc), b.Params(tc))
	if err != nil {
		return nil, err
	}

	return b.decode(tc, resp.Data, resp.Headers)
}

func (b *base) ShouldAbort(tc *Context, result *Result) bool {
	if result == nil || result.RateLimit == nil {
		tc.logger().Warn("no rate limit telemetry, stopping", "task", b.spec.ID)
		return true
	}

	rl := result.RateLimit
	threshold := float64(rl.Limit) * tc.RateLimitStopPercent / 100
	if float64(rl.Remaining) < threshold {
		tc.logger().Warn("rate limit stop margin reached",
			"task", b.spec.ID,
			"remaining", rl.Remaining,
			"limit", rl.Limit,
			"reset_at", rl.ResetAt,
		)
		return true
	}
	return false
}

func (b *base) ShouldAbortAfterError(_ *Context, err error) bool {
	var qe *github.QueryError
	return errors.As(err, &qe) && qe.HasRetryAfter()
}

func (b *base) ShouldRecordAsError(_ *Context, err error) bool {
	var qe *github.QueryError
	if !errors.As(err, &qe) {
		return true
	}
	return !qe.HasResponse() || !qe.HasPartialData()
}

func (b *base) ExtractOutputFromError(tc *Context, err error) (*Result, error) {
	var qe *github.QueryError
	if !errors.As(err, &qe) || !qe.HasResponse() || !qe.HasPartialData() {
		tc.logger().Error("output extracted from an error without partial data", "task", b.spec.ID, "error", err)
		return nil, ErrNoPartialData
	}
	return b.decode(tc, qe.Data, qe.Headers)
}

func (b *base) ErrorMessage(_ *Context, err error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "task %s: %v", b.spec.ID, err)

	var qe *github.QueryError
	if !errors.As(err, &qe) {
		return sb.String()
	}

	if len(qe.Headers) > 0 {
		sb.WriteString("; headers: ")
		sb.WriteString(formatHeaders(qe.Headers))
	}
	if len(qe.Errors) > 0 {
		msgs := make([]string, 0, len(qe.Errors))
		for _, e := range qe.Errors {
			if e.Type != "" {
				msgs = append(msgs, e.Type+": "+e.Message)
				continue
			}
			msgs = append(msgs, e.Message)
		}
		sb.WriteString("; errors: [")
		sb.WriteString(strings.Join(msgs, ", "))
		sb.WriteString("]")
	}
	if qe.HasPartialData() {
		data := string(qe.Data)
		if len(data) > maxDiagnosticData {
			data = data[:maxDiagnosticData] + "..."
		}
		sb.WriteString("; data: ")
		sb.WriteString(data)
	}
	return sb.String()
}

func (b *base) NextTask(tc *Context, result *Result) *Spec {
	if result == nil || !result.PageInfo.HasNextPage || result.PageInfo.EndCursor == nil {
		return nil
	}

	next := b.spec.Clone()
	next.ID = tc.newID()
	next.ParentID = nil
	origin := b.spec.ChainID()
	next.OriginatingTaskID = &origin
	cursor := *result.PageInfo.EndCursor
	next.StartCursor = &cursor
	return &next
}

// formatHeaders renders headers as "Key=value" pairs in a stable order.
func formatHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.Join(h[k], ","))
	}
	return strings.Join(pairs, " ")
}
