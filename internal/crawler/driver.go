package crawler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/nao1215/ghcrawl/internal/state"
	"github.com/nao1215/ghcrawl/internal/task"
	"golang.org/x/sync/errgroup"
)

// Checkpointer persists the state of a run. *checkpoint.Store implements it.
type Checkpointer interface {
	Save(runID string, st *state.ProcessState) error
}

// OutputWriter receives the output records of resolved tasks.
// *checkpoint.ChunkWriter implements it.
type OutputWriter interface {
	Append(rec state.OutputRecord) error
}

// Run is one execution of a crawl run.
type Run struct {
	// ID is the checkpoint id of the run.
	ID string

	// State is the state to drain. It must not be completed.
	State *state.ProcessState

	// Context is shared by all tasks of the run.
	Context *task.Context

	// Output receives the output records.
	Output OutputWriter
}

// Stats summarizes one execution.
type Stats struct {
	Resolved int
	Partial  int
	Errored  int
	Items    int

	// Paused is true when the run stopped on the rate-limit stop margin.
	Paused bool

	Elapsed time.Duration
}

// Driver executes crawl runs.
type Driver struct {
	store           Checkpointer
	concurrency     int
	checkpointEvery int
	newTask         func(task.Spec) (task.Task, error)
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithConcurrency sets the maximum number of tasks in flight.
// Default is 4 if not specified.
func WithConcurrency(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithCheckpointEvery saves the state after every n handled outcomes instead
// of after each one. The final state is always saved.
func WithCheckpointEvery(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.checkpointEvery = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithTaskFactory replaces task.New.
func WithTaskFactory(newTask func(task.Spec) (task.Task, error)) Option {
	return func(d *Driver) {
		d.newTask = newTask
	}
}

// WithClock sets the clock used for completion dates.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// NewDriver creates a Driver that checkpoints through store.
func NewDriver(store Checkpointer, opts ...Option) *Driver {
	d := &Driver{
		store:           store,
		concurrency:     4,
		checkpointEvery: 1,
		newTask:         task.New,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return d
}

// outcome is the report of a worker to the control loop.
type outcome struct {
	spec       task.Spec
	task       task.Task
	result     *task.Result
	err        error
	notStarted bool
}

// loop is the state of one Run call. Workers only read d, run and ctx; the
// remaining fields belong to the control loop.
type loop struct {
	d      *Driver
	run    *Run
	ctx    context.Context
	cancel context.CancelCauseFunc

	queue    []task.Spec
	inFlight int
	aborting bool
	terminal error
	unsaved  int
	stats    Stats
}

// Run drains the unresolved tasks of run.State. It returns when no task is
// left to dispatch and none is in flight. The state is completed and saved
// before returning.
//
// The returned error is the terminal error of the run: ErrSecondaryRateLimit,
// the cancellation cause of ctx, or a checkpoint or output failure. A run
// stopped on the rate-limit stop margin is not an error; Stats.Paused is set.
func (d *Driver) Run(ctx context.Context, run *Run) (*Stats, error) {
	if run.State.IsCompleted() {
		return nil, state.ErrRunCompleted
	}

	if run.Context.Seen == nil {
		run.Context.Seen = task.NewSeenSet()
	}

	start := d.now()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	l := &loop{
		d:      d,
		run:    run,
		ctx:    ctx,
		cancel: cancel,
		queue:  pendingSpecs(run.State),
	}

	d.logger.Info("starting crawl",
		"run", run.ID,
		"unresolved", len(l.queue),
		"concurrency", d.concurrency,
	)

	results := make(chan outcome)
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	l.dispatch(&g, results)
	for l.inFlight > 0 {
		o := <-results
		l.inFlight--
		l.handle(o)
		l.checkpoint()
		l.dispatch(&g, results)
	}
	_ = g.Wait() //nolint:errcheck // workers report through the results channel

	if l.terminal == nil && ctx.Err() != nil {
		l.terminal = context.Cause(ctx)
	}

	run.State.Complete(d.now(), l.terminal)
	if err := d.store.Save(run.ID, run.State); err != nil {
		l.terminal = errors.Join(l.terminal, fmt.Errorf("failed to save final state: %w", err))
	}

	l.stats.Paused = l.aborting && l.terminal == nil
	l.stats.Elapsed = d.now().Sub(start)

	unresolved, resolved, errored, archived := run.State.Counts()
	d.logger.Info("crawl stopped",
		"run", run.ID,
		"unresolved", unresolved,
		"resolved", resolved,
		"errored", errored,
		"archived", archived,
		"paused", l.stats.Paused,
		"error", l.terminal,
	)

	return &l.stats, l.terminal
}

// pendingSpecs returns the unresolved specs in a stable order: by window,
// then by id.
func pendingSpecs(st *state.ProcessState) []task.Spec {
	specs := make([]task.Spec, 0, len(st.Unresolved))
	for _, spec := range st.Unresolved {
		specs = append(specs, spec)
	}
	slices.SortFunc(specs, func(a, b task.Spec) int {
		if c := a.Window.CreatedAfter.Compare(b.Window.CreatedAfter); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return specs
}

// dispatch starts queued tasks until the cap is reached. Nothing is started
// once the run is aborting or the signal is tripped.
func (l *loop) dispatch(g *errgroup.Group, results chan<- outcome) {
	for len(l.queue) > 0 && l.inFlight < l.d.concurrency {
		if l.aborting || l.ctx.Err() != nil {
			return
		}

		spec := l.queue[0]
		l.queue = l.queue[1:]
		l.inFlight++

		g.Go(func() error {
			results <- l.execute(spec)
			return nil
		})
	}
}

// execute runs on a worker goroutine and must not touch the loop state.
func (l *loop) execute(spec task.Spec) outcome {
	if l.ctx.Err() != nil {
		return outcome{spec: spec, notStarted: true}
	}

	tk, err := l.d.newTask(spec)
	if err != nil {
		return outcome{spec: spec, err: err}
	}

	result, err := tk.Execute(l.ctx, l.run.Context)
	return outcome{spec: spec, task: tk, result: result, err: err}
}

func (l *loop) handle(o outcome) {
	switch {
	case o.notStarted:
		l.d.logger.Debug("task not started after cancellation", "task", o.spec.ID)
	case o.task == nil:
		l.recordError(o.spec, fmt.Sprintf("task %s: %v", o.spec.ID, o.err))
	case o.err == nil:
		l.handleSuccess(o)
	default:
		l.handleFailure(o)
	}
}

func (l *loop) handleSuccess(o outcome) {
	tc := l.run.Context
	if o.task.ShouldAbort(tc, o.result) && !l.aborting {
		l.aborting = true
		l.d.logger.Warn("rate limit stop margin reached, draining in-flight tasks",
			"run", l.run.ID,
			"task", o.spec.ID,
			"in_flight", l.inFlight,
		)
	}
	l.resolve(o.spec, o.task, o.result)
}

func (l *loop) handleFailure(o outcome) {
	tc := l.run.Context

	if l.ctx.Err() != nil {
		l.d.logger.Debug("task cancelled, left unresolved", "task", o.spec.ID, "error", o.err)
		return
	}

	if o.task.ShouldAbortAfterError(tc, o.err) {
		msg := o.task.ErrorMessage(tc, o.err)
		l.fail(fmt.Errorf("%w: %s", ErrSecondaryRateLimit, msg))
		l.d.logger.Error("secondary rate limit, aborting run", "run", l.run.ID, "task", o.spec.ID, "error", msg)
		return
	}

	if o.task.ShouldRecordAsError(tc, o.err) {
		l.recordError(o.spec, o.task.ErrorMessage(tc, o.err))
		return
	}

	result, err := o.task.ExtractOutputFromError(tc, o.err)
	if err != nil {
		l.recordError(o.spec, fmt.Sprintf("%s; %v", o.task.ErrorMessage(tc, o.err), err))
		return
	}

	l.d.logger.Warn("partial response kept", "task", o.spec.ID, "items", len(result.Items), "error", o.err)
	l.stats.Partial++
	if result.RateLimit != nil && o.task.ShouldAbort(tc, result) && !l.aborting {
		l.aborting = true
	}
	l.resolve(o.spec, o.task, result)
}

// resolve writes the output of spec, resolves it and queues its next page.
func (l *loop) resolve(spec task.Spec, tk task.Task, result *task.Result) {
	if err := l.run.Output.Append(state.OutputRecord{TaskID: spec.ID, Result: result}); err != nil {
		l.fail(fmt.Errorf("failed to write output of task %s: %w", spec.ID, err))
		return
	}

	if err := l.run.State.Resolve(spec.ID); err != nil {
		l.fail(err)
		return
	}
	l.stats.Resolved++
	l.stats.Items += len(result.Items)

	attrs := []any{"task", spec.ID, "window", spec.Window.String(), "items", len(result.Items)}
	if result.RateLimit != nil {
		attrs = append(attrs, "remaining", result.RateLimit.Remaining, "limit", result.RateLimit.Limit)
	}
	l.d.logger.Info("task resolved", attrs...)

	next := tk.NextTask(l.run.Context, result)
	if next == nil {
		return
	}

	parent := spec.ID
	next.ParentID = &parent
	if err := l.run.State.AddUnresolved(*next); err != nil {
		l.fail(err)
		return
	}
	l.queue = append(l.queue, *next)
}

func (l *loop) recordError(spec task.Spec, msg string) {
	if err := l.run.State.RecordError(spec.ID, msg); err != nil {
		l.fail(err)
		return
	}
	l.stats.Errored++
	l.d.logger.Warn("task failed", "task", spec.ID, "window", spec.Window.String(), "error", msg)
}

// fail sets the terminal error, if none is set yet, and trips the signal.
func (l *loop) fail(err error) {
	if l.terminal == nil {
		l.terminal = err
	}
	l.aborting = true
	l.cancel(err)
}

// checkpoint saves the state once enough outcomes were handled.
func (l *loop) checkpoint() {
	l.unsaved++
	if l.unsaved < l.d.checkpointEvery {
		return
	}

	if err := l.d.store.Save(l.run.ID, l.run.State); err != nil {
		l.fail(fmt.Errorf("failed to save checkpoint: %w", err))
		return
	}
	l.unsaved = 0
}
