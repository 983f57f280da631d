package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/ghcrawl/internal/crawler"
	"github.com/nao1215/ghcrawl/internal/state"
	"github.com/nao1215/ghcrawl/internal/task"
)

// Session is the run a pipeline operates on. Steps fill it in as they go:
// the create or load step sets RunID and State, the crawl step sets Stats.
type Session struct {
	// RunID is the checkpoint directory name of the run.
	RunID string

	// State is the process state of the run.
	State *state.ProcessState

	// TaskContext is shared by every task of the execution. Its seen-set is
	// rebuilt from the output chunks when the run is resumed.
	TaskContext *task.Context

	// Recovered is the chunk finalized from a crashed execution, if any.
	Recovered string

	// Dropped is the number of output records of unresolved tasks discarded
	// during recovery.
	Dropped int

	// Requeued lists the specs queued again from the errored set.
	Requeued []task.Spec

	// Chunk is the output chunk written by this execution, empty when the
	// execution produced no output.
	Chunk string

	// Stats is set once the crawl step ran.
	Stats *crawler.Stats

	// PerformedSteps records the names of the steps that ran.
	PerformedSteps []string
}

// NewSession creates a session whose tasks share tc.
func NewSession(tc *task.Context) *Session {
	return &Session{TaskContext: tc}
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the step against the session. A returned error stops the
	// pipeline unless it was configured to continue on error.
	Do(ctx context.Context, s *Session) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline running steps in order.
func New(steps []Step, opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: append(make([]Step, 0, len(steps)), steps...),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// Execute runs all pipeline steps in sequence against s.
//
// Cancellation is checked before each step; the cancellation cause is
// returned without running the remaining steps.
func (p *Pipeline) Execute(ctx context.Context, s *Session) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"run", s.RunID,
				"reason", context.Cause(ctx),
			)
			return context.Cause(ctx)
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"run", s.RunID,
		)

		if err := step.Do(ctx, s); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"run", s.RunID,
				"error", err,
			)

			return err
		}

		s.PerformedSteps = append(s.PerformedSteps, step.Name())
	}

	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
