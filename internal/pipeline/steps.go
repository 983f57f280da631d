package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/crawler"
	"github.com/nao1215/ghcrawl/internal/state"
	"github.com/nao1215/ghcrawl/internal/task"
)

// CreateRunStep creates a run directory and saves the seeded state of a
// fresh run.
type CreateRunStep struct {
	store *checkpoint.Store
	kind  task.Kind
	crawl config.CrawlConfig
	now   func() time.Time
	opts  []state.PartitionOption
}

// NewCreateRunStep creates a step starting a run of kind over crawl.
func NewCreateRunStep(store *checkpoint.Store, kind task.Kind, crawl config.CrawlConfig, now func() time.Time, opts ...state.PartitionOption) *CreateRunStep {
	return &CreateRunStep{store: store, kind: kind, crawl: crawl, now: now, opts: opts}
}

// Name returns the step name.
func (c *CreateRunStep) Name() string {
	return "create"
}

// Do executes the create step.
func (c *CreateRunStep) Do(_ context.Context, s *Session) error {
	now := c.now().UTC()

	st, err := state.New(c.kind, c.crawl, now, c.opts...)
	if err != nil {
		return err
	}

	runID, err := c.store.NewRun(now)
	if err != nil {
		return err
	}
	if err := c.store.Save(runID, st); err != nil {
		return err
	}

	s.RunID = runID
	s.State = st
	return nil
}

// LoadRunStep loads the saved state of an existing run.
type LoadRunStep struct {
	store *checkpoint.Store
	runID string
}

// NewLoadRunStep creates a step loading runID. An empty runID selects the
// latest run.
func NewLoadRunStep(store *checkpoint.Store, runID string) *LoadRunStep {
	return &LoadRunStep{store: store, runID: runID}
}

// Name returns the step name.
func (l *LoadRunStep) Name() string {
	return "load"
}

// Do executes the load step.
func (l *LoadRunStep) Do(_ context.Context, s *Session) error {
	runID := l.runID
	if runID == "" {
		latest, err := l.store.LatestRun()
		if err != nil {
			return err
		}
		if latest == "" {
			return ErrNoRuns
		}
		runID = latest
	}

	st, err := l.store.Load(runID)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("%w: %s", ErrNoState, runID)
	}

	s.RunID = runID
	s.State = st
	return nil
}

// VerifyConfigStep compares the crawl configuration given on resume with the
// starting configuration of the run.
type VerifyConfigStep struct {
	kind   task.Kind
	crawl  *config.CrawlConfig
	force  bool
	logger *slog.Logger
}

// NewVerifyConfigStep creates a verification step. A nil crawl skips the
// check and an empty kind stands for the kind the run was started with.
// With force, a mismatch is logged instead of failing.
func NewVerifyConfigStep(kind task.Kind, crawl *config.CrawlConfig, force bool, logger *slog.Logger) *VerifyConfigStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyConfigStep{kind: kind, crawl: crawl, force: force, logger: logger}
}

// Name returns the step name.
func (v *VerifyConfigStep) Name() string {
	return "verify-config"
}

// Do executes the verification step.
func (v *VerifyConfigStep) Do(_ context.Context, s *Session) error {
	if s.State == nil {
		return ErrNoSession
	}
	if v.crawl == nil {
		return nil
	}

	kind := v.kind
	if kind == "" {
		kind = s.State.StartingConfig.Kind
	}
	digest, err := state.ConfigDigest(kind, *v.crawl)
	if err != nil {
		return err
	}
	if digest == s.State.ConfigDigest {
		return nil
	}

	if !v.force {
		return fmt.Errorf("%w: run %s", ErrConfigMismatch, s.RunID)
	}
	v.logger.Warn("crawl configuration differs from the starting configuration, continuing with the stored one",
		"run", s.RunID,
		"stored", s.State.ConfigDigest,
		"given", digest,
	)
	return nil
}

// RecoverOutputStep finalizes output left behind by a crashed execution.
type RecoverOutputStep struct {
	store  *checkpoint.Store
	logger *slog.Logger
}

// NewRecoverOutputStep creates a recovery step.
func NewRecoverOutputStep(store *checkpoint.Store, logger *slog.Logger) *RecoverOutputStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoverOutputStep{store: store, logger: logger}
}

// Name returns the step name.
func (r *RecoverOutputStep) Name() string {
	return "recover-output"
}

// Do executes the recovery step.
func (r *RecoverOutputStep) Do(_ context.Context, s *Session) error {
	if s.State == nil {
		return ErrNoSession
	}

	name, dropped, err := r.store.RecoverPartialChunk(s.RunID, s.State)
	if err != nil {
		return err
	}
	s.Recovered = name
	s.Dropped = dropped

	if name != "" || dropped > 0 {
		r.logger.Warn("recovered output of an interrupted execution",
			"run", s.RunID,
			"chunk", name,
			"dropped", dropped,
		)
	}
	return nil
}

// RebuildSeenStep refills the seen-set of the task context with every node
// already written to the run's output.
type RebuildSeenStep struct {
	store *checkpoint.Store
}

// NewRebuildSeenStep creates a seen-set rebuild step.
func NewRebuildSeenStep(store *checkpoint.Store) *RebuildSeenStep {
	return &RebuildSeenStep{store: store}
}

// Name returns the step name.
func (r *RebuildSeenStep) Name() string {
	return "rebuild-seen"
}

// Do executes the rebuild step.
func (r *RebuildSeenStep) Do(_ context.Context, s *Session) error {
	if s.State == nil || s.TaskContext == nil {
		return ErrNoSession
	}

	seen := task.NewSeenSet()
	err := r.store.Records(s.RunID, func(rec state.OutputRecord) error {
		if rec.Result == nil {
			return nil
		}
		for _, item := range rec.Result.Items {
			seen.Add(item.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.TaskContext.Seen = seen
	return nil
}

// RequeueStep moves errored tasks back into the unresolved set and saves
// the state.
type RequeueStep struct {
	store *checkpoint.Store
	ids   []string
	newID func() string
}

// NewRequeueStep creates a requeue step for ids. No ids requeues every
// errored task.
func NewRequeueStep(store *checkpoint.Store, ids []string, newID func() string) *RequeueStep {
	if newID == nil {
		newID = task.NewID
	}
	return &RequeueStep{store: store, ids: ids, newID: newID}
}

// Name returns the step name.
func (r *RequeueStep) Name() string {
	return "requeue"
}

// Do executes the requeue step.
func (r *RequeueStep) Do(_ context.Context, s *Session) error {
	if s.State == nil {
		return ErrNoSession
	}

	ids := r.ids
	if len(ids) == 0 {
		ids = sortedKeys(s.State.Errored)
	}

	for _, id := range ids {
		spec, err := s.State.Requeue(id, r.newID())
		if err != nil {
			return err
		}
		s.Requeued = append(s.Requeued, spec)
	}

	return r.store.Save(s.RunID, s.State)
}

// ReopenStep starts a new execution of a loaded run.
type ReopenStep struct {
	store *checkpoint.Store
	now   func() time.Time
}

// NewReopenStep creates a reopen step.
func NewReopenStep(store *checkpoint.Store, now func() time.Time) *ReopenStep {
	return &ReopenStep{store: store, now: now}
}

// Name returns the step name.
func (r *ReopenStep) Name() string {
	return "reopen"
}

// Do executes the reopen step.
func (r *ReopenStep) Do(_ context.Context, s *Session) error {
	if s.State == nil {
		return ErrNoSession
	}
	if s.State.IsCompleted() && len(s.State.Unresolved) == 0 {
		return fmt.Errorf("%w: %s", ErrNothingToResume, s.RunID)
	}

	s.State.Reopen(r.now().UTC())
	return r.store.Save(s.RunID, s.State)
}

// CrawlStep drains the unresolved tasks of the run with the crawl driver
// and finalizes the output chunk of the execution.
type CrawlStep struct {
	store  *checkpoint.Store
	driver *crawler.Driver
	now    func() time.Time
}

// NewCrawlStep creates a crawl step. The driver must checkpoint into store.
func NewCrawlStep(store *checkpoint.Store, driver *crawler.Driver, now func() time.Time) *CrawlStep {
	return &CrawlStep{store: store, driver: driver, now: now}
}

// Name returns the step name.
func (c *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. The terminal error of the driver is returned
// after the chunk has been closed.
func (c *CrawlStep) Do(ctx context.Context, s *Session) error {
	if s.State == nil || s.TaskContext == nil {
		return ErrNoSession
	}

	w, err := c.store.OpenChunk(s.RunID, s.State.OutputFileName)
	if err != nil {
		return err
	}

	stats, runErr := c.driver.Run(ctx, &crawler.Run{
		ID:      s.RunID,
		State:   s.State,
		Context: s.TaskContext,
		Output:  w,
	})
	s.Stats = stats

	name, closeErr := w.Close(c.now().UTC())
	s.Chunk = name

	return errors.Join(runErr, closeErr)
}
