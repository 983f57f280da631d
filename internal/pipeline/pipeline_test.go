package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, s *Session) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, s *Session) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, s)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New(nil)

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if len(p.StepNames()) != 0 {
			t.Errorf("expected 0 steps, got %v", p.StepNames())
		}
		if p.logger == nil {
			t.Error("expected a default logger")
		}
	})

	t.Run("keeps the given step order", func(t *testing.T) {
		t.Parallel()

		p := New([]Step{&mockStep{name: "load"}, &mockStep{name: "reopen"}})
		p.AddStep(&mockStep{name: "crawl"})

		want := []string{"load", "reopen", "crawl"}
		if got := p.StepNames(); !slices.Equal(got, want) {
			t.Errorf("StepNames() = %v, want %v", got, want)
		}
	})
}

// TestPipelineExecute tests step execution and error handling.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs every step in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Session) error {
				order = append(order, name)
				return nil
			}}
		}

		s := NewSession(nil)
		err := New([]Step{record("a"), record("b"), record("c")}).Execute(t.Context(), s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !slices.Equal(order, []string{"a", "b", "c"}) {
			t.Errorf("unexpected order %v", order)
		}
		if !slices.Equal(s.PerformedSteps, []string{"a", "b", "c"}) {
			t.Errorf("unexpected performed steps %v", s.PerformedSteps)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		errStep := errors.New("step failed")
		first := &mockStep{name: "first", doFunc: func(context.Context, *Session) error { return errStep }}
		second := &mockStep{name: "second"}

		err := New([]Step{first, second}).Execute(t.Context(), NewSession(nil))
		if !errors.Is(err, errStep) {
			t.Errorf("expected %v, got %v", errStep, err)
		}
		if second.callCount != 0 {
			t.Error("expected the second step to be skipped")
		}
	})

	t.Run("returns the cancellation cause", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("interrupted")
		ctx, cancel := context.WithCancelCause(t.Context())
		cancel(cause)

		step := &mockStep{name: "crawl"}
		err := New([]Step{step}).Execute(ctx, NewSession(nil))
		if !errors.Is(err, cause) {
			t.Errorf("expected %v, got %v", cause, err)
		}
		if step.callCount != 0 {
			t.Error("expected no step to run after cancellation")
		}
	})
}
