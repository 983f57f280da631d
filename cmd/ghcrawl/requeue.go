package main

import (
	"fmt"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/pipeline"
	"github.com/nao1215/ghcrawl/internal/task"
	"github.com/spf13/cobra"
)

// NewRequeueCmd creates the requeue command.
func NewRequeueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue [task-id...]",
		Short: "Queue errored tasks of a run again",
		Long: `Requeue moves errored tasks back into the unresolved set of a run.

Each requeued task is archived and replaced by a copy with a new id that
keeps the window and cursor of the original. Without task ids every errored
task is requeued. The tasks run on the next "ghcrawl resume".

Examples:
  # Requeue every errored task of the latest run
  ghcrawl requeue

  # Requeue two tasks of a specific run
  ghcrawl requeue --run 20240101T000000.000000000Z 4f1c2c1e 9a0b7d33`,
		Args: cobra.ArbitraryArgs,
		RunE: runRequeueCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Run to requeue tasks of (default: latest run)")

	return cmd
}

// runRequeueCmd executes the requeue command.
func runRequeueCmd(cmd *cobra.Command, args []string) error {
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)
	store := checkpoint.New(getCheckpointDir(cmd))

	s := pipeline.NewSession(nil)
	p := pipeline.New([]pipeline.Step{
		pipeline.NewLoadRunStep(store, runID),
		pipeline.NewRequeueStep(store, args, task.NewID),
	}, pipeline.WithLogger(logger))

	if err := p.Execute(cmd.Context(), s); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(s.Requeued) == 0 {
		fmt.Fprintf(out, "No errored tasks in run %s\n", s.RunID)
		return nil
	}

	for _, spec := range s.Requeued {
		fmt.Fprintf(out, "  %s <- %s  %s\n", spec.ID, *spec.ParentID, spec.Window)
	}
	fmt.Fprintf(out, "Requeued %d task(s) of run %s\n", len(s.Requeued), s.RunID)
	fmt.Fprintf(out, "Resume with: ghcrawl resume --run %s\n", s.RunID)
	return nil
}
