package main

import (
	"fmt"
	"time"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/pipeline"
	"github.com/nao1215/ghcrawl/internal/task"
	"github.com/spf13/cobra"
)

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a stopped crawl run",
		Long: `Resume continues a run from its last checkpoint.

Output written by a process that crashed is recovered first: records of
tasks that were resolved are kept, the rest are dropped and their tasks run
again. Nodes already written are not written twice.

If a config file is found, its crawl settings must match the settings the
run was started with. Use --force to resume with the stored settings anyway.

Examples:
  # Resume the latest run
  ghcrawl resume

  # Resume a specific run
  ghcrawl resume --run 20240101T000000.000000000Z

  # Retry the errored tasks as part of the resumed run
  ghcrawl resume --requeue`,
		Args: cobra.NoArgs,
		RunE: runResumeCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().StringP("run", "r", "",
		"Run to resume (default: latest run)")
	cmd.Flags().Bool("force", false,
		"Resume even if the crawl settings differ from the starting ones")
	cmd.Flags().Bool("requeue", false,
		"Queue all errored tasks again before resuming")

	return cmd
}

// runResumeCmd executes the resume command.
func runResumeCmd(cmd *cobra.Command, _ []string) error {
	cfg, file, err := buildConfig(cmd, false)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	requeue, err := cmd.Flags().GetBool("requeue")
	if err != nil {
		return err
	}

	// The kind is only compared when the file names one.
	var kind task.Kind
	if file != nil && file.Kind != "" {
		kind = task.Kind(file.Kind)
	}

	logger := setupLogger(cmd)
	store := checkpoint.New(cfg.CheckpointDir)

	steps := []pipeline.Step{
		pipeline.NewLoadRunStep(store, runID),
		pipeline.NewVerifyConfigStep(kind, cfg.Crawl, force, logger),
		pipeline.NewRecoverOutputStep(store, logger),
		pipeline.NewRebuildSeenStep(store),
	}
	if requeue {
		steps = append(steps, pipeline.NewRequeueStep(store, nil, task.NewID))
	}
	steps = append(steps, pipeline.NewReopenStep(store, time.Now))

	return executeRun(cmd, cfg, store, logger, steps...)
}
