package main

import (
	"fmt"
	"time"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/pipeline"
	"github.com/nao1215/ghcrawl/internal/state"
	"github.com/nao1215/ghcrawl/internal/task"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Start a new crawl run",
		Long: `Crawl starts a new run seeded from the crawl settings of the config file.

The creation date range from excludeCreatedBefore to today - minAgeInDays is
split into windows of searchWindowDays days. Each window is paged through
until the search connection is exhausted. Every node is written once to the
output chunks of the run, next to its checkpointed state.

The run stops early, and can be resumed, when:
- Less than --stop-percent of the rate limit remains (the run pauses)
- GitHub answers with a secondary rate limit
- The process receives SIGINT or SIGTERM

Examples:
  # Crawl repositories with the settings of .ghcrawl.yaml
  ghcrawl crawl

  # Crawl users with a custom configuration file
  ghcrawl crawl -c users.yaml --kind users

  # Crawl through a SOCKS5 proxy with client-side pacing
  ghcrawl crawl --proxy 127.0.0.1:1080 --rps 2

  # Print the run summary as JSON
  ghcrawl crawl -f json`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().StringP("kind", "k", config.DefaultKind,
		"What to crawl: repositories or users")
	cmd.Flags().Bool("clamp", false,
		"Clamp the last search window to the end of the crawled range")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := buildConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	clamp, err := cmd.Flags().GetBool("clamp")
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)
	logger.Info("starting run",
		"kind", cfg.Kind,
		"endpoint", cfg.Endpoint,
		"concurrency", cfg.Concurrency,
		"dir", cfg.CheckpointDir,
	)

	store := checkpoint.New(cfg.CheckpointDir)
	create := pipeline.NewCreateRunStep(store, task.Kind(cfg.Kind), *cfg.Crawl, time.Now,
		state.WithClampFinalWindow(clamp))

	return executeRun(cmd, cfg, store, logger, create)
}
