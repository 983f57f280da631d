package main

import (
	"fmt"
	"os"

	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for ghcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghcrawl",
		Short: "Resumable crawler for the GitHub GraphQL search API",
		Long: `ghcrawl crawls repositories or users from the GitHub GraphQL search API.

The searched creation date range is split into windows. Every window is paged
through by a chain of tasks, and the run is checkpointed to disk after every
resolved task. A run that stops on the rate-limit margin, on a secondary rate
limit, or on an interrupt can be resumed with "ghcrawl resume".`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("dir", "d", config.DefaultCheckpointDir(),
		"Base directory of the run checkpoints")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewRequeueCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
