package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/model"
	"github.com/nao1215/ghcrawl/internal/pipeline"
	"github.com/nao1215/ghcrawl/internal/report"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of crawl runs",
		Long: `Status reports the progress of a run read from its checkpoint.

The report lists the size of each task set, the finished executions of the
run, the errored tasks with their window and cursor, and the output chunks.

Examples:
  # Show the latest run
  ghcrawl status

  # List all runs
  ghcrawl status --all

  # Write a Markdown report of a run
  ghcrawl status --run 20240101T000000.000000000Z -f markdown > run.md

  # Show the latest run and keep a JSON copy of the report
  ghcrawl status --save status.json`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Run to show (default: latest run)")
	cmd.Flags().BoolP("all", "a", false,
		"List all runs")
	cmd.Flags().StringP("format", "f", report.FormatText,
		"Output format: text, json or markdown")
	cmd.Flags().String("lang", "en",
		"Language used to format numbers in text output (BCP 47 tag)")
	cmd.Flags().StringP("save", "s", "",
		"Also write the report to this file (format from extension: .json, .md, otherwise text)")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	savePath, err := cmd.Flags().GetString("save")
	if err != nil {
		return err
	}

	textOpts, err := textOptions(cmd)
	if err != nil {
		return err
	}

	writer, err := report.NewWriter(format, cmd.OutOrStdout(), getVerboseFlag(cmd), textOpts...)
	if err != nil {
		return err
	}
	if savePath != "" {
		f, err := os.Create(filepath.Clean(savePath))
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()

		fileWriter, err := report.NewWriter(formatForPath(savePath), f, getVerboseFlag(cmd), textOpts...)
		if err != nil {
			return err
		}
		writer = report.NewMultiWriter(writer, fileWriter)
	}
	store := checkpoint.New(getCheckpointDir(cmd))

	if all {
		summaries, err := summarizeAll(store)
		if err != nil {
			return err
		}
		_, err = writer.WriteList(summaries)
		return err
	}

	summary, err := summarizeRun(cmd.Context(), store, runID, setupLogger(cmd))
	if err != nil {
		return err
	}
	_, err = writer.Write(summary)
	return err
}

// summarizeRun loads runID, or the latest run when runID is empty, and
// summarizes it.
func summarizeRun(ctx context.Context, store *checkpoint.Store, runID string, logger *slog.Logger) (*model.RunSummary, error) {
	s := pipeline.NewSession(nil)
	p := pipeline.New([]pipeline.Step{pipeline.NewLoadRunStep(store, runID)}, pipeline.WithLogger(logger))
	if err := p.Execute(ctx, s); err != nil {
		return nil, err
	}
	return pipeline.Summarize(store, s.RunID, s.State)
}

// summarizeAll summarizes every run with a saved state, oldest first.
func summarizeAll(store *checkpoint.Store) ([]*model.RunSummary, error) {
	runs, err := store.ListRuns()
	if err != nil {
		return nil, err
	}

	summaries := make([]*model.RunSummary, 0, len(runs))
	for _, runID := range runs {
		st, err := store.Load(runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
		}
		// A run directory without state belongs to a run that failed
		// during creation.
		if st == nil {
			continue
		}
		summary, err := pipeline.Summarize(store, runID, st)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// textOptions returns the text writer options selected by the --lang flag.
func textOptions(cmd *cobra.Command) ([]report.SimpleWriterOption, error) {
	lang, err := cmd.Flags().GetString("lang")
	if err != nil {
		return nil, err
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("invalid language %q: %w", lang, err)
	}
	return []report.SimpleWriterOption{report.WithLanguage(tag)}, nil
}

// formatForPath returns the report format matching the extension of path.
func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return report.FormatJSON
	case ".md", ".markdown":
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}
