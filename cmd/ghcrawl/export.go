package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nao1215/ghcrawl/internal/checkpoint"
	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/database"
	"github.com/nao1215/ghcrawl/internal/model"
	"github.com/nao1215/ghcrawl/internal/report"
	"github.com/nao1215/ghcrawl/internal/task"
	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the output of a run into a SQLite database",
		Long: `Export loads the finalized output chunks of a run into a SQLite database.

Every node becomes one row of the items table, keyed by run and node id, so
exporting a run again after it was resumed only adds the new nodes. The run
summary and its errored tasks are stored next to the items.

Examples:
  # Export the latest run into the default database
  ghcrawl export

  # Export a run into a database in the current directory and show the
  # ten most starred repositories
  ghcrawl export --run 20240101T000000.000000000Z --db . --top 10

  # Print the stored node of one repository after exporting
  ghcrawl export --item R_kgDOAbCdEf

  # List the runs already exported, without exporting
  ghcrawl export --list`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Run to export (default: latest run)")
	cmd.Flags().String("db", config.XDGDataDir(),
		"Directory of the SQLite database")
	cmd.Flags().Int("top", 0,
		"Print the top N exported items by stars and followers")
	cmd.Flags().StringSlice("item", nil,
		"Print the stored node of the given node id (repeatable)")
	cmd.Flags().BoolP("list", "l", false,
		"List the runs stored in the database instead of exporting")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, _ []string) error {
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db")
	if err != nil {
		return err
	}
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}
	itemIDs, err := cmd.Flags().GetStringSlice("item")
	if err != nil {
		return err
	}
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}

	if list {
		db, err := database.Open(dbDir, database.Options{EnableWAL: true})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		return listExported(cmd.Context(), db, cmd.OutOrStdout(), getVerboseFlag(cmd))
	}

	logger := setupLogger(cmd)
	store := checkpoint.New(getCheckpointDir(cmd))

	ctx := cmd.Context()
	summary, err := summarizeRun(ctx, store, runID, logger)
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	written := 0
	for _, chunk := range summary.Chunks {
		records, err := store.ReadChunk(summary.RunID, chunk)
		if err != nil {
			return err
		}
		n, err := db.InsertRecords(ctx, summary.RunID, task.Kind(summary.Kind), records)
		if err != nil {
			return fmt.Errorf("failed to export chunk %s: %w", chunk, err)
		}
		logger.Debug("chunk exported", "chunk", chunk, "items", n)
		written += n
	}

	if err := db.SaveRun(ctx, summary); err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}

	stored, err := db.CountItems(ctx, summary.RunID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %d item(s) of run %s to %s (%d stored)\n", written, summary.RunID, db.Path(), stored)

	if top > 0 {
		items, err := db.TopItems(ctx, summary.RunID, top)
		if err != nil {
			return err
		}
		for i, item := range items {
			fmt.Fprintf(out, "%3d. %-40s stars:%-7d followers:%-7d %s\n",
				i+1, item.Name, item.Stars, item.Followers, item.URL)
		}
	}

	for _, id := range itemIDs {
		item, err := db.GetItem(ctx, summary.RunID, id)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: %s in run %s", database.ErrItemNotFound, id, summary.RunID)
		}
		fmt.Fprintf(out, "%s\n", item.Data)
	}
	return nil
}

// listExported writes the overview of every run stored in db.
func listExported(ctx context.Context, db *database.ResultDB, out io.Writer, verbose bool) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}

	summaries := make([]*model.RunSummary, 0, len(runs))
	for _, runID := range runs {
		summary, err := db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}

	_, err = report.NewSimpleWriter(out, report.WithVerbose(verbose)).WriteList(summaries)
	return err
}
