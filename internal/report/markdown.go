package report

import (
	"io"
	"strconv"

	"github.com/nao1215/ghcrawl/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary of one run in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeTasks(md, summary)
	w.writeHistory(md, summary)
	w.writeErrors(md, summary)
	w.writeChunks(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteList outputs a table with one row per run.
func (w *MarkdownWriter) WriteList(summaries []*model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("ghcrawl runs")
	md.PlainText("")

	if len(summaries) == 0 {
		md.PlainText("No runs found.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(summaries))
		for i, s := range summaries {
			rows[i] = []string{
				"`" + s.RunID + "`",
				s.Kind,
				s.StatusText,
				strconv.Itoa(s.Resolved),
				strconv.Itoa(s.Items),
				strconv.FormatFloat(s.Progress()*100, 'f', 1, 64) + "%",
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Run", "Kind", "Status", "Resolved", "Records", "Progress"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeHeader writes the run information table and the status alert.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.RunSummary) {
	md.H1("ghcrawl run " + s.RunID)
	md.PlainText("")

	rows := [][]string{
		{"Kind", s.Kind},
		{"Started", s.StartDate.UTC().Format(dateTimeLayout)},
		{"Completed", completionText(s)},
		{"Status", s.StatusText},
	}
	if s.CompletionError != "" {
		rows = append(rows, []string{"Error", "`" + s.CompletionError + "`"})
	}
	if s.ConfigDigest != "" {
		rows = append(rows, []string{"Config digest", "`" + truncateString(s.ConfigDigest, 19) + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, s)
}

// writeAlert writes an alert matching the run status.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.RunSummary) {
	switch s.Status {
	case model.RunAborted:
		md.Cautionf("The run was aborted with %d unresolved task(s). Resume it once the cause is gone.", s.Unresolved)
	case model.RunCompleteWithErrors:
		md.Warningf("%d task(s) failed. Requeue them to retry.", s.Errored)
	case model.RunPaused:
		md.Importantf("The run paused on the rate-limit margin with %d unresolved task(s).", s.Unresolved)
	case model.RunIncomplete:
		md.Note("The run has not finished. It is either still running or was interrupted.")
	default:
		md.Tip("Every task was resolved.")
	}
	md.PlainText("")
}

// writeTasks writes the task set sizes and their distribution chart.
func (w *MarkdownWriter) writeTasks(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Tasks")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Set", "Count"},
		Rows: [][]string{
			{"Unresolved", strconv.Itoa(s.Unresolved)},
			{"Resolved", strconv.Itoa(s.Resolved)},
			{"Errored", strconv.Itoa(s.Errored)},
			{"Archived", strconv.Itoa(s.Archived)},
			{"**Total**", "**" + strconv.Itoa(s.Total()) + "**"},
		},
	})
	md.PlainText("")
	md.PlainTextf("%d output record(s) in %d chunk(s).", s.Items, len(s.Chunks))
	md.PlainText("")

	if s.Total() > 0 {
		w.writePieChart(md, s)
	}
}

// writePieChart writes a mermaid pie chart of the task sets.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Task Sets"),
		piechart.WithShowData(true),
	)

	sets := []struct {
		label string
		count int
	}{
		{"Resolved", s.Resolved},
		{"Unresolved", s.Unresolved},
		{"Errored", s.Errored},
		{"Archived", s.Archived},
	}
	for _, set := range sets {
		if set.count > 0 {
			chart.LabelAndIntValue(set.label, uint64(set.count))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeHistory writes the finished sub-runs.
func (w *MarkdownWriter) writeHistory(md *markdown.Markdown, s *model.RunSummary) {
	if len(s.History) == 0 {
		return
	}

	md.H2("History")
	md.PlainText("")

	rows := make([][]string, len(s.History))
	for i, h := range s.History {
		outcome := "-"
		if h.CompletionError != "" {
			outcome = h.CompletionError
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			h.StartDate.UTC().Format(dateTimeLayout),
			h.CompletionDate.UTC().Format(dateTimeLayout),
			strconv.Itoa(h.Resolved),
			outcome,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Started", "Completed", "Resolved", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeErrors writes the errored tasks with their diagnostics.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, s *model.RunSummary) {
	if len(s.Errors) == 0 {
		return
	}

	md.H2("Errored Tasks")
	md.PlainText("")

	rows := make([][]string, len(s.Errors))
	for i, e := range s.Errors {
		cursor := e.Cursor
		if cursor == "" {
			cursor = "-"
		}
		rows[i] = []string{"`" + e.TaskID + "`", e.Window, cursor, truncateString(e.Message, 60)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Task", "Window", "Cursor", "Message"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, e := range s.Errors {
		if len(e.Message) > 60 {
			md.Details(e.TaskID, e.Message)
		}
	}
	md.PlainText("")
}

// writeChunks lists the output chunks.
func (w *MarkdownWriter) writeChunks(md *markdown.Markdown, s *model.RunSummary) {
	if len(s.Chunks) == 0 {
		return
	}

	md.H2("Output Chunks")
	md.PlainText("")
	md.BulletList(s.Chunks...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [ghcrawl](https://github.com/nao1215/ghcrawl)*")
}
