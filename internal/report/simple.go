package report

import (
	"io"
	"strings"

	"github.com/nao1215/ghcrawl/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// Counts are printed with thousands separators.
type SimpleWriter struct {
	baseWriter

	// verbose prints full error messages and the chunk list.
	verbose bool

	printer *message.Printer
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithLanguage selects the number formatting of the writer.
// The default is English.
func WithLanguage(tag language.Tag) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.printer = message.NewPrinter(tag)
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary of one run.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)
	w.writeHistory(&sb, summary)
	w.writeErrors(&sb, summary)
	w.writeChunks(&sb, summary)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// WriteList outputs one line per run.
func (w *SimpleWriter) WriteList(summaries []*model.RunSummary) (int, error) {
	var sb strings.Builder

	if len(summaries) == 0 {
		sb.WriteString("No runs found\n")
		return w.output.Write([]byte(sb.String()))
	}

	sb.WriteString(w.printer.Sprintf("%-28s %-13s %-22s %10s %10s %8s\n",
		"RUN", "KIND", "STATUS", "RESOLVED", "ITEMS", "PROGRESS"))
	for _, s := range summaries {
		sb.WriteString(w.printer.Sprintf("%-28s %-13s %-22s %10d %10d %7.1f%%\n",
			s.RunID, s.Kind, s.StatusText, s.Resolved, s.Items, s.Progress()*100))
	}

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the run identification block.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          GHCRAWL RUN\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(w.printer.Sprintf("Run:          %s\n", s.RunID))
	sb.WriteString(w.printer.Sprintf("Kind:         %s\n", s.Kind))
	sb.WriteString(w.printer.Sprintf("Started:      %s\n", s.StartDate.UTC().Format(dateTimeLayout)))
	sb.WriteString(w.printer.Sprintf("Completed:    %s\n", completionText(s)))
	sb.WriteString(w.printer.Sprintf("Status:       %s\n", strings.ToUpper(s.StatusText)))
	if s.CompletionError != "" {
		sb.WriteString(w.printer.Sprintf("Error:        %s\n", s.CompletionError))
	}
	if s.Status.Resumable() {
		sb.WriteString(w.printer.Sprintf("Resume with:  ghcrawl resume --run %s\n", s.RunID))
	}
	sb.WriteString("\n")
}

// writeCounts writes the task set sizes.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, s *model.RunSummary) {
	writeSection(sb, "TASKS")

	sb.WriteString(w.printer.Sprintf("  UNRESOLVED: %d\n", s.Unresolved))
	sb.WriteString(w.printer.Sprintf("  RESOLVED:   %d\n", s.Resolved))
	sb.WriteString(w.printer.Sprintf("  ERRORED:    %d\n", s.Errored))
	sb.WriteString(w.printer.Sprintf("  ARCHIVED:   %d\n", s.Archived))
	sb.WriteString("\n")
	sb.WriteString(w.printer.Sprintf("  PROGRESS:   %.1f%% of %d tasks\n", s.Progress()*100, s.Total()))
	sb.WriteString(w.printer.Sprintf("  RECORDS:    %d in %d chunks\n", s.Items, len(s.Chunks)))
	sb.WriteString("\n")
}

// writeHistory writes the finished sub-runs of a resumed run.
func (w *SimpleWriter) writeHistory(sb *strings.Builder, s *model.RunSummary) {
	if len(s.History) == 0 {
		return
	}

	writeSection(sb, "HISTORY")
	for i, h := range s.History {
		outcome := "ok"
		if h.CompletionError != "" {
			outcome = h.CompletionError
		}
		sb.WriteString(w.printer.Sprintf("  #%d %s .. %s  resolved %d  (%s)\n",
			i+1,
			h.StartDate.UTC().Format(dateTimeLayout),
			h.CompletionDate.UTC().Format(dateTimeLayout),
			h.Resolved,
			outcome,
		))
	}
	sb.WriteString("\n")
}

// writeErrors writes the errored tasks.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, s *model.RunSummary) {
	if len(s.Errors) == 0 {
		return
	}

	writeSection(sb, "ERRORED TASKS")
	for _, e := range s.Errors {
		msg := e.Message
		if !w.verbose {
			msg = truncateString(msg, 120)
		}
		sb.WriteString(w.printer.Sprintf("  [!] %s  %s\n", e.TaskID, e.Window))
		if e.Cursor != "" {
			sb.WriteString(w.printer.Sprintf("      Cursor: %s\n", e.Cursor))
		}
		sb.WriteString(w.printer.Sprintf("      %s\n", msg))
	}
	sb.WriteString("\n")
	sb.WriteString(w.printer.Sprintf("  Requeue with: ghcrawl requeue --run %s\n\n", s.RunID))
}

// writeChunks writes the output chunk names in verbose mode.
func (w *SimpleWriter) writeChunks(sb *strings.Builder, s *model.RunSummary) {
	if !w.verbose || len(s.Chunks) == 0 {
		return
	}

	writeSection(sb, "OUTPUT CHUNKS")
	for _, c := range s.Chunks {
		sb.WriteString("  " + c + "\n")
	}
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
