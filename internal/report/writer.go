package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/ghcrawl/internal/model"
)

// Output formats accepted by NewWriter.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the detailed summary of one run.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.RunSummary) (int, error)

	// WriteList outputs an overview of several runs.
	WriteList(summaries []*model.RunSummary) (int, error)
}

// NewWriter creates the Writer for format. Verbose text output includes
// full error messages and the chunk list. opts apply to text output only.
func NewWriter(format string, output io.Writer, verbose bool, opts ...SimpleWriterOption) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output, append([]SimpleWriterOption{WithVerbose(verbose)}, opts...)...), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteList outputs the overview to all configured Writers.
func (m *MultiWriter) WriteList(summaries []*model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteList(summaries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// completionText returns the completion date of s or a dash.
func completionText(s *model.RunSummary) string {
	if s.CompletionDate == nil {
		return "-"
	}
	return s.CompletionDate.UTC().Format(dateTimeLayout)
}

const dateTimeLayout = "2006-01-02 15:04:05 MST"

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
