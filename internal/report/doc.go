// Package report renders run summaries.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for sharing, with a mermaid chart of
//     the task sets
//
// Writers implement the Writer interface and render either a single run in
// detail or a one-line-per-run overview of many runs.
package report
