// Package database provides SQLite-based storage for exported crawl output.
//
// The output of a run lives in JSONL chunks next to its checkpoint. Export
// loads them into a ResultDB, which stores:
//   - One row per emitted search node, with the fields that are most often
//     filtered on (name, stars, forks, followers, language) in columns and
//     the full node as JSON
//   - The errored tasks of the run with their diagnostics
//   - A summary row per run
//
// SQLite (via modernc.org/sqlite) keeps the export a single CGO-free file
// that can be queried with any SQLite client. Imports are upserts, so
// exporting the same run again after a resume only adds the new nodes.
package database
