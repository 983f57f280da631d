// Package model defines the data structures shared by the crawl tasks, the
// SQLite export and the status reports.
//
// This package contains the following main types:
//   - Repository: a repository node returned by the search API
//   - User: a user node returned by the search API
//   - RunSummary: a flattened view of one crawl run for reporting
//
// The node types mirror the GraphQL selection sets field for field, so an
// output record can be decoded back into them without a mapping layer.
// Models live in their own package so that task, database and report can
// all use them without import cycles.
package model
