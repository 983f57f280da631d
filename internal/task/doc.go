// Package task defines the unit of work of a crawl.
//
// A Spec is the serializable description of one page of one search window:
// its identity, its lineage (parent and originating task) and its domain
// parameters. A Task is the executable form of a Spec, built by New. Every
// Task knows how to build its GraphQL query, run it, and classify the outcome:
//
//   - ShouldAbort inspects the rate-limit telemetry of a successful result
//     and trips the primary circuit breaker before the budget runs out.
//   - ShouldAbortAfterError detects the secondary rate limit (a retry
//     directive on the error), which stops the whole run.
//   - ShouldRecordAsError separates hard errors from partial responses,
//     whose payload is extracted with ExtractOutputFromError.
//   - NextTask derives the Spec of the following page.
//
// Tasks never swallow execution errors; the crawl driver classifies them.
// A Context is shared by all tasks of a run. Tasks treat it as read-only,
// except for the Seen set which is safe for concurrent use.
package task
