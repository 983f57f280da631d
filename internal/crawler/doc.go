// Package crawler drives a crawl run: it drains the unresolved tasks of a
// ProcessState under a concurrency cap and applies the abort, requeue and
// pagination rules of the tasks.
//
// # Architecture
//
// A single control loop owns the ProcessState. It hands specs to a bounded
// pool of workers (golang.org/x/sync/errgroup with SetLimit); each worker
// runs one task and reports the outcome back over a channel. Only the loop
// mutates the state, writes output and saves checkpoints, so none of them
// need locking.
//
// # Outcomes
//
//   - success: the output is written, the task is resolved and the next page,
//     if any, is queued with the task as its parent. If the result crossed
//     the rate-limit stop margin the run stops dequeuing; tasks in flight
//     still finish.
//   - secondary rate limit: the shared cancellation signal is tripped, the
//     task stays unresolved and the run ends with ErrSecondaryRateLimit.
//   - partial response: handled like a success with the partial payload.
//   - hard error: the task moves to the errored set and the run continues.
//
// Failures observed after the signal was tripped leave their task
// unresolved, so a resumed run picks them up again.
//
// Pagination chains are strictly sequential: a page is only queued once its
// predecessor's result is known. Windows run concurrently in no particular
// order.
package crawler
