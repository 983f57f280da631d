// Package state holds the resumable state machine of one crawl run.
//
// A ProcessState tracks every task id of a run in exactly one of four sets:
//
//	unresolved  queued, not finished yet (the durable work queue)
//	resolved    finished successfully, output emitted
//	errored     failed with a hard error, kept for inspection and requeue
//	archived    retired without execution
//
// Ids are never deleted, only moved between sets, so the union of the sets
// only grows over the lifetime of a run.
//
// The state of a fresh run is seeded by Partition, which slices the crawl's
// date range into fixed-width search windows. The state is mutated by the
// crawl driver's control loop only and is not safe for concurrent use.
package state
