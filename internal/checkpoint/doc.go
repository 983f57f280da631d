// Package checkpoint persists crawl runs on disk.
//
// Every run gets its own directory under the base directory, named by the
// UTC timestamp of its creation so that the lexicographically last directory
// is the latest run:
//
//	<base>/
//	  20240501T101500.000000000Z/
//	    state.json                                   the ProcessState
//	    current.jsonl.partial                        output of the running sub-run
//	    repositories-20240501T121100.500000000Z.jsonl  output chunk of a finished sub-run
//
// Output is appended as JSON lines to current.jsonl.partial while a sub-run
// is active. When the sub-run ends, the file is renamed to a chunk named by
// the end timestamp. Chunks are never overwritten. If the process dies, the
// next resume recovers the partial file, keeping only the records of tasks
// the checkpointed state lists as resolved.
//
// state.json is written with a temp file and a rename, so a crash never
// leaves a torn state file behind.
package checkpoint
