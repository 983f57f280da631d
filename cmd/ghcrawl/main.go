// Package main provides the entry point for the ghcrawl CLI.
//
// ghcrawl crawls the GitHub GraphQL search API for repositories or users
// created in a date range. A crawl is split into date windows, each window
// is paged through by a chain of tasks, and the state of the run is
// checkpointed so that a crawl stopped by the rate limit, a failure or an
// interrupt can be resumed where it left off.
//
// Usage:
//
//	ghcrawl crawl --config .ghcrawl.yaml
//	ghcrawl resume
//	ghcrawl status --all
//
// See --help for all available options.
package main

// main is the entry point for ghcrawl.
func main() {
	Execute()
}
