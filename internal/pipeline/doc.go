// Package pipeline drives the lifecycle of a crawl run as a sequence of steps.
//
// A fresh run is created, seeded and crawled; a resumed run is loaded,
// checked against the configuration it was started with, has its crashed
// output recovered and its seen-set rebuilt, is reopened and then crawled.
// Each stage is a Step operating on the shared Session, so the crawl, resume
// and requeue commands compose the same building blocks.
//
// The pipeline stops at the first failing step by default. Cancellation is
// checked between steps; the crawl step itself persists the cancellation
// cause as the completion error of the run.
package pipeline
