// Package config provides configuration structures and utilities for ghcrawl.
// It defines the runtime options of a crawl (API endpoint, credentials,
// concurrency, rate-limit margin) and the crawl configuration that seeds the
// date-range partition of a fresh run.
package config
