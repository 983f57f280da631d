package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate(), CrawlConfig.Validate() and
// File.CrawlConfig(). Callers use errors.Is() to tell them apart; messages are
// written for the operator reading the CLI output.
var (
	// ErrInvalidEndpoint is returned when the GraphQL endpoint is empty or is
	// not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint: must be an absolute http or https URL")

	// ErrMissingToken is returned when no API token is configured.
	// The GitHub GraphQL API rejects anonymous requests.
	ErrMissingToken = errors.New("missing API token: use --token or set GITHUB_TOKEN")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency cap is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidStopPercent is returned when the rate-limit stop percent is
	// outside [0, 100).
	ErrInvalidStopPercent = errors.New("invalid rate limit stop percent: must be in [0, 100)")

	// ErrInvalidRequestsPerSecond is returned when the request pacing is negative.
	// Use 0 to disable client-side pacing.
	ErrInvalidRequestsPerSecond = errors.New("invalid requests per second: must be non-negative")

	// ErrUnknownKind is returned when the crawl kind is neither
	// "repositories" nor "users".
	ErrUnknownKind = errors.New("unknown crawl kind: must be repositories or users")

	// ErrNoCrawlConfig is returned when a fresh crawl is requested without a
	// crawl configuration file.
	ErrNoCrawlConfig = errors.New("no crawl configuration: provide a config file with --config")

	// ErrMissingCrawlSetting is returned when a required crawl setting is
	// absent from the configuration file. The wrapping error names the key.
	ErrMissingCrawlSetting = errors.New("missing required crawl setting")

	// ErrInvalidDate is returned when a date setting is not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date: expected YYYY-MM-DD")

	// ErrInvalidSearchWindow is returned when searchWindowDays is not positive.
	ErrInvalidSearchWindow = errors.New("invalid search window: searchWindowDays must be positive")

	// ErrInvalidPageSize is returned when pageSize is outside [1, 100],
	// the range accepted by the GitHub search connection.
	ErrInvalidPageSize = errors.New("invalid page size: pageSize must be between 1 and 100")

	// ErrInvalidMinAge is returned when minAgeInDays is negative.
	ErrInvalidMinAge = errors.New("invalid minimum age: minAgeInDays must be non-negative")

	// ErrInvalidThreshold is returned when a search threshold is negative.
	ErrInvalidThreshold = errors.New("invalid threshold: thresholds must be non-negative")
)
