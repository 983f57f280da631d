package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultEndpoint is the public GitHub GraphQL API endpoint.
	DefaultEndpoint = "https://api.github.com/graphql"

	// DefaultTimeout bounds a single GraphQL round trip. Search queries with
	// 100 nodes per page routinely take several seconds on the GitHub side.
	DefaultTimeout = 60 * time.Second

	// DefaultConcurrency is the number of outstanding API calls.
	// GitHub discourages heavy concurrency on the search API and answers it
	// with secondary rate limits, so the default stays low.
	DefaultConcurrency = 4

	// DefaultRateLimitStopPercent is the share of the hourly call budget that
	// must stay untouched. When the remaining budget drops below this share
	// the crawl stops issuing new calls and can be resumed later.
	DefaultRateLimitStopPercent = 10.0

	// DefaultRequestsPerSecond disables client-side pacing.
	DefaultRequestsPerSecond = 0.0

	// DefaultKind is the crawl kind used when the config file does not set one.
	DefaultKind = KindRepositories

	// AppName is the application name used for XDG directory paths.
	AppName = "ghcrawl"

	// DefaultUserAgent identifies ghcrawl in HTTP requests.
	DefaultUserAgent = "ghcrawl/1.0 (+https://github.com/nao1215/ghcrawl)"

	// TokenEnv is the environment variable read when --token is not given.
	TokenEnv = "GITHUB_TOKEN"
)

// Crawl kinds. Each kind maps to one concrete task variant.
const (
	// KindRepositories crawls repositories through the search connection.
	KindRepositories = "repositories"

	// KindUsers crawls user accounts through the search connection.
	KindUsers = "users"
)

// Config holds the runtime options of ghcrawl.
// It is populated from CLI flags and the optional config file and passed
// through the application explicitly rather than kept in global state.
type Config struct {
	// Endpoint is the GraphQL endpoint URL.
	Endpoint string

	// Token is the API token sent as a bearer credential.
	Token string

	// Timeout bounds each GraphQL HTTP request.
	Timeout time.Duration

	// Concurrency is the maximum number of in-flight task executions.
	Concurrency int

	// RateLimitStopPercent is the percentage of the total call budget below
	// which no new calls are issued (the primary circuit breaker).
	RateLimitStopPercent float64

	// RequestsPerSecond paces outgoing requests on the client side.
	// Zero disables pacing; the concurrency cap still applies.
	RequestsPerSecond float64

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// CheckpointDir is the base directory holding one directory per run.
	// Defaults to the XDG data directory (~/.local/share/ghcrawl/runs on Linux).
	CheckpointDir string

	// ConfigFilePath is the path to the crawl configuration file.
	ConfigFilePath string

	// Kind selects the task variant for seed tasks of a fresh run.
	Kind string

	// Verbose enables debug logging.
	Verbose bool

	// Crawl is the partitioner configuration. It is required for a fresh run
	// and optional for a resumed run, which reuses the starting config stored
	// in the checkpoint.
	Crawl *CrawlConfig
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Endpoint:             DefaultEndpoint,
		Timeout:              DefaultTimeout,
		Concurrency:          DefaultConcurrency,
		RateLimitStopPercent: DefaultRateLimitStopPercent,
		RequestsPerSecond:    DefaultRequestsPerSecond,
		UserAgent:            DefaultUserAgent,
		CheckpointDir:        DefaultCheckpointDir(),
		Kind:                 DefaultKind,
	}
}

// XDGDataDir returns the XDG data directory for ghcrawl.
// On Linux: ~/.local/share/ghcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for ghcrawl.
// On Linux: ~/.config/ghcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultCheckpointDir returns the default base directory for run checkpoints.
func DefaultCheckpointDir() string {
	return filepath.Join(XDGDataDir(), "runs")
}

// Validate checks if the configuration is valid and returns the first
// problem found. The crawl configuration is validated as well when present.
func (c *Config) Validate() error {
	if !isValidEndpoint(c.Endpoint) {
		return ErrInvalidEndpoint
	}

	if c.Token == "" {
		return ErrMissingToken
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RateLimitStopPercent < 0 || c.RateLimitStopPercent >= 100 {
		return ErrInvalidStopPercent
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRequestsPerSecond
	}

	if !IsKnownKind(c.Kind) {
		return ErrUnknownKind
	}

	if c.Crawl != nil {
		return c.Crawl.Validate()
	}

	return nil
}

// IsKnownKind reports whether kind names a supported crawl kind.
func IsKnownKind(kind string) bool {
	return kind == KindRepositories || kind == KindUsers
}

// isValidEndpoint checks that the endpoint is an absolute http(s) URL.
func isValidEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
