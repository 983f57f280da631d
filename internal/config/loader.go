package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".ghcrawl.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the ghcrawl configuration file.
//
// The crawl settings are pointers so that a missing key can be told apart
// from an explicit zero. The runtime settings are optional and only override
// the flag defaults when set.
type File struct {
	Kind                 string  `yaml:"kind,omitempty"`
	Endpoint             string  `yaml:"endpoint,omitempty"`
	Concurrency          int     `yaml:"concurrency,omitempty"`
	RateLimitStopPercent float64 `yaml:"rateLimitStopPercent,omitempty"`
	RequestsPerSecond    float64 `yaml:"requestsPerSecond,omitempty"`

	MinStars             *int    `yaml:"minStars"`
	MinForks             *int    `yaml:"minForks"`
	MinSizeInKb          *int    `yaml:"minSizeInKb"`
	MaxInactivityDays    *int    `yaml:"maxInactivityDays"`
	ExcludeCreatedBefore *string `yaml:"excludeCreatedBefore"`
	MinAgeInDays         *int    `yaml:"minAgeInDays"`
	SearchWindowDays     *int    `yaml:"searchWindowDays"`
	PageSize             *int    `yaml:"pageSize"`
}

// LoadConfigFile loads a configuration file from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cf, nil
}

// CrawlConfig converts the crawl settings of the file into a validated
// CrawlConfig. Every setting is required; the first missing one is reported
// with ErrMissingCrawlSetting.
func (cf *File) CrawlConfig() (*CrawlConfig, error) {
	cc := &CrawlConfig{}
	ints := []struct {
		key string
		val *int
		dst *int
	}{
		{key: "minStars", val: cf.MinStars, dst: &cc.MinStars},
		{key: "minForks", val: cf.MinForks, dst: &cc.MinForks},
		{key: "minSizeInKb", val: cf.MinSizeInKb, dst: &cc.MinSizeInKb},
		{key: "maxInactivityDays", val: cf.MaxInactivityDays, dst: &cc.MaxInactivityDays},
		{key: "minAgeInDays", val: cf.MinAgeInDays, dst: &cc.MinAgeInDays},
		{key: "searchWindowDays", val: cf.SearchWindowDays, dst: &cc.SearchWindowDays},
		{key: "pageSize", val: cf.PageSize, dst: &cc.PageSize},
	}

	for _, field := range ints {
		if field.val == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingCrawlSetting, field.key)
		}
		*field.dst = *field.val
	}

	if cf.ExcludeCreatedBefore == nil {
		return nil, fmt.Errorf("%w: excludeCreatedBefore", ErrMissingCrawlSetting)
	}
	floor, err := ParseDate(*cf.ExcludeCreatedBefore)
	if err != nil {
		return nil, err
	}
	cc.ExcludeCreatedBefore = floor

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

// Apply overlays the runtime settings present in the file onto cfg.
// Zero values in the file leave cfg untouched.
func (cf *File) Apply(cfg *Config) {
	if cf.Kind != "" {
		cfg.Kind = cf.Kind
	}
	if cf.Endpoint != "" {
		cfg.Endpoint = cf.Endpoint
	}
	if cf.Concurrency != 0 {
		cfg.Concurrency = cf.Concurrency
	}
	if cf.RateLimitStopPercent != 0 {
		cfg.RateLimitStopPercent = cf.RateLimitStopPercent
	}
	if cf.RequestsPerSecond != 0 {
		cfg.RequestsPerSecond = cf.RequestsPerSecond
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .ghcrawl.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}
