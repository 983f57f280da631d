package config

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in config files and search
// qualifiers.
const DateLayout = "2006-01-02"

// CrawlConfig is the configuration consumed by the date-range partitioner.
// All fields are required; no value is silently defaulted. The search
// thresholds are opaque to the partitioner and copied verbatim into every
// seed task.
type CrawlConfig struct {
	// MinStars is the minimum stargazer count of a repository.
	MinStars int `json:"minStars" yaml:"minStars"`

	// MinForks is the minimum fork count of a repository.
	MinForks int `json:"minForks" yaml:"minForks"`

	// MinSizeInKb is the minimum repository size in kilobytes.
	MinSizeInKb int `json:"minSizeInKb" yaml:"minSizeInKb"`

	// MaxInactivityDays is the longest tolerated period without a push.
	MaxInactivityDays int `json:"maxInactivityDays" yaml:"maxInactivityDays"`

	// ExcludeCreatedBefore is the exclusion floor: nothing created before
	// this date is crawled. It is the first day of the first window.
	ExcludeCreatedBefore time.Time `json:"excludeCreatedBefore" yaml:"-"`

	// MinAgeInDays excludes entities younger than this many days. The upper
	// bound of the crawl is now - MinAgeInDays.
	MinAgeInDays int `json:"minAgeInDays" yaml:"minAgeInDays"`

	// SearchWindowDays is the width of one search window in days.
	SearchWindowDays int `json:"searchWindowDays" yaml:"searchWindowDays"`

	// PageSize is the number of nodes requested per page.
	PageSize int `json:"pageSize" yaml:"pageSize"`
}

// Validate checks the crawl configuration for values the partitioner or
// the API cannot work with.
func (c *CrawlConfig) Validate() error {
	if c.MinStars < 0 || c.MinForks < 0 || c.MinSizeInKb < 0 || c.MaxInactivityDays < 0 {
		return ErrInvalidThreshold
	}

	if c.ExcludeCreatedBefore.IsZero() {
		return fmt.Errorf("%w: excludeCreatedBefore", ErrMissingCrawlSetting)
	}

	if c.MinAgeInDays < 0 {
		return ErrInvalidMinAge
	}

	if c.SearchWindowDays <= 0 {
		return ErrInvalidSearchWindow
	}

	if c.PageSize < 1 || c.PageSize > 100 {
		return ErrInvalidPageSize
	}

	return nil
}

// UpperBound returns the last day covered by the crawl: the start of the
// UTC day of now minus MinAgeInDays.
func (c *CrawlConfig) UpperBound(now time.Time) time.Time {
	return TruncateDay(now).AddDate(0, 0, -c.MinAgeInDays)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// TruncateDay returns midnight UTC of the day containing t.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
