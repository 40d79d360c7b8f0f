package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is.
var (
	// ErrNoTarget is returned when no start URL is given.
	ErrNoTarget = errors.New("no target specified: provide at least one start URL")

	// ErrInvalidMaxPages is returned when max_pages is smaller than 1.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")

	// ErrInvalidMaxDepth is returned when max_depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidWorkers is returned when workers is smaller than 1.
	ErrInvalidWorkers = errors.New("invalid workers: must be at least 1")

	// ErrInvalidCrawlDelay is returned when crawl_delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidTimeout is returned when the HTTP timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetry is returned when retry_attempts or retry_delay is negative.
	ErrInvalidRetry = errors.New("invalid retry settings: must be non-negative")

	// ErrInvalidRedirects is returned when max_redirects is negative.
	ErrInvalidRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidRate is returned when requests_per_second is not positive.
	ErrInvalidRate = errors.New("invalid requests per second: must be positive")

	// ErrInvalidBurst is returned when burst_size is smaller than 1.
	ErrInvalidBurst = errors.New("invalid burst size: must be at least 1")

	// ErrInvalidCacheTTL is returned when the cache ttl is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidDuration is returned for a duration that is neither a Go
	// duration string nor a number of seconds.
	ErrInvalidDuration = errors.New("invalid duration")
)
