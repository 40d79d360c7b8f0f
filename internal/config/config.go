package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is used for XDG directory paths.
	AppName = "seocrawl"

	// DefaultMaxPages bounds the results of one crawl.
	DefaultMaxPages = 100

	// DefaultMaxDepth is the link distance limit from the start URL.
	DefaultMaxDepth = 3

	// DefaultCrawlDelay is the politeness wait after each fetch.
	DefaultCrawlDelay = time.Second

	// DefaultWorkers is the number of concurrent fetches per crawl.
	DefaultWorkers = 1

	// DefaultBatchSize is the number of sites crawled at once.
	DefaultBatchSize = 4

	// DefaultTimeout bounds one HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryAttempts is the number of retries after the first attempt.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the base of the exponential backoff.
	DefaultRetryDelay = 2 * time.Second

	// DefaultUserAgent identifies the crawler in requests and robots.txt matching.
	DefaultUserAgent = "seocrawl/1.0 (+https://github.com/nao1215/seocrawl)"

	// DefaultMaxRedirects is the redirect chain limit.
	DefaultMaxRedirects = 5

	// DefaultMaxBodySize caps the bytes read from one response.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultRequestsPerSecond is the average per-host request rate.
	DefaultRequestsPerSecond = 2.0

	// DefaultBurstSize is the per-host token bucket capacity.
	DefaultBurstSize = 5

	// DefaultCacheBackend selects FileCache.
	DefaultCacheBackend = "file"

	// DefaultCacheTTL is the default cache entry lifetime.
	DefaultCacheTTL = time.Hour

	// DefaultCacheMaxSizeMB is the FileCache byte budget.
	DefaultCacheMaxSizeMB = 500

	// DefaultCacheMaxItems is the MemoryCache capacity.
	DefaultCacheMaxItems = 1000

	// DefaultRedisAddr is the RedisCache server address.
	DefaultRedisAddr = "localhost:6379"
)

// Config holds every seocrawl setting. The sections mirror .seocrawl.yaml;
// fields tagged yaml:"-" are runtime options set from CLI flags only.
type Config struct {
	Crawler   CrawlerConfig   `yaml:"crawler"`
	HTTP      HTTPConfig      `yaml:"http"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`

	// Sites maps a host to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every host unless the host overrides it.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Targets are the start URLs.
	Targets []string `yaml:"-"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"-"`

	// LogFormat is "text" or "json".
	LogFormat string `yaml:"-"`

	// BatchSize is the number of sites crawled at once.
	BatchSize int `yaml:"-"`

	// JSONReport and MarkdownReport select the report format. Text is the default.
	JSONReport     bool `yaml:"-"`
	MarkdownReport bool `yaml:"-"`

	// ListPages lists every page in the text report.
	ListPages bool `yaml:"-"`

	// ReportFile receives the report instead of stdout when set.
	ReportFile string `yaml:"-"`

	// SaveToDB stores the crawl in the session database under DBDir.
	SaveToDB bool   `yaml:"-"`
	DBDir    string `yaml:"-"`

	// Progress shows a progress bar on stderr.
	Progress bool `yaml:"-"`

	// MetricsAddr serves Prometheus metrics when set.
	MetricsAddr string `yaml:"-"`

	// ConfigFilePath is the file the settings were read from, if any.
	ConfigFilePath string `yaml:"-"`
}

// CrawlerConfig is the crawler section.
type CrawlerConfig struct {
	MaxPages         int      `yaml:"max_pages"`
	MaxDepth         int      `yaml:"max_depth"`
	RespectRobotsTxt bool     `yaml:"respect_robots_txt"`
	CrawlDelay       Duration `yaml:"crawl_delay"`
	ExcludePatterns  []string `yaml:"exclude_patterns,omitempty"`
	Workers          int      `yaml:"workers"`

	// SeedSitemap enqueues the site's sitemap URLs before crawling.
	SeedSitemap bool `yaml:"seed_sitemap"`
}

// HTTPConfig is the http section.
type HTTPConfig struct {
	Timeout         Duration `yaml:"timeout"`
	RetryAttempts   int      `yaml:"retry_attempts"`
	RetryDelay      Duration `yaml:"retry_delay"`
	UserAgent       string   `yaml:"user_agent"`
	FollowRedirects bool     `yaml:"follow_redirects"`
	MaxRedirects    int      `yaml:"max_redirects"`

	// RequestDeadline caps one logical request across retries. Zero means none.
	RequestDeadline Duration `yaml:"request_deadline"`

	// MaxBodySize caps the bytes read from one response.
	MaxBodySize int64 `yaml:"max_body_size"`

	// Proxy is an http, https or socks5 proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
}

// RateLimitConfig is the rate_limit section.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// CacheConfig is the cache section.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is file, memory or redis.
	Backend   string   `yaml:"backend"`
	TTL       Duration `yaml:"ttl"`
	Directory string   `yaml:"directory,omitempty"`
	MaxSizeMB int      `yaml:"max_size_mb"`
	MaxItems  int      `yaml:"max_items"`
	Redis     Redis    `yaml:"redis"`
}

// Redis locates the remote cache.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// NewConfig returns a Config populated with the defaults.
func NewConfig() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			MaxPages:         DefaultMaxPages,
			MaxDepth:         DefaultMaxDepth,
			RespectRobotsTxt: true,
			CrawlDelay:       Duration(DefaultCrawlDelay),
			Workers:          DefaultWorkers,
		},
		HTTP: HTTPConfig{
			Timeout:         Duration(DefaultTimeout),
			RetryAttempts:   DefaultRetryAttempts,
			RetryDelay:      Duration(DefaultRetryDelay),
			UserAgent:       DefaultUserAgent,
			FollowRedirects: true,
			MaxRedirects:    DefaultMaxRedirects,
			MaxBodySize:     DefaultMaxBodySize,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			BurstSize:         DefaultBurstSize,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   DefaultCacheBackend,
			TTL:       Duration(DefaultCacheTTL),
			MaxSizeMB: DefaultCacheMaxSizeMB,
			MaxItems:  DefaultCacheMaxItems,
			Redis:     Redis{Addr: DefaultRedisAddr},
		},
		Sites:     make(map[string]SiteConfig),
		LogFormat: "text",
		BatchSize: DefaultBatchSize,
	}
}

// XDGDataDir returns the data directory holding the session database.
// On Linux: ~/.local/share/seocrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory.
// On Linux: ~/.config/seocrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the FileCache directory used when cache.directory is empty.
// On Linux: ~/.cache/seocrawl
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// CacheDirectory returns the configured cache directory or the XDG default.
func (c *Config) CacheDirectory() string {
	if c.Cache.Directory != "" {
		return c.Cache.Directory
	}
	return XDGCacheDir()
}

// Validate checks the settings and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.ValidateSettings()
}

// ValidateSettings checks everything except the targets. Commands that take
// no start URL use it.
func (c *Config) ValidateSettings() error {
	switch {
	case c.Crawler.MaxPages < 1:
		return ErrInvalidMaxPages
	case c.Crawler.MaxDepth < 0:
		return ErrInvalidMaxDepth
	case c.Crawler.Workers < 1:
		return ErrInvalidWorkers
	case c.Crawler.CrawlDelay < 0:
		return ErrInvalidCrawlDelay
	case c.HTTP.Timeout <= 0:
		return ErrInvalidTimeout
	case c.HTTP.RetryAttempts < 0, c.HTTP.RetryDelay < 0:
		return ErrInvalidRetry
	case c.HTTP.MaxRedirects < 0:
		return ErrInvalidRedirects
	case c.RateLimit.RequestsPerSecond <= 0:
		return ErrInvalidRate
	case c.RateLimit.BurstSize < 1:
		return ErrInvalidBurst
	case c.Cache.TTL < 0:
		return ErrInvalidCacheTTL
	case c.JSONReport && c.MarkdownReport:
		return ErrConflictingReportFormats
	}
	return nil
}
