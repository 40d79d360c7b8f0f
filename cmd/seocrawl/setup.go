package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/seocrawl/internal/cache"
	"github.com/nao1215/seocrawl/internal/config"
	"github.com/nao1215/seocrawl/internal/crawler"
	"github.com/nao1215/seocrawl/internal/fetch"
	"github.com/nao1215/seocrawl/internal/log"
	"github.com/nao1215/seocrawl/internal/metrics"
	"github.com/nao1215/seocrawl/internal/ratelimit"
)

// getVerboseFlag reads --verbose from the command or the root.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getStringFlag reads a string flag from the command or the root.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, _ = cmd.Root().PersistentFlags().GetString(name) //nolint:errcheck // missing flag yields ""
	}
	return v
}

// loadConfig reads the configuration file named by --config, or the first
// one found in the default locations. Without a file the defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit := getStringFlag(cmd, "config")

	path := config.FindConfigFile(explicit)
	if path == "" {
		if explicit != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicit)
		}
		cfg := config.NewConfig()
		cfg.Verbose = getVerboseFlag(cmd)
		cfg.LogFormat = getStringFlag(cmd, "log-format")
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogFormat = getStringFlag(cmd, "log-format")
	return cfg, nil
}

// newLogger builds the process logger from the verbosity and format settings.
func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	format, err := log.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return log.New(w, cfg.Verbose, format)
}

// newCacheManager opens the configured cache. It returns nil when caching
// is disabled.
func newCacheManager(cfg *config.Config, logger *slog.Logger) (*cache.Manager, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	kind, err := cache.ParseKind(cfg.Cache.Backend)
	if err != nil {
		return nil, err
	}

	return cache.NewManager(cache.Config{
		Kind:      kind,
		TTL:       cfg.Cache.TTL.Std(),
		Directory: cfg.CacheDirectory(),
		MaxSizeMB: cfg.Cache.MaxSizeMB,
		MaxItems:  cfg.Cache.MaxItems,
		Redis: cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		},
	}, cache.WithLogger(logger))
}

// resolveUserAgent maps preset names such as "chrome" to their string.
func resolveUserAgent(ua string) string {
	if preset, ok := fetch.LookupUserAgent(ua); ok {
		return preset
	}
	return ua
}

// newClient builds the shared HTTP client.
func newClient(cfg *config.Config, cm *cache.Manager, m *metrics.Metrics, logger *slog.Logger) (*fetch.Client, error) {
	limiter, err := ratelimit.NewHostLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
	if err != nil {
		return nil, err
	}

	opts := []fetch.Option{
		fetch.WithTimeout(cfg.HTTP.Timeout.Std()),
		fetch.WithRetryAttempts(cfg.HTTP.RetryAttempts),
		fetch.WithRetryDelay(cfg.HTTP.RetryDelay.Std()),
		fetch.WithUserAgent(resolveUserAgent(cfg.HTTP.UserAgent)),
		fetch.WithFollowRedirects(cfg.HTTP.FollowRedirects),
		fetch.WithMaxRedirects(cfg.HTTP.MaxRedirects),
		fetch.WithMaxBodySize(cfg.HTTP.MaxBodySize),
		fetch.WithRequestDeadline(cfg.HTTP.RequestDeadline.Std()),
		fetch.WithHostLimiter(limiter),
		fetch.WithHostHeaders(siteHostHeaders(cfg)),
		fetch.WithLogger(logger),
		fetch.WithMetrics(m),
	}
	if cm != nil {
		opts = append(opts, fetch.WithCache(cm))
	}
	if cfg.HTTP.Proxy != "" {
		opts = append(opts, fetch.WithProxy(cfg.HTTP.Proxy))
	}
	return fetch.New(opts...)
}

// siteHostHeaders returns the cookie and header overrides for every host
// that is crawled or configured, with and without "www.".
func siteHostHeaders(cfg *config.Config) map[string]fetch.HostHeaders {
	hosts := make([]string, 0, len(cfg.Targets)+len(cfg.Sites))
	for _, t := range cfg.Targets {
		if h := hostOf(t); h != "" {
			hosts = append(hosts, h)
		}
	}
	for name := range cfg.Sites {
		hosts = append(hosts, strings.ToLower(name))
	}

	out := make(map[string]fetch.HostHeaders)
	for _, h := range hosts {
		site := cfg.SiteConfig(h)
		if site.Cookie == "" && len(site.Headers) == 0 {
			continue
		}
		hh := fetch.HostHeaders{Cookie: site.Cookie, Headers: site.Headers}
		bare := strings.TrimPrefix(h, "www.")
		out[bare] = hh
		out["www."+bare] = hh
	}
	return out
}

// spiderOptions returns the crawler options for one site.
func spiderOptions(cfg *config.Config, site config.SiteConfig, m *metrics.Metrics, logger *slog.Logger) []crawler.SpiderOption {
	depth := cfg.Crawler.MaxDepth
	if site.MaxDepth > 0 {
		depth = site.MaxDepth
	}

	return []crawler.SpiderOption{
		crawler.WithMaxDepth(depth),
		crawler.WithMaxPages(cfg.Crawler.MaxPages),
		crawler.WithDelay(cfg.Crawler.CrawlDelay.Std()),
		crawler.WithRespectRobots(cfg.Crawler.RespectRobotsTxt),
		crawler.WithExcludePatterns(cfg.Crawler.ExcludePatterns),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithWorkers(cfg.Crawler.Workers),
		crawler.WithSitemapSeeding(cfg.Crawler.SeedSitemap),
		crawler.WithUserAgent(resolveUserAgent(cfg.HTTP.UserAgent)),
		crawler.WithLogger(logger),
		crawler.WithMetrics(m),
	}
}

// hostOf returns the lowercased host name of rawURL, or "".
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// openOutput returns the report destination: path when set, otherwise
// stdout. The returned close function is never nil.
func openOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // user-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// errNoDatabase is returned by commands that read sessions when none were
// ever saved.
var errNoDatabase = errors.New("no crawl history yet (run \"seocrawl crawl --save\" first)")
