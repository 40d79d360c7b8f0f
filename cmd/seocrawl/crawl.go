package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/seocrawl/internal/config"
	"github.com/nao1215/seocrawl/internal/crawler"
	"github.com/nao1215/seocrawl/internal/database"
	"github.com/nao1215/seocrawl/internal/metrics"
	"github.com/nao1215/seocrawl/internal/pipeline"
	"github.com/nao1215/seocrawl/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>...",
		Short: "Crawl one or more websites and report SEO facts",
		Long: `Crawl visits every page reachable from each start URL on the same host,
breadth-first, up to --max-depth links away and at most --max-pages pages.

Every page is checked against robots.txt, fetched through the per-host rate
limiter and the response cache, and parsed for its title, meta description,
headings, canonical link and outgoing links.

Examples:
  # Crawl a site with the defaults
  seocrawl crawl https://example.com/

  # Crawl two sites at once and write a Markdown report
  seocrawl crawl --markdown -o report.md https://example.com/ https://example.org/

  # Faster crawl of a site you own, keeping the result for later comparison
  seocrawl crawl --workers 4 --delay 0 --rps 10 --save https://example.com/

  # Use an in-memory cache and show a progress bar
  seocrawl crawl --cache-backend memory --progress https://example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	f := cmd.Flags()

	// Crawler
	f.IntP("max-pages", "p", config.DefaultMaxPages, "Maximum number of pages per site")
	f.IntP("max-depth", "d", config.DefaultMaxDepth, "Maximum link distance from the start URL")
	f.Bool("no-robots", false, "Ignore robots.txt")
	f.Duration("delay", config.DefaultCrawlDelay, "Wait after each fetch")
	f.StringSlice("exclude", nil, "Skip URLs containing this substring (repeatable)")
	f.IntP("workers", "w", config.DefaultWorkers, "Concurrent fetches per site")
	f.Bool("seed-sitemap", false, "Enqueue the sitemap URLs before crawling")

	// HTTP
	f.DurationP("timeout", "t", config.DefaultTimeout, "Timeout of one HTTP attempt")
	f.Int("retries", config.DefaultRetryAttempts, "Retries after a transient failure")
	f.Duration("retry-delay", config.DefaultRetryDelay, "Base delay of the exponential backoff")
	f.StringP("user-agent", "A", config.DefaultUserAgent, "User-Agent string or preset (chrome, firefox, safari)")
	f.Bool("no-redirects", false, "Do not follow redirects")
	f.Int("max-redirects", config.DefaultMaxRedirects, "Maximum redirects per request")
	f.Duration("request-deadline", 0, "Cap on one request including retries (0 = none)")
	f.Int64("max-body-size", config.DefaultMaxBodySize, "Maximum response body size in bytes")
	f.String("proxy", "", "Proxy URL (http, https or socks5)")

	// Rate limit
	f.Float64("rps", config.DefaultRequestsPerSecond, "Requests per second per host")
	f.Int("burst", config.DefaultBurstSize, "Token bucket size per host")

	// Cache
	f.Bool("no-cache", false, "Disable the response cache")
	f.String("cache-backend", config.DefaultCacheBackend, "Cache backend: file, memory or redis")
	f.Duration("cache-ttl", config.DefaultCacheTTL, "Cache entry lifetime")
	f.String("cache-dir", "", "FileCache directory (default: XDG cache directory)")
	f.String("redis-addr", config.DefaultRedisAddr, "Redis address for the redis backend")
	f.Int("redis-db", 0, "Redis database number")

	// Batch and output
	f.IntP("batch", "b", config.DefaultBatchSize, "Number of sites crawled at once")
	f.BoolP("json", "j", false, "Output a JSON report (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false, "Output a Markdown report (mutually exclusive with --json)")
	f.StringP("output", "o", "", "Write the report to this file")
	f.Bool("pages", false, "List every page in the text report")
	f.BoolP("save", "s", false, "Store the crawl for \"seocrawl history\"")
	f.String("data-dir", "", "Session database directory (default: XDG data directory)")
	f.BoolP("progress", "P", false, "Show a progress bar on stderr")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, logger)
}

// buildCrawlConfig loads the configuration file and applies the flags the
// user set explicitly on top of it.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := applyCrawlFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}

	cfg.Targets = args
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	return cfg, nil
}

// applyCrawlFlags copies every changed flag into cfg.
func applyCrawlFlags(f *pflag.FlagSet, cfg *config.Config) error {
	var errs []error
	intFlag := func(name string, dst *int) {
		if f.Changed(name) {
			v, err := f.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolFlag := func(name string, dst *bool, invert bool) {
		if f.Changed(name) {
			v, err := f.GetBool(name)
			errs = append(errs, err)
			*dst = v != invert
		}
	}
	durationFlag := func(name string, dst *config.Duration) {
		if f.Changed(name) {
			v, err := f.GetDuration(name)
			errs = append(errs, err)
			*dst = config.Duration(v)
		}
	}
	stringFlag := func(name string, dst *string) {
		if f.Changed(name) {
			v, err := f.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	intFlag("max-pages", &cfg.Crawler.MaxPages)
	intFlag("max-depth", &cfg.Crawler.MaxDepth)
	boolFlag("no-robots", &cfg.Crawler.RespectRobotsTxt, true)
	durationFlag("delay", &cfg.Crawler.CrawlDelay)
	if f.Changed("exclude") {
		v, err := f.GetStringSlice("exclude")
		errs = append(errs, err)
		cfg.Crawler.ExcludePatterns = append(cfg.Crawler.ExcludePatterns, v...)
	}
	intFlag("workers", &cfg.Crawler.Workers)
	boolFlag("seed-sitemap", &cfg.Crawler.SeedSitemap, false)

	durationFlag("timeout", &cfg.HTTP.Timeout)
	intFlag("retries", &cfg.HTTP.RetryAttempts)
	durationFlag("retry-delay", &cfg.HTTP.RetryDelay)
	stringFlag("user-agent", &cfg.HTTP.UserAgent)
	boolFlag("no-redirects", &cfg.HTTP.FollowRedirects, true)
	intFlag("max-redirects", &cfg.HTTP.MaxRedirects)
	durationFlag("request-deadline", &cfg.HTTP.RequestDeadline)
	if f.Changed("max-body-size") {
		v, err := f.GetInt64("max-body-size")
		errs = append(errs, err)
		cfg.HTTP.MaxBodySize = v
	}
	stringFlag("proxy", &cfg.HTTP.Proxy)

	if f.Changed("rps") {
		v, err := f.GetFloat64("rps")
		errs = append(errs, err)
		cfg.RateLimit.RequestsPerSecond = v
	}
	intFlag("burst", &cfg.RateLimit.BurstSize)

	boolFlag("no-cache", &cfg.Cache.Enabled, true)
	stringFlag("cache-backend", &cfg.Cache.Backend)
	durationFlag("cache-ttl", &cfg.Cache.TTL)
	stringFlag("cache-dir", &cfg.Cache.Directory)
	stringFlag("redis-addr", &cfg.Cache.Redis.Addr)
	intFlag("redis-db", &cfg.Cache.Redis.DB)

	intFlag("batch", &cfg.BatchSize)
	boolFlag("json", &cfg.JSONReport, false)
	boolFlag("markdown", &cfg.MarkdownReport, false)
	stringFlag("output", &cfg.ReportFile)
	boolFlag("pages", &cfg.ListPages, false)
	boolFlag("save", &cfg.SaveToDB, false)
	stringFlag("data-dir", &cfg.DBDir)
	boolFlag("progress", &cfg.Progress, false)
	stringFlag("metrics-addr", &cfg.MetricsAddr)

	return errors.Join(errs...)
}

// newReportWriter picks the writer for the configured format.
func newReportWriter(w io.Writer, cfg *config.Config) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewTextWriter(w, report.WithPages(cfg.ListPages), report.WithVerbose(cfg.Verbose))
	}
}

// runCrawl crawls every target and writes one report per site.
func runCrawl(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"targets", cfg.Targets,
		"batch", cfg.BatchSize,
		"cache", cfg.Cache.Enabled,
		"save", cfg.SaveToDB,
	)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	cm, err := newCacheManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	if cm != nil {
		defer cm.Close()
	}

	client, err := newClient(cfg, cm, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}
	defer client.Close()

	var store *database.SessionDB
	if cfg.SaveToDB {
		store, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		logger.Info("database opened", "path", store.Path())
	}

	out, closeOut, err := openOutput(stdout, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // report errors surface from the writer
	writer := newReportWriter(out, cfg)
	reportStep := pipeline.NewReportStep(writer)

	bars := newProgress(stderr, cfg.Progress)

	factory := func(startURL string) (pipeline.Crawler, error) {
		site := cfg.SiteConfig(hostOf(startURL))
		opts := spiderOptions(cfg, site, m, logger)
		bar := bars.add(startURL, cfg.Crawler.MaxPages)
		opts = append(opts, crawler.WithOnResult(bar.increment))
		return &trackedCrawler{Crawler: crawler.NewSpider(client, opts...), bar: bar}, nil
	}

	bp := pipeline.NewBatchProcessor(func() *pipeline.Pipeline {
		p := pipeline.New(pipeline.WithLogger(logger))
		p.AddStep(pipeline.NewCrawlStep(factory, logger))
		if store != nil {
			p.AddSteps(pipeline.NewCompareStep(store), pipeline.NewSaveStep(store))
		}
		p.AddStep(reportStep)
		return p
	}, pipeline.WithConcurrency(cfg.BatchSize), pipeline.WithBatchLogger(logger))

	start := time.Now()
	jobs, batchErr := bp.ProcessBatch(ctx, cfg.Targets)
	bars.wait()

	var failed int
	for _, job := range jobs {
		if job.Err == nil {
			continue
		}
		// Interrupted crawls still get a report of what was fetched.
		if len(job.Results) > 0 && !slices.Contains(job.PerformedSteps, pipeline.StepReport) {
			if _, err := writer.Write(job.Report()); err != nil {
				logger.Error("failed to write partial report", "url", job.StartURL, "error", err)
			}
		}
		if !errors.Is(job.Err, context.Canceled) {
			failed++
			fmt.Fprintf(stderr, "crawl of %s failed: %v\n", job.StartURL, job.Err)
		}
	}

	logger.Info("crawl finished",
		"sites", len(jobs),
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"requests", client.Stats().TotalRequests,
		"cached", client.Stats().CachedRequests,
	)

	if batchErr != nil {
		return batchErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d crawls failed", failed, len(jobs))
	}
	return nil
}
