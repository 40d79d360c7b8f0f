package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/seocrawl/internal/fetch"
	"github.com/nao1215/seocrawl/internal/htmlparse"
	"github.com/nao1215/seocrawl/internal/metrics"
	"github.com/nao1215/seocrawl/internal/model"
	"github.com/nao1215/seocrawl/internal/robots"
	"github.com/nao1215/seocrawl/internal/sitemap"
)

const (
	// DefaultMaxDepth is the default link distance limit.
	DefaultMaxDepth = 3

	// DefaultMaxPages is the default result limit.
	DefaultMaxPages = 100

	// DefaultDelay is the default politeness delay after each fetch.
	DefaultDelay = time.Second
)

// Fetcher retrieves pages. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts *fetch.RequestOptions) (*fetch.Response, error)
	Cached(ctx context.Context, rawURL string, params url.Values) (*fetch.Response, bool)
}

// RobotsChecker decides whether a URL may be fetched. *robots.Gate satisfies it.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, rawURL, userAgent string) bool
}

// crawlDelayer is implemented by checkers that know a site's Crawl-delay.
type crawlDelayer interface {
	CrawlDelay(ctx context.Context, rawURL, userAgent string) time.Duration
}

// sitemapLister is implemented by checkers that know a site's Sitemap directives.
type sitemapLister interface {
	Sitemaps(ctx context.Context, rawURL string) []string
}

// LinkExtractor parses a fetched HTML page. htmlparse.Extractor is the default.
type LinkExtractor interface {
	Extract(body []byte, contentType, baseURL string) (*model.PageInfo, error)
}

// Spider crawls one site breadth first.
type Spider struct {
	client    Fetcher
	robots    RobotsChecker
	extractor LinkExtractor
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onResult  func(*model.CrawlResult)

	// maxDepth limits how deep to crawl from the starting URL.
	// 0 means only the starting page, 1 means one level of links, etc.
	maxDepth int

	// maxPages limits the number of results.
	maxPages int

	// delay is the politeness wait after each fetch.
	delay time.Duration

	// respectRobots enables the robots.txt check.
	respectRobots bool

	// userAgent is the agent robots.txt rules are matched for.
	userAgent string

	// workers is the number of concurrent fetches.
	workers int

	// seedSitemap enqueues sitemap URLs at depth 1 before crawling.
	seedSitemap bool

	filter linkFilter

	// mu guards everything below.
	mu        sync.Mutex
	state     State
	startURL  string
	startHost string
	frontier  *frontier
	visited   *VisitedSet
	results   []*model.CrawlResult
	skipped   int
	errors    int
	links     int
	startedAt time.Time
	endedAt   time.Time
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of results.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the delay after each fetch.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithRespectRobots enables or disables robots.txt checks.
func WithRespectRobots(respect bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = respect
	}
}

// WithRobotsGate sets the robots.txt checker. Without it the Spider builds
// a robots.Gate on its own client.
func WithRobotsGate(r RobotsChecker) SpiderOption {
	return func(s *Spider) {
		s.robots = r
	}
}

// WithExcludePatterns skips URLs containing any of the given substrings.
func WithExcludePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.excludePatterns = patterns
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.followPatterns = patterns
	}
}

// WithSkipExtensions replaces DefaultSkipExtensions.
func WithSkipExtensions(exts []string) SpiderOption {
	return func(s *Spider) {
		s.filter.skipExtensions = exts
	}
}

// WithUserAgent sets the agent name used for robots.txt matching.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithLinkExtractor replaces the HTML parser.
func WithLinkExtractor(e LinkExtractor) SpiderOption {
	return func(s *Spider) {
		s.extractor = e
	}
}

// WithWorkers sets the number of concurrent fetches.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		s.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records page metrics in m.
func WithMetrics(m *metrics.Metrics) SpiderOption {
	return func(s *Spider) {
		s.metrics = m
	}
}

// WithOnResult registers fn to be called once per result, in result order,
// from the crawl's coordinating goroutine.
func WithOnResult(fn func(*model.CrawlResult)) SpiderOption {
	return func(s *Spider) {
		s.onResult = fn
	}
}

// WithSitemapSeeding enqueues the site's sitemap URLs at depth 1.
func WithSitemapSeeding(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.seedSitemap = enabled
	}
}

// NewSpider creates a Spider that fetches through client.
func NewSpider(client Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:        client,
		extractor:     htmlparse.Extractor{},
		logger:        slog.New(slog.DiscardHandler),
		maxDepth:      DefaultMaxDepth,
		maxPages:      DefaultMaxPages,
		delay:         DefaultDelay,
		respectRobots: true,
		userAgent:     fetch.DefaultUserAgent,
		workers:       1,
		filter:        linkFilter{skipExtensions: DefaultSkipExtensions},
		visited:       NewVisitedSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.respectRobots && s.robots == nil {
		s.robots = robots.NewGate(client, robots.WithLogger(s.logger))
	}
	s.frontier = newFrontier(s.maxDepth)
	return s
}

// outcome is what a worker reports for one frontier entry.
type outcome struct {
	entry    FrontierEntry
	result   *model.CrawlResult
	links    []string
	skipped  bool
	canceled bool
}

// Crawl crawls the site of startURL and returns the results in the order
// they completed. On cancellation the partial results are returned with
// ctx.Err().
func (s *Spider) Crawl(ctx context.Context, startURL string) ([]*model.CrawlResult, error) {
	start, host, err := s.begin(startURL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("crawl started", "url", start, "max_pages", s.maxPages, "max_depth", s.maxDepth, "workers", s.workers)

	s.frontier.push(FrontierEntry{URL: start, Depth: 0})
	if s.seedSitemap && s.maxDepth >= 1 {
		seeded := 0
		for _, link := range s.SitemapURLs(ctx, start) {
			if n, ok := s.admit(link, host); ok && s.frontier.push(FrontierEntry{URL: n, Depth: 1}) {
				seeded++
			}
		}
		s.logger.Debug("seeded frontier from sitemap", "urls", seeded)
	}

	runErr := s.run(ctx)

	s.mu.Lock()
	s.endedAt = time.Now()
	if runErr != nil {
		s.state = StateAborted
	} else {
		s.state = StateCompleted
	}
	results := append([]*model.CrawlResult(nil), s.results...)
	s.mu.Unlock()

	stats := s.Stats()
	s.logger.Info("crawl finished",
		"state", stats.State,
		"pages", stats.PagesCrawled,
		"skipped", stats.PagesSkipped,
		"errors", stats.Errors,
		"links", stats.TotalLinksFound,
		"duration", time.Duration(stats.DurationSeconds*float64(time.Second)).Round(time.Millisecond),
	)
	return results, runErr
}

// begin validates the options and start URL and resets the crawl state.
func (s *Spider) begin(startURL string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return "", "", ErrAlreadyRunning
	}

	fail := func(err error) (string, string, error) {
		s.state = StateAborted
		return "", "", err
	}

	switch {
	case s.maxPages < 1:
		return fail(fmt.Errorf("%w: max pages must be at least 1", ErrInvalidOption))
	case s.maxDepth < 0:
		return fail(fmt.Errorf("%w: max depth must not be negative", ErrInvalidOption))
	case s.workers < 1:
		return fail(fmt.Errorf("%w: workers must be at least 1", ErrInvalidOption))
	case s.delay < 0:
		return fail(fmt.Errorf("%w: delay must not be negative", ErrInvalidOption))
	}

	start, err := NormalizeURL(startURL)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrInvalidStartURL, err))
	}
	u, err := url.Parse(start)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fail(fmt.Errorf("%w: %q", ErrInvalidStartURL, startURL))
	}

	s.state = StateRunning
	s.startURL = start
	s.startHost = u.Host
	s.frontier = newFrontier(s.maxDepth)
	s.visited = NewVisitedSet()
	s.results = nil
	s.skipped = 0
	s.errors = 0
	s.links = 0
	s.startedAt = time.Now()
	s.endedAt = time.Time{}

	return start, u.Host, nil
}

// run is the coordinator loop. It owns dispatching and result handling so
// that the page limit holds with any number of workers.
func (s *Spider) run(ctx context.Context) error {
	jobs := make(chan FrontierEntry, s.workers)
	outcomes := make(chan outcome, s.workers)

	var wg sync.WaitGroup
	for range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				outcomes <- s.process(ctx, e)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	inFlight := 0
	for {
		for inFlight < s.workers && ctx.Err() == nil && s.reserved(inFlight) {
			e, ok := s.frontier.pop()
			if !ok {
				break
			}
			if !s.visited.Add(e.URL) {
				continue
			}
			jobs <- e
			inFlight++
		}
		s.metrics.FrontierSize(s.frontier.len())

		if inFlight == 0 {
			return ctx.Err()
		}

		o := <-outcomes
		inFlight--
		s.collect(o)
	}
}

// reserved reports whether another fetch fits under the page limit.
func (s *Spider) reserved(inFlight int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)+inFlight < s.maxPages
}

// collect records a worker outcome and enqueues its links.
func (s *Spider) collect(o outcome) {
	switch {
	case o.canceled:
		return
	case o.skipped:
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.metrics.Page("skipped")
		return
	}

	s.mu.Lock()
	s.results = append(s.results, o.result)
	s.links += o.result.LinksFound
	if o.result.HasErrors() {
		s.errors++
	}
	s.mu.Unlock()

	if o.result.HasErrors() {
		s.metrics.Page("error")
	} else {
		s.metrics.Page("crawled")
	}
	s.metrics.LinksFound(o.result.LinksFound)

	for _, link := range o.links {
		if s.visited.Contains(link) {
			continue
		}
		s.frontier.push(FrontierEntry{URL: link, Depth: o.entry.Depth + 1})
	}

	if s.onResult != nil {
		s.onResult(o.result)
	}
}

// process runs the robots check, the fetch and link extraction for one entry.
func (s *Spider) process(ctx context.Context, e FrontierEntry) outcome {
	out := outcome{entry: e}

	if s.respectRobots && s.robots != nil && !s.robots.IsAllowed(ctx, e.URL, s.userAgent) {
		if ctx.Err() != nil {
			out.canceled = true
			return out
		}
		s.logger.Info("skipping URL disallowed by robots.txt", "url", e.URL)
		out.skipped = true
		return out
	}

	result := model.NewCrawlResult(e.URL, e.Depth)
	began := time.Now()
	resp, err := s.client.Get(ctx, e.URL, &fetch.RequestOptions{CacheMode: fetch.CacheRefresh})
	result.ResponseTime = time.Since(began)

	if ctx.Err() != nil || errors.Is(err, fetch.ErrCanceled) {
		out.canceled = true
		return out
	}

	if resp != nil {
		result.StatusCode = resp.StatusCode
		result.Headers = resp.Header.Clone()
		if result.Headers == nil {
			result.Headers = http.Header{}
		}
		result.ContentSize = len(resp.Body)
		result.ContentType = resp.MediaType()
		result.FetchedAt = resp.FetchedAt
		if resp.FinalURL != "" && resp.FinalURL != e.URL {
			result.FinalURL = resp.FinalURL
		}
		result.ComputeHash(resp.Body)
		if resp.Truncated {
			result.AddError(fmt.Sprintf("body truncated at %d bytes", len(resp.Body)))
		}
	} else {
		result.FetchedAt = time.Now()
	}
	if err != nil {
		s.logger.Warn("fetch failed", "url", e.URL, "error", err)
		result.AddError(err.Error())
	}

	if resp != nil && result.IsHTML() && len(resp.Body) > 0 {
		out.links = s.extract(ctx, e, resp, result)
	}

	s.logger.Debug("crawled page", "url", e.URL, "status", result.StatusCode, "depth", e.Depth, "time", result.ResponseTime)

	out.result = result
	s.politeWait(ctx, e.URL)
	return out
}

// extract parses the page and returns the links that may be enqueued.
// The body comes from the cache when an entry exists, falling back to the
// body of the primary fetch.
func (s *Spider) extract(ctx context.Context, e FrontierEntry, resp *fetch.Response, result *model.CrawlResult) []string {
	body := resp.Body
	if cached, ok := s.client.Cached(ctx, e.URL, nil); ok && len(cached.Body) > 0 {
		body = cached.Body
	}

	base := e.URL
	if resp.FinalURL != "" {
		base = resp.FinalURL
	}

	info, err := s.extractor.Extract(body, resp.Header.Get("Content-Type"), base)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to extract links: %v", err))
		return nil
	}
	result.Page = info
	result.Title = info.Title
	result.LinksFound = len(info.Links)

	if resp.StatusCode != http.StatusOK || e.Depth >= s.maxDepth {
		return nil
	}

	s.mu.Lock()
	host := s.startHost
	s.mu.Unlock()

	seen := make(map[string]struct{}, len(info.Links))
	links := make([]string, 0, len(info.Links))
	for _, link := range info.Links {
		n, ok := s.admit(link, host)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		links = append(links, n)
	}
	return links
}

// admit normalizes link and applies the host and link filters.
func (s *Spider) admit(link, host string) (string, bool) {
	n, err := NormalizeURL(link)
	if err != nil {
		return "", false
	}
	if !sameHost(host, n) || !s.filter.allow(n) {
		return "", false
	}
	return n, true
}

// politeWait sleeps the crawl delay, or the site's Crawl-delay when longer.
func (s *Spider) politeWait(ctx context.Context, pageURL string) {
	d := s.delay
	if s.respectRobots {
		if cd, ok := s.robots.(crawlDelayer); ok {
			if robotsDelay := cd.CrawlDelay(ctx, pageURL, s.userAgent); robotsDelay > d {
				d = robotsDelay
			}
		}
	}
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// SitemapURLs returns the page URLs listed in the site's sitemaps. The
// sitemaps named in robots.txt are used when known, otherwise
// /sitemap.xml. Failures yield an empty list.
func (s *Spider) SitemapURLs(ctx context.Context, baseURL string) []string {
	root, ok := robots.Domain(baseURL)
	if !ok {
		return nil
	}

	var candidates []string
	if sl, ok := s.robots.(sitemapLister); ok && s.respectRobots {
		candidates = sl.Sitemaps(ctx, baseURL)
	}
	if len(candidates) == 0 {
		candidates = []string{root + "/sitemap.xml"}
	}

	get := func(ctx context.Context, target string) ([]byte, error) {
		resp, err := s.client.Get(ctx, target, &fetch.RequestOptions{CacheTTL: fetch.RobotsTTL})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sitemap %s: status %d", target, resp.StatusCode)
		}
		return resp.Body, nil
	}

	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, candidate := range candidates {
		entries, err := sitemap.Collect(ctx, get, candidate, 0, 0)
		if err != nil {
			s.logger.Debug("sitemap unavailable", "url", candidate, "error", err)
			continue
		}
		for _, entry := range entries {
			if _, dup := seen[entry.Loc]; dup {
				continue
			}
			seen[entry.Loc] = struct{}{}
			out = append(out, entry.Loc)
		}
	}
	s.logger.Info("read sitemap", "base", root, "urls", len(out))
	return out
}

// State returns the lifecycle state.
func (s *Spider) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the crawl counters.
func (s *Spider) Stats() model.CrawlStats {
	s.mu.Lock()
	stats := model.CrawlStats{
		StartURL:        s.startURL,
		State:           s.state.String(),
		PagesCrawled:    len(s.results),
		PagesSkipped:    s.skipped,
		Errors:          s.errors,
		TotalLinksFound: s.links,
		StartedAt:       s.startedAt,
		FinishedAt:      s.endedAt,
	}
	s.mu.Unlock()

	stats.Finalize(time.Now())
	return stats
}

// Pending returns the entries still waiting in the frontier.
func (s *Spider) Pending() []FrontierEntry {
	s.mu.Lock()
	f := s.frontier
	s.mu.Unlock()
	return f.snapshot()
}

// Results returns a copy of the results gathered so far.
func (s *Spider) Results() []*model.CrawlResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.CrawlResult(nil), s.results...)
}

// URLList returns the URLs of the results in order.
func (s *Spider) URLList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make([]string, 0, len(s.results))
	for _, r := range s.results {
		urls = append(urls, r.URL)
	}
	return urls
}

// FindPageByURL returns the result for rawURL after normalization, or nil.
func (s *Spider) FindPageByURL(rawURL string) *model.CrawlResult {
	n, err := NormalizeURL(rawURL)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.URL == n {
			return r
		}
	}
	return nil
}

// Visited returns the number of URLs dequeued so far.
func (s *Spider) Visited() int {
	s.mu.Lock()
	v := s.visited
	s.mu.Unlock()
	return v.Len()
}

// Reset clears the crawl state so the Spider can be reused. It does
// nothing while a crawl is running.
func (s *Spider) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return
	}
	s.state = StateIdle
	s.startURL = ""
	s.startHost = ""
	s.frontier = newFrontier(s.maxDepth)
	s.visited = NewVisitedSet()
	s.results = nil
	s.skipped = 0
	s.errors = 0
	s.links = 0
	s.startedAt = time.Time{}
	s.endedAt = time.Time{}
}
