package robots

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/seocrawl/internal/fetch"
)

// DefaultCacheTTL is how long the robots.txt response stays in the response cache.
const DefaultCacheTTL = 24 * time.Hour

// Fetcher downloads robots.txt. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts *fetch.RequestOptions) (*fetch.Response, error)
}

// RuleSet is the parsed robots.txt of one domain.
type RuleSet struct {
	// Domain is scheme://host.
	Domain string

	// Available is false when robots.txt could not be fetched or was not 200.
	Available bool

	// StatusCode is the robots.txt response status, or 0 if the fetch failed.
	StatusCode int

	// Sitemaps lists the Sitemap directives.
	Sitemaps []string

	// FetchedAt is when the rules were installed.
	FetchedAt time.Time

	data *robotstxt.RobotsData
}

// permissive returns a rule set that allows everything.
func permissive(domain string, status int) *RuleSet {
	data, _ := robotstxt.FromString("") //nolint:errcheck // empty input never fails
	return &RuleSet{Domain: domain, StatusCode: status, FetchedAt: time.Now(), data: data}
}

// Parse builds a rule set from a robots.txt body.
func Parse(domain string, body []byte) (*RuleSet, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, err
	}
	return &RuleSet{
		Domain:     domain,
		Available:  true,
		StatusCode: http.StatusOK,
		Sitemaps:   append([]string(nil), data.Sitemaps...),
		FetchedAt:  time.Now(),
		data:       data,
	}, nil
}

// Allowed reports whether userAgent may fetch rawURL.
func (r *RuleSet) Allowed(rawURL, userAgent string) bool {
	if r == nil || r.data == nil {
		return true
	}
	return r.data.TestAgent(requestPath(rawURL), userAgent)
}

// CrawlDelay returns the Crawl-delay of the group matching userAgent.
func (r *RuleSet) CrawlDelay(userAgent string) time.Duration {
	if r == nil || r.data == nil {
		return 0
	}
	if g := r.data.FindGroup(userAgent); g != nil {
		return g.CrawlDelay
	}
	return 0
}

// requestPath returns the path and query robots rules are matched against.
func requestPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// Domain returns scheme://host of rawURL.
func Domain(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// Gate caches one RuleSet per domain.
type Gate struct {
	fetcher  Fetcher
	logger   *slog.Logger
	cacheTTL time.Duration

	mu    sync.RWMutex
	rules map[string]*RuleSet
	group singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCacheTTL sets the response cache TTL requested for robots.txt.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		g.cacheTTL = ttl
	}
}

// NewGate creates a Gate that downloads robots.txt through fetcher.
func NewGate(fetcher Fetcher, opts ...Option) *Gate {
	g := &Gate{
		fetcher:  fetcher,
		logger:   slog.New(slog.DiscardHandler),
		cacheTTL: DefaultCacheTTL,
		rules:    make(map[string]*RuleSet),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsAllowed reports whether userAgent may fetch rawURL. URLs without a
// scheme and host are allowed.
func (g *Gate) IsAllowed(ctx context.Context, rawURL, userAgent string) bool {
	return g.RuleSet(ctx, rawURL).Allowed(rawURL, userAgent)
}

// CrawlDelay returns the Crawl-delay for userAgent on rawURL's domain.
func (g *Gate) CrawlDelay(ctx context.Context, rawURL, userAgent string) time.Duration {
	return g.RuleSet(ctx, rawURL).CrawlDelay(userAgent)
}

// Sitemaps returns the Sitemap directives of rawURL's domain.
func (g *Gate) Sitemaps(ctx context.Context, rawURL string) []string {
	rs := g.RuleSet(ctx, rawURL)
	if rs == nil {
		return nil
	}
	return append([]string(nil), rs.Sitemaps...)
}

// RuleSet returns the rules for rawURL's domain, fetching them on first use.
// It returns nil when rawURL has no scheme or host.
func (g *Gate) RuleSet(ctx context.Context, rawURL string) *RuleSet {
	domain, ok := Domain(rawURL)
	if !ok {
		return nil
	}

	g.mu.RLock()
	rs, found := g.rules[domain]
	g.mu.RUnlock()
	if found {
		return rs
	}

	v, _, _ := g.group.Do(domain, func() (any, error) {
		g.mu.RLock()
		rs, found := g.rules[domain]
		g.mu.RUnlock()
		if found {
			return rs, nil
		}

		rs, final := g.load(ctx, domain)
		if final {
			g.mu.Lock()
			g.rules[domain] = rs
			g.mu.Unlock()
		}
		return rs, nil
	})
	return v.(*RuleSet) //nolint:forcetypeassert // the group only stores *RuleSet
}

// load fetches and parses robots.txt. final is false when the caller's
// context ended, so the result is not remembered.
func (g *Gate) load(ctx context.Context, domain string) (*RuleSet, bool) {
	robotsURL := domain + "/robots.txt"

	resp, err := g.fetcher.Get(ctx, robotsURL, &fetch.RequestOptions{CacheTTL: g.cacheTTL})
	if ctx.Err() != nil {
		return permissive(domain, 0), false
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		g.logger.Warn("robots.txt unavailable, allowing all", "domain", domain, "error", err)
		return permissive(domain, status), true
	}
	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("robots.txt unavailable, allowing all", "domain", domain, "status", resp.StatusCode)
		return permissive(domain, resp.StatusCode), true
	}

	rs, err := Parse(domain, resp.Body)
	if err != nil {
		g.logger.Warn("robots.txt unparseable, allowing all", "domain", domain, "error", err)
		return permissive(domain, resp.StatusCode), true
	}
	g.logger.Debug("loaded robots.txt", "domain", domain, "sitemaps", len(rs.Sitemaps))
	return rs, true
}

// Domains returns the number of domains with installed rules.
func (g *Gate) Domains() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rules)
}

// Reset forgets every installed rule set.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = make(map[string]*RuleSet)
}
