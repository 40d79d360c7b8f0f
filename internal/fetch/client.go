package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/seocrawl/internal/cache"
	"github.com/nao1215/seocrawl/internal/metrics"
	"github.com/nao1215/seocrawl/internal/ratelimit"
)

const (
	// DefaultTimeout is the per-attempt timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryAttempts is the number of retries after the first attempt.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the base of the exponential backoff.
	DefaultRetryDelay = 2 * time.Second

	// DefaultMaxRedirects is the redirect limit when redirects are followed.
	DefaultMaxRedirects = 5

	// DefaultMaxBodySize caps the decoded body at 10 MiB.
	DefaultMaxBodySize int64 = 10 << 20

	// DefaultUserAgent identifies the crawler.
	DefaultUserAgent = "seocrawl/1.0 (+https://github.com/nao1215/seocrawl)"
)

// CacheMode selects how a request interacts with the response cache.
type CacheMode int

const (
	// CacheDefault reads from and writes to the cache.
	CacheDefault CacheMode = iota
	// CacheBypass neither reads nor writes.
	CacheBypass
	// CacheRefresh skips the read and stores a successful response.
	CacheRefresh
)

// RequestOptions tune a single Get call. A nil *RequestOptions is valid.
type RequestOptions struct {
	// Headers override the client headers for this request.
	Headers map[string]string

	// Params are merged into the URL query.
	Params url.Values

	// CacheMode selects cache behavior.
	CacheMode CacheMode

	// CacheTTL overrides the cache manager's TTL when positive.
	CacheTTL time.Duration
}

// Client is a rate-limited, retrying HTTP client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client

	timeout         time.Duration
	retryAttempts   int
	retryDelay      time.Duration
	followRedirects bool
	maxRedirects    int
	maxBodySize     int64
	requestDeadline time.Duration
	proxyURL        string
	headers         map[string]string
	hostHeaders     map[string]HostHeaders

	uaMu      sync.RWMutex
	userAgent string

	cache   *cache.Manager
	limiter *ratelimit.HostLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger

	// sleep waits between attempts.
	sleep func(ctx context.Context, d time.Duration) error

	counters counters
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryAttempts sets how many times a failed attempt is retried.
func WithRetryAttempts(n int) Option {
	return func(c *Client) {
		c.retryAttempts = n
	}
}

// WithRetryDelay sets the backoff base.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithFollowRedirects controls whether redirects are followed.
func WithFollowRedirects(follow bool) Option {
	return func(c *Client) {
		c.followRedirects = follow
	}
}

// WithMaxRedirects sets the redirect limit.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		c.maxRedirects = n
	}
}

// WithMaxBodySize caps the decoded body size.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithCache enables response caching through m.
func WithCache(m *cache.Manager) Option {
	return func(c *Client) {
		c.cache = m
	}
}

// WithHostLimiter sets the per-host rate limiter.
func WithHostLimiter(l *ratelimit.HostLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithProxy routes requests through an http, https or socks5 proxy.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithHeaders sets headers sent on every request. They override the defaults.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		maps.Copy(c.headers, headers)
	}
}

// WithHostHeaders sets headers and cookies for individual hosts.
// Keys are host names without port.
func WithHostHeaders(hosts map[string]HostHeaders) Option {
	return func(c *Client) {
		for host, hh := range hosts {
			c.hostHeaders[strings.ToLower(host)] = hh
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRequestDeadline caps the total time spent on one logical request,
// retries and backoff included. Zero means no cap.
func WithRequestDeadline(d time.Duration) Option {
	return func(c *Client) {
		c.requestDeadline = d
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:         DefaultTimeout,
		retryAttempts:   DefaultRetryAttempts,
		retryDelay:      DefaultRetryDelay,
		followRedirects: true,
		maxRedirects:    DefaultMaxRedirects,
		maxBodySize:     DefaultMaxBodySize,
		userAgent:       DefaultUserAgent,
		headers:         make(map[string]string),
		hostHeaders:     make(map[string]HostHeaders),
		logger:          slog.New(slog.DiscardHandler),
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.timeout <= 0:
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidOption)
	case c.retryAttempts < 0:
		return nil, fmt.Errorf("%w: retry attempts must not be negative", ErrInvalidOption)
	case c.retryDelay < 0:
		return nil, fmt.Errorf("%w: retry delay must not be negative", ErrInvalidOption)
	case c.maxRedirects < 0:
		return nil, fmt.Errorf("%w: max redirects must not be negative", ErrInvalidOption)
	case c.maxBodySize <= 0:
		return nil, fmt.Errorf("%w: max body size must be positive", ErrInvalidOption)
	case c.requestDeadline < 0:
		return nil, fmt.Errorf("%w: request deadline must not be negative", ErrInvalidOption)
	}

	transport, err := newTransport(c.proxyURL, c.timeout)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = transport
	if len(c.hostHeaders) > 0 {
		rt = &hostHeaderTransport{base: transport, hosts: c.hostHeaders}
	}

	c.httpClient = &http.Client{
		Transport:     rt,
		Timeout:       c.timeout,
		CheckRedirect: c.checkRedirect,
	}
	return c, nil
}

func (c *Client) checkRedirect(_ *http.Request, via []*http.Request) error {
	if !c.followRedirects {
		return http.ErrUseLastResponse
	}
	if len(via) > c.maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, c.maxRedirects)
	}
	return nil
}

// UserAgent returns the current User-Agent.
func (c *Client) UserAgent() string {
	c.uaMu.RLock()
	defer c.uaMu.RUnlock()
	return c.userAgent
}

// SetUserAgent replaces the User-Agent for subsequent requests.
func (c *Client) SetUserAgent(ua string) {
	c.uaMu.Lock()
	defer c.uaMu.Unlock()
	c.userAgent = ua
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Get fetches rawURL. Successful responses are cached according to opts.
func (c *Client) Get(ctx context.Context, rawURL string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	return c.do(ctx, request{
		method:    http.MethodGet,
		rawURL:    rawURL,
		params:    opts.Params,
		headers:   opts.Headers,
		cacheMode: opts.CacheMode,
		cacheTTL:  opts.CacheTTL,
	})
}

// Head sends a HEAD request. It never uses the cache.
func (c *Client) Head(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.do(ctx, request{
		method:    http.MethodHead,
		rawURL:    rawURL,
		headers:   headers,
		cacheMode: CacheBypass,
	})
}

// Post sends body with the given content type. It never uses the cache.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte, headers map[string]string) (*Response, error) {
	h := make(map[string]string, len(headers)+1)
	if contentType != "" {
		h["Content-Type"] = contentType
	}
	maps.Copy(h, headers)
	return c.do(ctx, request{
		method:    http.MethodPost,
		rawURL:    rawURL,
		body:      body,
		headers:   h,
		cacheMode: CacheBypass,
	})
}

// Cached returns the cached GET response for rawURL and params without any
// network I/O. ok is false on a miss or when caching is disabled.
func (c *Client) Cached(ctx context.Context, rawURL string, params url.Values) (*Response, bool) {
	if c.cache == nil {
		return nil, false
	}
	target, err := buildURL(rawURL, params)
	if err != nil {
		return nil, false
	}
	var resp Response
	if !c.cache.GetValue(ctx, cacheKey(http.MethodGet, target, params), &resp) {
		return nil, false
	}
	resp.FromCache = true
	resp.Attempts = 0
	return &resp, true
}

type request struct {
	method    string
	rawURL    string
	params    url.Values
	headers   map[string]string
	body      []byte
	cacheMode CacheMode
	cacheTTL  time.Duration
}

func cacheKey(method, target string, params url.Values) string {
	return cache.GenerateKey(method, target, params)
}

// buildURL validates rawURL and merges params into its query.
func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) successStatus(method string, status int) bool {
	if method == http.MethodPost {
		return status == http.StatusOK || status == http.StatusCreated
	}
	return status == http.StatusOK
}

func (c *Client) do(ctx context.Context, r request) (*Response, error) {
	target, err := buildURL(r.rawURL, r.params)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Method: r.method, URL: r.rawURL, Err: err}
	}

	useCache := c.cache != nil && r.method == http.MethodGet && r.cacheMode != CacheBypass
	key := ""
	if useCache {
		key = cacheKey(r.method, target, r.params)
	}

	if useCache && r.cacheMode == CacheDefault {
		var cached Response
		if c.cache.GetValue(ctx, key, &cached) {
			c.metrics.CacheLookup(true)
			c.counters.cached.Add(1)
			cached.FromCache = true
			cached.Attempts = 0
			c.logger.Debug("cache hit", "url", target)
			return &cached, nil
		}
		c.metrics.CacheLookup(false)
	}

	c.counters.total.Add(1)

	reqCtx := ctx
	if c.requestDeadline > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.requestDeadline)
		defer cancel()
	}

	resp, err := c.roundTrips(ctx, reqCtx, r, target)
	switch {
	case err != nil:
		c.counters.failed.Add(1)
		return resp, err
	case !c.successStatus(r.method, resp.StatusCode):
		c.counters.failed.Add(1)
		return resp, nil
	}
	c.counters.successful.Add(1)

	if useCache && resp.StatusCode == http.StatusOK {
		ttl := r.cacheTTL
		if ttl <= 0 {
			ttl = c.cache.TTL()
		}
		c.cache.SetValue(ctx, key, resp, ttl)
	}
	return resp, nil
}

// roundTrips runs the attempt loop. parent is the caller's context and
// reqCtx may additionally carry the request deadline.
func (c *Client) roundTrips(parent, reqCtx context.Context, r request, target string) (*Response, error) {
	start := time.Now()
	host := hostKey(target)

	fail := func(kind Kind, attempts int, resp *Response, cause error) *Error {
		e := &Error{Kind: kind, Method: r.method, URL: target, Attempts: attempts, Err: cause}
		if resp != nil {
			e.StatusCode = resp.StatusCode
			if kind == KindRateLimited {
				e.RetryAfter, _ = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			}
		}
		return e
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if lim := c.limiter.For(host); lim.Tokens() < 1 {
				c.logger.Debug("waiting for rate limit", "host", host, "tokens", lim.Tokens(), "burst", lim.Burst())
			}
			if err := c.limiter.Acquire(reqCtx, host); err != nil {
				return nil, fail(classify(parent, err), attempt, nil, err)
			}
		}

		attemptStart := time.Now()
		resp, err := c.attempt(reqCtx, r, target)
		if err != nil {
			kind := classify(parent, err)
			c.metrics.ObserveRequest(r.method, 0, kind.String(), time.Since(attemptStart))

			if !kind.retryable() || attempt >= c.retryAttempts {
				c.logger.Debug("request failed", "method", r.method, "url", target, "kind", kind.String(), "attempts", attempt+1, "error", err)
				return nil, fail(kind, attempt+1, nil, err)
			}
			wait := backoff(c.retryDelay, attempt)
			c.logger.Debug("retrying request", "url", target, "attempt", attempt+1, "reason", kind.String(), "wait", wait)
			c.metrics.Retry(kind.String())
			if err := c.sleep(reqCtx, wait); err != nil {
				return nil, fail(classify(parent, err), attempt+1, nil, err)
			}
			continue
		}

		c.metrics.ObserveRequest(r.method, resp.StatusCode, "", time.Since(attemptStart))
		c.metrics.ObserveBytes(len(resp.Body))
		c.counters.bytes.Add(int64(len(resp.Body)))
		resp.Attempts = attempt + 1
		resp.Elapsed = time.Since(start)

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		kind := KindHTTPStatus
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		if attempt >= c.retryAttempts {
			c.logger.Debug("retries exhausted", "url", target, "status", resp.StatusCode, "attempts", attempt+1)
			return resp, fail(kind, attempt+1, resp, nil)
		}

		wait := backoff(c.retryDelay, attempt)
		if kind == KindRateLimited {
			if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				wait = d
			} else {
				wait = c.retryDelay * 2
			}
		}
		c.logger.Debug("retrying request", "url", target, "attempt", attempt+1, "status", resp.StatusCode, "wait", wait)
		c.metrics.Retry(kind.String())
		if err := c.sleep(reqCtx, wait); err != nil {
			return resp, fail(classify(parent, err), attempt+1, resp, err)
		}
	}
}

// attempt performs one network round trip and reads the body.
func (c *Client) attempt(ctx context.Context, r request, target string) (*Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, r.headers)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, truncated, err := readBody(httpResp.Body, httpResp.Header.Get("Content-Encoding"), c.maxBodySize)
	if err != nil {
		return nil, err
	}
	if truncated {
		c.logger.Warn("response body truncated", "url", target, "limit", c.maxBodySize)
	}

	return &Response{
		URL:        target,
		FinalURL:   httpResp.Request.URL.String(),
		Method:     r.method,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
		Truncated:  truncated,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *Client) setHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("User-Agent", c.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// hostKey returns the rate-limit key for target.
func hostKey(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return strings.ToLower(u.Host)
}
