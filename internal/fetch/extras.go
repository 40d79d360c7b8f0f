package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/seocrawl/internal/cache"
	"github.com/nao1215/seocrawl/internal/sitemap"
)

// RobotsTTL is how long robots.txt and sitemap responses stay cached.
const RobotsTTL = 24 * time.Hour

// UserAgentPresets maps a browser name to a desktop User-Agent string.
var UserAgentPresets = map[string]string{
	"chrome":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"firefox": "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"safari":  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"default": DefaultUserAgent,
}

// LookupUserAgent returns the preset for name, case-insensitively.
func LookupUserAgent(name string) (string, bool) {
	ua, ok := UserAgentPresets[strings.ToLower(strings.TrimSpace(name))]
	return ua, ok
}

// siteRoot returns scheme://host of rawURL.
func siteRoot(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// RobotsTxt returns the robots.txt body of the site serving baseURL.
// Any status other than 200 is reported as an *Error of KindHTTPStatus.
func (c *Client) RobotsTxt(ctx context.Context, baseURL string) (string, error) {
	root, err := siteRoot(baseURL)
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Method: http.MethodGet, URL: baseURL, Err: err}
	}
	target := root + "/robots.txt"

	resp, err := c.Get(ctx, target, &RequestOptions{CacheTTL: RobotsTTL})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindHTTPStatus, Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Attempts: resp.Attempts}
	}
	return string(resp.Body), nil
}

// Sitemap downloads and parses a sitemap. When sitemapURL does not end in
// ".xml" it is treated as a site URL and /sitemap.xml is fetched. With a
// cache the parsed document is kept for RobotsTTL.
func (c *Client) Sitemap(ctx context.Context, sitemapURL string) (*sitemap.Sitemap, error) {
	target := sitemapURL
	if !strings.HasSuffix(strings.ToLower(sitemapURL), ".xml") {
		root, err := siteRoot(sitemapURL)
		if err != nil {
			return nil, &Error{Kind: KindInvalidRequest, Method: http.MethodGet, URL: sitemapURL, Err: err}
		}
		target = root + "/sitemap.xml"
	}

	return cache.GetOrCompute(ctx, c.cache, sitemapKey(target), RobotsTTL,
		func(ctx context.Context) (*sitemap.Sitemap, error) {
			body, err := c.getBody(ctx, target)
			if err != nil {
				return nil, err
			}
			return sitemap.Parse(body)
		})
}

func sitemapKey(target string) string {
	return cache.GenerateKey("sitemap", target)
}

// SitemapGetter adapts the client to sitemap.Getter.
func (c *Client) SitemapGetter() sitemap.Getter {
	return c.getBody
}

func (c *Client) getBody(ctx context.Context, target string) ([]byte, error) {
	resp, err := c.Get(ctx, target, &RequestOptions{CacheTTL: RobotsTTL})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindHTTPStatus, Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Attempts: resp.Attempts}
	}
	return resp.Body, nil
}

// CheckStatus sends HEAD requests for urls and returns each status code.
// URLs that could not be reached map to 0.
func (c *Client) CheckStatus(ctx context.Context, urls ...string) map[string]int {
	var (
		mu     sync.Mutex
		result = make(map[string]int, len(urls))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, u := range urls {
		g.Go(func() error {
			status := 0
			resp, _ := c.Head(gctx, u, nil)
			if resp != nil {
				status = resp.StatusCode
			}
			mu.Lock()
			result[u] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return an error

	return result
}

// Download fetches rawURL and writes the body to path, creating parent
// directories. It returns the number of bytes written.
func (c *Client) Download(ctx context.Context, rawURL, path string) (int64, error) {
	resp, err := c.Get(ctx, rawURL, &RequestOptions{CacheMode: CacheBypass})
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &Error{Kind: KindHTTPStatus, Method: http.MethodGet, URL: rawURL, StatusCode: resp.StatusCode, Attempts: resp.Attempts}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := tmp.Write(resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to rename file: %w", err)
	}
	return int64(n), nil
}
