package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/seocrawl/internal/cache"
	"github.com/nao1215/seocrawl/internal/ratelimit"
)

// recordSleeps replaces the client's backoff sleep with a recorder.
func recordSleeps(c *Client) func() []time.Duration {
	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration(nil), waits...)
	}
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()

	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func newMemoryManager(t *testing.T) *cache.Manager {
	t.Helper()

	m, err := cache.NewManager(cache.Config{Kind: cache.KindMemory, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "defaults", opts: nil},
		{name: "zero timeout", opts: []Option{WithTimeout(0)}, wantErr: ErrInvalidOption},
		{name: "negative retries", opts: []Option{WithRetryAttempts(-1)}, wantErr: ErrInvalidOption},
		{name: "negative redirects", opts: []Option{WithMaxRedirects(-1)}, wantErr: ErrInvalidOption},
		{name: "zero body size", opts: []Option{WithMaxBodySize(0)}, wantErr: ErrInvalidOption},
		{name: "negative deadline", opts: []Option{WithRequestDeadline(-time.Second)}, wantErr: ErrInvalidOption},
		{name: "bad proxy scheme", opts: []Option{WithProxy("ftp://proxy:21")}, wantErr: ErrInvalidProxy},
		{name: "proxy without host", opts: []Option{WithProxy("socks5://")}, wantErr: ErrInvalidProxy},
		{name: "socks5 proxy", opts: []Option{WithProxy("socks5://127.0.0.1:9050")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			c.Close()
		})
	}
}

func TestClientGet(t *testing.T) {
	t.Parallel()

	t.Run("default headers", func(t *testing.T) {
		t.Parallel()

		var got http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer srv.Close()

		c := newTestClient(t, WithHeaders(map[string]string{"X-Test": "1"}))
		resp, err := c.Get(context.Background(), srv.URL+"/", nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !resp.OK() || !resp.IsHTML() || resp.Charset() != "utf-8" {
			t.Errorf("resp status=%d html=%v charset=%q", resp.StatusCode, resp.IsHTML(), resp.Charset())
		}
		if resp.Attempts != 1 || resp.FromCache {
			t.Errorf("Attempts = %d, FromCache = %v", resp.Attempts, resp.FromCache)
		}

		want := map[string]string{
			"User-Agent":      DefaultUserAgent,
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "gzip, deflate, br",
			"X-Test":          "1",
		}
		for k, v := range want {
			if got.Get(k) != v {
				t.Errorf("header %s = %q, want %q", k, got.Get(k), v)
			}
		}
		if !strings.HasPrefix(got.Get("Accept"), "text/html") {
			t.Errorf("Accept = %q", got.Get("Accept"))
		}
	})

	t.Run("params and request headers", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s|%s", r.URL.Query().Get("q"), r.Header.Get("User-Agent"))
		}))
		defer srv.Close()

		c := newTestClient(t)
		resp, err := c.Get(context.Background(), srv.URL+"/search", &RequestOptions{
			Params:  map[string][]string{"q": {"go"}},
			Headers: map[string]string{"User-Agent": "custom"},
		})
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(resp.Body) != "go|custom" {
			t.Errorf("Body = %q, want %q", resp.Body, "go|custom")
		}
	})

	t.Run("set user agent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
		}))
		defer srv.Close()

		c := newTestClient(t)
		ua, ok := LookupUserAgent("Firefox")
		if !ok {
			t.Fatal("LookupUserAgent(Firefox) not found")
		}
		c.SetUserAgent(ua)
		resp, err := c.Get(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(resp.Body) != ua {
			t.Errorf("User-Agent = %q, want %q", resp.Body, ua)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t)
		for _, u := range []string{"ftp://example.com/", "not a url", "http://"} {
			_, err := c.Get(context.Background(), u, nil)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Get(%q) error = %v, want ErrInvalidRequest", u, err)
			}
		}
	})

	t.Run("max body size", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("a"), 1000))
		}))
		defer srv.Close()

		c := newTestClient(t, WithMaxBodySize(100))
		resp, err := c.Get(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(resp.Body) != 100 {
			t.Errorf("len(Body) = %d, want 100", len(resp.Body))
		}
		if !resp.Truncated {
			t.Error("expected Truncated for a body over the limit")
		}
	})

	t.Run("body at the limit is complete", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
		}))
		defer srv.Close()

		c := newTestClient(t, WithMaxBodySize(100))
		resp, err := c.Get(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(resp.Body) != 100 || resp.Truncated {
			t.Errorf("len(Body) = %d, Truncated = %v, want 100 and false", len(resp.Body), resp.Truncated)
		}
	})
}

func TestClientRetry(t *testing.T) {
	t.Parallel()

	t.Run("recovers after two 503", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		c := newTestClient(t, WithRetryAttempts(3), WithRetryDelay(100*time.Millisecond))
		waits := recordSleeps(c)

		resp, err := c.Get(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.StatusCode != http.StatusOK || resp.Attempts != 3 {
			t.Errorf("status = %d, attempts = %d; want 200, 3", resp.StatusCode, resp.Attempts)
		}

		got := waits()
		want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("backoff waits = %v, want %v", got, want)
		}

		stats := c.Stats()
		if stats.TotalRequests != 1 || stats.SuccessfulRequests != 1 || stats.FailedRequests != 0 {
			t.Errorf("Stats() = %+v, want 1 total, 1 successful, 0 failed", stats)
		}
	})

	t.Run("exhausted 5xx returns last response", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := newTestClient(t, WithRetryAttempts(2))
		recordSleeps(c)

		resp, err := c.Get(context.Background(), srv.URL, nil)
		if !errors.Is(err, ErrHTTPStatus) {
			t.Fatalf("Get() error = %v, want ErrHTTPStatus", err)
		}
		var fe *Error
		if !errors.As(err, &fe) || fe.StatusCode != http.StatusBadGateway || fe.Attempts != 3 {
			t.Errorf("error = %#v", fe)
		}
		if resp == nil || resp.StatusCode != http.StatusBadGateway {
			t.Errorf("resp = %v, want last 502 response", resp)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
		if got := c.Stats().FailedRequests; got != 1 {
			t.Errorf("FailedRequests = %d, want 1", got)
		}
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.NotFound(w, nil)
		}))
		defer srv.Close()

		c := newTestClient(t)
		resp, err := c.Get(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.StatusCode != http.StatusNotFound || calls.Load() != 1 {
			t.Errorf("status = %d, calls = %d", resp.StatusCode, calls.Load())
		}
		if s := c.Stats(); s.FailedRequests != 1 || s.SuccessfulRequests != 0 {
			t.Errorf("Stats() = %+v", s)
		}
	})

	t.Run("429 without Retry-After waits twice the delay", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		c := newTestClient(t, WithRetryDelay(300*time.Millisecond))
		waits := recordSleeps(c)

		if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got := waits(); len(got) != 1 || got[0] != 600*time.Millisecond {
			t.Errorf("waits = %v, want [600ms]", got)
		}
	})

	t.Run("exhausted 429", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := newTestClient(t, WithRetryAttempts(1))
		waits := recordSleeps(c)

		_, err := c.Get(context.Background(), srv.URL, nil)
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("Get() error = %v, want ErrRateLimited", err)
		}
		var fe *Error
		if errors.As(err, &fe) && fe.RetryAfter != 7*time.Second {
			t.Errorf("RetryAfter = %v, want 7s", fe.RetryAfter)
		}
		if got := waits(); len(got) != 1 || got[0] != 7*time.Second {
			t.Errorf("waits = %v, want [7s]", got)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		addr := srv.URL
		srv.Close()

		c := newTestClient(t, WithRetryAttempts(2), WithRetryDelay(time.Millisecond))
		waits := recordSleeps(c)

		_, err := c.Get(context.Background(), addr, nil)
		if !errors.Is(err, ErrConnection) {
			t.Fatalf("Get() error = %v, want ErrConnection", err)
		}
		var fe *Error
		if errors.As(err, &fe) && fe.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", fe.Attempts)
		}
		if len(waits()) != 2 {
			t.Errorf("waits = %v, want 2 backoffs", waits())
		}
		if s := c.Stats(); s.TotalRequests != 1 || s.FailedRequests != 1 {
			t.Errorf("Stats() = %+v", s)
		}
	})
}

func TestClientRetryAfterHonored(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, WithRetryDelay(10*time.Millisecond))

	start := time.Now()
	resp, err := c.Get(context.Background(), srv.URL, nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if elapsed < 2*time.Second {
		t.Errorf("elapsed = %v, want at least 2s", elapsed)
	}
	if resp.Elapsed < 2*time.Second {
		t.Errorf("resp.Elapsed = %v, want at least 2s", resp.Elapsed)
	}
}

func TestClientTimeouts(t *testing.T) {
	t.Parallel()

	slow := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("request deadline", func(t *testing.T) {
		t.Parallel()

		srv := slow()
		defer srv.Close()

		c := newTestClient(t, WithRequestDeadline(150*time.Millisecond), WithRetryAttempts(5), WithRetryDelay(time.Millisecond))

		start := time.Now()
		_, err := c.Get(context.Background(), srv.URL, nil)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Get() error = %v, want ErrTimeout", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("elapsed = %v, deadline not enforced", elapsed)
		}
	})

	t.Run("attempt timeout", func(t *testing.T) {
		t.Parallel()

		srv := slow()
		defer srv.Close()

		c := newTestClient(t, WithTimeout(100*time.Millisecond), WithRetryAttempts(1))
		recordSleeps(c)

		_, err := c.Get(context.Background(), srv.URL, nil)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Get() error = %v, want ErrTimeout", err)
		}
		var fe *Error
		if errors.As(err, &fe) && fe.Attempts != 2 {
			t.Errorf("Attempts = %d, want 2", fe.Attempts)
		}
	})

	t.Run("caller cancel", func(t *testing.T) {
		t.Parallel()

		srv := slow()
		defer srv.Close()

		c := newTestClient(t)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := c.Get(ctx, srv.URL, nil)
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("Get() error = %v, want ErrCanceled", err)
		}
	})
}

func TestClientRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/hop/"), "%d", &n)
		if n == 0 {
			_, _ = w.Write([]byte("landed"))
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("within limit", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, WithMaxRedirects(3))
		resp, err := c.Get(context.Background(), srv.URL+"/hop/3", nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(resp.Body) != "landed" || resp.FinalURL != srv.URL+"/hop/0" {
			t.Errorf("body = %q, final = %q", resp.Body, resp.FinalURL)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, WithMaxRedirects(2))
		_, err := c.Get(context.Background(), srv.URL+"/hop/5", nil)
		if !errors.Is(err, ErrTooManyRedirects) {
			t.Fatalf("Get() error = %v, want ErrTooManyRedirects", err)
		}
	})

	t.Run("not followed", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, WithFollowRedirects(false))
		resp, err := c.Get(context.Background(), srv.URL+"/hop/1", nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if resp.StatusCode != http.StatusFound {
			t.Errorf("status = %d, want 302", resp.StatusCode)
		}
	})
}

func TestClientDecoding(t *testing.T) {
	t.Parallel()

	const body = "<html><body>compressed</body></html>"

	encoders := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			payload := encode([]byte(body))
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Encoding", name)
				_, _ = w.Write(payload)
			}))
			defer srv.Close()

			c := newTestClient(t)
			resp, err := c.Get(context.Background(), srv.URL, nil)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(resp.Body) != body {
				t.Errorf("Body = %q, want %q", resp.Body, body)
			}
			if c.Stats().BytesTransferred != int64(len(body)) {
				t.Errorf("BytesTransferred = %d, want %d", c.Stats().BytesTransferred, len(body))
			}
		})
	}
}

func TestClientCache(t *testing.T) {
	t.Parallel()

	newServer := func(calls *atomic.Int32) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			if r.URL.Path == "/missing" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, "body-%d", n)
		}))
	}

	t.Run("hit skips network", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := newServer(&calls)
		defer srv.Close()

		c := newTestClient(t, WithCache(newMemoryManager(t)))
		first, err := c.Get(context.Background(), srv.URL+"/page", nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		second, err := c.Get(context.Background(), srv.URL+"/page", nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		if calls.Load() != 1 {
			t.Errorf("server calls = %d, want 1", calls.Load())
		}
		if !second.FromCache || second.Attempts != 0 || string(second.Body) != string(first.Body) {
			t.Errorf("second = %+v, want cached copy of first", second)
		}
		s := c.Stats()
		if s.TotalRequests != 1 || s.CachedRequests != 1 {
			t.Errorf("Stats() = %+v, want 1 total, 1 cached", s)
		}
	})

	t.Run("non-200 is not stored", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := newServer(&calls)
		defer srv.Close()

		c := newTestClient(t, WithCache(newMemoryManager(t)))
		for range 2 {
			if _, err := c.Get(context.Background(), srv.URL+"/missing", nil); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
		}
		if calls.Load() != 2 {
			t.Errorf("server calls = %d, want 2", calls.Load())
		}
	})

	t.Run("modes", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := newServer(&calls)
		defer srv.Close()

		c := newTestClient(t, WithCache(newMemoryManager(t)))
		ctx := context.Background()
		u := srv.URL + "/page"

		if _, ok := c.Cached(ctx, u, nil); ok {
			t.Fatal("Cached() hit before any request")
		}

		if _, err := c.Get(ctx, u, &RequestOptions{CacheMode: CacheBypass}); err != nil {
			t.Fatal(err)
		}
		if _, ok := c.Cached(ctx, u, nil); ok {
			t.Error("CacheBypass stored the response")
		}

		refreshed, err := c.Get(ctx, u, &RequestOptions{CacheMode: CacheRefresh})
		if err != nil {
			t.Fatal(err)
		}
		if refreshed.FromCache {
			t.Error("CacheRefresh read from the cache")
		}
		cached, ok := c.Cached(ctx, u, nil)
		if !ok || string(cached.Body) != string(refreshed.Body) || !cached.FromCache {
			t.Errorf("Cached() = %v, %v; want refreshed body", cached, ok)
		}

		again, err := c.Get(ctx, u, &RequestOptions{CacheMode: CacheRefresh})
		if err != nil {
			t.Fatal(err)
		}
		if again.FromCache || calls.Load() != 3 {
			t.Errorf("second refresh FromCache = %v, calls = %d", again.FromCache, calls.Load())
		}
	})

	t.Run("ttl override", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := newServer(&calls)
		defer srv.Close()

		c := newTestClient(t, WithCache(newMemoryManager(t)))
		ctx := context.Background()
		opts := &RequestOptions{CacheTTL: time.Nanosecond}
		for range 2 {
			if _, err := c.Get(ctx, srv.URL+"/page", opts); err != nil {
				t.Fatal(err)
			}
			time.Sleep(time.Millisecond)
		}
		if calls.Load() != 2 {
			t.Errorf("server calls = %d, want 2 after expiry", calls.Load())
		}
	})

	t.Run("without cache", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t)
		if _, ok := c.Cached(context.Background(), "http://example.com/", nil); ok {
			t.Error("Cached() without cache manager returned a hit")
		}
	})
}

func TestClientHeadPost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(r.Body)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, "%s:%s", r.Header.Get("Content-Type"), buf.String())
		}
	}))
	defer srv.Close()

	c := newTestClient(t)

	head, err := c.Head(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.StatusCode != http.StatusNoContent || head.Method != http.MethodHead {
		t.Errorf("Head() = %d %s", head.StatusCode, head.Method)
	}

	post, err := c.Post(context.Background(), srv.URL, "application/json", []byte(`{"a":1}`), nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if post.StatusCode != http.StatusCreated || string(post.Body) != `application/json:{"a":1}` {
		t.Errorf("Post() = %d %q", post.StatusCode, post.Body)
	}

	s := c.Stats()
	if s.TotalRequests != 2 || s.SuccessfulRequests != 1 || s.FailedRequests != 1 {
		t.Errorf("Stats() = %+v, want HEAD 204 failed and POST 201 successful", s)
	}

	c.ResetStats()
	if s := c.Stats(); s != (Stats{}) {
		t.Errorf("Stats() after ResetStats = %+v", s)
	}
}

func TestClientHostHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s|%s", r.Header.Get("Cookie"), r.Header.Get("X-Site"))
	}))
	defer srv.Close()

	c := newTestClient(t, WithHostHeaders(map[string]HostHeaders{
		"127.0.0.1": {Cookie: "session=abc", Headers: map[string]string{"X-Site": "local"}},
	}))

	resp, err := c.Get(context.Background(), srv.URL, &RequestOptions{Headers: map[string]string{"Cookie": "pref=1"}})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := string(resp.Body); got != "pref=1; session=abc|local" {
		t.Errorf("Body = %q", got)
	}
}

func TestClientProxy(t *testing.T) {
	t.Parallel()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "proxied %s", r.URL.Host)
	}))
	defer proxy.Close()

	c := newTestClient(t, WithProxy(proxy.URL))
	resp, err := c.Get(context.Background(), "http://example.invalid/page", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(resp.Body) != "proxied example.invalid" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestClientHostLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter, err := ratelimit.NewHostLimiter(10, 1)
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newTestClient(t, WithHostLimiter(limiter), WithLogger(logger))

	start := time.Now()
	for range 3 {
		if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 190*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 200ms for 3 requests at 10 rps", elapsed)
	}
	if limiter.Hosts() != 1 {
		t.Errorf("Hosts() = %d, want 1", limiter.Hosts())
	}
	if !strings.Contains(logs.String(), "waiting for rate limit") || !strings.Contains(logs.String(), "burst=1") {
		t.Errorf("expected a rate limit wait in the debug log, got:\n%s", logs.String())
	}
}

func TestClientExtras(t *testing.T) {
	t.Parallel()

	var robotsCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		robotsCalls.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>http://example.com/a</loc></url></urlset>`))
	})
	mux.HandleFunc("/file.bin", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("robots.txt", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, WithCache(newMemoryManager(t)))
		for range 2 {
			body, err := c.RobotsTxt(context.Background(), srv.URL+"/deep/page?q=1")
			if err != nil {
				t.Fatalf("RobotsTxt() error = %v", err)
			}
			if !strings.Contains(body, "Disallow: /private/") {
				t.Errorf("RobotsTxt() = %q", body)
			}
		}
		if robotsCalls.Load() > 2 {
			t.Errorf("robots.txt fetched %d times", robotsCalls.Load())
		}
	})

	t.Run("sitemap", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t)
		sm, err := c.Sitemap(context.Background(), srv.URL+"/any")
		if err != nil {
			t.Fatalf("Sitemap() error = %v", err)
		}
		if got := sm.Locations(); len(got) != 1 || got[0] != "http://example.com/a" {
			t.Errorf("Locations() = %v", got)
		}
	})

	t.Run("parsed sitemap is cached", func(t *testing.T) {
		t.Parallel()

		m := newMemoryManager(t)
		c := newTestClient(t, WithCache(m))
		target := srv.URL + "/sitemap.xml"

		if _, err := c.Sitemap(context.Background(), target); err != nil {
			t.Fatalf("Sitemap() error = %v", err)
		}
		if !m.Exists(context.Background(), sitemapKey(target)) {
			t.Fatal("expected the parsed sitemap in the cache")
		}

		sm, err := c.Sitemap(context.Background(), target)
		if err != nil {
			t.Fatalf("Sitemap() error = %v", err)
		}
		if got := sm.Locations(); len(got) != 1 || got[0] != "http://example.com/a" {
			t.Errorf("cached Locations() = %v", got)
		}
	})

	t.Run("check status", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, WithRetryAttempts(0))
		got := c.CheckStatus(context.Background(), srv.URL+"/file.bin", srv.URL+"/gone", "http://127.0.0.1:1/")
		if got[srv.URL+"/file.bin"] != http.StatusOK || got[srv.URL+"/gone"] != http.StatusGone || got["http://127.0.0.1:1/"] != 0 {
			t.Errorf("CheckStatus() = %v", got)
		}
	})

	t.Run("download", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t)
		path := filepath.Join(t.TempDir(), "sub", "file.bin")
		n, err := c.Download(context.Background(), srv.URL+"/file.bin", path)
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if n != 7 || string(data) != "payload" {
			t.Errorf("Download() = %d, %q", n, data)
		}

		if _, err := c.Download(context.Background(), srv.URL+"/gone", path+".2"); !errors.Is(err, ErrHTTPStatus) {
			t.Errorf("Download(gone) error = %v, want ErrHTTPStatus", err)
		}
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		parent context.Context
		err    error
		want   Kind
	}{
		{name: "dns not found", parent: context.Background(), err: &net.DNSError{Err: "no such host", IsNotFound: true}, want: KindDNS},
		{name: "dns timeout", parent: context.Background(), err: &net.DNSError{Err: "timeout", IsTimeout: true}, want: KindTimeout},
		{name: "dns temporary", parent: context.Background(), err: &net.DNSError{Err: "server misbehaving", IsTemporary: true}, want: KindConnection},
		{name: "deadline", parent: context.Background(), err: context.DeadlineExceeded, want: KindTimeout},
		{name: "redirects", parent: context.Background(), err: fmt.Errorf("wrap: %w", ErrTooManyRedirects), want: KindTooManyRedirects},
		{name: "refused", parent: context.Background(), err: errors.New("connection refused"), want: KindConnection},
		{name: "parent canceled", parent: canceled, err: context.Canceled, want: KindCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := classify(tt.parent, tt.err); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}

	if KindDNS.retryable() || !KindTimeout.retryable() || !KindConnection.retryable() {
		t.Error("retryable() mismatch")
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &Error{Kind: KindHTTPStatus, Method: "GET", URL: "http://x/", StatusCode: 503, Attempts: 4, Err: cause}

	if !errors.Is(err, ErrHTTPStatus) || errors.Is(err, ErrTimeout) {
		t.Error("errors.Is does not follow Kind")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is does not unwrap the cause")
	}
	want := "GET http://x/: http_status_error (status 503) after 4 attempts: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
