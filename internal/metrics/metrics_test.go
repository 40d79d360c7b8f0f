package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("nil metrics is a no-op", func(t *testing.T) {
		t.Parallel()
		var m *Metrics
		m.ObserveRequest("GET", 200, "", time.Millisecond)
		m.Retry("503")
		m.CacheLookup(true)
		m.Page("crawled")
		m.LinksFound(3)
		m.FrontierSize(1)
		m.ObserveBytes(10)
		if m.Registry() != nil {
			t.Error("expected nil registry")
		}
	})

	t.Run("records outcomes", func(t *testing.T) {
		t.Parallel()
		m := New()
		m.ObserveRequest("GET", 200, "", time.Millisecond)
		m.ObserveRequest("GET", 200, "", time.Millisecond)
		m.ObserveRequest("GET", 0, "timeout", time.Second)
		m.CacheLookup(true)
		m.CacheLookup(false)
		m.CacheLookup(false)
		m.Page("crawled")

		if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")); got != 2 {
			t.Errorf("expected 2 GET 200, got %v", got)
		}
		if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "timeout")); got != 1 {
			t.Errorf("expected 1 timeout, got %v", got)
		}
		if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")); got != 2 {
			t.Errorf("expected 2 misses, got %v", got)
		}
	})

	t.Run("handler exposes metrics", func(t *testing.T) {
		t.Parallel()
		m := New()
		m.Page("skipped_robots")

		srv := httptest.NewServer(m.Handler())
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), `seocrawl_crawler_pages_total{result="skipped_robots"} 1`) {
			t.Errorf("expected pages counter in output, got:\n%s", body)
		}
	})
}
