// Package metrics exposes crawler and HTTP client counters in Prometheus
// format. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seocrawl"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	bytes         prometheus.Counter
	pages         *prometheus.CounterVec
	linksFound    prometheus.Counter
	frontierDepth prometheus.Gauge
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Network requests by method and outcome (status code or failure kind).",
		}, []string{"method", "outcome"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of single network attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Retries by reason.",
		}, []string{"reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "HTTP cache lookups by result.",
		}, []string{"result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_bytes_total",
			Help:      "Decoded response body bytes received.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "pages_total",
			Help:      "Frontier entries processed by result (crawled, error, skipped_robots).",
		}, []string{"result"}),
		linksFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "links_found_total",
			Help:      "Links returned by the link extractor.",
		}),
		frontierDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "frontier_size",
			Help:      "Entries waiting in the frontier.",
		}),
	}

	m.registry.MustRegister(
		m.requests, m.requestTime, m.retries, m.cacheLookups,
		m.bytes, m.pages, m.linksFound, m.frontierDepth,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one network attempt. outcome is the status code
// or, for transport failures, the failure kind.
func (m *Metrics) ObserveRequest(method string, status int, failure string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := failure
	if status != 0 {
		outcome = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.requestTime.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveBytes adds n to the received byte counter.
func (m *Metrics) ObserveBytes(n int) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(n))
}

// Retry records a retry for reason.
func (m *Metrics) Retry(reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Page records the outcome of one frontier entry.
func (m *Metrics) Page(result string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(result).Inc()
}

// LinksFound adds n discovered links.
func (m *Metrics) LinksFound(n int) {
	if m == nil {
		return
	}
	m.linksFound.Add(float64(n))
}

// FrontierSize sets the current frontier length.
func (m *Metrics) FrontierSize(n int) {
	if m == nil {
		return
	}
	m.frontierDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already done
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
