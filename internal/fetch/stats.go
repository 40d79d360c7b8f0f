package fetch

import "sync/atomic"

// Stats are the running request counters of a Client.
type Stats struct {
	// TotalRequests counts logical requests that reached the network.
	TotalRequests int64 `json:"total_requests"`

	// SuccessfulRequests counts logical requests that ended in a success status.
	SuccessfulRequests int64 `json:"successful_requests"`

	// FailedRequests counts logical requests that ended in an error or a
	// non-success status. A request that succeeds after retries is not failed.
	FailedRequests int64 `json:"failed_requests"`

	// CachedRequests counts requests served from the cache.
	CachedRequests int64 `json:"cached_requests"`

	// BytesTransferred is the decoded body size summed over every attempt.
	BytesTransferred int64 `json:"bytes_transferred"`
}

// SuccessRate returns successful / total, or 0 when nothing was sent.
func (s Stats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

type counters struct {
	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	cached     atomic.Int64
	bytes      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		TotalRequests:      c.total.Load(),
		SuccessfulRequests: c.successful.Load(),
		FailedRequests:     c.failed.Load(),
		CachedRequests:     c.cached.Load(),
		BytesTransferred:   c.bytes.Load(),
	}
}

func (c *counters) reset() {
	c.total.Store(0)
	c.successful.Store(0)
	c.failed.Store(0)
	c.cached.Store(0)
	c.bytes.Store(0)
}

// Stats returns a snapshot of the request counters.
func (c *Client) Stats() Stats {
	return c.counters.snapshot()
}

// ResetStats zeroes the request counters.
func (c *Client) ResetStats() {
	c.counters.reset()
}
