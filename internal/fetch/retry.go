package fetch

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// isRetryableStatus reports whether status warrants another attempt.
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// backoff returns delay * 2^attempt, where attempt counts from zero.
func backoff(delay time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return delay * time.Duration(1<<attempt)
}

// parseRetryAfter reads a Retry-After value given either as delta-seconds
// or as an HTTP date. ok is false when the header is absent or invalid.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
