// Package fetch is the HTTP client used by the crawler.
//
// Client adds the behavior a polite crawler needs on top of net/http:
//
//   - default browser-like headers and a configurable User-Agent
//   - per-host rate limiting through ratelimit.HostLimiter
//   - retries with exponential backoff on transport failures and on
//     429/500/502/503/504, honoring Retry-After on 429
//   - optional read-through caching of 200 responses through cache.Manager
//   - gzip, deflate and brotli body decoding
//   - running request counters
//
// Failures are returned as *Error values carrying a Kind, so callers can
// branch on the failure class with errors.Is against the package sentinels:
//
//	resp, err := client.Get(ctx, "https://example.com/", nil)
//	switch {
//	case errors.Is(err, fetch.ErrTimeout):
//	    ...
//	case errors.Is(err, fetch.ErrRateLimited):
//	    ...
//	}
//
// When retries are exhausted on a retryable status the last response is
// returned together with the error.
package fetch
