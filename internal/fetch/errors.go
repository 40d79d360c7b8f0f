package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrTimeout is returned when a request or its retry budget timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrConnection is returned when the server could not be reached.
	ErrConnection = errors.New("connection failed")

	// ErrDNS is returned when the host name does not resolve.
	ErrDNS = errors.New("host not found")

	// ErrTooManyRedirects is returned when the redirect limit was hit.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrHTTPStatus is returned when retries ran out on a 5xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrRateLimited is returned when retries ran out on HTTP 429.
	ErrRateLimited = errors.New("rate limited by server")

	// ErrCanceled is returned when the caller's context was cancelled.
	ErrCanceled = errors.New("request canceled")

	// ErrInvalidRequest is returned for malformed URLs or unsupported schemes.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidProxy is returned when the proxy URL cannot be used.
	ErrInvalidProxy = errors.New("invalid proxy URL")

	// ErrInvalidOption is returned by New for out-of-range option values.
	ErrInvalidOption = errors.New("invalid client option")
)

// Kind classifies a failed request.
type Kind int

const (
	// KindTimeout covers client timeouts and the per-request deadline.
	KindTimeout Kind = iota + 1
	// KindConnection covers refused, reset and otherwise failed connections.
	KindConnection
	// KindDNS is a permanent resolution failure. It is not retried.
	KindDNS
	// KindTooManyRedirects is not retried.
	KindTooManyRedirects
	// KindHTTPStatus is a retryable 5xx that never recovered.
	KindHTTPStatus
	// KindRateLimited is a 429 that never recovered.
	KindRateLimited
	// KindCanceled means the caller gave up.
	KindCanceled
	// KindInvalidRequest means the request could not be built.
	KindInvalidRequest
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_error"
	case KindDNS:
		return "dns_error"
	case KindTooManyRedirects:
		return "too_many_redirects"
	case KindHTTPStatus:
		return "http_status_error"
	case KindRateLimited:
		return "rate_limited"
	case KindCanceled:
		return "canceled"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// sentinel maps a kind to its package-level error.
func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindConnection:
		return ErrConnection
	case KindDNS:
		return ErrDNS
	case KindTooManyRedirects:
		return ErrTooManyRedirects
	case KindHTTPStatus:
		return ErrHTTPStatus
	case KindRateLimited:
		return ErrRateLimited
	case KindCanceled:
		return ErrCanceled
	case KindInvalidRequest:
		return ErrInvalidRequest
	default:
		return nil
	}
}

// retryable reports whether a transport failure of this kind is worth another attempt.
func (k Kind) retryable() bool {
	return k == KindTimeout || k == KindConnection
}

// Error describes a request that did not produce a usable response.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Method and URL identify the request.
	Method string
	URL    string

	// StatusCode is the last HTTP status seen, or 0 for transport failures.
	StatusCode int

	// RetryAfter is the server-requested wait from the last 429 response.
	RetryAfter time.Duration

	// Attempts is the number of network attempts made.
	Attempts int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// classify maps a transport error to a Kind. parent is the caller's context;
// its cancellation is reported as KindCanceled rather than a timeout.
func classify(parent context.Context, err error) Kind {
	if parent.Err() != nil {
		return KindCanceled
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return KindTooManyRedirects
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return KindDNS
		case dnsErr.IsTimeout:
			return KindTimeout
		default:
			return KindConnection
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
