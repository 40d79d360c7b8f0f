package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket with a minimum spacing between acquisitions.
// It is safe for concurrent use.
type Limiter struct {
	// bucket refills continuously at rps tokens per second, capped at burst.
	bucket *rate.Limiter

	// minInterval is 1/rps. No two acquisitions start closer than this.
	minInterval time.Duration

	// mu guards next. It is never held while sleeping.
	mu sync.Mutex

	// next is the earliest start time granted to the next caller.
	next time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Limiter allowing rps requests per second on average with
// up to burst tokens of credit.
func New(rps float64, burst int) (*Limiter, error) {
	if rps <= 0 {
		return nil, ErrInvalidRate
	}
	if burst < 1 {
		return nil, ErrInvalidBurst
	}

	return &Limiter{
		bucket:      rate.NewLimiter(rate.Limit(rps), burst),
		minInterval: time.Duration(float64(time.Second) / rps),
		now:         time.Now,
	}, nil
}

// Acquire blocks until one request may be sent or ctx is done.
// The slot is reserved under the lock and the wait happens outside it, so
// callers are served in the order they called Acquire.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	reservation := l.bucket.ReserveN(now, 1)
	start := now.Add(reservation.DelayFrom(now))
	if start.Before(l.next) {
		start = l.next
	}
	previous := l.next
	l.next = start.Add(l.minInterval)
	slotEnd := l.next
	l.mu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		l.mu.Lock()
		// Hand the slot back only if nobody queued behind us.
		if l.next.Equal(slotEnd) {
			l.next = previous
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

// MinInterval returns the enforced spacing between acquisitions.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.bucket.Burst()
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.bucket.TokensAt(l.now())
}

// HostLimiter hands out one Limiter per host, created on first use.
type HostLimiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewHostLimiter validates the settings once so later lookups cannot fail.
func NewHostLimiter(rps float64, burst int) (*HostLimiter, error) {
	if _, err := New(rps, burst); err != nil {
		return nil, err
	}
	return &HostLimiter{
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*Limiter),
	}, nil
}

// Acquire waits on the limiter belonging to host.
func (h *HostLimiter) Acquire(ctx context.Context, host string) error {
	return h.For(host).Acquire(ctx)
}

// For returns the limiter for host. Host names are compared case-insensitively.
func (h *HostLimiter) For(host string) *Limiter {
	key := strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()

	if lim, ok := h.limiters[key]; ok {
		return lim
	}
	lim, _ := New(h.rps, h.burst) //nolint:errcheck // settings validated in NewHostLimiter
	h.limiters[key] = lim
	return lim
}

// Hosts returns the number of hosts seen so far.
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.limiters)
}
