// Package ratelimit throttles outgoing requests.
//
// Limiter combines a token bucket (average rate with a burst allowance) and
// a hard minimum interval between the start times of two consecutive
// acquisitions. The bucket is golang.org/x/time/rate; the interval floor is
// tracked here because rate.Limiter happily releases a whole burst at once.
//
// HostLimiter keeps one Limiter per host so that a crawl spanning several
// hosts throttles each of them independently.
//
// # Usage
//
//	lim, err := ratelimit.New(2, 5)
//	if err != nil {
//	    return err
//	}
//	if err := lim.Acquire(ctx); err != nil {
//	    return err // ctx was cancelled while waiting
//	}
//
// Fairness between concurrent callers is limited to the order in which they
// call Acquire. Starvation is not addressed.
package ratelimit
