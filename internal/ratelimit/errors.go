package ratelimit

import "errors"

var (
	// ErrInvalidRate is returned when requests per second is not positive.
	ErrInvalidRate = errors.New("invalid rate: requests per second must be positive")

	// ErrInvalidBurst is returned when the burst size is smaller than one.
	ErrInvalidBurst = errors.New("invalid burst: burst size must be at least 1")
)
