package crawler

import "errors"

var (
	// ErrInvalidStartURL is returned when the start URL is not an absolute http(s) URL.
	ErrInvalidStartURL = errors.New("invalid start URL")

	// ErrAlreadyRunning is returned when Crawl is called on a running Spider.
	ErrAlreadyRunning = errors.New("crawl already running")

	// ErrInvalidOption is returned when a limit option is out of range.
	ErrInvalidOption = errors.New("invalid crawler option")
)
