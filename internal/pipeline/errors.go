package pipeline

import "errors"

// ErrNotCrawled is returned by steps that need crawl results when the crawl
// never started.
var ErrNotCrawled = errors.New("the crawl did not start")
