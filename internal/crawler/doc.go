// Package crawler implements a polite breadth-first site crawler.
//
// # Architecture
//
// The Spider owns the crawl state: a FIFO frontier of (URL, depth) entries,
// the set of visited URLs and the ordered result list. One coordinator
// goroutine pops entries from the frontier and hands them to a bounded pool
// of workers. Each worker checks robots.txt, fetches the page through the
// shared fetch.Client and extracts its links. The coordinator appends the
// result, filters the links and pushes new entries one level deeper.
//
// # Invariants
//
//   - a URL is marked visited when it is dequeued, and is fetched at most once
//   - no entry deeper than the maximum depth is ever enqueued
//   - the number of results never exceeds the page limit, even with several
//     workers in flight
//
// # Politeness
//
//   - robots.txt is honored through a robots.Gate (configurable)
//   - every worker waits the crawl delay after each fetch, or the robots.txt
//     Crawl-delay when that is longer
//   - the fetch.Client applies its per-host rate limit and backoff
//
// # Usage
//
//	spider := crawler.NewSpider(client, crawler.WithMaxDepth(2), crawler.WithMaxPages(50))
//	results, err := spider.Crawl(ctx, "https://example.com/")
//
// Cancelling ctx stops the crawl between fetches. The results gathered so
// far are returned together with ctx.Err().
package crawler
