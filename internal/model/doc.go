// Package model defines the data structures shared by the crawler, the
// report writers and the session store.
//
//   - CrawlResult: one fetched URL
//   - PageInfo: the SEO content the HTML parser found on a page
//   - CrawlStats: aggregate counters for a crawl
//
// The types live in their own package so that crawler, report and database
// can all use them without import cycles. They serialize to JSON for
// reports and for storage.
package model
