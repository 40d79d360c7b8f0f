// Package main provides the entry point for the seocrawl CLI.
//
// seocrawl crawls a website breadth-first, politely, and reports the SEO
// relevant facts of every page: status codes, titles, meta descriptions,
// headings, canonical links and broken links.
//
// Usage:
//
//	seocrawl crawl https://example.com/
//	seocrawl crawl --json --save https://example.com/ https://example.org/
//
// See --help for all available options.
package main

func main() {
	Execute()
}
