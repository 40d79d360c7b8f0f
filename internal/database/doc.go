// Package database stores crawl sessions in SQLite.
//
// A session is one finished crawl: its id (a UUID), start URL, final state
// and CrawlStats, plus one row per CrawlResult. Sessions of the same start
// URL can be compared to see which pages appeared, disappeared or changed
// status between two crawls.
//
// The driver is modernc.org/sqlite, so no cgo is needed and the database is
// a single file in the XDG data directory.
package database
