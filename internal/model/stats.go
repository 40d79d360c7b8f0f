package model

import "time"

// CrawlStats are the aggregate counters of one crawl.
type CrawlStats struct {
	// StartURL is the normalized start URL.
	StartURL string `json:"start_url"`

	// State is the crawler state when the snapshot was taken.
	State string `json:"state"`

	// PagesCrawled counts results, including failed fetches.
	PagesCrawled int `json:"pages_crawled"`

	// PagesSkipped counts URLs refused by robots.txt.
	PagesSkipped int `json:"pages_skipped"`

	// Errors counts results that recorded at least one error.
	Errors int `json:"errors"`

	// TotalLinksFound sums LinksFound over all results.
	TotalLinksFound int `json:"total_links_found"`

	// StartedAt and FinishedAt bound the crawl. FinishedAt is zero while running.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// DurationSeconds is FinishedAt - StartedAt, or the time so far.
	DurationSeconds float64 `json:"duration_seconds"`

	// PagesPerSecond is PagesCrawled / DurationSeconds.
	PagesPerSecond float64 `json:"pages_per_second"`
}

// Finalize fills the derived duration fields relative to now.
func (s *CrawlStats) Finalize(now time.Time) {
	if s.StartedAt.IsZero() {
		return
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = now
	}
	s.DurationSeconds = end.Sub(s.StartedAt).Seconds()
	if s.DurationSeconds > 0 {
		s.PagesPerSecond = float64(s.PagesCrawled) / s.DurationSeconds
	} else {
		s.PagesPerSecond = 0
	}
}
