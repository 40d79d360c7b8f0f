package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

const (
	// DefaultMaxFetches caps the documents Collect downloads.
	DefaultMaxFetches = 50

	// DefaultMaxURLs caps the page URLs Collect returns.
	DefaultMaxURLs = 50000
)

// URL is one <url> entry of a urlset.
type URL struct {
	Loc        string  `json:"loc"`
	LastMod    string  `json:"lastmod,omitempty"`
	ChangeFreq string  `json:"changefreq,omitempty"`
	Priority   float64 `json:"priority,omitempty"`
}

// Sitemap is a parsed sitemap document.
type Sitemap struct {
	// URLs holds the page entries of a urlset.
	URLs []URL `json:"urls,omitempty"`

	// Sitemaps holds the child sitemap locations of a sitemapindex.
	Sitemaps []string `json:"sitemaps,omitempty"`
}

// IsIndex reports whether the document was a sitemapindex.
func (s *Sitemap) IsIndex() bool {
	return len(s.Sitemaps) > 0
}

// Locations returns the page locations in document order.
func (s *Sitemap) Locations() []string {
	locs := make([]string, 0, len(s.URLs))
	for _, u := range s.URLs {
		locs = append(locs, u.Loc)
	}
	return locs
}

// Parse parses a urlset or sitemapindex document.
func Parse(data []byte) (*Sitemap, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	sm := &Sitemap{}
	switch {
	case xmlquery.FindOne(doc, "/urlset") != nil:
		for _, n := range xmlquery.Find(doc, "/urlset/url") {
			loc := text(n, "loc")
			if loc == "" {
				continue
			}
			entry := URL{
				Loc:        loc,
				LastMod:    text(n, "lastmod"),
				ChangeFreq: text(n, "changefreq"),
			}
			if p, err := strconv.ParseFloat(text(n, "priority"), 64); err == nil {
				entry.Priority = p
			}
			sm.URLs = append(sm.URLs, entry)
		}
	case xmlquery.FindOne(doc, "/sitemapindex") != nil:
		for _, n := range xmlquery.Find(doc, "/sitemapindex/sitemap") {
			if loc := text(n, "loc"); loc != "" {
				sm.Sitemaps = append(sm.Sitemaps, loc)
			}
		}
	default:
		return nil, ErrNotSitemap
	}
	return sm, nil
}

func text(n *xmlquery.Node, child string) string {
	c := xmlquery.FindOne(n, child)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.InnerText())
}

// Getter downloads the document at url.
type Getter func(ctx context.Context, url string) ([]byte, error)

// Collect fetches root and, for an index, every child sitemap breadth first.
// Documents that fail to download or parse are skipped. Collection stops
// after maxFetches documents or maxURLs page entries; zero selects the
// package defaults.
func Collect(ctx context.Context, get Getter, root string, maxFetches, maxURLs int) ([]URL, error) {
	if maxFetches <= 0 {
		maxFetches = DefaultMaxFetches
	}
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}

	queue := []string{root}
	seen := map[string]struct{}{root: {}}
	var (
		urls    []URL
		fetched int
		lastErr error
	)

	for len(queue) > 0 && fetched < maxFetches && len(urls) < maxURLs {
		if err := ctx.Err(); err != nil {
			return urls, err
		}
		current := queue[0]
		queue = queue[1:]
		fetched++

		data, err := get(ctx, current)
		if err != nil {
			lastErr = err
			continue
		}
		sm, err := Parse(data)
		if err != nil {
			lastErr = err
			continue
		}
		for _, child := range sm.Sitemaps {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
		urls = append(urls, sm.URLs...)
	}

	if len(urls) > maxURLs {
		urls = urls[:maxURLs]
	}
	if len(urls) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return urls, nil
}
