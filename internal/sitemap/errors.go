package sitemap

import "errors"

var (
	// ErrNotSitemap is returned when the document root is neither urlset nor sitemapindex.
	ErrNotSitemap = errors.New("document is not a sitemap")

	// ErrMalformed is returned when the document is not well-formed XML.
	ErrMalformed = errors.New("malformed sitemap XML")
)
