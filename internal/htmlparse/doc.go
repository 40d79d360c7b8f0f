// Package htmlparse extracts the SEO-relevant content of an HTML page:
// title, meta tags, canonical URL, headings, links, images, hreflang
// alternates, JSON-LD structured data and a visible word count.
//
// Parse decodes the body to UTF-8 first, using the charset from the
// Content-Type header when present and sniffing the document otherwise.
// Relative URLs are resolved against the page URL, honoring <base href>.
//
// Extractor adapts Parse to the crawler's link extraction contract.
package htmlparse
