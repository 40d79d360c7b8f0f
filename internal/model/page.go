package model

import "strings"

// PageInfo is the SEO content extracted from an HTML page.
type PageInfo struct {
	// Title is the text of <title>.
	Title string `json:"title,omitempty"`

	// MetaDescription is <meta name="description">.
	MetaDescription string `json:"meta_description,omitempty"`

	// MetaRobots is <meta name="robots">.
	MetaRobots string `json:"meta_robots,omitempty"`

	// Canonical is the absolute <link rel="canonical"> URL.
	Canonical string `json:"canonical,omitempty"`

	// Lang is the <html lang> attribute.
	Lang string `json:"lang,omitempty"`

	// H1 lists the text of every <h1>.
	H1 []string `json:"h1,omitempty"`

	// Links are the absolute http(s) URLs of every <a href>, in document order.
	Links []string `json:"links,omitempty"`

	// InternalLinks counts links on the page's own host.
	InternalLinks int `json:"internal_links"`

	// ExternalLinks counts links to other hosts.
	ExternalLinks int `json:"external_links"`

	// Images counts <img> elements.
	Images int `json:"images"`

	// ImagesMissingAlt counts <img> elements without alt text.
	ImagesMissingAlt int `json:"images_missing_alt"`

	// SchemaTypes lists the @type values of JSON-LD blocks.
	SchemaTypes []string `json:"schema_types,omitempty"`

	// WordCount is the number of words of visible text.
	WordCount int `json:"word_count"`
}

// NoIndex reports whether the robots meta tag forbids indexing.
func (p *PageInfo) NoIndex() bool {
	return p != nil && strings.Contains(strings.ToLower(p.MetaRobots), "noindex")
}

// NoFollow reports whether the robots meta tag forbids following links.
func (p *PageInfo) NoFollow() bool {
	return p != nil && strings.Contains(strings.ToLower(p.MetaRobots), "nofollow")
}
