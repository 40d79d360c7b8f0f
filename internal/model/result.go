package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"
)

// CrawlResult is the outcome of fetching one URL.
//
// A result is created when its URL is dequeued, filled in by the fetch step
// and not modified after it has been appended to the crawl's result list.
type CrawlResult struct {
	// URL is the normalized URL. It is unique within a crawl.
	URL string `json:"url"`

	// FinalURL is the URL after redirects, when it differs from URL.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int `json:"status_code"`

	// Depth is the link distance from the start URL.
	Depth int `json:"depth"`

	// ResponseTime covers the whole logical request including retries.
	// It is encoded in JSON as seconds.
	ResponseTime time.Duration `json:"-"`

	// ContentSize is the decoded body size in bytes.
	ContentSize int `json:"content_size"`

	// ContentType is the media type of the response.
	ContentType string `json:"content_type,omitempty"`

	// Headers are the response headers. Lookups through Get are case-insensitive.
	Headers http.Header `json:"headers,omitempty"`

	// Hash is the SHA-256 of the body. Empty for empty bodies.
	Hash string `json:"hash,omitempty"`

	// Title is the page title for HTML pages.
	Title string `json:"title,omitempty"`

	// LinksFound is the number of links the parser reported on the page.
	LinksFound int `json:"links_found"`

	// Page holds the parsed SEO content. Nil for non-HTML responses.
	Page *PageInfo `json:"page,omitempty"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`

	// Errors lists the problems met while processing the URL, in order.
	Errors []string `json:"errors"`
}

// NewCrawlResult returns an empty result for url at depth.
func NewCrawlResult(url string, depth int) *CrawlResult {
	return &CrawlResult{
		URL:     url,
		Depth:   depth,
		Headers: http.Header{},
		Errors:  []string{},
	}
}

// AddError appends msg to the result's errors.
func (r *CrawlResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// HasErrors reports whether any error was recorded.
func (r *CrawlResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// OK reports whether the page was fetched with status 200.
func (r *CrawlResult) OK() bool {
	return r.StatusCode == http.StatusOK
}

// GetHeader returns the first value of the named header.
func (r *CrawlResult) GetHeader(name string) string {
	return r.Headers.Get(name)
}

// IsHTML reports whether the content type is an HTML media type.
func (r *CrawlResult) IsHTML() bool {
	return IsHTMLContentType(r.ContentType)
}

// ComputeHash sets Hash from body.
func (r *CrawlResult) ComputeHash(body []byte) {
	if len(body) == 0 {
		r.Hash = ""
		return
	}
	sum := sha256.Sum256(body)
	r.Hash = hex.EncodeToString(sum[:])
}

type crawlResultJSON CrawlResult

// MarshalJSON encodes ResponseTime as float seconds.
func (r CrawlResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		crawlResultJSON
		ResponseTime float64 `json:"response_time"`
	}{
		crawlResultJSON: crawlResultJSON(r),
		ResponseTime:    r.ResponseTime.Seconds(),
	})
}

// UnmarshalJSON decodes ResponseTime from float seconds.
func (r *CrawlResult) UnmarshalJSON(data []byte) error {
	var aux struct {
		crawlResultJSON
		ResponseTime float64 `json:"response_time"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = CrawlResult(aux.crawlResultJSON)
	r.ResponseTime = time.Duration(math.Round(aux.ResponseTime * float64(time.Second)))
	return nil
}

// IsHTMLContentType reports whether contentType names an HTML document.
// Parameters such as charset are ignored.
func IsHTMLContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
