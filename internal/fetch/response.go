package fetch

import (
	"mime"
	"net/http"
	"strings"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	// URL is the requested URL.
	URL string `json:"url"`

	// FinalURL is the URL after redirects.
	FinalURL string `json:"final_url"`

	// Method is the request method.
	Method string `json:"method"`

	// StatusCode is the HTTP status.
	StatusCode int `json:"status_code"`

	// Header holds the response headers.
	Header http.Header `json:"header"`

	// Body is the decoded body, capped at the client's max body size.
	Body []byte `json:"body"`

	// Truncated is true when the body exceeded the max body size.
	Truncated bool `json:"truncated,omitempty"`

	// Elapsed covers every attempt including backoff waits.
	Elapsed time.Duration `json:"elapsed"`

	// Attempts is the number of network attempts. Zero for cache hits.
	Attempts int `json:"attempts"`

	// FromCache is true when the response was served from the cache.
	FromCache bool `json:"from_cache"`

	// FetchedAt is when the body was received from the network.
	FetchedAt time.Time `json:"fetched_at"`
}

// OK reports whether the status is 200.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// MediaType returns the lower-cased media type of Content-Type.
func (r *Response) MediaType() string {
	if r == nil {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt
}

// IsHTML reports whether the body is an HTML document.
func (r *Response) IsHTML() bool {
	mt := r.MediaType()
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// Charset returns the charset parameter of Content-Type, if any.
func (r *Response) Charset() string {
	if r == nil {
		return ""
	}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return params["charset"]
}
