package crawler

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the form of rawURL used for deduplication.
//
// The fragment and the query string are dropped, an empty path becomes "/",
// and one trailing slash is removed from any other path. Host and path case
// are preserved.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false

	switch {
	case u.Path == "":
		u.Path = "/"
		u.RawPath = ""
	case u.Path != "/" && strings.HasSuffix(u.Path, "/"):
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = strings.TrimSuffix(u.RawPath, "/")
	}

	return u.String(), nil
}

// sameHost reports whether targetURL is on host, ignoring case.
func sameHost(host, targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// isHTTP reports whether rawURL has an http or https scheme.
func isHTTP(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}
