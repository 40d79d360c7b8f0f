package crawler

import (
	"net/url"
	"path"
	"strings"
)

// DefaultSkipExtensions are path suffixes that never lead to HTML pages.
var DefaultSkipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".zip",
	".exe", ".dmg", ".mp4", ".mp3", ".css", ".js",
}

// linkFilter decides whether a normalized URL may enter the frontier.
type linkFilter struct {
	// skipExtensions are matched case-insensitively against the end of the URL.
	skipExtensions []string

	// excludePatterns are plain substrings of the URL.
	excludePatterns []string

	// ignorePatterns are path globs to skip.
	ignorePatterns []string

	// followPatterns are path globs. When set, only matching paths pass.
	followPatterns []string
}

// allow applies the filters in order: scheme, skipped extension, exclude
// substring, then the ignore and follow globs.
func (f *linkFilter) allow(target string) bool {
	if !isHTTP(target) {
		return false
	}

	lower := strings.ToLower(target)
	for _, ext := range f.skipExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return false
		}
	}

	for _, pattern := range f.excludePatterns {
		if pattern != "" && strings.Contains(target, pattern) {
			return false
		}
	}

	return f.shouldCrawl(target)
}

// shouldCrawl checks the path of targetURL against the ignore and follow globs.
//
//  1. If the path matches any ignore pattern, it is skipped.
//  2. If follow patterns are set and none matches, it is skipped.
//  3. Otherwise it is crawled.
func (f *linkFilter) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(f.followPatterns) == 0 {
		return true
	}
	for _, pattern := range f.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard" and "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, urlPath string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(urlPath, prefix+"/") || urlPath == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		if strings.HasSuffix(urlPath, "."+ext) {
			return true
		}
	}

	if matched, err := path.Match(pattern, urlPath); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(urlPath)); err == nil && matched {
			return true
		}
	}

	return false
}
