package config

import "strings"

// SiteConfig holds per-host crawl overrides.
type SiteConfig struct {
	// Cookie is sent with every request to the host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers for the host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxDepth overrides crawler.max_depth when positive.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// IgnorePatterns are path globs to skip.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`

	// FollowPatterns are path globs. When set, only matching paths are crawled.
	FollowPatterns []string `yaml:"follow_patterns,omitempty"`
}

// SiteConfig returns the settings for host, merged over Defaults.
// Host matching ignores case and a leading "www.".
func (c *Config) SiteConfig(host string) SiteConfig {
	result := c.Defaults
	if len(c.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(c.Defaults.Headers))
		for k, v := range c.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	site, ok := c.lookupSite(host)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.MaxDepth != 0 {
		result.MaxDepth = site.MaxDepth
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range site.Headers {
			result.Headers[k] = v
		}
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	return result
}

func (c *Config) lookupSite(host string) (SiteConfig, bool) {
	if site, ok := c.Sites[host]; ok {
		return site, true
	}
	want := normalizeHost(host)
	for name, site := range c.Sites {
		if normalizeHost(name) == want {
			return site, true
		}
	}
	return SiteConfig{}, false
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
