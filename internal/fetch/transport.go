package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// HostHeaders are extra request headers for one host.
type HostHeaders struct {
	// Cookie is sent as the Cookie header. Format: "name=value; name2=value2".
	Cookie string

	// Headers are set on every request to the host.
	Headers map[string]string
}

// newTransport builds the pooled transport. proxyURL may be empty.
func newTransport(proxyURL string, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		// Bodies are decoded in readBody so that brotli is handled too.
		DisableCompression: true,
	}

	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, proxyURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, dialer)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProxy, err)
		}
		transport.Proxy = nil
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	return transport, nil
}

// hostHeaderTransport injects per-host headers and cookies.
type hostHeaderTransport struct {
	base  http.RoundTripper
	hosts map[string]HostHeaders
}

// RoundTrip adds the configured headers for req's host. The request is
// cloned before it is modified, as the RoundTripper contract requires.
func (t *hostHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hh, ok := t.hosts[strings.ToLower(req.URL.Hostname())]
	if !ok {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	for k, v := range hh.Headers {
		clone.Header.Set(k, v)
	}
	if hh.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+hh.Cookie)
		} else {
			clone.Header.Set("Cookie", hh.Cookie)
		}
	}
	return t.base.RoundTrip(clone)
}
