// Package attribution classifies an order's traffic origin into an AI
// channel using an ordered chain of detection stages.
package attribution

import (
	"net/url"
	"strings"
)

// parseURL parses a possibly-malformed URL defensively: first as-is, then
// with an assumed https scheme. Returns nil when no host can be recovered.
func parseURL(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u
	}

	// Bare hostnames ("chatgpt.com/some/path") parse without a host.
	u, err = url.Parse("https://" + raw)
	if err == nil && u.Host != "" {
		return u
	}
	return nil
}

// normalizeHost lowercases a hostname and strips a leading "www.".
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// HostOf extracts the normalized hostname from a raw URL string,
// returning "" when the URL yields no host.
func HostOf(raw string) string {
	u := parseURL(raw)
	if u == nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

// domainMatches reports whether host equals domain or is one of its
// subdomains.
func domainMatches(host, domain string) bool {
	if host == "" || domain == "" {
		return false
	}
	domain = normalizeHost(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
