package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrURLBlocked is returned when a URL is denied by the filter.
var ErrURLBlocked = errors.New("URL blocked by filter")

// AnyDomain in AllowDomains admits every public host.
const AnyDomain = "*"

// URLFilterConfig holds the configuration for URL filtering.
type URLFilterConfig struct {
	// AllowDomains is the list of allowed domains. If empty, ALL domains
	// are blocked (default-deny). Subdomains are matched: allowing
	// "example.com" also allows "api.example.com". "*" allows any host.
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains is the list of explicitly denied domains. Deny takes
	// precedence over allow.
	DenyDomains []string `yaml:"deny_domains"`
}

// URLFilter implements default-deny URL filtering with allow/deny domain lists.
// Only http and https URLs pass, and IP literals in loopback, private or
// link-local ranges are always refused.
type URLFilter struct {
	allow []string
	deny  []string
}

// NewURLFilter creates a URL filter from the given config.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	return &URLFilter{allow: normalizeDomains(cfg.AllowDomains), deny: normalizeDomains(cfg.DenyDomains)}
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Check validates that the URL is allowed by the filter.
// Returns nil if allowed, ErrURLBlocked if denied.
func (f *URLFilter) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrURLBlocked, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q not allowed", ErrURLBlocked, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s (local address)", ErrURLBlocked, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
			return fmt.Errorf("%w: %s (non-public address)", ErrURLBlocked, host)
		}
	}

	// Deny list takes precedence.
	for _, d := range f.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s (denied)", ErrURLBlocked, host)
		}
	}

	if len(f.allow) == 0 {
		return fmt.Errorf("%w: %s (no domains allowed)", ErrURLBlocked, host)
	}

	for _, a := range f.allow {
		if a == AnyDomain || matchDomain(host, a) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s (not in allow list)", ErrURLBlocked, host)
}

// matchDomain checks if host matches domain or is a subdomain of it.
// "api.example.com" matches "example.com".
// "notexample.com" does NOT match "example.com".
func matchDomain(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
