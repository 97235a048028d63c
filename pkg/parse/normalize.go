package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// NormalizeHost lowercases the host and removes the default port for the scheme
// (80 for http, 443 for https)
func NormalizeHost(scheme, host string) string {
	scheme = strings.ToLower(scheme)
	host = strings.ToLower(host)

	h, port, err := net.SplitHostPort(host)
	if err == nil { // Host included a port
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			if strings.Contains(h, ":") {
				return "[" + h + "]" // Keep IPv6 literals bracketed
			}
			return h
		}
	}
	return host
}

// DomainOf extracts the domain (normalized host, no path) of an absolute URL.
// Returns an error wrapping utils.ErrUnparseableURL when no scheme or host can be extracted.
func DomainOf(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty URL", utils.ErrUnparseableURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrUnparseableURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", utils.ErrUnparseableURL, trimmed)
	}

	return NormalizeHost(parsed.Scheme, parsed.Host), nil
}

// domainPtr returns the domain of rawURL, or nil when it cannot be derived
func domainPtr(rawURL string) *string {
	domain, err := DomainOf(rawURL)
	if err != nil {
		return nil
	}
	return &domain
}
