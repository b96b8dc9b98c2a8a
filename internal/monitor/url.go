package monitor

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL trims the input and prefixes https:// when no http(s) scheme
// is present. The result must parse as an absolute URL with a host.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidSite)
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", ErrInvalidSite, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: url %q has no host", ErrInvalidSite, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u.String(), nil
}
