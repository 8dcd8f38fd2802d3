package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL normalizes an http(s) url, defaulting the scheme to http.
func ValidateURL(s string) (string, error) {
	return validateURL(s, "http", "http", "https")
}

// ValidateRelayURL normalizes a websocket relay url, defaulting the scheme to
// wss.
func ValidateRelayURL(s string) (string, error) {
	return validateURL(s, "wss", "ws", "wss")
}

func validateURL(s, defaultScheme string, schemes ...string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("url is empty")
	}
	if !strings.Contains(s, "://") {
		s = defaultScheme + "://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	supported := false
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			supported = true
			break
		}
	}
	if !supported {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}
