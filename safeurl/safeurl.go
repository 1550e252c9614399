// Package safeurl provides the security primitives docforge applies at its
// network and filesystem boundaries: URL safety checks (SSRF prevention),
// path traversal guards, and bounded I/O helpers.
package safeurl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response body reads (10 MiB).
// PDF conversion responses are binary and can legitimately be large.
const MaxResponseBody int64 = 10 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("safeurl: path traversal detected")

// ErrSSRF is returned when a URL targets a private/loopback address.
var ErrSSRF = errors.New("safeurl: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("safeurl: only http and https schemes are allowed")

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned absolute path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback IP (SSRF prevention).
// DNS resolution is performed to catch rebinding via internal hostnames.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("safeurl: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("safeurl: URL has no host")
	}

	// Check literal IP first.
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	// Resolve hostname and check all addresses.
	addrs, err := net.LookupHost(host)
	if err != nil {
		// DNS failure — allow through (might be a valid external host that
		// is temporarily unresolvable). The caller will get a network error
		// at connection time anyway.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// ValidateFilenameStem rejects export filename stems that contain characters
// unsuitable for file names or content-disposition headers. Allows
// alphanumeric, underscore, hyphen, dot, and space.
func ValidateFilenameStem(s string) error {
	if s == "" {
		return fmt.Errorf("safeurl: filename stem must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("safeurl: filename stem too long (max 256)")
	}
	for _, r := range s {
		if !isStemChar(r) {
			return fmt.Errorf("safeurl: invalid character %q in filename stem", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r. Returns an error if the limit
// is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("safeurl: response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isStemChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' || r == ' '
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	privateRanges := []struct {
		network string
	}{
		{"10.0.0.0/8"},
		{"172.16.0.0/12"},
		{"192.168.0.0/16"},
		{"fc00::/7"},
		{"169.254.0.0/16"},
		{"::1/128"},
	}
	for _, pr := range privateRanges {
		_, cidr, err := net.ParseCIDR(pr.network)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
