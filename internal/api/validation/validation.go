package validation

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxURLLength bounds scan targets accepted from API callers.
	MaxURLLength = 2048
	MaxThreads   = 10
	// MaxExplainLength bounds text submitted for explanation.
	MaxExplainLength = 8192
)

var (
	// DomainRegex validates domain format
	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	// scanIDRegex allows the identifiers the backend issues (uuids, hex, slugs)
	scanIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,127}$`)
)

// IsValidDomain checks if the string is a valid domain format
func IsValidDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	return domainRegex.MatchString(domain)
}

// IsValidIP checks if the string is a valid IP address (v4 or v6)
func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// IsValidScanID checks a scan identifier used in a URL path
func IsValidScanID(id string) bool {
	return scanIDRegex.MatchString(id) && !strings.Contains(id, "..")
}

// IsValidScanTarget checks that a non-empty target looks like something the
// backend can scan: a domain, an IP, localhost, or an http(s) URL with one of
// those as host. The backend adds a missing scheme itself.
func IsValidScanTarget(target string) bool {
	if target == "" || len(target) > MaxURLLength {
		return false
	}

	raw := target
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := u.Hostname()
	return host == "localhost" || IsValidIP(host) || IsValidDomain(host)
}

// ValidateScanRequest returns field errors for a scan start. An empty URL is
// left to the controller.
func ValidateScanRequest(target string, threads int) map[string]string {
	errors := make(map[string]string)

	if target != "" && !IsValidScanTarget(target) {
		errors["url"] = "Invalid URL"
	}
	if threads < 0 || threads > MaxThreads {
		errors["threads"] = "Threads must be between 1 and 10"
	}

	return errors
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen bytes without splitting a rune
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
