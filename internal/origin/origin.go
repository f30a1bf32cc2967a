// Package origin validates browser Origin headers for the relay's HTTP and
// WebSocket surfaces.
package origin

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates an Origin header and returns it in canonical
// scheme://host[:port] form, plus the host[:port] portion for same-host
// comparisons. Default ports (80/443) are stripped.
//
// The special Origin value "null" is allowed and returned as-is.
func Normalize(originHeader string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether a normalized origin may access the given request
// host.
//
// When allowedOrigins is non-empty, each entry must be "*" or a normalized
// origin string as produced by Normalize. Otherwise the default policy is
// same-host: the origin's host[:port] must match the request's Host header.
// Scheme is deliberately not compared because the relay may sit behind a
// TLS-terminating proxy.
func IsAllowed(normalized, originHost, requestHost string, allowedOrigins []string) bool {
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == normalized {
				return true
			}
		}
		return false
	}

	scheme := ""
	switch {
	case strings.HasPrefix(normalized, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalized, "https://"):
		scheme = "https"
	default:
		// "null" never matches a host-based request.
		return false
	}

	reqHost, ok := canonicalHost(strings.TrimSpace(requestHost), scheme)
	if !ok {
		return false
	}
	return originHost == reqHost
}

// canonicalHost lowercases the hostname, brackets IPv6 literals, and strips
// the port when it is the default for the scheme.
func canonicalHost(rawHost, scheme string) (string, bool) {
	if rawHost == "" {
		return "", false
	}

	hostname, portStr := rawHost, ""
	if h, p, err := net.SplitHostPort(rawHost); err == nil {
		hostname, portStr = h, p
	} else if strings.HasPrefix(rawHost, "[") {
		// Bracketed IPv6 literal without a port fails SplitHostPort.
		hostname = strings.TrimSuffix(strings.TrimPrefix(rawHost, "["), "]")
	} else if strings.Contains(rawHost, ":") {
		// Unbracketed IPv6 literals are not valid authority components.
		return "", false
	}

	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if portStr != "" {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}
