package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// Key builds a bucket key of the form scope:identifier:route.
func Key(scope, identifier, route string) string {
	return scope + ":" + identifier + ":" + route
}

// Identifier prefers an authenticated id and otherwise derives one from the
// caller's network origin.
func Identifier(authID string, r *http.Request) string {
	if authID != "" {
		return "user:" + authID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP extracts the client IP address from the request. The first
// X-Forwarded-For hop wins, then X-Real-IP, then RemoteAddr without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
