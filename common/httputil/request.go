package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP address from request headers.
// It handles proxy scenarios by checking headers in this order:
//  1. X-Forwarded-For (first entry of the comma-separated list)
//  2. X-Real-IP
//  3. RemoteAddr, with the port stripped
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// QueryParam returns the first value for key, trimmed of surrounding
// whitespace, and whether the key appeared in the query string at all.
// A key given as "?page=" is present with an empty value.
func QueryParam(r *http.Request, key string) (string, bool) {
	q := r.URL.Query()
	return strings.TrimSpace(q.Get(key)), q.Has(key)
}
