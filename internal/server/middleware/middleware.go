// Package middleware wraps the bot's HTTP API: CORS for the ops dashboard,
// request logging, API-key auth and per-client rate limiting.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// apiKeyHeader is the header the dashboard sends its key in. It matches the
// header the exchange itself uses.
const apiKeyHeader = "X-API-Key"

// jsonError writes {"error": msg}.
func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
