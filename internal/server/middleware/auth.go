package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth requires apiKey in the X-API-Key header or as a Bearer token. An
// empty apiKey disables the check. Paths in public, such as the health check,
// are always served.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			switch got := presentedKey(r); {
			case got == "":
				jsonError(w, http.StatusUnauthorized, "missing api key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				jsonError(w, http.StatusUnauthorized, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func presentedKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(apiKeyHeader)); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
