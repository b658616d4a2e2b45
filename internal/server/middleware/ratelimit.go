package middleware

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// retryAfter matches the per-minute API budget configured in server.rate_limit.
const retryAfter = "60"

// RateLimit admits requests through limiter with one "api:<client ip>" bucket
// per client. When the limiter itself fails the request is served and the
// failure logged, so a Redis outage never locks operators out.
func RateLimit(limiter domain.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), "api:"+clientIP(r))
			if err != nil {
				logger.WarnContext(r.Context(), "api rate limiter unavailable",
					slog.String("error", err.Error()),
				)
				ok = true
			}
			if !ok {
				w.Header().Set("Retry-After", retryAfter)
				jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
