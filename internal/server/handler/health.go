package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds every dependency check.
const healthCheckTimeout = 2 * time.Second

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	logger *slog.Logger
	checks map[string]CheckFunc
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, checks: make(map[string]CheckFunc)}
}

// WithCheck adds a named dependency check and returns h.
func (h *HealthHandler) WithCheck(name string, fn CheckFunc) *HealthHandler {
	h.checks[name] = fn
	return h
}

// HealthCheck reports "ok" when every check passes and "degraded" with a 503
// otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	respond(w, code, body)
}
