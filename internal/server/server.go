// Package server exposes the bot's read-only HTTP API and the WebSocket relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
	"github.com/alanyoungcy/crudebot/internal/server/handler"
	"github.com/alanyoungcy/crudebot/internal/server/middleware"
	"github.com/alanyoungcy/crudebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Actions is nil
// when no journal is configured and LiveActions when no signal bus is.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Actions     *handler.ActionHandler
	LiveActions *handler.LiveActionHandler
}

// Server is the read-only API plus the WebSocket relay.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// New registers every route. hub and limiter are optional.
func New(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           buildHandler(cfg, handlers, hub, limiter, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "api")),
	}
}

func buildHandler(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	if handlers.Actions != nil {
		mux.HandleFunc("GET /api/actions", handlers.Actions.ListActions)
		mux.HandleFunc("GET /api/actions/{id}", handlers.Actions.GetAction)
	}
	if handlers.LiveActions != nil {
		mux.HandleFunc("GET /api/actions/live", handlers.LiveActions.ListLive)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil {
		h = middleware.RateLimit(limiter, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	return middleware.CORS(cfg.CORSOrigins)(h)
}

// Run serves on the configured port until ctx is cancelled, then gives
// in-flight requests up to drain to finish.
func (s *Server) Run(ctx context.Context, drain time.Duration) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.http.Addr, err)
	}
	return s.serve(ctx, ln, drain)
}

func (s *Server) serve(ctx context.Context, ln net.Listener, drain time.Duration) error {
	served := make(chan error, 1)
	go func() { served <- s.http.Serve(ln) }()
	s.logger.InfoContext(ctx, "api listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-served:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.InfoContext(ctx, "api draining", slog.Duration("drain", drain))
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()
	if err := s.http.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}
