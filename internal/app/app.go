// Package app assembles crudebot from configuration and runs it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/crudebot/internal/config"
)

// App runs one configured bot instance.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New returns an App for cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and trades until ctx is cancelled. Everything Wire
// opened is released before Run returns.
func (a *App) Run(ctx context.Context) error {
	switch strings.ToLower(a.cfg.Mode) {
	case "trade", "dry_run":
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	deps, release, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	defer func() {
		release()
		a.logger.Info("resources released")
	}()

	return a.trade(ctx, deps)
}
