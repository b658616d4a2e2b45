package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crudebot/internal/server"
	"github.com/alanyoungcy/crudebot/internal/server/handler"
	"github.com/alanyoungcy/crudebot/internal/server/ws"
)

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 5 * time.Second

// trade runs the strategy engine plus whichever optional components are
// wired: the HTTP API, the WebSocket relay and the journal archiver. In
// dry_run mode the executor suppresses submissions and everything else runs
// unchanged.
func (a *App) trade(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("dry_run", deps.Executor.DryRun()),
		slog.Any("strategies", deps.Engine.ListNames()),
	)

	a.announce(ctx, deps, "crudebot started")
	defer a.announce(ctx, deps, "crudebot stopped")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	if deps.Archiver != nil {
		interval := a.cfg.S3.ArchiveInterval.Duration
		g.Go(func() error {
			return deps.Archiver.Run(ctx, interval)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return ignoreCanceled(g.Wait())
}

// startHTTPServer adds the API server and, when the signal bus is wired, the
// WebSocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	health := handler.NewHealthHandler(a.logger)
	for name, check := range deps.HealthChecks {
		health.WithCheck(name, check)
	}
	handlers := server.Handlers{
		Health: health,
		Status: handler.NewStatusHandler(a.cfg.Mode, deps.Executor.DryRun(), deps.Engine),
	}
	if deps.ActionStore != nil {
		handlers.Actions = handler.NewActionHandler(deps.ActionStore, a.logger)
	}
	if deps.SignalBus != nil {
		handlers.LiveActions = handler.NewLiveActionHandler(deps.SignalBus, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:       a.cfg.Mode,
			Strategies: deps.Engine.ListNames(),
			StartedAt:  time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.APILimiter, a.logger)

	g.Go(func() error {
		return srv.Run(ctx, shutdownTimeout)
	})
}

// announce sends a lifecycle notice to every notification channel.
func (a *App) announce(ctx context.Context, deps *Dependencies, title string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	msg := fmt.Sprintf("mode=%s strategies=%s", a.cfg.Mode, strings.Join(deps.Engine.ListNames(), ","))
	if err := deps.Notifier.Announce(ctx, title, msg); err != nil {
		a.logger.WarnContext(ctx, "lifecycle notice failed", slog.String("error", err.Error()))
	}
}

// ignoreCanceled treats context cancellation as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
