// Command crudebot trades the commodities exchange simulator until it receives
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/crudebot/internal/app"
	"github.com/alanyoungcy/crudebot/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("crudebot exited", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	dryRun := flag.Bool("dry-run", false, "log decisions without submitting to the exchange")
	flag.Parse()

	slog.SetDefault(newLogger("info"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", *configPath, err)
	}
	if *dryRun {
		cfg.Mode = "dry_run"
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("crudebot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("crudebot stopped")
	return nil
}

// newLogger writes JSON to stdout. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
