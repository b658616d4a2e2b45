package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// cycleLock is the lock name that keeps two bot instances from trading the
// same account in the same cycle.
const cycleLock = "cycle"

// EngineConfig configures an Engine. Only Interval is required.
type EngineConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
	Locks    domain.LockManager // optional
	Bus      domain.SignalBus   // optional
	Alerts   Alerter            // optional
}

// StrategyInfo is the running tally for one strategy.
type StrategyInfo struct {
	Name        string    `json:"name"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
	LastRunTook string    `json:"last_run_took,omitempty"`
}

// Snapshot is the engine state exposed on the status endpoint.
type Snapshot struct {
	Cycles     int64               `json:"cycles"`
	LastCycle  *domain.CycleReport `json:"last_cycle,omitempty"`
	Strategies []StrategyInfo      `json:"strategies"`
}

// Engine runs every registered strategy, in registration order, once per
// cycle. Strategies never share state and a failing strategy never stops the
// ones after it.
type Engine struct {
	registry *Registry
	cfg      EngineConfig
	logger   *slog.Logger

	mu        sync.Mutex
	cycles    int64
	lastCycle *domain.CycleReport
	stats     map[string]*StrategyInfo
}

// NewEngine creates an Engine over the strategies in registry.
func NewEngine(registry *Registry, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	return &Engine{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "strategy_engine")),
		stats:    make(map[string]*StrategyInfo),
	}
}

// ListNames returns the names of all registered strategies in run order.
func (e *Engine) ListNames() []string {
	return e.registry.List()
}

// Run executes one cycle immediately, then waits Interval after each cycle
// finishes before starting the next, until ctx is cancelled. It always returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("trading strategies started",
		slog.Any("strategies", e.registry.List()),
		slog.Duration("interval", e.cfg.Interval),
	)
	defer e.logger.Info("trading strategies terminated")

	for {
		e.RunCycle(ctx)

		// The pause starts when the cycle ends, so a slow cycle never
		// shortens the gap before the next one.
		timer := time.NewTimer(e.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle runs every strategy once and returns the cycle report. A strategy
// that has started always finishes its submissions; cancellation is only
// honoured between strategies.
func (e *Engine) RunCycle(ctx context.Context) domain.CycleReport {
	report := domain.CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes:  []domain.StrategyOutcome{},
	}
	ctx = domain.WithCycleID(ctx, report.ID)
	logger := e.logger.With(slog.String("cycle_id", report.ID))

	if e.cfg.Locks != nil {
		unlock, err := e.cfg.Locks.Acquire(ctx, cycleLock, e.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			logger.Info("cycle lock held elsewhere, skipping cycle")
			report.Skipped = true
			return e.finish(ctx, report)
		case err != nil:
			logger.Warn("cycle lock unavailable, running unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	for _, s := range e.registry.Strategies() {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		report.Outcomes = append(report.Outcomes, e.runStrategy(ctx, logger, s))
	}
	return e.finish(ctx, report)
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{Cycles: e.cycles, Strategies: make([]StrategyInfo, 0, len(e.stats))}
	if e.lastCycle != nil {
		last := *e.lastCycle
		last.Outcomes = append([]domain.StrategyOutcome(nil), e.lastCycle.Outcomes...)
		snap.LastCycle = &last
	}
	for _, name := range e.registry.List() {
		if info, ok := e.stats[name]; ok {
			snap.Strategies = append(snap.Strategies, *info)
		}
	}
	return snap
}

// runStrategy evaluates one strategy on a context that outlives cancellation,
// so a started strategy is never cut off between two dependent submissions.
func (e *Engine) runStrategy(ctx context.Context, logger *slog.Logger, s Strategy) domain.StrategyOutcome {
	start := time.Now()
	err := e.safeEvaluate(context.WithoutCancel(ctx), s)
	took := time.Since(start)

	out := domain.StrategyOutcome{Strategy: s.Name(), Duration: took}
	if err != nil {
		out.Error = err.Error()
		logger.Warn("strategy error",
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()),
		)
		e.alert(ctx, domain.Alert{
			Event:  "strategy_error",
			Title:  "Strategy failed",
			Fields: map[string]string{"strategy": s.Name(), "error": err.Error()},
		})
	}
	e.record(s.Name(), start, took, err)
	return out
}

// safeEvaluate turns a panicking strategy into an error.
func (e *Engine) safeEvaluate(ctx context.Context, s Strategy) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Evaluate(ctx)
}

func (e *Engine) record(name string, at time.Time, took time.Duration, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.stats[name]
	if !ok {
		info = &StrategyInfo{Name: name}
		e.stats[name] = info
	}
	info.Runs++
	info.LastRunAt = at.UTC()
	info.LastRunTook = took.String()
	if err != nil {
		info.Failures++
		info.LastError = err.Error()
	}
}

func (e *Engine) finish(ctx context.Context, report domain.CycleReport) domain.CycleReport {
	report.Duration = time.Since(report.StartedAt)

	e.mu.Lock()
	e.cycles++
	last := report
	e.lastCycle = &last
	e.mu.Unlock()

	e.logger.Debug("cycle finished",
		slog.String("cycle_id", report.ID),
		slog.Int("strategies", len(report.Outcomes)),
		slog.Duration("took", report.Duration),
		slog.Bool("skipped", report.Skipped),
		slog.Bool("cancelled", report.Cancelled),
	)

	if e.cfg.Bus != nil {
		payload, err := json.Marshal(report)
		if err == nil {
			err = e.cfg.Bus.Publish(context.WithoutCancel(ctx), domain.ChannelCycles, payload)
		}
		if err != nil {
			e.logger.Warn("publish cycle report failed", slog.String("error", err.Error()))
		}
	}
	return report
}

func (e *Engine) alert(ctx context.Context, a domain.Alert) {
	if e.cfg.Alerts != nil {
		e.cfg.Alerts.Alert(ctx, a)
	}
}
