// Package executor turns strategy decisions into exchange requests. Every
// request, successful or not, is logged and handed to the configured
// recorders.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crudebot/internal/domain"
	"github.com/alanyoungcy/crudebot/internal/platform/exchange"
	"github.com/alanyoungcy/crudebot/internal/strategy"
)

// Submitter is the state-changing half of the exchange client.
type Submitter interface {
	PlaceOrder(ctx context.Context, order domain.Order) error
	CreateLease(ctx context.Context, ticker string) (domain.Lease, error)
	ProcessLease(ctx context.Context, req domain.ProcessRequest) error
	MarkNewsRead(ctx context.Context, id int64) error
}

// Recorder receives a copy of every action. Errors are logged and otherwise
// ignored; a recorder can never fail a trade.
type Recorder interface {
	Record(ctx context.Context, action domain.Action) error
}

// Executor implements strategy.Actions on top of a Submitter.
type Executor struct {
	exchange  Submitter
	recorders []Recorder
	alerts    strategy.Alerter
	dryRun    bool
	logger    *slog.Logger
	now       func() time.Time
}

var _ strategy.Actions = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithRecorders appends recorders that receive every action.
func WithRecorders(rs ...Recorder) Option {
	return func(e *Executor) {
		for _, r := range rs {
			if r != nil {
				e.recorders = append(e.recorders, r)
			}
		}
	}
}

// WithAlerter sends a trade_executed alert for every filled order.
func WithAlerter(a strategy.Alerter) Option {
	return func(e *Executor) { e.alerts = a }
}

// WithDryRun logs and records actions without submitting them.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

// NewExecutor creates an Executor that submits through ex.
func NewExecutor(ex Submitter, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		exchange: ex,
		logger:   logger.With(slog.String("component", "executor")),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DryRun reports whether submissions are suppressed.
func (e *Executor) DryRun() bool { return e.dryRun }

// PlaceOrder submits a market order.
func (e *Executor) PlaceOrder(ctx context.Context, strat string, order domain.Order) error {
	act := e.newAction(ctx, strat, domain.ActionOrder)
	act.Ticker = order.Ticker
	act.Quantity = order.Quantity
	act.Side = order.Action

	log := e.logger.With(
		slog.String("strategy", strat),
		slog.String("side", string(order.Action)),
		slog.String("ticker", order.Ticker),
		slog.Int("quantity", order.Quantity),
	)

	err := e.submit(func() error { return e.exchange.PlaceOrder(ctx, order) })
	e.finish(ctx, log, &act, err, fmt.Sprintf("placed %s order", order.Action), "order failed")
	if err == nil && !e.dryRun {
		e.alert(ctx, domain.Alert{
			Event: "trade_executed",
			Title: fmt.Sprintf("%s %d %s", order.Action, order.Quantity, order.Ticker),
			Fields: map[string]string{
				"strategy": strat,
				"ticker":   order.Ticker,
				"side":     string(order.Action),
				"quantity": strconv.Itoa(order.Quantity),
			},
		})
	}
	return err
}

// LeaseAsset issues one lease request per unit and returns the leases the
// exchange echoed. It stops at the first failure.
func (e *Executor) LeaseAsset(ctx context.Context, strat, ticker string, units int) ([]domain.Lease, error) {
	log := e.logger.With(slog.String("strategy", strat), slog.String("ticker", ticker))

	leases := make([]domain.Lease, 0, units)
	for i := 0; i < units; i++ {
		act := e.newAction(ctx, strat, domain.ActionLease)
		act.Ticker = ticker
		act.Quantity = 1

		lease := domain.Lease{Ticker: ticker}
		err := e.submit(func() error {
			var err error
			lease, err = e.exchange.CreateLease(ctx, ticker)
			return err
		})
		act.LeaseID = lease.ID
		e.finish(ctx, log.With(slog.Int64("lease_id", lease.ID)), &act, err, "leased one unit", "lease failed")
		if err != nil {
			return leases, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// ProcessLease runs a conversion through a held lease.
func (e *Executor) ProcessLease(ctx context.Context, strat string, req domain.ProcessRequest) error {
	act := e.newAction(ctx, strat, domain.ActionProcess)
	act.Ticker = req.From
	act.Quantity = req.Quantity
	act.LeaseID = req.LeaseID

	log := e.logger.With(
		slog.String("strategy", strat),
		slog.Int64("lease_id", req.LeaseID),
		slog.String("from", req.From),
		slog.Int("quantity", req.Quantity),
	)
	err := e.submit(func() error { return e.exchange.ProcessLease(ctx, req) })
	e.finish(ctx, log, &act, err, "lease processed", "lease processing failed")
	return err
}

// MarkNewsRead acknowledges a news item.
func (e *Executor) MarkNewsRead(ctx context.Context, strat string, id int64) error {
	act := e.newAction(ctx, strat, domain.ActionNewsRead)
	act.NewsID = id

	log := e.logger.With(slog.String("strategy", strat), slog.Int64("news_id", id))
	err := e.submit(func() error { return e.exchange.MarkNewsRead(ctx, id) })
	e.finish(ctx, log, &act, err, "news marked read", "mark news read failed")
	return err
}

func (e *Executor) newAction(ctx context.Context, strat string, kind domain.ActionKind) domain.Action {
	return domain.Action{
		ID:       uuid.NewString(),
		CycleID:  domain.CycleID(ctx),
		Strategy: strat,
		Kind:     kind,
		DryRun:   e.dryRun,
		At:       e.now(),
	}
}

func (e *Executor) submit(fn func() error) error {
	if e.dryRun {
		return nil
	}
	return fn()
}

// finish logs the outcome, including the raw exchange body on failure, and
// fans the action out to the recorders.
func (e *Executor) finish(ctx context.Context, log *slog.Logger, act *domain.Action, err error, okMsg, failMsg string) {
	switch {
	case err != nil:
		act.Error = err.Error()
		attrs := []any{slog.String("error", err.Error())}
		if body, ok := exchange.ResponseBody(err); ok && body != "" {
			attrs = append(attrs, slog.String("response", body))
		}
		log.ErrorContext(ctx, failMsg, attrs...)
	case e.dryRun:
		log.InfoContext(ctx, "dry run: "+okMsg)
	default:
		log.InfoContext(ctx, okMsg)
	}

	rctx := context.WithoutCancel(ctx)
	for _, r := range e.recorders {
		if rerr := r.Record(rctx, *act); rerr != nil {
			e.logger.Warn("record action failed",
				slog.String("action_id", act.ID),
				slog.String("error", rerr.Error()),
			)
		}
	}
}

func (e *Executor) alert(ctx context.Context, a domain.Alert) {
	if e.alerts != nil {
		e.alerts.Alert(ctx, a)
	}
}
