package domain

import (
	"context"
	"time"
)

// ActionKind identifies which exchange request an Action records.
type ActionKind string

const (
	ActionOrder    ActionKind = "order"
	ActionLease    ActionKind = "lease"
	ActionProcess  ActionKind = "process"
	ActionNewsRead ActionKind = "news_read"
)

// Action is the journal record of one submitted (or dry-run) request.
type Action struct {
	ID       string     `json:"id"`
	CycleID  string     `json:"cycle_id,omitempty"`
	Strategy string     `json:"strategy"`
	Kind     ActionKind `json:"kind"`
	Ticker   string     `json:"ticker,omitempty"`
	Quantity int        `json:"quantity,omitempty"`
	Side     OrderSide  `json:"side,omitempty"`
	LeaseID  int64      `json:"lease_id,omitempty"`
	NewsID   int64      `json:"news_id,omitempty"`
	DryRun   bool       `json:"dry_run,omitempty"`
	Error    string     `json:"error,omitempty"`
	At       time.Time  `json:"at"`
}

// OK reports whether the request succeeded.
func (a Action) OK() bool { return a.Error == "" }

// StrategyOutcome is one strategy's result within a cycle.
type StrategyOutcome struct {
	Strategy string        `json:"strategy"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CycleReport summarises one pass over all strategies.
type CycleReport struct {
	ID        string            `json:"id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Skipped   bool              `json:"skipped,omitempty"`
	Cancelled bool              `json:"cancelled,omitempty"`
	Outcomes  []StrategyOutcome `json:"outcomes"`
}

// Alert is a notification-worthy event.
type Alert struct {
	Event  string            `json:"event"`
	Title  string            `json:"title"`
	Fields map[string]string `json:"fields,omitempty"`
}

type cycleKey struct{}

// WithCycleID tags ctx with the id of the trading cycle it belongs to.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleID returns the cycle id carried by ctx, or "".
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}
