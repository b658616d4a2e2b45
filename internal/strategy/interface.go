package strategy

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// Strategy is one evaluator run once per trading cycle. Evaluate must be a
// function of the current exchange snapshot; strategies keep no state between
// cycles.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context) error
}

// Market is the read side of the exchange.
type Market interface {
	Securities(ctx context.Context) ([]domain.Security, error)
	News(ctx context.Context) ([]domain.NewsItem, error)
	Leases(ctx context.Context) ([]domain.Lease, error)
}

// Actions is the submit side of the exchange. Implementations log every
// outcome themselves; strategies only use the error for control flow.
type Actions interface {
	PlaceOrder(ctx context.Context, strategy string, order domain.Order) error
	// LeaseAsset requests units leases of ticker, one request per unit, and
	// returns the leases the exchange echoed back.
	LeaseAsset(ctx context.Context, strategy, ticker string, units int) ([]domain.Lease, error)
	ProcessLease(ctx context.Context, strategy string, req domain.ProcessRequest) error
	MarkNewsRead(ctx context.Context, strategy string, id int64) error
}

// Alerter receives notification-worthy events. It must not block for long.
type Alerter interface {
	Alert(ctx context.Context, alert domain.Alert)
}

// Deps bundles what every strategy needs.
type Deps struct {
	Market  Market
	Actions Actions
	Alerts  Alerter // optional
	Logger  *slog.Logger
}

func (d Deps) alert(ctx context.Context, a domain.Alert) {
	if d.Alerts != nil {
		d.Alerts.Alert(ctx, a)
	}
}
