package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// TransportName is the registry name of the transport strategy.
const TransportName = "transport"

// Transport buys crude at the pipeline origin and ships it to the spot
// destination when the location spread pays for the pipeline lease.
type Transport struct {
	deps   Deps
	params Params
	logger *slog.Logger
}

// NewTransport creates the transport arbitrage strategy.
func NewTransport(deps Deps, params Params) *Transport {
	return &Transport{
		deps:   deps,
		params: params,
		logger: deps.Logger.With(slog.String("strategy", TransportName)),
	}
}

// Name implements Strategy.
func (s *Transport) Name() string { return TransportName }

// TransportProfit is the expected profit of moving one transport lot from
// origin to destination after the pipeline lease.
func TransportProfit(dest, origin domain.Security, p Params) decimal.Decimal {
	return dest.Bid.Sub(origin.Ask).Mul(p.transportQty()).Sub(p.PipelineCost)
}

// Evaluate implements Strategy.
func (s *Transport) Evaluate(ctx context.Context) error {
	secs, err := s.deps.Market.Securities(ctx)
	if err != nil {
		return fmt.Errorf("transport: fetch securities: %w", err)
	}

	origin, okOrigin := domain.FindSecurity(secs, domain.TickerCrudeAlaska)
	dest, okDest := domain.FindSecurity(secs, domain.TickerCrude)
	if !okOrigin || !okDest {
		s.logger.DebugContext(ctx, "transport securities not quoted",
			slog.Bool("origin_quoted", okOrigin),
			slog.Bool("destination_quoted", okDest),
		)
		return nil
	}

	profit := TransportProfit(dest, origin, s.params)
	if !profit.GreaterThan(s.params.ArbitrageThreshold) {
		s.logger.InfoContext(ctx, "transportation arbitrage not profitable",
			slog.String("profit", profit.StringFixed(2)),
		)
		return nil
	}

	s.logger.InfoContext(ctx, "executing transport arbitrage",
		slog.String("expected_profit", profit.StringFixed(2)),
	)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	_, err = s.deps.Actions.LeaseAsset(ctx, TransportName, domain.LeaseAlaskaStorage, 1)
	collect(err)
	_, err = s.deps.Actions.LeaseAsset(ctx, TransportName, domain.LeaseCrudeStorage, 1)
	collect(err)
	collect(s.deps.Actions.PlaceOrder(ctx, TransportName,
		domain.MarketOrder(domain.TickerCrudeAlaska, s.params.TransportLimit, domain.OrderSideBuy)))
	_, err = s.deps.Actions.LeaseAsset(ctx, TransportName, domain.LeasePipeline, 1)
	collect(err)

	return errors.Join(errs...)
}
