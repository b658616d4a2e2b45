package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// SpotFuturesName is the registry name of the spot-futures strategy.
const SpotFuturesName = "spot_futures"

// SpotFutures trades cash-and-carry (or its reverse) when the near future
// strays from spot by more than the carry cost.
type SpotFutures struct {
	deps   Deps
	params Params
	logger *slog.Logger
}

// NewSpotFutures creates the spot-futures strategy.
func NewSpotFutures(deps Deps, params Params) *SpotFutures {
	return &SpotFutures{
		deps:   deps,
		params: params,
		logger: deps.Logger.With(slog.String("strategy", SpotFuturesName)),
	}
}

// Name implements Strategy.
func (s *SpotFutures) Name() string { return SpotFuturesName }

// Mispricing is the futures bid over the spot ask.
func Mispricing(spot, futures domain.Security) decimal.Decimal {
	return futures.Bid.Sub(spot.Ask)
}

// Evaluate implements Strategy.
func (s *SpotFutures) Evaluate(ctx context.Context) error {
	secs, err := s.deps.Market.Securities(ctx)
	if err != nil {
		return fmt.Errorf("spot futures: fetch securities: %w", err)
	}

	spot, okSpot := domain.FindSecurity(secs, domain.TickerCrude)
	fut, okFut := domain.FindSecurity(secs, domain.TickerCrudeFutures)
	if !okSpot || !okFut {
		s.logger.DebugContext(ctx, "spot or futures not quoted")
		return nil
	}

	carry := s.params.CarryCost()
	mis := Mispricing(spot, fut)

	var spotSide domain.OrderSide
	switch {
	case mis.GreaterThan(carry):
		spotSide = domain.OrderSideBuy
		s.logger.InfoContext(ctx, "executing spot-futures arbitrage",
			slog.String("mispricing", mis.StringFixed(2)))
	case mis.LessThan(carry.Neg()):
		spotSide = domain.OrderSideSell
		s.logger.InfoContext(ctx, "reversing spot-futures arbitrage",
			slog.String("mispricing", mis.StringFixed(2)))
	default:
		return nil
	}

	qty := s.params.TransportLimit
	return errors.Join(
		s.deps.Actions.PlaceOrder(ctx, SpotFuturesName, domain.MarketOrder(domain.TickerCrude, qty, spotSide)),
		s.deps.Actions.PlaceOrder(ctx, SpotFuturesName, domain.MarketOrder(domain.TickerCrudeFutures, qty, spotSide.Opposite())),
	)
}
