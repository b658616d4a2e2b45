package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// RefineryName is the registry name of the refinery strategy.
const RefineryName = "refinery"

var three = decimal.NewFromInt(3)

// Refinery buys crude and runs it through a leased refinery slot when the
// crack spread is wide enough.
type Refinery struct {
	deps   Deps
	params Params
	logger *slog.Logger
}

// NewRefinery creates the crack-spread strategy.
func NewRefinery(deps Deps, params Params) *Refinery {
	return &Refinery{
		deps:   deps,
		params: params,
		logger: deps.Logger.With(slog.String("strategy", RefineryName)),
	}
}

// Name implements Strategy.
func (s *Refinery) Name() string { return RefineryName }

// CrackSpread approximates the refining margin per barrel.
func CrackSpread(crude, gasoline, heatingOil domain.Security, p Params) decimal.Decimal {
	return gasoline.Bid.Add(heatingOil.Bid).Div(three).Sub(crude.Ask).Sub(p.RefineryCostPerBarrel)
}

// Evaluate implements Strategy.
func (s *Refinery) Evaluate(ctx context.Context) error {
	secs, err := s.deps.Market.Securities(ctx)
	if err != nil {
		return fmt.Errorf("refinery: fetch securities: %w", err)
	}

	cl, okCL := domain.FindSecurity(secs, domain.TickerCrude)
	rb, okRB := domain.FindSecurity(secs, domain.TickerGasoline)
	ho, okHO := domain.FindSecurity(secs, domain.TickerHeatingOil)
	if !okCL || !okRB || !okHO {
		s.logger.DebugContext(ctx, "refinery securities not quoted")
		return nil
	}

	spread := CrackSpread(cl, rb, ho, s.params)
	if !spread.GreaterThan(s.params.CrackSpreadThreshold) {
		s.logger.DebugContext(ctx, "crack spread below threshold",
			slog.String("crack_spread", spread.StringFixed(2)),
		)
		return nil
	}

	s.logger.InfoContext(ctx, "executing refinery arbitrage",
		slog.String("crack_spread", spread.StringFixed(2)),
	)

	var errs []error
	if _, err := s.deps.Actions.LeaseAsset(ctx, RefineryName, domain.LeaseCrudeStorage, 1); err != nil {
		errs = append(errs, err)
	}
	created, err := s.deps.Actions.LeaseAsset(ctx, RefineryName, domain.LeaseRefinery, 1)
	if err != nil {
		errs = append(errs, err)
	}
	if err := s.deps.Actions.PlaceOrder(ctx, RefineryName,
		domain.MarketOrder(domain.TickerCrude, s.params.OrderLimit, domain.OrderSideBuy)); err != nil {
		errs = append(errs, err)
	}

	lease, err := s.refineryLease(ctx, created)
	if err != nil {
		s.logger.WarnContext(ctx, "refinery lease not found, skipping processing",
			slog.String("error", err.Error()),
		)
		return errors.Join(errs...)
	}

	req := domain.ProcessRequest{LeaseID: lease.ID, From: domain.TickerCrude, Quantity: s.params.TransportLimit}
	if err := s.deps.Actions.ProcessLease(ctx, RefineryName, req); err != nil {
		errs = append(errs, err)
	} else {
		s.logger.InfoContext(ctx, "processed crude into refined products",
			slog.Int("barrels", req.Quantity),
			slog.Int64("lease_id", lease.ID),
		)
	}
	return errors.Join(errs...)
}

// refineryLease prefers the id echoed by the create call and falls back to
// polling the lease list.
func (s *Refinery) refineryLease(ctx context.Context, created []domain.Lease) (domain.Lease, error) {
	for _, l := range created {
		if l.ID != 0 && l.Ticker == domain.LeaseRefinery {
			return l, nil
		}
	}
	return findLease(ctx, s.deps.Market, domain.LeaseRefinery, s.params.LeaseLookupAttempts, s.params.LeaseLookupBackoff)
}
