package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// NewsName is the registry name of the news strategy.
const NewsName = "news"

// News trades crude against its near future on inventory surprises reported
// in unread headlines.
type News struct {
	deps   Deps
	params Params
	logger *slog.Logger
}

// NewNews creates the news-reaction strategy.
func NewNews(deps Deps, params Params) *News {
	return &News{
		deps:   deps,
		params: params,
		logger: deps.Logger.With(slog.String("strategy", NewsName)),
	}
}

// Name implements Strategy.
func (s *News) Name() string { return NewsName }

// Evaluate reacts to every unread supply headline and marks each unread item
// read, whether or not it traded.
func (s *News) Evaluate(ctx context.Context) error {
	items, err := s.deps.Market.News(ctx)
	if err != nil {
		return fmt.Errorf("news: fetch: %w", err)
	}

	var errs []error
	for _, item := range items {
		if item.Read {
			continue
		}
		if IsSupplyHeadline(item.Headline) {
			if err := s.react(ctx, item); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.deps.Actions.MarkNewsRead(ctx, NewsName, item.ID); err != nil {
			errs = append(errs, fmt.Errorf("news: mark %d read: %w", item.ID, err))
		}
	}
	return errors.Join(errs...)
}

// react places the directional order and its hedge for one headline. A
// headline whose surprise cannot be parsed is reported and skipped.
func (s *News) react(ctx context.Context, item domain.NewsItem) error {
	s.logger.InfoContext(ctx, "supply disruption detected",
		slog.Int64("news_id", item.ID),
		slog.String("headline", item.Headline),
	)

	surprise, err := ParseSurprise(item.Headline)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping headline",
			slog.Int64("news_id", item.ID),
			slog.String("error", err.Error()),
		)
		s.deps.alert(ctx, domain.Alert{
			Event: "malformed_headline",
			Title: "Unparseable supply headline",
			Fields: map[string]string{
				"news_id":  strconv.FormatInt(item.ID, 10),
				"headline": item.Headline,
			},
		})
		return nil
	}

	impact := PriceImpact(surprise, s.params.Elasticity)
	side := domain.OrderSideSell
	if impact.IsPositive() {
		side = domain.OrderSideBuy
	}

	var errs []error
	if err := s.deps.Actions.PlaceOrder(ctx, NewsName, domain.MarketOrder(domain.TickerCrude, s.params.OrderLimit, side)); err != nil {
		errs = append(errs, err)
	}
	// Hedge
	if err := s.deps.Actions.PlaceOrder(ctx, NewsName, domain.MarketOrder(domain.TickerCrudeFutures, s.params.OrderLimit, side.Opposite())); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PriceImpact is the linear price response to an inventory surprise.
func PriceImpact(surprise int64, elasticity decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(surprise).Mul(elasticity)
}
