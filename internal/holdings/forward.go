package holdings

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/locf"
	"portfolio-holdings/internal/models"
	"portfolio-holdings/internal/pricing"
)

// ForwardCalculator replays trades from the oldest one up to today,
// accumulating quantities from zero.
type ForwardCalculator struct {
	prices PriceSources
	logger *zap.Logger
}

var _ Calculator = (*ForwardCalculator)(nil)

func NewForwardCalculator(prices PriceSources, logger *zap.Logger) *ForwardCalculator {
	return &ForwardCalculator{prices: prices, logger: logger}
}

// Name returns the unique name of the strategy.
func (c *ForwardCalculator) Name() string {
	return "forward"
}

// Calculate emits one row per security per day from the day before the first
// trade through in.Today. An account without trades yields nothing.
func (c *ForwardCalculator) Calculate(ctx context.Context, in Input) ([]models.Holding, error) {
	l := newLedger(in.Trades, in.Today)
	if l.empty() {
		return nil, nil
	}

	from := l.start()
	cache := pricing.NewCache(c.prices.Store, c.prices.Provider, in.Securities, in.Trades, from, in.Today, c.logger)
	days := from.DaysUntil(in.Today) + 1

	holdings := make([]models.Holding, 0, days*len(l.deltas))
	for _, securityID := range l.securityIDs() {
		rows, err := c.walk(ctx, cache, in, l, securityID, from, days)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, rows...)
	}
	return holdings, nil
}

func (c *ForwardCalculator) walk(ctx context.Context, cache *pricing.Cache, in Input, l ledger, securityID uint, from date.Date, days int) ([]models.Holding, error) {
	rows := make([]models.Holding, 0, days)
	qty := decimal.Zero
	var carry locf.Filler[models.SecurityPrice]

	for d := range date.Range(from, in.Today) {
		qty = qty.Add(l.delta(securityID, d))

		price, found, err := cache.Price(ctx, securityID, d)
		if err != nil {
			return nil, fmt.Errorf("forward calculation of security %d: %w", securityID, err)
		}
		price, priced := carry.Next(price, found)
		if !found {
			c.logger.Debug("No price, carrying previous day",
				zap.Uint("security_id", securityID),
				zap.Stringer("date", d),
				zap.Bool("carried", priced),
			)
		}

		rows = append(rows, newHolding(in, securityID, d, qty, price, priced))
	}
	return rows, nil
}
