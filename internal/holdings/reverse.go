package holdings

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/locf"
	"portfolio-holdings/internal/models"
	"portfolio-holdings/internal/pricing"
)

// ReverseCalculator starts from the custodian's present-day snapshot and
// unwinds trades backwards to the oldest one. The anchor day rows are the
// custodian's figures verbatim; only history is computed.
type ReverseCalculator struct {
	prices   PriceSources
	snapshot *PortfolioSnapshot
	logger   *zap.Logger
}

var _ Calculator = (*ReverseCalculator)(nil)

func NewReverseCalculator(prices PriceSources, snapshot *PortfolioSnapshot, logger *zap.Logger) *ReverseCalculator {
	return &ReverseCalculator{prices: prices, snapshot: snapshot, logger: logger}
}

// Name returns the unique name of the strategy.
func (c *ReverseCalculator) Name() string {
	return "reverse"
}

// Calculate emits one row per snapshot security per day from the day before
// the first trade through in.Today. With a snapshot but no trades only the
// anchor day is emitted; with neither, nothing.
func (c *ReverseCalculator) Calculate(ctx context.Context, in Input) ([]models.Holding, error) {
	l := newLedger(in.Trades, in.Today)
	seeds := c.snapshot.ToMap()
	for _, securityID := range l.securityIDs() {
		if _, ok := seeds[securityID]; !ok {
			seeds[securityID] = decimal.Zero
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	from := in.Today
	if !l.empty() {
		from = date.Min(l.start(), in.Today)
	}
	cache := pricing.NewCache(c.prices.Store, c.prices.Provider, in.Securities, in.Trades, from, in.Today, c.logger)
	positions := c.snapshot.Positions()
	days := from.DaysUntil(in.Today) + 1

	holdings := make([]models.Holding, 0, days*len(seeds))
	for _, securityID := range slices.Sorted(maps.Keys(seeds)) {
		position, pinned := positions[securityID]
		rows, err := c.walk(ctx, cache, in, l, securityID, seeds[securityID], position, pinned, from, days)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, rows...)
	}
	return holdings, nil
}

func (c *ReverseCalculator) walk(ctx context.Context, cache *pricing.Cache, in Input, l ledger, securityID uint, qty decimal.Decimal,
	position models.CustodianPosition, pinned bool, from date.Date, days int) ([]models.Holding, error) {
	rows := make([]models.Holding, days)
	i := days - 1
	var carry locf.Filler[models.SecurityPrice]

	if pinned {
		rows[i] = anchorHolding(in, position)
		carry.Next(models.SecurityPrice{Price: position.Price, Currency: rows[i].Currency}, position.Price.IsPositive())
	} else {
		price, found, err := cache.Price(ctx, securityID, in.Today)
		if err != nil {
			return nil, fmt.Errorf("reverse calculation of security %d: %w", securityID, err)
		}
		price, priced := carry.Next(price, found)
		rows[i] = newHolding(in, securityID, in.Today, qty, price, priced)
	}

	for d := in.Today; d.After(from); d = d.Add(-1) {
		// The quantity held at the end of the previous day is today's
		// quantity without today's trades.
		qty = qty.Sub(l.delta(securityID, d))
		prev := d.Add(-1)

		price, found, err := cache.Price(ctx, securityID, prev)
		if err != nil {
			return nil, fmt.Errorf("reverse calculation of security %d: %w", securityID, err)
		}
		price, priced := carry.Next(price, found)
		if !found {
			c.logger.Debug("No price, carrying following day",
				zap.Uint("security_id", securityID),
				zap.Stringer("date", prev),
				zap.Bool("carried", priced),
			)
		}

		i--
		rows[i] = newHolding(in, securityID, prev, qty, price, priced)
	}
	return rows, nil
}

// anchorHolding copies the custodian's figures without recomputing the amount.
func anchorHolding(in Input, p models.CustodianPosition) models.Holding {
	currency := p.Currency
	if currency == "" {
		currency = fallbackCurrency(in, p.SecurityID)
	}
	return models.Holding{
		AccountID:  in.Account.ID,
		SecurityID: p.SecurityID,
		Date:       in.Today,
		Quantity:   p.Quantity,
		Price:      p.Price,
		Amount:     p.Amount,
		Currency:   currency,
	}
}
