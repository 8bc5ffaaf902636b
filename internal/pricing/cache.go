// Package pricing resolves the price of a security on a day for one
// holdings calculation.
package pricing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/locf"
	"portfolio-holdings/internal/models"
)

// Store reads persisted prices.
type Store interface {
	Price(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error)
	LatestBefore(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error)
}

// Provider fetches prices from an external market data service.
type Provider interface {
	FetchPrices(ctx context.Context, security models.Security, from, to date.Date) ([]models.SecurityPrice, error)
}

type key struct {
	securityID uint
	day        date.Date
}

type resolved struct {
	price models.SecurityPrice
	ok    bool
}

// Cache resolves prices through, in order: the stored price of the day, the
// latest stored price before it, the external provider, and the latest trade
// price on or before the day. Every answer is memoized.
//
// A Cache belongs to a single calculation and is not safe for concurrent use.
type Cache struct {
	store      Store
	provider   Provider
	securities map[uint]models.Security
	from, to   date.Date
	logger     *zap.Logger

	memo    map[key]resolved
	fetched map[uint]map[date.Date]models.SecurityPrice
	trades  map[uint]locf.Series[models.SecurityPrice]
}

// NewCache creates a cache for a calculation spanning from..to. provider may
// be nil, in which case the provider tier is skipped. securities supplies
// tickers for provider lookups; trades feed the last-resort tier.
func NewCache(store Store, provider Provider, securities map[uint]models.Security, trades []models.Trade, from, to date.Date, logger *zap.Logger) *Cache {
	points := make(map[uint][]locf.Point[models.SecurityPrice])
	for _, t := range trades {
		if !t.Price.IsPositive() {
			continue
		}
		points[t.SecurityID] = append(points[t.SecurityID], locf.Point[models.SecurityPrice]{
			Date: t.Date,
			Value: models.SecurityPrice{
				SecurityID: t.SecurityID,
				Date:       t.Date,
				Price:      t.Price,
				Currency:   t.Currency,
				Source:     models.PriceSourceTrade,
			},
		})
	}
	series := make(map[uint]locf.Series[models.SecurityPrice], len(points))
	for id, p := range points {
		series[id] = locf.NewSeries(p)
	}

	return &Cache{
		store:      store,
		provider:   provider,
		securities: securities,
		from:       from,
		to:         to,
		logger:     logger.Named("price-cache"),
		memo:       make(map[key]resolved),
		fetched:    make(map[uint]map[date.Date]models.SecurityPrice),
		trades:     series,
	}
}

// Price returns the price of the security on d. The boolean is false when no
// tier has a price; that is not an error. Errors come from the store only.
func (c *Cache) Price(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error) {
	k := key{securityID: securityID, day: d}
	if r, ok := c.memo[k]; ok {
		return r.price, r.ok, nil
	}

	price, ok, err := c.resolve(ctx, securityID, d)
	if err != nil {
		return models.SecurityPrice{}, false, err
	}
	c.memo[k] = resolved{price: price, ok: ok}
	return price, ok, nil
}

func (c *Cache) resolve(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error) {
	p, ok, err := c.store.Price(ctx, securityID, d)
	if err != nil {
		return p, false, fmt.Errorf("price of security %d on %s: %w", securityID, d, err)
	}
	if ok && p.Price.IsPositive() {
		p.Source = models.PriceSourceStored
		return p, true, nil
	}

	p, ok, err = c.store.LatestBefore(ctx, securityID, d)
	if err != nil {
		return p, false, fmt.Errorf("latest price of security %d before %s: %w", securityID, d, err)
	}
	if ok && p.Price.IsPositive() {
		p.Source = models.PriceSourceStored
		return p, true, nil
	}

	if p, ok := c.providerPrice(ctx, securityID, d); ok {
		return p, true, nil
	}

	if p, ok := c.trades[securityID].At(d); ok {
		return p, true, nil
	}

	return models.SecurityPrice{}, false, nil
}

// providerPrice fetches the whole cache window for the security on first
// use and answers every later day from that single response.
func (c *Cache) providerPrice(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool) {
	if c.provider == nil {
		return models.SecurityPrice{}, false
	}
	prices, done := c.fetched[securityID]
	if !done {
		prices = c.fetch(ctx, securityID)
		c.fetched[securityID] = prices
	}
	p, ok := prices[d]
	return p, ok
}

func (c *Cache) fetch(ctx context.Context, securityID uint) map[date.Date]models.SecurityPrice {
	security, known := c.securities[securityID]
	if !known || security.Offline || security.Ticker == "" {
		return nil
	}

	l := c.logger.With(zap.Uint("security_id", securityID), zap.String("ticker", security.Ticker))
	fetched, err := c.provider.FetchPrices(ctx, security, c.from, c.to)
	if err != nil {
		l.Warn("Provider price fetch failed, falling back", zap.Error(err))
		return nil
	}

	points := make([]locf.Point[models.SecurityPrice], 0, len(fetched))
	for _, p := range fetched {
		if !p.Price.IsPositive() {
			continue
		}
		p.SecurityID = securityID
		p.Source = models.PriceSourceProvider
		points = append(points, locf.Point[models.SecurityPrice]{Date: p.Date, Value: p})
	}

	dense := make(map[date.Date]models.SecurityPrice)
	for d, p := range locf.NewSeries(points).Fill(c.from, c.to) {
		dense[d] = p
	}
	l.Debug("Cached provider prices", zap.Int("fetched", len(fetched)), zap.Int("days", len(dense)))
	return dense
}
