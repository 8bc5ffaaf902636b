// Package holdings reconstructs the daily holdings of investment accounts
// from their trades, security prices and custodian snapshots.
package holdings

import (
	"context"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/models"
	"portfolio-holdings/internal/pricing"
)

// Input is everything a calculator needs about one account.
type Input struct {
	Account    models.Account
	Trades     []models.Trade
	Securities map[uint]models.Security
	// Today is the anchor date, the current day in the account owner's timezone.
	Today date.Date
}

// Calculator produces the full daily holding series of an account, ordered
// by security then date.
type Calculator interface {
	// Name returns the unique name of the strategy.
	Name() string

	Calculate(ctx context.Context, in Input) ([]models.Holding, error)
}

// PriceSources are the collaborators each calculation builds its own
// pricing.Cache from. Provider may be nil.
type PriceSources struct {
	Store    pricing.Store
	Provider pricing.Provider
}

// ledger holds the net traded quantity per security per day.
type ledger struct {
	deltas map[uint]map[date.Date]decimal.Decimal
	first  date.Date
}

// newLedger sums trades per security and day. Trades dated after today are ignored.
func newLedger(trades []models.Trade, today date.Date) ledger {
	l := ledger{deltas: make(map[uint]map[date.Date]decimal.Decimal)}
	for _, t := range trades {
		if t.Date.After(today) {
			continue
		}
		days, ok := l.deltas[t.SecurityID]
		if !ok {
			days = make(map[date.Date]decimal.Decimal)
			l.deltas[t.SecurityID] = days
		}
		days[t.Date] = days[t.Date].Add(t.Quantity)
		if l.first.IsZero() || t.Date.Before(l.first) {
			l.first = t.Date
		}
	}
	return l
}

func (l ledger) empty() bool { return len(l.deltas) == 0 }

// delta returns the net quantity traded on d, zero when there was no trade.
func (l ledger) delta(securityID uint, d date.Date) decimal.Decimal {
	return l.deltas[securityID][d]
}

func (l ledger) securityIDs() []uint {
	return slices.Sorted(maps.Keys(l.deltas))
}

// start is the first day of the holding series: the day before the first
// trade, so every series opens on its zero baseline.
func (l ledger) start() date.Date {
	return l.first.Add(-1)
}

// newHolding builds the row of a security on d. Without a price the row is
// valued at zero.
func newHolding(in Input, securityID uint, d date.Date, qty decimal.Decimal, price models.SecurityPrice, priced bool) models.Holding {
	h := models.Holding{
		AccountID:  in.Account.ID,
		SecurityID: securityID,
		Date:       d,
		Quantity:   qty,
		Price:      decimal.Zero,
		Amount:     decimal.Zero,
		Currency:   price.Currency,
	}
	if priced {
		h.Price = price.Price
		h.Amount = qty.Mul(price.Price)
	}
	if h.Currency == "" {
		h.Currency = fallbackCurrency(in, securityID)
	}
	return h
}

func fallbackCurrency(in Input, securityID uint) string {
	if s, ok := in.Securities[securityID]; ok && s.Currency != "" {
		return s.Currency
	}
	return in.Account.Currency
}
