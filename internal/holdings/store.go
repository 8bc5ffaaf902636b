package holdings

import (
	"context"

	"portfolio-holdings/internal/models"
)

// AccountSource reads accounts.
type AccountSource interface {
	Get(ctx context.Context, id uint) (models.Account, error)
	IDs(ctx context.Context) ([]uint, error)
}

type SecuritySource interface {
	ByIDs(ctx context.Context, ids []uint) (map[uint]models.Security, error)
}

// TradeSource returns the trades of an account ordered by date.
type TradeSource interface {
	Trades(ctx context.Context, accountID uint) ([]models.Trade, error)
}

type PositionSource interface {
	Positions(ctx context.Context, accountID uint) ([]models.CustodianPosition, error)
}

// HoldingStore atomically replaces the persisted holdings of an account and
// purges every security not listed in keep.
type HoldingStore interface {
	Sync(ctx context.Context, accountID uint, holdings []models.Holding, keep []uint) error
}
