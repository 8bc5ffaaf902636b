package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AccountRepository reads accounts.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Get returns the account with the given id, or ErrNotFound.
func (r *AccountRepository) Get(ctx context.Context, id uint) (models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return account, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return account, fmt.Errorf("could not load account %d: %w", id, err)
	}
	return account, nil
}

// IDs lists the ids of all accounts.
func (r *AccountRepository) IDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}
	return ids, nil
}

// SecurityRepository reads securities.
type SecurityRepository struct {
	db *gorm.DB
}

func NewSecurityRepository(db *gorm.DB) *SecurityRepository {
	return &SecurityRepository{db: db}
}

// ByIDs returns the requested securities keyed by id. Unknown ids are left out.
func (r *SecurityRepository) ByIDs(ctx context.Context, ids []uint) (map[uint]models.Security, error) {
	out := make(map[uint]models.Security, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var securities []models.Security
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&securities).Error; err != nil {
		return nil, fmt.Errorf("could not load securities: %w", err)
	}
	for _, s := range securities {
		out[s.ID] = s
	}
	return out, nil
}

// TradeRepository reads trades.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Trades returns every trade of the account in date order.
func (r *TradeRepository) Trades(ctx context.Context, accountID uint) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("date ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load trades for account %d: %w", accountID, err)
	}
	return trades, nil
}

// PriceRepository reads stored security prices.
type PriceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// Price returns the stored price of the security on d.
func (r *PriceRepository) Price(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error) {
	return r.first(ctx, "security_id = ? AND date = ?", securityID, d)
}

// LatestBefore returns the most recent stored price of the security strictly before d.
func (r *PriceRepository) LatestBefore(ctx context.Context, securityID uint, d date.Date) (models.SecurityPrice, bool, error) {
	return r.first(ctx, "security_id = ? AND date < ?", securityID, d)
}

func (r *PriceRepository) first(ctx context.Context, query string, args ...any) (models.SecurityPrice, bool, error) {
	var prices []models.SecurityPrice
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("date DESC").
		Limit(1).
		Find(&prices).Error
	if err != nil {
		return models.SecurityPrice{}, false, fmt.Errorf("could not load price: %w", err)
	}
	if len(prices) == 0 {
		return models.SecurityPrice{}, false, nil
	}
	return prices[0], true, nil
}

// PositionRepository reads custodian-reported positions.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Positions returns every custodian position recorded for the account, most recent first.
func (r *PositionRepository) Positions(ctx context.Context, accountID uint) ([]models.CustodianPosition, error) {
	var positions []models.CustodianPosition
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("as_of DESC, security_id ASC").
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("could not load positions for account %d: %w", accountID, err)
	}
	return positions, nil
}
