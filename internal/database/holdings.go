package database

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/models"
)

const defaultBatchSize = 500

// HoldingRepository persists materialized holdings.
type HoldingRepository struct {
	db        *gorm.DB
	batchSize int
}

func NewHoldingRepository(db *gorm.DB, batchSize int) *HoldingRepository {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &HoldingRepository{db: db, batchSize: batchSize}
}

// Sync makes the stored holdings of the account equal to holdings in a
// single transaction: rows are upserted by (account, security, date), rows of
// those securities outside the new date range are dropped, and every security
// not in keep is purged. Nothing is visible to readers until it commits.
func (r *HoldingRepository) Sync(ctx context.Context, accountID uint, holdings []models.Holding, keep []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &HoldingRepository{db: tx, batchSize: r.batchSize}
		if err := scoped.ReplaceAll(ctx, accountID, holdings); err != nil {
			return err
		}
		return scoped.DeleteExcept(ctx, accountID, keep)
	})
}

// ReplaceAll upserts holdings by their natural key and removes rows of the
// same securities dated outside the range covered by holdings.
func (r *HoldingRepository) ReplaceAll(ctx context.Context, accountID uint, holdings []models.Holding) error {
	if len(holdings) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)

	rows := slices.Clone(holdings)
	type span struct{ from, to date.Date }
	spans := make(map[uint]span)
	for i := range rows {
		rows[i].ID = 0
		rows[i].AccountID = accountID

		s, ok := spans[rows[i].SecurityID]
		if !ok {
			s = span{from: rows[i].Date, to: rows[i].Date}
		}
		s.from = date.Min(s.from, rows[i].Date)
		s.to = date.Max(s.to, rows[i].Date)
		spans[rows[i].SecurityID] = s
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "security_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "price", "amount", "currency", "updated_at"}),
	}).CreateInBatches(&rows, r.batchSize).Error
	if err != nil {
		return fmt.Errorf("could not upsert holdings for account %d: %w", accountID, err)
	}

	for securityID, s := range spans {
		err := db.Where("account_id = ? AND security_id = ? AND (date < ? OR date > ?)", accountID, securityID, s.from, s.to).
			Delete(&models.Holding{}).Error
		if err != nil {
			return fmt.Errorf("could not trim holdings of security %d: %w", securityID, err)
		}
	}
	return nil
}

// DeleteExcept removes the account's holdings of every security not in keep.
// An empty keep removes all of the account's holdings.
func (r *HoldingRepository) DeleteExcept(ctx context.Context, accountID uint, keep []uint) error {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if len(keep) > 0 {
		q = q.Where("security_id NOT IN ?", keep)
	}
	if err := q.Delete(&models.Holding{}).Error; err != nil {
		return fmt.Errorf("could not purge holdings for account %d: %w", accountID, err)
	}
	return nil
}

// List returns the account's holdings ordered by date then security. A
// non-zero on restricts the result to that day.
func (r *HoldingRepository) List(ctx context.Context, accountID uint, on date.Date) ([]models.Holding, error) {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if !on.IsZero() {
		q = q.Where("date = ?", on)
	}
	var holdings []models.Holding
	if err := q.Order("date ASC, security_id ASC").Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("could not list holdings for account %d: %w", accountID, err)
	}
	return holdings, nil
}

// DailyBalances sums holding amounts per day, the series net-worth views are built on.
func (r *HoldingRepository) DailyBalances(ctx context.Context, accountID uint) ([]models.Balance, error) {
	var balances []models.Balance
	err := r.db.WithContext(ctx).
		Model(&models.Holding{}).
		Select("date, SUM(amount) AS amount").
		Where("account_id = ?", accountID).
		Group("date").
		Order("date ASC").
		Scan(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("could not compute balances for account %d: %w", accountID, err)
	}
	return balances, nil
}
