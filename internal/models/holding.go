package models

import (
	"time"

	"github.com/shopspring/decimal"

	"portfolio-holdings/internal/date"
)

// Holding is the materialized position of one security in one account on
// one day. Rows are derived from trades and prices and are regenerated on
// every materialization run.
type Holding struct {
	ID         uint            `gorm:"primarykey" json:"-"`
	AccountID  uint            `gorm:"uniqueIndex:idx_holding_key;not null" json:"account_id"`
	SecurityID uint            `gorm:"uniqueIndex:idx_holding_key;not null" json:"security_id"`
	Date       date.Date       `gorm:"uniqueIndex:idx_holding_key;not null" json:"date"`
	Quantity   decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Amount     decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"amount"`
	Currency   string          `gorm:"size:3" json:"currency"`
	CreatedAt  time.Time       `json:"-"`
	UpdatedAt  time.Time       `json:"-"`
}

// Balance is the total value of an account's holdings on a day.
type Balance struct {
	Date   date.Date       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}
