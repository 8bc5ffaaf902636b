package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"portfolio-holdings/internal/date"
)

// CustodianPosition is a present-day position reported by the institution
// holding the account. It is written by the account-connection sync and is
// the ground truth for the anchor date of a reverse calculation.
type CustodianPosition struct {
	gorm.Model
	AccountID  uint            `gorm:"uniqueIndex:idx_position_key;not null"`
	SecurityID uint            `gorm:"uniqueIndex:idx_position_key;not null"`
	AsOf       date.Date       `gorm:"uniqueIndex:idx_position_key;not null"`
	Quantity   decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	Price      decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	Currency   string          `gorm:"size:3"`
}
