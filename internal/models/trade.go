package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"portfolio-holdings/internal/date"
)

// Trade is a buy or sell of a security in an account. Quantity is signed:
// positive for buys, negative for sells.
type Trade struct {
	gorm.Model
	AccountID  uint            `gorm:"index:idx_trade_account_date;not null" json:"account_id"`
	SecurityID uint            `gorm:"index;not null" json:"security_id"`
	Date       date.Date       `gorm:"index:idx_trade_account_date;not null" json:"date"`
	Quantity   decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Currency   string          `gorm:"size:3" json:"currency"`
}
