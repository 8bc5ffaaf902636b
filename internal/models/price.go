package models

import (
	"time"

	"github.com/shopspring/decimal"

	"portfolio-holdings/internal/date"
)

// Price sources recorded on resolved prices.
const (
	PriceSourceStored   = "stored"
	PriceSourceProvider = "provider"
	PriceSourceTrade    = "trade"
)

// SecurityPrice is the closing price of a security on a day. There is at
// most one per security per day.
type SecurityPrice struct {
	ID         uint            `gorm:"primarykey" json:"-"`
	SecurityID uint            `gorm:"uniqueIndex:idx_price_security_date;not null" json:"security_id"`
	Date       date.Date       `gorm:"uniqueIndex:idx_price_security_date;not null" json:"date"`
	Price      decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Currency   string          `gorm:"size:3" json:"currency"`
	Source     string          `gorm:"-" json:"source,omitempty"`
	CreatedAt  time.Time       `json:"-"`
}
