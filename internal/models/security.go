package models

import "gorm.io/gorm"

// Security is a tradable instrument.
type Security struct {
	gorm.Model
	Ticker      string `gorm:"uniqueIndex:idx_security_ticker_mic;not null"`
	ExchangeMIC string `gorm:"uniqueIndex:idx_security_ticker_mic"`
	Name        string
	Currency    string `gorm:"size:3"`
	// Offline securities have no external price feed and are valued from
	// stored prices and the user's own trades only.
	Offline bool `gorm:"default:false"`
}
