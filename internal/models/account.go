package models

import (
	"time"

	"gorm.io/gorm"
)

// Connection types an account can be linked through. Manual accounts are
// maintained by the user; the others are synced by an aggregator.
const (
	ConnectionManual    = "manual"
	ConnectionPlaid     = "plaid"
	ConnectionBrokerage = "brokerage"
)

// Account is an investment account whose holdings are materialized.
type Account struct {
	gorm.Model
	Name           string `gorm:"not null"`
	Currency       string `gorm:"size:3;not null;default:USD"`
	Timezone       string // IANA name of the owner's timezone; empty falls back to the configured default
	ConnectionType string `gorm:"not null;default:manual"`
}

// Location resolves the account timezone, falling back to fallback when the
// account has none or it is unknown.
func (a Account) Location(fallback *time.Location) *time.Location {
	if a.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
