package holdings

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"portfolio-holdings/internal/models"
)

// PortfolioSnapshot is the current quantity of every security an account
// holds or has ever traded.
type PortfolioSnapshot struct {
	positions  map[uint]models.CustodianPosition
	quantities map[uint]decimal.Decimal
}

// NewPortfolioSnapshot keeps the most recent custodian position of each
// security and adds a zero quantity for every traded security the custodian
// does not report, so that closed positions keep their history.
func NewPortfolioSnapshot(positions []models.CustodianPosition, trades []models.Trade) *PortfolioSnapshot {
	s := &PortfolioSnapshot{
		positions:  make(map[uint]models.CustodianPosition),
		quantities: make(map[uint]decimal.Decimal),
	}

	for _, p := range positions {
		current, seen := s.positions[p.SecurityID]
		if seen && (p.AsOf.Before(current.AsOf) || (p.AsOf == current.AsOf && p.ID < current.ID)) {
			continue
		}
		s.positions[p.SecurityID] = p
		s.quantities[p.SecurityID] = p.Quantity
	}

	for _, t := range trades {
		if _, ok := s.quantities[t.SecurityID]; !ok {
			s.quantities[t.SecurityID] = decimal.Zero
		}
	}
	return s
}

// ToMap returns the quantity held per security id.
func (s *PortfolioSnapshot) ToMap() map[uint]decimal.Decimal {
	return maps.Clone(s.quantities)
}

// Positions returns the latest custodian position per security id.
func (s *PortfolioSnapshot) Positions() map[uint]models.CustodianPosition {
	return maps.Clone(s.positions)
}

// HasPositions reports whether the custodian reported anything.
func (s *PortfolioSnapshot) HasPositions() bool { return len(s.positions) > 0 }

// SecurityIDs returns the ids of every security in the snapshot, sorted.
func (s *PortfolioSnapshot) SecurityIDs() []uint {
	return slices.Sorted(maps.Keys(s.quantities))
}
