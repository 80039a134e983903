// Package limits enforces position limits that account for correlation
// between hubs of the same sector.
//
// A trader long ten Gulf Coast gas hubs carries one correlated bet, not ten
// independent ones. The limiter caps both the net position on any single hub
// and the aggregate absolute exposure across a sector.
package limits

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
)

var (
	// ErrPerInstrumentLimitExceeded is returned when an order would push a
	// single hub's net position beyond the per-instrument maximum.
	ErrPerInstrumentLimitExceeded = errors.New("limits: per-instrument position limit exceeded")

	// ErrSectorLimitExceeded is returned when an order would push the
	// aggregate absolute exposure of the hub's sector beyond its maximum.
	ErrSectorLimitExceeded = errors.New("limits: correlated sector exposure limit exceeded")
)

// Exposure is the signed net volume held on one hub.
type Exposure struct {
	Hub    string
	Sector catalog.Sector
	Net    decimal.Decimal
}

// Limiter enforces per-hub and per-sector volume caps. A zero cap disables
// that check.
type Limiter struct {
	// MaxPerInstrument is the maximum absolute net volume on any single hub.
	MaxPerInstrument decimal.Decimal

	// MaxPerSector is the maximum aggregate absolute net volume across all
	// hubs of one sector (the correlated group).
	MaxPerSector decimal.Decimal
}

// NewLimiter creates a limiter with the given caps.
func NewLimiter(maxPerInstrument, maxPerSector decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerInstrument: maxPerInstrument,
		MaxPerSector:     maxPerSector,
	}
}

// CheckLimit validates whether adding delta (signed: +BUY / -SELL) on target
// keeps the book within limits, given current exposures.
func (l *Limiter) CheckLimit(target Exposure, delta decimal.Decimal, existing []Exposure) error {
	if l == nil {
		return nil
	}

	// 1. Per-instrument limit.
	current := decimal.Zero
	for _, e := range existing {
		if e.Hub == target.Hub {
			current = current.Add(e.Net)
		}
	}
	newPosition := current.Add(delta)

	if l.MaxPerInstrument.IsPositive() && newPosition.Abs().GreaterThan(l.MaxPerInstrument) {
		return fmt.Errorf("%w: %s net %s > %s", ErrPerInstrumentLimitExceeded,
			target.Hub, newPosition.Abs(), l.MaxPerInstrument)
	}

	// 2. Correlated exposure: sum |net| across hubs of the same sector.
	total := newPosition.Abs()
	for _, e := range existing {
		if e.Hub == target.Hub {
			continue // already counted via newPosition above
		}
		if e.Sector == target.Sector {
			total = total.Add(e.Net.Abs())
		}
	}

	if l.MaxPerSector.IsPositive() && total.GreaterThan(l.MaxPerSector) {
		return fmt.Errorf("%w: %s exposure %s > %s", ErrSectorLimitExceeded,
			target.Sector, total, l.MaxPerSector)
	}

	return nil
}
