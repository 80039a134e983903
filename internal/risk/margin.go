package risk

import (
	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/model"
)

// MarginSummary previews the margin impact of a prospective order.
type MarginSummary struct {
	Required  decimal.Decimal `json:"required"`
	Used      decimal.Decimal `json:"used"`
	Equity    decimal.Decimal `json:"equity"`
	Available decimal.Decimal `json:"available"`
	// Utilization is (used + required) / equity in percent, 0 when equity
	// is not positive.
	Utilization decimal.Decimal `json:"utilization_pct"`
	Sufficient  bool            `json:"sufficient"`
}

// Margin previews an order of volume units of type t. Equity here is the
// starting balance plus realized P&L; open-trade marks are not counted.
func Margin(trades []model.Trade, startingBalance decimal.Decimal, t catalog.InstrumentType, volume decimal.Decimal) (MarginSummary, error) {
	if !startingBalance.IsPositive() {
		startingBalance = DefaultStartingBalance
	}
	required, err := catalog.Margin(t, volume)
	if err != nil {
		return MarginSummary{}, err
	}

	used, realized := decimal.Zero, decimal.Zero
	for _, tr := range trades {
		switch tr.Status {
		case model.StatusClosed:
			realized = realized.Add(tr.RealizedPnL.Decimal)
		case model.StatusOpen:
			if m, err := catalog.Margin(tr.Type, tr.Volume); err == nil {
				used = used.Add(m)
			}
		}
	}

	s := MarginSummary{
		Required: required,
		Used:     used,
		Equity:   startingBalance.Add(realized),
	}
	s.Available = s.Equity.Sub(used)
	s.Sufficient = s.Available.GreaterThan(required)
	if s.Equity.IsPositive() {
		s.Utilization = used.Add(required).Div(s.Equity).Mul(hundred).Round(1)
	}
	return s, nil
}
