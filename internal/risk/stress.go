package risk

import (
	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/model"
)

// Scenario is a named set of percentage moves per commodity class.
type Scenario struct {
	Name    string  `json:"name"`
	Gas     float64 `json:"ng"`
	Power   float64 `json:"power"`
	Crude   float64 `json:"crude"`
	Freight float64 `json:"freight"`
}

// Move returns the percentage applied to trades of class c.
func (s Scenario) Move(c catalog.ScenarioClass) float64 {
	switch c {
	case catalog.ScenarioGas:
		return s.Gas
	case catalog.ScenarioPower:
		return s.Power
	case catalog.ScenarioCrude:
		return s.Crude
	case catalog.ScenarioFreight:
		return s.Freight
	}
	return 0
}

// Scenarios returns the standard stress set.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "Winter Freeze", Gas: 40, Power: 60, Crude: 5, Freight: 10},
		{Name: "OPEC Cut", Gas: 0, Power: 0, Crude: 20, Freight: 15},
		{Name: "Demand Destruction", Gas: -25, Power: -25, Crude: -25, Freight: -30},
		{Name: "Storage Surprise Bull", Gas: 15, Power: 10, Crude: 0, Freight: 5},
		{Name: "Summer Heat Wave", Gas: 20, Power: 45, Crude: 0, Freight: 0},
	}
}

// StressResult is the P&L impact of one scenario on the open book.
type StressResult struct {
	Scenario Scenario        `json:"scenario"`
	Impact   decimal.Decimal `json:"impact"`
}

var hundred = decimal.NewFromInt(100)

// Impact sums entry × move% × volume × direction over open trades. It uses
// entry prices only, so the result depends on nothing but the ledger.
func Impact(trades []model.Trade, sc Scenario) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if !t.IsOpen() {
			continue
		}
		pct := sc.Move(catalog.ScenarioClassOf(t.Type, t.Sector))
		if pct == 0 {
			continue
		}
		total = total.Add(decimal.NewFromFloat(t.EntryPrice).
			Mul(decimal.NewFromFloat(pct)).
			Div(hundred).
			Mul(t.Volume).
			Mul(decimal.NewFromInt(t.Direction.Sign())))
	}
	return total.Round(2)
}

// Stress evaluates each scenario against the open book.
func Stress(trades []model.Trade, scenarios []Scenario) []StressResult {
	out := make([]StressResult, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, StressResult{Scenario: sc, Impact: Impact(trades, sc)})
	}
	return out
}
