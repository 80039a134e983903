// Package risk computes portfolio analytics over the trade ledger: P&L,
// parametric VaR/CVaR, performance ratios and scenario stress.
//
// Every function here is a pure read over its inputs and may be called at
// any frequency.
package risk

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/model"
)

// Prices resolves the current price of a hub.
type Prices interface {
	Spot(hub string) (float64, error)
}

var (
	// DailyVol is the assumed one-day portfolio volatility.
	DailyVol = decimal.NewFromFloat(0.02)
	// Z95 and Z99 are one-tailed normal quantiles.
	Z95 = decimal.NewFromFloat(1.645)
	Z99 = decimal.NewFromFloat(2.326)
	// CVaRMultiplier expands VaR into a tail estimate.
	CVaRMultiplier = decimal.NewFromFloat(1.3)
	// DefaultStartingBalance is used when settings carry no balance.
	DefaultStartingBalance = decimal.NewFromInt(1_000_000)
)

const (
	// ProfitFactorCap is reported as the profit factor when there are wins
	// but no losses.
	ProfitFactorCap = 999.0
	// TradingDays annualizes the per-trade Sharpe ratio.
	TradingDays = 252
)

// Stat is a ratio that may be undefined for the current ledger.
type Stat struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	// Unbounded marks a ratio whose denominator is zero; Value then holds a
	// display cap.
	Unbounded bool `json:"unbounded,omitempty"`
}

// Mark is the mark-to-market of one open trade.
type Mark struct {
	TradeID   string          `json:"trade_id"`
	Hub       string          `json:"hub"`
	Direction model.Direction `json:"direction"`
	Volume    decimal.Decimal `json:"volume"`
	Entry     float64         `json:"entry_price"`
	Spot      float64         `json:"spot"`
	PnL       decimal.Decimal `json:"pnl"`
}

// Snapshot is a full risk report.
type Snapshot struct {
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Realized        decimal.Decimal `json:"realized_pnl"`
	Unrealized      decimal.Decimal `json:"unrealized_pnl"`
	Equity          decimal.Decimal `json:"equity"`
	Magnitude       decimal.Decimal `json:"portfolio_magnitude"`

	VaR95  decimal.Decimal `json:"var95"`
	VaR99  decimal.Decimal `json:"var99"`
	CVaR95 decimal.Decimal `json:"cvar95"`
	CVaR99 decimal.Decimal `json:"cvar99"`

	Sharpe       Stat `json:"sharpe"`
	WinRate      Stat `json:"win_rate"`
	ProfitFactor Stat `json:"profit_factor"`

	Wins        int                 `json:"wins"`
	Losses      int                 `json:"losses"`
	GrossWins   decimal.Decimal     `json:"gross_wins"`
	GrossLosses decimal.Decimal     `json:"gross_losses"`
	AvgWin      decimal.Decimal     `json:"avg_win"`
	AvgLoss     decimal.Decimal     `json:"avg_loss"`
	Best        decimal.NullDecimal `json:"best"`
	Worst       decimal.NullDecimal `json:"worst"`

	TotalCount  int `json:"total_count"`
	OpenCount   int `json:"open_count"`
	ClosedCount int `json:"closed_count"`

	Marks []Mark `json:"marks"`
	// Unpriced lists open trades left out of unrealized P&L because their
	// hub had no market data.
	Unpriced []string `json:"unpriced,omitempty"`
}

// Compute builds a risk snapshot from the ledger and current prices. A
// non-positive startingBalance falls back to DefaultStartingBalance.
func Compute(trades []model.Trade, prices Prices, startingBalance decimal.Decimal) Snapshot {
	if !startingBalance.IsPositive() {
		startingBalance = DefaultStartingBalance
	}
	s := Snapshot{
		StartingBalance: startingBalance,
		TotalCount:      len(trades),
		Marks:           []Mark{},
	}

	var pnls []float64
	for _, t := range trades {
		switch t.Status {
		case model.StatusClosed:
			s.ClosedCount++
			pnl := t.RealizedPnL.Decimal
			s.Realized = s.Realized.Add(pnl)
			pnls = append(pnls, pnl.InexactFloat64())
			switch pnl.Sign() {
			case 1:
				s.Wins++
				s.GrossWins = s.GrossWins.Add(pnl)
			case -1:
				s.Losses++
				s.GrossLosses = s.GrossLosses.Add(pnl.Abs())
			}
			if !s.Best.Valid || pnl.GreaterThan(s.Best.Decimal) {
				s.Best = decimal.NewNullDecimal(pnl)
			}
			if !s.Worst.Valid || pnl.LessThan(s.Worst.Decimal) {
				s.Worst = decimal.NewNullDecimal(pnl)
			}
		case model.StatusOpen:
			s.OpenCount++
			spot, err := prices.Spot(t.Hub)
			if err != nil {
				s.Unpriced = append(s.Unpriced, t.ID)
				continue
			}
			pnl := t.PnLAt(spot)
			s.Unrealized = s.Unrealized.Add(pnl)
			s.Marks = append(s.Marks, Mark{
				TradeID:   t.ID,
				Hub:       t.Hub,
				Direction: t.Direction,
				Volume:    t.Volume,
				Entry:     t.EntryPrice,
				Spot:      spot,
				PnL:       pnl.Round(2),
			})
		}
	}

	s.Equity = startingBalance.Add(s.Realized).Add(s.Unrealized)
	s.Magnitude = s.Unrealized.Abs().Add(s.Realized.Abs())
	if s.Magnitude.IsZero() {
		s.Magnitude = s.Equity
	}
	s.VaR95 = s.Magnitude.Mul(DailyVol).Mul(Z95)
	s.VaR99 = s.Magnitude.Mul(DailyVol).Mul(Z99)
	s.CVaR95 = s.VaR95.Mul(CVaRMultiplier)
	s.CVaR99 = s.VaR99.Mul(CVaRMultiplier)

	if s.Wins > 0 {
		s.AvgWin = s.GrossWins.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLoss = s.GrossLosses.Div(decimal.NewFromInt(int64(s.Losses)))
	}
	if n := s.Wins + s.Losses; n > 0 {
		s.WinRate = Stat{Value: float64(s.Wins) / float64(n), Available: true}
	}
	s.ProfitFactor = profitFactor(s.GrossWins, s.GrossLosses)
	s.Sharpe = Sharpe(pnls)

	sort.Slice(s.Marks, func(i, j int) bool { return s.Marks[i].Hub < s.Marks[j].Hub })
	return s
}

func profitFactor(grossWins, grossLosses decimal.Decimal) Stat {
	switch {
	case grossLosses.IsPositive():
		return Stat{Value: grossWins.Div(grossLosses).InexactFloat64(), Available: true}
	case grossWins.IsPositive():
		return Stat{Value: ProfitFactorCap, Available: true, Unbounded: true}
	default:
		return Stat{}
	}
}

// Sharpe annualizes mean/stdev of per-trade P&L using the sample standard
// deviation. It is unavailable for fewer than two samples or zero spread.
func Sharpe(pnls []float64) Stat {
	n := len(pnls)
	if n < 2 {
		return Stat{}
	}
	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / float64(n)
	var ss float64
	for _, p := range pnls {
		ss += (p - mean) * (p - mean)
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 || math.IsNaN(std) {
		return Stat{}
	}
	return Stat{Value: mean / std * math.Sqrt(TradingDays), Available: true}
}

// EquityPoint is one step of the realized equity curve.
type EquityPoint struct {
	TradeID string          `json:"trade_id,omitempty"`
	Equity  decimal.Decimal `json:"equity"`
}

// EquityCurve replays realized P&L in close order starting from the balance.
// The first point is always the starting balance.
func EquityCurve(trades []model.Trade, startingBalance decimal.Decimal) []EquityPoint {
	if !startingBalance.IsPositive() {
		startingBalance = DefaultStartingBalance
	}
	closed := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == model.StatusClosed {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		a, b := closed[i].ClosedAt, closed[j].ClosedAt
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})

	out := []EquityPoint{{Equity: startingBalance}}
	run := startingBalance
	for _, t := range closed {
		run = run.Add(t.RealizedPnL.Decimal)
		out = append(out, EquityPoint{TradeID: t.ID, Equity: run})
	}
	return out
}
