package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/model"
)

type prices map[string]float64

func (p prices) Spot(hub string) (float64, error) {
	v, ok := p[hub]
	if !ok {
		return 0, errors.New("no data")
	}
	return v, nil
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func open(id, hub string, sector catalog.Sector, typ catalog.InstrumentType, dir model.Direction, vol, entry float64) model.Trade {
	return model.Trade{
		ID: id, Hub: hub, Sector: sector, Type: typ, Direction: dir,
		Volume: d(vol), EntryPrice: entry, Status: model.StatusOpen, CreatedAt: t0,
	}
}

func closed(id string, pnl float64, at time.Time) model.Trade {
	ts := at
	return model.Trade{
		ID: id, Hub: "Henry Hub", Sector: catalog.SectorGas, Type: catalog.TypePhysFixed,
		Direction: model.Buy, Volume: d(10000), Status: model.StatusClosed,
		ClosedAt: &ts, RealizedPnL: decimal.NewNullDecimal(d(pnl)),
	}
}

func TestCompute_EndToEndScenario(t *testing.T) {
	tr := open("t1", "Henry Hub", catalog.SectorGas, catalog.TypePhysFixed, model.Buy, 10000, 2.75)
	s := Compute([]model.Trade{tr}, prices{"Henry Hub": 3.00}, decimal.NewFromInt(1_000_000))

	assert.True(t, s.Unrealized.Equal(d(2500)), "unrealized %s", s.Unrealized)
	assert.True(t, s.Equity.Equal(d(1_002_500)))
	assert.True(t, s.Magnitude.Equal(d(2500)))
	require.Len(t, s.Marks, 1)
	assert.True(t, s.Marks[0].PnL.Equal(d(2500)))

	require.NoError(t, tr.Close(3.00, model.CloseManual, t0))
	s = Compute([]model.Trade{tr}, prices{"Henry Hub": 4.10}, decimal.Zero)
	assert.True(t, s.Realized.Equal(d(2500)))
	assert.True(t, s.Unrealized.IsZero())
	assert.True(t, s.StartingBalance.Equal(DefaultStartingBalance))
	assert.Equal(t, 1, s.ClosedCount)
	assert.Zero(t, s.OpenCount)
}

func TestCompute_VaROrdering(t *testing.T) {
	for _, u := range []float64{0.01, 1, 2500, 1e7} {
		tr := open("t1", "Henry Hub", catalog.SectorGas, catalog.TypePhysFixed, model.Buy, 1, 0)
		s := Compute([]model.Trade{tr}, prices{"Henry Hub": u}, decimal.NewFromInt(1_000_000))

		assert.True(t, s.VaR95.IsPositive(), "magnitude %v", u)
		assert.True(t, s.VaR99.GreaterThan(s.VaR95))
		assert.True(t, s.CVaR95.Equal(s.VaR95.Mul(d(1.3))))
		assert.True(t, s.CVaR99.Equal(s.VaR99.Mul(d(1.3))))
	}
}

func TestCompute_VaRFallsBackToEquity(t *testing.T) {
	s := Compute(nil, prices{}, decimal.NewFromInt(1_000_000))
	assert.True(t, s.Magnitude.Equal(d(1_000_000)))
	// 1,000,000 × 0.02 × 1.645
	assert.True(t, s.VaR95.Equal(d(32900)), "var95 %s", s.VaR95)
	assert.True(t, s.VaR99.Equal(d(46520)), "var99 %s", s.VaR99)
	assert.False(t, s.Sharpe.Available)
	assert.False(t, s.WinRate.Available)
	assert.False(t, s.ProfitFactor.Available)
	assert.False(t, s.Best.Valid)
	assert.NotNil(t, s.Marks)
}

func TestCompute_Performance(t *testing.T) {
	trades := []model.Trade{
		closed("a", 1000, t0),
		closed("b", -500, t0.Add(time.Hour)),
		closed("c", 3000, t0.Add(2*time.Hour)),
		closed("d", 0, t0.Add(3*time.Hour)),
	}
	s := Compute(trades, prices{}, decimal.NewFromInt(1_000_000))

	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 2.0/3.0, s.WinRate.Value, 1e-12)
	assert.True(t, s.ProfitFactor.Available)
	assert.False(t, s.ProfitFactor.Unbounded)
	assert.InDelta(t, 8.0, s.ProfitFactor.Value, 1e-12)
	assert.True(t, s.AvgWin.Equal(d(2000)))
	assert.True(t, s.AvgLoss.Equal(d(500)))
	assert.True(t, s.Best.Decimal.Equal(d(3000)))
	assert.True(t, s.Worst.Decimal.Equal(d(-500)))
	assert.True(t, s.Realized.Equal(d(3500)))
	assert.Equal(t, 4, s.TotalCount)

	require.True(t, s.Sharpe.Available)
	// mean 875, sample stdev 1547.85, × sqrt(252)
	assert.InDelta(t, 8.97387512631019, s.Sharpe.Value, 1e-9)
}

func TestProfitFactor_Unbounded(t *testing.T) {
	s := Compute([]model.Trade{closed("a", 10, t0), closed("b", 20, t0)}, prices{}, decimal.Zero)
	assert.True(t, s.ProfitFactor.Available)
	assert.True(t, s.ProfitFactor.Unbounded)
	assert.Equal(t, ProfitFactorCap, s.ProfitFactor.Value)
	assert.Equal(t, 1.0, s.WinRate.Value)
}

func TestSharpe(t *testing.T) {
	assert.False(t, Sharpe(nil).Available)
	assert.False(t, Sharpe([]float64{5}).Available)
	assert.False(t, Sharpe([]float64{5, 5, 5}).Available, "zero stdev")

	got := Sharpe([]float64{1, 3})
	require.True(t, got.Available)
	// mean 2, stdev sqrt(2)
	assert.InDelta(t, 2/1.4142135623730951*15.874507866387544, got.Value, 1e-9)
}

func TestCompute_UnpricedTradesSkipped(t *testing.T) {
	trades := []model.Trade{
		open("t1", "Henry Hub", catalog.SectorGas, catalog.TypePhysFixed, model.Buy, 10000, 2.75),
		open("t2", "Waha", catalog.SectorGas, catalog.TypePhysFixed, model.Sell, 10000, 2.40),
	}
	s := Compute(trades, prices{"Henry Hub": 2.85}, decimal.Zero)
	assert.Equal(t, []string{"t2"}, s.Unpriced)
	assert.True(t, s.Unrealized.Equal(d(1000)))
	assert.Equal(t, 2, s.OpenCount)
	assert.Len(t, s.Marks, 1)
}

func TestStress_ClassByFamily(t *testing.T) {
	trades := []model.Trade{
		open("gas", "Henry Hub", catalog.SectorGas, catalog.TypePhysFixed, model.Buy, 10000, 3),
		open("pwr", "ERCOT Hub", catalog.SectorPower, catalog.TypePhysFixed, model.Buy, 100, 50),
		open("cl", "WTI Cushing", catalog.SectorCrude, catalog.TypeCrudeSwap, model.Sell, 1000, 80),
		open("ffa", "Baltic Capesize", catalog.SectorFreight, catalog.TypeFreightFFA, model.Buy, 10, 2000),
		open("corn", "Corn", catalog.SectorAg, catalog.TypeAgFutures, model.Buy, 5000, 4.5),
		open("gold", "Gold (COMEX)", catalog.SectorMetals, catalog.TypeMetalsFutures, model.Buy, 100, 2000),
	}
	winter := Scenarios()[0]
	require.Equal(t, "Winter Freeze", winter.Name)

	// gas 3×0.40×10000 = 12000; power 50×0.60×100 = 3000;
	// crude −80×0.05×1000 = −4000; freight 2000×0.10×10 = 2000;
	// ag and metals take the gas move: 4.5×0.40×5000 = 9000, 2000×0.40×100 = 80000.
	got := Impact(trades, winter)
	assert.True(t, got.Equal(d(102000)), "impact %s", got)

	opec := Impact(trades, Scenarios()[1])
	// crude −80×0.20×1000 = −16000; freight 2000×0.15×10 = 3000
	assert.True(t, opec.Equal(d(-13000)), "impact %s", opec)
}

func TestStress_Deterministic(t *testing.T) {
	trades := []model.Trade{
		open("gas", "Henry Hub", catalog.SectorGas, catalog.TypeOptionNG, model.Sell, 20000, 2.9),
		closed("x", 100, t0),
	}
	first := Stress(trades, Scenarios())
	second := Stress(trades, Scenarios())
	require.Len(t, first, 5)
	for i := range first {
		assert.True(t, first[i].Impact.Equal(second[i].Impact))
	}
	// Demand destruction on a short gas option: −2.9 × −0.25 × 20000 = 14500
	assert.True(t, first[2].Impact.Equal(d(14500)))
}

func TestEquityCurve(t *testing.T) {
	trades := []model.Trade{
		closed("late", -200, t0.Add(2*time.Hour)),
		closed("early", 500, t0),
		open("o", "Henry Hub", catalog.SectorGas, catalog.TypePhysFixed, model.Buy, 1, 1),
	}
	curve := EquityCurve(trades, decimal.NewFromInt(1000))
	require.Len(t, curve, 3)
	assert.True(t, curve[0].Equity.Equal(d(1000)))
	assert.Equal(t, "early", curve[1].TradeID)
	assert.True(t, curve[1].Equity.Equal(d(1500)))
	assert.True(t, curve[2].Equity.Equal(d(1300)))
}

func TestMargin(t *testing.T) {
	trades := []model.Trade{
		open("a", "Henry Hub", catalog.SectorGas, catalog.TypePhysFixed, model.Buy, 20000, 2.75),
		closed("b", -10000, t0),
	}
	m, err := Margin(trades, decimal.NewFromInt(1_000_000), catalog.TypeCrudeSwap, d(2000))
	require.NoError(t, err)
	assert.True(t, m.Required.Equal(d(10000)))
	assert.True(t, m.Used.Equal(d(3000)))
	assert.True(t, m.Equity.Equal(d(990000)))
	assert.True(t, m.Available.Equal(d(987000)))
	assert.True(t, m.Sufficient)
	assert.True(t, m.Utilization.Equal(d(1.3)), "util %s", m.Utilization)

	_, err = Margin(nil, decimal.Zero, "NOPE", d(1))
	assert.Error(t, err)
}
