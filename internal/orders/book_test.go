package orders

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func fp(f float64) *float64 { return &f }

type prices map[string]float64

func (p prices) Spot(hub string) (float64, error) {
	v, ok := p[hub]
	if !ok {
		return 0, fmt.Errorf("no price for %s", hub)
	}
	return v, nil
}

type recorder struct{ events []model.Event }

func (r *recorder) Notify(ev model.Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []model.EventKind {
	out := make([]model.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeRemote struct {
	submitted []model.Trade
	updated   map[string][]model.TradePatch
	deleted   []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{updated: map[string][]model.TradePatch{}}
}

func (f *fakeRemote) Submit(t model.Trade) { f.submitted = append(f.submitted, t) }
func (f *fakeRemote) Update(id string, p model.TradePatch) {
	f.updated[id] = append(f.updated[id], p)
}
func (f *fakeRemote) Delete(id string) { f.deleted = append(f.deleted, id) }

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type env struct {
	book   *Book
	sink   *recorder
	remote *fakeRemote
	px     prices
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	seq := 0
	cfg.NewID = func(time.Time) string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	e := &env{sink: &recorder{}, remote: newFakeRemote(), px: prices{
		"Henry Hub":   2.75,
		"WTI Cushing": 100,
		"ERCOT Hub":   42.5,
	}}
	e.book = NewBook(catalog.Default(), cfg, e.sink, e.remote)
	return e
}

func gasOrder(dir model.Direction, ot model.OrderType) model.OrderRequest {
	return model.OrderRequest{
		Type:      catalog.TypePhysFixed,
		Hub:       "Henry Hub",
		Direction: dir,
		Volume:    d(10000),
		OrderType: ot,
	}
}

func crudeOrder(dir model.Direction, ot model.OrderType) model.OrderRequest {
	return model.OrderRequest{
		Type:      catalog.TypeCrudeSwap,
		Hub:       "WTI Cushing",
		Direction: dir,
		Volume:    d(1000),
		OrderType: ot,
	}
}

func TestSubmit_MarketExecutesImmediately(t *testing.T) {
	e := newEnv(t, Config{})
	res, err := e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Nil(t, res.Order)

	tr := res.Trade
	assert.Equal(t, model.StatusOpen, tr.Status)
	assert.Equal(t, 2.75, tr.EntryPrice)
	assert.Equal(t, 2.75, tr.SpotRef)
	assert.Equal(t, catalog.SectorGas, tr.Sector)
	assert.Len(t, e.remote.submitted, 1)
	assert.Empty(t, e.book.Pending())
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*model.OrderRequest)
		field string
	}{
		{"missing type", func(r *model.OrderRequest) { r.Type = "" }, "type"},
		{"bad direction", func(r *model.OrderRequest) { r.Direction = "HOLD" }, "direction"},
		{"missing hub", func(r *model.OrderRequest) { r.Hub = "" }, "hub"},
		{"unknown hub", func(r *model.OrderRequest) { r.Hub = "Atlantis" }, "hub"},
		{"zero volume", func(r *model.OrderRequest) { r.Volume = decimal.Zero }, "volume"},
		{"negative volume", func(r *model.OrderRequest) { r.Volume = d(-5) }, "volume"},
		{"sector mismatch", func(r *model.OrderRequest) { r.Sector = catalog.SectorPower }, "sector"},
		{"type not in sector", func(r *model.OrderRequest) { r.Type = catalog.TypeFreightFFA }, "type"},
		{"bad tif", func(r *model.OrderRequest) { r.TimeInForce = "GTC" }, "time_in_force"},
		{"bad order type", func(r *model.OrderRequest) { r.OrderType = "ICEBERG" }, "order_type"},
		{"limit without price", func(r *model.OrderRequest) { r.OrderType = model.Limit }, "limit_price"},
		{"stop without price", func(r *model.OrderRequest) { r.OrderType = model.Stop }, "stop_price"},
		{"stop-limit missing limit", func(r *model.OrderRequest) {
			r.OrderType = model.StopLimit
			r.StopPrice = fp(3)
		}, "stop_price"},
		{"market buy below spot", func(r *model.OrderRequest) { r.Price = 2.5 }, "price"},
		{"limit buy above spot", func(r *model.OrderRequest) {
			r.OrderType = model.Limit
			r.LimitPrice = fp(2.80)
		}, "limit_price"},
		{"stop buy below spot", func(r *model.OrderRequest) {
			r.OrderType = model.Stop
			r.StopPrice = fp(2.70)
		}, "stop_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Config{})
			req := gasOrder(model.Buy, model.Market)
			tt.mut(&req)
			_, err := e.book.Submit(req, e.px, t0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, e.book.Trades(), "no state change on rejection")
			assert.Empty(t, e.book.Pending())
			assert.Empty(t, e.remote.submitted)
		})
	}
}

func TestSubmit_SellSideOfMarket(t *testing.T) {
	e := newEnv(t, Config{})

	req := gasOrder(model.Sell, model.Market)
	req.Price = 2.90
	_, err := e.book.Submit(req, e.px, t0)
	assert.ErrorIs(t, err, ErrValidation)

	req = gasOrder(model.Sell, model.Limit)
	req.LimitPrice = fp(2.70)
	_, err = e.book.Submit(req, e.px, t0)
	assert.ErrorIs(t, err, ErrValidation)

	req = gasOrder(model.Sell, model.Stop)
	req.StopPrice = fp(2.80)
	_, err = e.book.Submit(req, e.px, t0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmit_BasisSwapSkipsMarketPriceCheck(t *testing.T) {
	e := newEnv(t, Config{})
	req := gasOrder(model.Buy, model.Market)
	req.Type = catalog.TypeBasisSwap
	req.Price = -0.15
	res, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)
	assert.Equal(t, -0.15, res.Trade.EntryPrice)
}

func TestSubmit_NoMarketData(t *testing.T) {
	e := newEnv(t, Config{})
	req := gasOrder(model.Buy, model.Market)
	req.Hub = "Waha"
	_, err := e.book.Submit(req, e.px, t0)
	assert.ErrorIs(t, err, ErrMarketDataMissing)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestSubmit_PositionLimit(t *testing.T) {
	e := newEnv(t, Config{Limiter: limits.NewLimiter(d(15000), d(0))})
	_, err := e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	require.NoError(t, err)

	_, err = e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	assert.ErrorIs(t, err, limits.ErrPerInstrumentLimitExceeded)
	assert.Len(t, e.book.Trades(), 1)

	// Offsetting sell stays inside the cap.
	_, err = e.book.Submit(gasOrder(model.Sell, model.Market), e.px, t0)
	assert.NoError(t, err)
}

func TestLimitBuy_FillsAtLimitPrice(t *testing.T) {
	e := newEnv(t, Config{})
	e.px["WTI Cushing"] = 100
	req := crudeOrder(model.Buy, model.Limit)
	req.LimitPrice = fp(98)
	res, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	orderID := res.Order.ID

	for _, spot := range []float64{99.5, 98.5, 98.01} {
		e.px["WTI Cushing"] = spot
		rep := e.book.ProcessPending(e.px, t0.Add(time.Minute))
		assert.Zero(t, rep.Filled, "spot %v", spot)
		assert.Len(t, e.book.Pending(), 1)
	}

	e.px["WTI Cushing"] = 97.2
	rep := e.book.ProcessPending(e.px, t0.Add(2*time.Minute))
	assert.Equal(t, 1, rep.Filled)
	assert.Empty(t, e.book.Pending())

	trades := e.book.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 98.0, trades[0].EntryPrice)
	assert.Equal(t, 97.2, trades[0].SpotRef)
	assert.Equal(t, orderID, trades[0].OrderID)
	assert.Equal(t, []model.EventKind{model.EventOrderFilled}, e.sink.kinds())
	assert.Len(t, e.remote.submitted, 1)
}

func TestLimitSell_Fills(t *testing.T) {
	e := newEnv(t, Config{})
	req := crudeOrder(model.Sell, model.Limit)
	req.LimitPrice = fp(102)
	_, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)

	e.px["WTI Cushing"] = 102.4
	rep := e.book.ProcessPending(e.px, t0)
	assert.Equal(t, 1, rep.Filled)
	assert.Equal(t, 102.0, e.book.Trades()[0].EntryPrice)
}

func TestStopOrders_FillAtSpot(t *testing.T) {
	e := newEnv(t, Config{})
	buy := crudeOrder(model.Buy, model.Stop)
	buy.StopPrice = fp(103)
	sell := crudeOrder(model.Sell, model.Stop)
	sell.StopPrice = fp(97)
	_, err := e.book.Submit(buy, e.px, t0)
	require.NoError(t, err)
	_, err = e.book.Submit(sell, e.px, t0)
	require.NoError(t, err)

	e.px["WTI Cushing"] = 103.6
	rep := e.book.ProcessPending(e.px, t0)
	assert.Equal(t, 1, rep.Filled)
	assert.Equal(t, 103.6, e.book.Trades()[0].EntryPrice)

	e.px["WTI Cushing"] = 96.1
	rep = e.book.ProcessPending(e.px, t0)
	assert.Equal(t, 1, rep.Filled)
	assert.Equal(t, 96.1, e.book.Trades()[1].EntryPrice)
	assert.Equal(t, model.Sell, e.book.Trades()[1].Direction)
}

func TestStopLimit_Latch(t *testing.T) {
	e := newEnv(t, Config{})
	req := crudeOrder(model.Buy, model.StopLimit)
	req.StopPrice = fp(105)
	req.LimitPrice = fp(103)
	_, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)

	// Below the limit but the stop has never been reached: nothing happens.
	e.px["WTI Cushing"] = 102
	rep := e.book.ProcessPending(e.px, t0)
	assert.Zero(t, rep.Filled)
	assert.Zero(t, rep.Triggered)
	assert.False(t, e.book.Pending()[0].StopTriggered)

	e.px["WTI Cushing"] = 105.5
	rep = e.book.ProcessPending(e.px, t0)
	assert.Equal(t, 1, rep.Triggered)
	assert.Zero(t, rep.Filled)
	assert.True(t, e.book.Pending()[0].StopTriggered)

	// Latched: stays triggered, no second notification.
	e.px["WTI Cushing"] = 104
	rep = e.book.ProcessPending(e.px, t0)
	assert.Zero(t, rep.Triggered)
	assert.Zero(t, rep.Filled)

	e.px["WTI Cushing"] = 102.9
	rep = e.book.ProcessPending(e.px, t0)
	assert.Equal(t, 1, rep.Filled)
	assert.Equal(t, 103.0, e.book.Trades()[0].EntryPrice)
	assert.Equal(t, []model.EventKind{model.EventStopTriggered, model.EventOrderFilled}, e.sink.kinds())
}

func TestDayOrder_Expires(t *testing.T) {
	e := newEnv(t, Config{})
	req := crudeOrder(model.Buy, model.Limit)
	req.LimitPrice = fp(90)
	_, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)

	rep := e.book.ProcessPending(e.px, t0.Add(8*time.Hour))
	assert.Zero(t, rep.Expired, "exactly at the window is still live")

	rep = e.book.ProcessPending(e.px, t0.Add(8*time.Hour+time.Second))
	assert.Equal(t, 1, rep.Expired)
	assert.Empty(t, e.book.Pending())
	assert.Empty(t, e.book.Trades())
	assert.Equal(t, []model.EventKind{model.EventOrderExpired}, e.sink.kinds())
}

func TestDayOrder_ExpiryBeatsFill(t *testing.T) {
	e := newEnv(t, Config{SessionWindow: time.Hour})
	req := crudeOrder(model.Buy, model.Limit)
	req.LimitPrice = fp(98)
	_, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)

	e.px["WTI Cushing"] = 95
	rep := e.book.ProcessPending(e.px, t0.Add(2*time.Hour))
	assert.Equal(t, 1, rep.Expired)
	assert.Zero(t, rep.Filled)
}

func TestIOC_NeverRests(t *testing.T) {
	e := newEnv(t, Config{})
	req := crudeOrder(model.Buy, model.Limit)
	req.LimitPrice = fp(98)
	req.TimeInForce = model.IOC
	res, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)
	require.NotNil(t, res.Order)

	// Even a fillable price on the next pass cancels it.
	e.px["WTI Cushing"] = 97
	rep := e.book.ProcessPending(e.px, t0.Add(time.Second))
	assert.Equal(t, 1, rep.Cancelled)
	assert.Zero(t, rep.Filled)
	assert.Empty(t, e.book.Pending())
	assert.Equal(t, []model.EventKind{model.EventOrderCancelled}, e.sink.kinds())
}

func TestProcessPending_SkipsMissingMarketData(t *testing.T) {
	e := newEnv(t, Config{})
	req := crudeOrder(model.Buy, model.Limit)
	req.LimitPrice = fp(98)
	_, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)
	gas := gasOrder(model.Buy, model.Limit)
	gas.LimitPrice = fp(2.70)
	_, err = e.book.Submit(gas, e.px, t0)
	require.NoError(t, err)

	delete(e.px, "WTI Cushing")
	e.px["Henry Hub"] = 2.60
	rep := e.book.ProcessPending(e.px, t0.Add(24*time.Hour))
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Expired, "other hubs are still processed")
	require.Len(t, e.book.Pending(), 1)
	assert.Equal(t, "WTI Cushing", e.book.Pending()[0].Hub)
}

func TestCancel(t *testing.T) {
	e := newEnv(t, Config{})
	req := crudeOrder(model.Buy, model.Limit)
	req.LimitPrice = fp(98)
	res, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)

	// Cancellation applied before the matching pass wins.
	_, err = e.book.Cancel(res.Order.ID, t0)
	require.NoError(t, err)
	e.px["WTI Cushing"] = 90
	rep := e.book.ProcessPending(e.px, t0)
	assert.Zero(t, rep.Filled)
	assert.Empty(t, e.book.Trades())

	_, err = e.book.Cancel(res.Order.ID, t0)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestProcessExits_StopLossAndTarget(t *testing.T) {
	e := newEnv(t, Config{})
	long := gasOrder(model.Buy, model.Market)
	long.StopLoss = fp(2.50)
	long.Target = fp(3.00)
	short := crudeOrder(model.Sell, model.Market)
	short.StopLoss = fp(105)
	short.Target = fp(95)

	lres, err := e.book.Submit(long, e.px, t0)
	require.NoError(t, err)
	sres, err := e.book.Submit(short, e.px, t0)
	require.NoError(t, err)

	rep := e.book.ProcessExits(e.px, t0)
	assert.Zero(t, rep.StopLosses+rep.Targets)

	e.px["Henry Hub"] = 3.05
	e.px["WTI Cushing"] = 106
	rep = e.book.ProcessExits(e.px, t0.Add(time.Hour))
	assert.Equal(t, 1, rep.Targets)
	assert.Equal(t, 1, rep.StopLosses)

	lt, _ := e.book.Trade(lres.Trade.ID)
	assert.Equal(t, model.CloseTarget, lt.CloseReason)
	assert.True(t, lt.RealizedPnL.Decimal.Equal(d(3000)))

	st, _ := e.book.Trade(sres.Trade.ID)
	assert.Equal(t, model.CloseStopLoss, st.CloseReason)
	assert.True(t, st.RealizedPnL.Decimal.Equal(d(-6000)))

	assert.ElementsMatch(t, []model.EventKind{model.EventTargetHit, model.EventStopLossHit}, e.sink.kinds())
	assert.Len(t, e.remote.updated[lres.Trade.ID], 1)

	// Closed trades are never revisited.
	e.px["Henry Hub"] = 1.50
	rep = e.book.ProcessExits(e.px, t0.Add(2*time.Hour))
	assert.Zero(t, rep.StopLosses+rep.Targets)
	lt, _ = e.book.Trade(lres.Trade.ID)
	assert.True(t, lt.RealizedPnL.Decimal.Equal(d(3000)))
}

func TestProcessExits_StopLossWinsWhenBothHit(t *testing.T) {
	e := newEnv(t, Config{})
	req := gasOrder(model.Buy, model.Market)
	res, err := e.book.Submit(req, e.px, t0)
	require.NoError(t, err)
	// A crossed pair: both conditions hold at 2.60.
	_, err = e.book.UpdateProtection(res.Trade.ID, fp(2.70), fp(2.50))
	require.NoError(t, err)

	e.px["Henry Hub"] = 2.60
	rep := e.book.ProcessExits(e.px, t0)
	assert.Equal(t, 1, rep.StopLosses)
	assert.Zero(t, rep.Targets)
	tr, _ := e.book.Trade(res.Trade.ID)
	assert.Equal(t, model.CloseStopLoss, tr.CloseReason)
}

func TestCloseTrade_EndToEnd(t *testing.T) {
	e := newEnv(t, Config{})
	res, err := e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	require.NoError(t, err)

	e.px["Henry Hub"] = 3.00
	tr, err := e.book.CloseTrade(res.Trade.ID, e.px, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, tr.Status)
	assert.Equal(t, model.CloseManual, tr.CloseReason)
	assert.True(t, tr.RealizedPnL.Decimal.Equal(d(2500)))

	_, err = e.book.CloseTrade(res.Trade.ID, e.px, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, model.ErrTradeClosed)

	e.px["Henry Hub"] = 5.00
	e.book.ProcessExits(e.px, t0.Add(3*time.Hour))
	after, _ := e.book.Trade(res.Trade.ID)
	assert.True(t, after.RealizedPnL.Decimal.Equal(d(2500)))

	_, err = e.book.CloseTrade("nope", e.px, t0)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestDeleteTrade_Window(t *testing.T) {
	e := newEnv(t, Config{})
	a, err := e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	require.NoError(t, err)
	b, err := e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	require.NoError(t, err)

	require.NoError(t, e.book.DeleteTrade(a.Trade.ID, t0.Add(30*time.Minute)))
	assert.Equal(t, []string{a.Trade.ID}, e.remote.deleted)

	err = e.book.DeleteTrade(b.Trade.ID, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrDeleteWindowElapsed)
	assert.Len(t, e.book.Trades(), 1)

	assert.ErrorIs(t, e.book.DeleteTrade("nope", t0), ErrTradeNotFound)
}

func TestPositionsAndMargin(t *testing.T) {
	e := newEnv(t, Config{})
	_, err := e.book.Submit(gasOrder(model.Buy, model.Market), e.px, t0)
	require.NoError(t, err)
	sell := gasOrder(model.Sell, model.Market)
	sell.Volume = d(4000)
	_, err = e.book.Submit(sell, e.px, t0)
	require.NoError(t, err)
	_, err = e.book.Submit(crudeOrder(model.Sell, model.Market), e.px, t0)
	require.NoError(t, err)

	pos := e.book.Positions()
	require.Len(t, pos, 2)
	assert.Equal(t, "Henry Hub", pos[0].Hub)
	assert.True(t, pos[0].Net.Equal(d(6000)))
	assert.Equal(t, 2, pos[0].Trades)
	assert.True(t, pos[1].Net.Equal(d(-1000)))

	// 10k + 4k PHYS_FIXED = 1500 + 600; 1k CRUDE_SWAP = 5000.
	assert.True(t, e.book.MarginUsed().Equal(d(7100)), "got %s", e.book.MarginUsed())

	m, err := Margin(catalog.TypeSpread, d(10000))
	require.NoError(t, err)
	assert.True(t, m.Equal(d(600)))
}

func TestLoad(t *testing.T) {
	e := newEnv(t, Config{})
	e.book.Load(
		[]model.Trade{
			{ID: "t1", Hub: "Henry Hub", Status: model.StatusOpen, Volume: d(1), Direction: model.Buy},
			{ID: ""},
			{ID: "t2", Hub: "Henry Hub", Status: model.StatusOpen, Direction: model.Buy},
			{ID: "t3", Hub: "Henry Hub", Volume: d(5), Direction: model.Buy},
			{ID: "t4", Hub: "Henry Hub", Status: "PENDING", Volume: d(5), Direction: model.Buy},
		},
		[]model.PendingOrder{{ID: "o1", Hub: "Henry Hub"}, {ID: "o2", Hub: "Atlantis"}},
	)
	require.Len(t, e.book.Trades(), 1, "zero volume and unknown status are dropped")
	assert.Equal(t, "t1", e.book.Trades()[0].ID)
	require.Len(t, e.book.Pending(), 1)
	assert.Equal(t, "o1", e.book.Pending()[0].ID)
}
