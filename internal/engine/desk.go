// Package engine owns a trader's desk: the simulated market, the order book,
// alerts and persistence, driven one tick at a time.
//
// Every tick runs the same fixed stages: weather bias, price paths, forward
// curves, order matching, protective exits, risk, alerts, persistence. Trader
// commands and ticks are serialized by the Desk, so each observes a
// consistent market.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/alerts"
	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/market"
	"github.com/energydesk/market-engine/internal/metrics"
	"github.com/energydesk/market-engine/internal/model"
	"github.com/energydesk/market-engine/internal/notify"
	"github.com/energydesk/market-engine/internal/options"
	"github.com/energydesk/market-engine/internal/orders"
	"github.com/energydesk/market-engine/internal/risk"
	"github.com/energydesk/market-engine/internal/store"
)

var ErrInvalidSettings = errors.New("engine: invalid settings")

// BiasSource supplies the current weather bias per hub. *weather.Poller
// satisfies it.
type BiasSource interface {
	Bias() map[string]float64
}

// PriceBroadcaster receives the quotes of every completed tick.
// *notify.WSHub satisfies it.
type PriceBroadcaster interface {
	Prices(tick uint64, quotes []market.Quote)
}

// Config tunes a Desk. Zero values select defaults.
type Config struct {
	Seed            uint64
	StartingBalance decimal.Decimal
	SessionWindow   time.Duration
	DeleteWindow    time.Duration
	Limiter         *limits.Limiter
	Clock           Clock
	NewID           func(time.Time) string
}

// Deps are the desk's collaborators. Every field is optional.
type Deps struct {
	Ledger      *store.Ledger
	Remote      orders.Remote
	Sink        notify.Sink
	Weather     BiasSource
	Broadcaster PriceBroadcaster
}

// Desk is one trader's simulated desk. It is safe for concurrent use.
type Desk struct {
	mu       sync.RWMutex
	cat      *catalog.Catalog
	cfg      Config
	clock    Clock
	market   *market.MarketState
	book     *orders.Book
	alerts   *alerts.Engine
	ledger   *store.Ledger
	weather  BiasSource
	sink     notify.Sink
	prices   PriceBroadcaster
	settings model.Settings
}

// New builds a desk and restores whatever the ledger holds. A broken or
// empty ledger yields a fresh desk seeded from cfg.Seed.
func New(ctx context.Context, cat *catalog.Catalog, cfg Config, deps Deps) *Desk {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if !cfg.StartingBalance.IsPositive() {
		cfg.StartingBalance = risk.DefaultStartingBalance
	}

	d := &Desk{
		cat:     cat,
		cfg:     cfg,
		clock:   cfg.Clock,
		market:  market.New(cat, cfg.Seed),
		ledger:  deps.Ledger,
		weather: deps.Weather,
		sink:    deps.Sink,
		prices:  deps.Broadcaster,
	}
	if d.sink == nil {
		d.sink = notify.Fanout{}
	}
	d.book = orders.NewBook(cat, orders.Config{
		SessionWindow: cfg.SessionWindow,
		DeleteWindow:  cfg.DeleteWindow,
		Limiter:       cfg.Limiter,
		NewID:         cfg.NewID,
	}, d.sink, deps.Remote)
	d.alerts = alerts.New(cat, cfg.NewID)
	d.settings = model.Settings{StartingBalance: cfg.StartingBalance}

	if d.ledger != nil {
		d.restore(d.ledger.Load(ctx))
	}
	d.updateGauges()
	return d
}

func (d *Desk) restore(st store.State) {
	d.book.Load(st.Trades, st.Pending)
	d.alerts.Load(st.Alerts)
	if st.Settings.StartingBalance.IsPositive() {
		d.settings = st.Settings
	}
	if st.Market != nil {
		if err := d.market.Restore(*st.Market); err != nil {
			slog.Warn("saved market snapshot rejected, starting fresh", "err", err)
		}
	}
	slog.Info("desk restored",
		"namespace", d.ledger.Namespace(),
		"trades", len(st.Trades),
		"pending", len(st.Pending),
		"alerts", len(st.Alerts),
		"ticks", d.market.Ticks(),
	)
}

// persist writes the full desk state. Failures are logged and counted; the
// in-memory state stays authoritative. Caller holds d.mu.
func (d *Desk) persist(ctx context.Context) {
	if d.ledger == nil {
		return
	}
	st := store.State{
		Trades:   d.book.Trades(),
		Pending:  d.book.Pending(),
		Alerts:   d.alerts.List(),
		Settings: d.settings,
	}
	if snap, err := d.market.Snapshot(); err != nil {
		slog.Warn("market snapshot failed", "err", err)
	} else {
		st.Market = &snap
	}
	if err := d.ledger.Save(ctx, st); err != nil {
		metrics.StoreWriteFailures.Inc()
		slog.Warn("desk state save failed", "namespace", d.ledger.Namespace(), "err", err)
	}
}

func (d *Desk) updateGauges() {
	metrics.OpenTrades.Set(float64(len(d.book.OpenTrades())))
	metrics.PendingOrders.Set(float64(len(d.book.Pending())))
}

func (d *Desk) balance() decimal.Decimal {
	return d.settings.StartingBalance
}

// --- Queries ---

// Catalog returns the instrument catalog.
func (d *Desk) Catalog() *catalog.Catalog { return d.cat }

// Ticks returns the number of completed ticks.
func (d *Desk) Ticks() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.market.Ticks()
}

// Quotes returns the latest quote of every instrument.
func (d *Desk) Quotes() []market.Quote {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.market.Quotes()
}

// Spot returns the current price of hub.
func (d *Desk) Spot(hub string) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.market.Spot(hub)
}

// History returns hub's price series, oldest first.
func (d *Desk) History(hub string) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.market.History(hub)
}

// Curve returns hub's forward curve.
func (d *Desk) Curve(hub string) ([]market.CurvePoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.market.Curve(hub)
}

// Chain prices an option chain on hub's forward for delivery month expiry.
// The smile jitter is seeded from hub, tick and expiry, so repeated requests
// within one tick return the same chain.
func (d *Desk) Chain(hub string, expiry, strikes int) (options.Chain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inst, err := d.cat.Lookup(hub)
	if err != nil {
		return options.Chain{}, fmt.Errorf("%w: %s", market.ErrUnknownInstrument, hub)
	}
	fwd, oi, err := d.market.ForwardPrice(hub, expiry)
	if err != nil {
		return options.Chain{}, err
	}
	return options.PriceChain(options.Request{
		Instrument:  inst,
		Forward:     fwd,
		ExpiryIndex: expiry,
		Strikes:     strikes,
		FuturesOI:   oi,
	}, chainRand(hub, d.market.Ticks(), expiry))
}

func chainRand(hub string, tick uint64, expiry int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(hub))
	return rand.New(rand.NewPCG(h.Sum64(), tick<<8|uint64(expiry&0xff)))
}

// Trades returns the full ledger.
func (d *Desk) Trades() []model.Trade {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.book.Trades()
}

// Trade returns one trade.
func (d *Desk) Trade(id string) (model.Trade, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.book.Trade(id)
}

// Pending returns the working orders.
func (d *Desk) Pending() []model.PendingOrder {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.book.Pending()
}

// Positions returns net positions per hub.
func (d *Desk) Positions() []model.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.book.Positions()
}

// Alerts returns every alert.
func (d *Desk) Alerts() []model.Alert {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.alerts.List()
}

// Settings returns the trader's settings.
func (d *Desk) Settings() model.Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// Risk recomputes the risk snapshot against current prices.
func (d *Desk) Risk() risk.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return risk.Compute(d.book.Trades(), d.market, d.balance())
}

// Stress runs every built-in scenario against the open book.
func (d *Desk) Stress() []risk.StressResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return risk.Stress(d.book.Trades(), risk.Scenarios())
}

// Margin previews the margin impact of a prospective order.
func (d *Desk) Margin(t catalog.InstrumentType, volume decimal.Decimal) (risk.MarginSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return risk.Margin(d.book.Trades(), d.balance(), t, volume)
}

// EquityCurve returns equity after each closed trade.
func (d *Desk) EquityCurve() []risk.EquityPoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return risk.EquityCurve(d.book.Trades(), d.balance())
}
