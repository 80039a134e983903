// Package orders owns the pending-order queue and the trade ledger: order
// submission and validation, tick-driven matching, time-in-force expiry,
// and protective stop-loss / target exits.
//
// A Book is not safe for concurrent use. The engine serializes every tick
// and every trader command against it.
package orders

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/id"
	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/model"
)

const (
	// DefaultSessionWindow is how long a DAY order may rest.
	DefaultSessionWindow = 8 * time.Hour
	// DefaultDeleteWindow is how long after entry a trade may be deleted.
	DefaultDeleteWindow = time.Hour
)

var (
	ErrOrderNotFound       = errors.New("orders: order not found")
	ErrTradeNotFound       = errors.New("orders: trade not found")
	ErrMarketDataMissing   = errors.New("orders: market data unavailable")
	ErrDeleteWindowElapsed = errors.New("orders: delete window elapsed")
)

// Prices resolves the current price of a hub.
type Prices interface {
	Spot(hub string) (float64, error)
}

// Sink receives engine events. Delivery problems stay inside the sink.
type Sink interface {
	Notify(model.Event)
}

// Remote mirrors ledger changes to the remote trade service. Calls must not
// block; the local ledger stays authoritative whatever happens remotely.
type Remote interface {
	Submit(trade model.Trade)
	Update(tradeID string, patch model.TradePatch)
	Delete(tradeID string)
}

// Config tunes a Book. Zero values select defaults.
type Config struct {
	SessionWindow time.Duration
	DeleteWindow  time.Duration
	Limiter       *limits.Limiter
	NewID         func(time.Time) string
}

// Book holds pending orders and trades.
type Book struct {
	cat     *catalog.Catalog
	cfg     Config
	sink    Sink
	remote  Remote
	trades  []*model.Trade
	pending []*model.PendingOrder
}

// NewBook creates an empty book. sink and remote may be nil.
func NewBook(cat *catalog.Catalog, cfg Config, sink Sink, remote Remote) *Book {
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = DefaultSessionWindow
	}
	if cfg.DeleteWindow <= 0 {
		cfg.DeleteWindow = DefaultDeleteWindow
	}
	if cfg.NewID == nil {
		cfg.NewID = id.At
	}
	return &Book{cat: cat, cfg: cfg, sink: sink, remote: remote}
}

func (b *Book) notify(ev model.Event) {
	if b.sink == nil {
		return
	}
	b.sink.Notify(ev)
}

func (b *Book) syncSubmit(t *model.Trade) {
	if b.remote != nil {
		b.remote.Submit(t.Clone())
	}
}

func (b *Book) syncUpdate(tradeID string, patch model.TradePatch) {
	if b.remote != nil {
		b.remote.Update(tradeID, patch)
	}
}

// Load replaces the book's contents, typically from the persistent store.
// Trades without an ID, a known status or a positive volume are dropped, as
// are orders on unknown hubs.
func (b *Book) Load(trades []model.Trade, pending []model.PendingOrder) {
	b.trades = b.trades[:0]
	for _, t := range trades {
		if t.ID == "" || !t.Volume.IsPositive() ||
			(t.Status != model.StatusOpen && t.Status != model.StatusClosed) {
			slog.Warn("dropping unloadable trade", "trade_id", t.ID, "status", t.Status)
			continue
		}
		c := t.Clone()
		b.trades = append(b.trades, &c)
	}
	b.pending = b.pending[:0]
	for _, o := range pending {
		if _, err := b.cat.Lookup(o.Hub); err != nil || o.ID == "" {
			slog.Warn("dropping unloadable pending order", "order_id", o.ID, "hub", o.Hub)
			continue
		}
		c := o.Clone()
		b.pending = append(b.pending, &c)
	}
}

// Trades returns a copy of the ledger in entry order.
func (b *Book) Trades() []model.Trade {
	out := make([]model.Trade, 0, len(b.trades))
	for _, t := range b.trades {
		out = append(out, t.Clone())
	}
	return out
}

// OpenTrades returns copies of the OPEN trades.
func (b *Book) OpenTrades() []model.Trade {
	var out []model.Trade
	for _, t := range b.trades {
		if t.IsOpen() {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Trade returns a copy of one trade.
func (b *Book) Trade(tradeID string) (model.Trade, error) {
	t := b.findTrade(tradeID)
	if t == nil {
		return model.Trade{}, ErrTradeNotFound
	}
	return t.Clone(), nil
}

// Pending returns a copy of the working orders in submission order.
func (b *Book) Pending() []model.PendingOrder {
	out := make([]model.PendingOrder, 0, len(b.pending))
	for _, o := range b.pending {
		out = append(out, o.Clone())
	}
	return out
}

func (b *Book) findTrade(tradeID string) *model.Trade {
	for _, t := range b.trades {
		if t.ID == tradeID {
			return t
		}
	}
	return nil
}

// Positions aggregates open trades into per-hub long/short/net volume.
func (b *Book) Positions() []model.Position {
	byHub := make(map[string]*model.Position)
	for _, t := range b.trades {
		if !t.IsOpen() {
			continue
		}
		p, ok := byHub[t.Hub]
		if !ok {
			p = &model.Position{Hub: t.Hub, Sector: t.Sector}
			byHub[t.Hub] = p
		}
		if t.Direction == model.Sell {
			p.Short = p.Short.Add(t.Volume)
		} else {
			p.Long = p.Long.Add(t.Volume)
		}
		p.Net = p.Long.Sub(p.Short)
		p.Trades++
	}
	out := make([]model.Position, 0, len(byHub))
	for _, p := range byHub {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hub < out[j].Hub })
	return out
}

// Exposures returns the signed net volume per hub for limit checks.
func (b *Book) Exposures() []limits.Exposure {
	positions := b.Positions()
	out := make([]limits.Exposure, 0, len(positions))
	for _, p := range positions {
		out = append(out, limits.Exposure{Hub: p.Hub, Sector: p.Sector, Net: p.Net})
	}
	return out
}

// Margin returns the initial margin for volume units of type t.
func Margin(t catalog.InstrumentType, volume decimal.Decimal) (decimal.Decimal, error) {
	return catalog.Margin(t, volume)
}

// MarginUsed sums the margin held by open trades.
func (b *Book) MarginUsed() decimal.Decimal {
	total := decimal.Zero
	for _, t := range b.trades {
		if !t.IsOpen() {
			continue
		}
		m, err := catalog.Margin(t.Type, t.Volume)
		if err != nil {
			continue
		}
		total = total.Add(m)
	}
	return total
}
