// Package model defines the core domain types shared across the desk engine.
// Prices are simulated floats; money (P&L, margin, equity) uses
// shopspring/decimal, never float64.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
)

// Direction is the side of a trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Valid reports whether d is BUY or SELL.
func (d Direction) Valid() bool { return d == Buy || d == Sell }

// Sign is +1 for BUY and -1 for SELL.
func (d Direction) Sign() int64 {
	if d == Sell {
		return -1
	}
	return 1
}

// TradeStatus only ever moves OPEN -> CLOSED.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// CloseReason records what closed a trade.
type CloseReason string

const (
	CloseManual   CloseReason = "MANUAL"
	CloseStopLoss CloseReason = "STOP_LOSS"
	CloseTarget   CloseReason = "TARGET"
)

var ErrTradeClosed = errors.New("model: trade already closed")

// Trade is an executed position. Volume is in the instrument's native units.
type Trade struct {
	ID          string                 `json:"id"`
	OrderID     string                 `json:"order_id,omitempty"`
	Sector      catalog.Sector         `json:"sector"`
	Type        catalog.InstrumentType `json:"type"`
	Hub         string                 `json:"hub"`
	Direction   Direction              `json:"direction"`
	Volume      decimal.Decimal        `json:"volume"`
	EntryPrice  float64                `json:"entry_price"`
	SpotRef     float64                `json:"spot_ref"`
	StopLoss    *float64               `json:"stop_loss,omitempty"`
	Target      *float64               `json:"target_exit,omitempty"`
	Status      TradeStatus            `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	ClosedAt    *time.Time             `json:"closed_at,omitempty"`
	ClosePrice  *float64               `json:"close_price,omitempty"`
	CloseReason CloseReason            `json:"close_reason,omitempty"`
	RealizedPnL decimal.NullDecimal    `json:"realized_pnl"`
	Notes       string                 `json:"notes,omitempty"`
}

// IsOpen reports whether t is still OPEN.
func (t *Trade) IsOpen() bool { return t.Status == StatusOpen }

// PnLAt returns the directional P&L of t marked at price.
func (t *Trade) PnLAt(price float64) decimal.Decimal {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(t.EntryPrice))
	return diff.Mul(t.Volume).Mul(decimal.NewFromInt(t.Direction.Sign()))
}

// Close moves t to CLOSED at price and fixes its realized P&L. A closed
// trade cannot be closed again.
func (t *Trade) Close(price float64, reason CloseReason, at time.Time) error {
	if !t.IsOpen() || t.RealizedPnL.Valid {
		return ErrTradeClosed
	}
	p := price
	ts := at
	t.Status = StatusClosed
	t.ClosePrice = &p
	t.ClosedAt = &ts
	t.CloseReason = reason
	t.RealizedPnL = decimal.NewNullDecimal(t.PnLAt(price).Round(2))
	return nil
}

// Clone returns a deep copy of t.
func (t Trade) Clone() Trade {
	c := t
	c.StopLoss = clonePtr(t.StopLoss)
	c.Target = clonePtr(t.Target)
	c.ClosePrice = clonePtr(t.ClosePrice)
	if t.ClosedAt != nil {
		ts := *t.ClosedAt
		c.ClosedAt = &ts
	}
	return c
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// OrderType is the execution style of an order.
type OrderType string

const (
	Market    OrderType = "MARKET"
	Limit     OrderType = "LIMIT"
	Stop      OrderType = "STOP"
	StopLimit OrderType = "STOP_LIMIT"
)

// TimeInForce bounds how long an order may rest.
type TimeInForce string

const (
	Day TimeInForce = "DAY"
	IOC TimeInForce = "IOC"
)

// OrderOutcome is the terminal state of a pending order.
type OrderOutcome string

const (
	OutcomeFilled    OrderOutcome = "FILLED"
	OutcomeExpired   OrderOutcome = "EXPIRED"
	OutcomeCancelled OrderOutcome = "CANCELLED"
)

// OrderRequest is a trader's order ticket.
type OrderRequest struct {
	Sector      catalog.Sector         `json:"sector,omitempty"`
	Type        catalog.InstrumentType `json:"type"`
	Hub         string                 `json:"hub"`
	Direction   Direction              `json:"direction"`
	Volume      decimal.Decimal        `json:"volume"`
	Price       float64                `json:"price,omitempty"`
	OrderType   OrderType              `json:"order_type"`
	LimitPrice  *float64               `json:"limit_price,omitempty"`
	StopPrice   *float64               `json:"stop_price,omitempty"`
	TimeInForce TimeInForce            `json:"time_in_force,omitempty"`
	StopLoss    *float64               `json:"stop_loss,omitempty"`
	Target      *float64               `json:"target_exit,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
}

// PendingOrder is a resting order. It leaves the book on fill, expiry or
// cancellation and is never kept in a terminal state.
type PendingOrder struct {
	ID            string                 `json:"id"`
	Sector        catalog.Sector         `json:"sector"`
	Type          catalog.InstrumentType `json:"type"`
	Hub           string                 `json:"hub"`
	Direction     Direction              `json:"direction"`
	Volume        decimal.Decimal        `json:"volume"`
	OrderType     OrderType              `json:"order_type"`
	LimitPrice    *float64               `json:"limit_price,omitempty"`
	StopPrice     *float64               `json:"stop_price,omitempty"`
	TimeInForce   TimeInForce            `json:"time_in_force"`
	StopTriggered bool                   `json:"stop_triggered"`
	StopLoss      *float64               `json:"stop_loss,omitempty"`
	Target        *float64               `json:"target_exit,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Clone returns a deep copy of o.
func (o PendingOrder) Clone() PendingOrder {
	c := o
	c.LimitPrice = clonePtr(o.LimitPrice)
	c.StopPrice = clonePtr(o.StopPrice)
	c.StopLoss = clonePtr(o.StopLoss)
	c.Target = clonePtr(o.Target)
	return c
}

// Position is the net exposure of open trades on one hub.
type Position struct {
	Hub    string          `json:"hub"`
	Sector catalog.Sector  `json:"sector"`
	Long   decimal.Decimal `json:"long"`
	Short  decimal.Decimal `json:"short"`
	Net    decimal.Decimal `json:"net"`
	Trades int             `json:"trades"`
}

// Settings are per-trader preferences persisted with the ledger.
type Settings struct {
	StartingBalance decimal.Decimal `json:"starting_balance"`
}
