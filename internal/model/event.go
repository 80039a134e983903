package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a discrete engine event delivered to notification sinks.
type EventKind string

const (
	EventOrderFilled    EventKind = "OrderFilled"
	EventOrderExpired   EventKind = "OrderExpired"
	EventOrderCancelled EventKind = "OrderCancelled"
	EventStopTriggered  EventKind = "StopTriggered"
	EventStopLossHit    EventKind = "StopLossHit"
	EventTargetHit      EventKind = "TargetHit"
	EventPriceAlert     EventKind = "PriceAlert"
	EventPnLAlert       EventKind = "PnLAlert"
)

// Event is a notification about a state change that already happened.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Hub     string    `json:"hub,omitempty"`
	TradeID string    `json:"trade_id,omitempty"`
	OrderID string    `json:"order_id,omitempty"`
	AlertID string    `json:"alert_id,omitempty"`
	Price   float64   `json:"price,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NewEvent stamps a fresh event ID.
func NewEvent(kind EventKind, at time.Time, msg string) Event {
	return Event{ID: uuid.New().String(), Kind: kind, Message: msg, At: at}
}

// AlertKind selects an alert's trigger condition.
type AlertKind string

const (
	AlertPriceCross   AlertKind = "price_cross"
	AlertPriceAbove   AlertKind = "price_above"
	AlertPriceBelow   AlertKind = "price_below"
	AlertPnLThreshold AlertKind = "pnl_threshold"
)

// Alert fires once, then stays triggered.
type Alert struct {
	ID          string     `json:"id"`
	Kind        AlertKind  `json:"kind"`
	Hub         string     `json:"hub,omitempty"`
	Value       float64    `json:"value"`
	Enabled     bool       `json:"enabled"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	LastPrice   *float64   `json:"last_price,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
