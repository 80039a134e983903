// Package alerts evaluates trader price and P&L alerts once per tick.
package alerts

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/id"
	"github.com/energydesk/market-engine/internal/model"
)

var (
	ErrAlertNotFound = errors.New("alerts: alert not found")
	ErrInvalidAlert  = errors.New("alerts: invalid alert")
)

// Prices resolves the current price of a hub.
type Prices interface {
	Spot(hub string) (float64, error)
}

// Engine holds the alert list. Not safe for concurrent use.
type Engine struct {
	cat    *catalog.Catalog
	alerts []*model.Alert
	newID  func(time.Time) string
}

// New creates an empty engine. newID may be nil.
func New(cat *catalog.Catalog, newID func(time.Time) string) *Engine {
	if newID == nil {
		newID = id.At
	}
	return &Engine{cat: cat, newID: newID}
}

// Add registers an enabled alert. Price alerts need a known hub; P&L alerts
// ignore the hub.
func (e *Engine) Add(kind model.AlertKind, hub string, value float64, now time.Time) (model.Alert, error) {
	switch kind {
	case model.AlertPriceCross, model.AlertPriceAbove, model.AlertPriceBelow:
		inst, err := e.cat.Lookup(hub)
		if err != nil {
			return model.Alert{}, fmt.Errorf("%w: unknown hub %q", ErrInvalidAlert, hub)
		}
		hub = inst.Name
	case model.AlertPnLThreshold:
		hub = ""
		if value == 0 {
			return model.Alert{}, fmt.Errorf("%w: P&L threshold must be non-zero", ErrInvalidAlert)
		}
	default:
		return model.Alert{}, fmt.Errorf("%w: unsupported kind %q", ErrInvalidAlert, kind)
	}

	a := &model.Alert{
		ID:        e.newID(now),
		Kind:      kind,
		Hub:       hub,
		Value:     value,
		Enabled:   true,
		CreatedAt: now,
	}
	e.alerts = append(e.alerts, a)
	return clone(a), nil
}

// Remove deletes an alert.
func (e *Engine) Remove(alertID string) error {
	for i, a := range e.alerts {
		if a.ID == alertID {
			e.alerts = append(e.alerts[:i], e.alerts[i+1:]...)
			return nil
		}
	}
	return ErrAlertNotFound
}

// SetEnabled pauses or resumes an alert. A triggered alert stays triggered.
func (e *Engine) SetEnabled(alertID string, enabled bool) (model.Alert, error) {
	for _, a := range e.alerts {
		if a.ID == alertID {
			a.Enabled = enabled
			return clone(a), nil
		}
	}
	return model.Alert{}, ErrAlertNotFound
}

// List returns copies of all alerts in creation order.
func (e *Engine) List() []model.Alert {
	out := make([]model.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, clone(a))
	}
	return out
}

// Load replaces the alert list. Entries without an ID are dropped.
func (e *Engine) Load(alerts []model.Alert) {
	e.alerts = e.alerts[:0]
	for _, a := range alerts {
		if a.ID == "" {
			continue
		}
		c := a
		e.alerts = append(e.alerts, &c)
	}
}

// Evaluate checks every enabled, untriggered alert and returns one event per
// alert that fired. Alerts on hubs without data are skipped.
func (e *Engine) Evaluate(prices Prices, unrealized decimal.Decimal, now time.Time) []model.Event {
	var events []model.Event
	for _, a := range e.alerts {
		if !a.Enabled || a.Triggered {
			continue
		}
		if a.Kind == model.AlertPnLThreshold {
			threshold := decimal.NewFromFloat(a.Value).Abs()
			if unrealized.Abs().GreaterThan(threshold) {
				events = append(events, fire(a, model.EventPnLAlert, 0, now,
					fmt.Sprintf("unrealized P&L %s exceeds threshold of %s",
						unrealized.StringFixed(0), threshold.StringFixed(0))))
			}
			continue
		}

		spot, err := prices.Spot(a.Hub)
		if err != nil {
			continue
		}
		switch a.Kind {
		case model.AlertPriceCross:
			last := a.LastPrice
			p := spot
			a.LastPrice = &p
			if last == nil {
				continue
			}
			if (*last < a.Value && spot >= a.Value) || (*last > a.Value && spot <= a.Value) {
				events = append(events, fire(a, model.EventPriceAlert, spot, now,
					fmt.Sprintf("%s crossed %.4f, now at %.4f", a.Hub, a.Value, spot)))
			}
		case model.AlertPriceAbove:
			if spot > a.Value {
				events = append(events, fire(a, model.EventPriceAlert, spot, now,
					fmt.Sprintf("%s above %.4f, now %.4f", a.Hub, a.Value, spot)))
			}
		case model.AlertPriceBelow:
			if spot < a.Value {
				events = append(events, fire(a, model.EventPriceAlert, spot, now,
					fmt.Sprintf("%s below %.4f, now %.4f", a.Hub, a.Value, spot)))
			}
		}
	}
	return events
}

func fire(a *model.Alert, kind model.EventKind, price float64, now time.Time, msg string) model.Event {
	ts := now
	a.Triggered = true
	a.TriggeredAt = &ts
	ev := model.NewEvent(kind, now, msg)
	ev.AlertID, ev.Hub, ev.Price = a.ID, a.Hub, price
	return ev
}

func clone(a *model.Alert) model.Alert {
	c := *a
	if a.TriggeredAt != nil {
		ts := *a.TriggeredAt
		c.TriggeredAt = &ts
	}
	if a.LastPrice != nil {
		p := *a.LastPrice
		c.LastPrice = &p
	}
	return c
}
