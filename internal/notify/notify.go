// Package notify delivers engine events to whoever is listening: the log,
// connected WebSocket clients, or a test recorder. Delivery never fails the
// state change that produced the event.
package notify

import (
	"log/slog"
	"sync"

	"github.com/energydesk/market-engine/internal/model"
)

// Sink receives engine events.
type Sink interface {
	Notify(ev model.Event)
}

// Fanout delivers every event to each of its sinks in order. A panicking
// sink is logged and skipped.
type Fanout []Sink

func (f Fanout) Notify(ev model.Event) {
	for _, s := range f {
		if s == nil {
			continue
		}
		deliver(s, ev)
	}
}

func deliver(s Sink, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("notification sink panicked", "kind", ev.Kind, "event_id", ev.ID, "panic", r)
		}
	}()
	s.Notify(ev)
}

// LogSink writes events to slog at Info.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Notify(ev model.Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("desk event",
		"kind", ev.Kind,
		"hub", ev.Hub,
		"trade_id", ev.TradeID,
		"order_id", ev.OrderID,
		"alert_id", ev.AlertID,
		"price", ev.Price,
		"message", ev.Message,
	)
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *Recorder) Notify(ev model.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
