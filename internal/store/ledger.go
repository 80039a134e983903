package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/energydesk/market-engine/internal/market"
	"github.com/energydesk/market-engine/internal/model"
)

// State is everything persisted for one trader.
type State struct {
	Trades   []model.Trade
	Pending  []model.PendingOrder
	Alerts   []model.Alert
	Settings model.Settings
	// Market is nil when no simulation snapshot was saved.
	Market *market.Snapshot
}

// Ledger reads and writes a trader's State through a Store.
type Ledger struct {
	store     Store
	namespace string
}

// NewLedger binds a store to a trader namespace.
func NewLedger(s Store, namespace string) *Ledger {
	return &Ledger{store: s, namespace: namespace}
}

// Namespace returns the trader namespace.
func (l *Ledger) Namespace() string { return l.namespace }

// Load reads every document. Missing or malformed documents load as empty
// values; a broken store never prevents startup.
func (l *Ledger) Load(ctx context.Context) State {
	var st State
	st.Trades, _ = load[[]model.Trade](ctx, l, KindTrades)
	st.Pending, _ = load[[]model.PendingOrder](ctx, l, KindPending)
	st.Alerts, _ = load[[]model.Alert](ctx, l, KindAlerts)
	st.Settings, _ = load[model.Settings](ctx, l, KindSettings)

	if snap, ok := load[market.Snapshot](ctx, l, KindMarket); ok {
		st.Market = &snap
	}
	return st
}

// load decodes one document. json.Unmarshal fills dst partially before
// reporting a type error, so the result is only taken on success.
func load[T any](ctx context.Context, l *Ledger, kind Kind) (T, bool) {
	var zero T
	data, err := l.store.Get(ctx, l.namespace, kind)
	if errors.Is(err, ErrNotFound) {
		return zero, false
	}
	if err != nil {
		slog.Warn("store read failed, using empty value", "namespace", l.namespace, "kind", kind, "err", err)
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("malformed document, using empty value", "namespace", l.namespace, "kind", kind, "err", err)
		return zero, false
	}
	return v, true
}

// Save writes every document of st. A nil Market leaves the stored
// snapshot untouched. All documents are attempted; errors are joined.
func (l *Ledger) Save(ctx context.Context, st State) error {
	errs := []error{
		l.put(ctx, KindTrades, nonNil(st.Trades)),
		l.put(ctx, KindPending, nonNil(st.Pending)),
		l.put(ctx, KindAlerts, nonNil(st.Alerts)),
		l.put(ctx, KindSettings, st.Settings),
	}
	if st.Market != nil {
		errs = append(errs, l.put(ctx, KindMarket, st.Market))
	}
	return errors.Join(errs...)
}

func (l *Ledger) put(ctx context.Context, kind Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := l.store.Put(ctx, l.namespace, kind, data); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

// Reset deletes every document of the namespace.
func (l *Ledger) Reset(ctx context.Context) error {
	var errs []error
	for _, k := range []Kind{KindTrades, KindPending, KindAlerts, KindSettings, KindMarket} {
		errs = append(errs, l.store.Delete(ctx, l.namespace, k))
	}
	return errors.Join(errs...)
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
