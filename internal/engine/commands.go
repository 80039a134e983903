package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/market"
	"github.com/energydesk/market-engine/internal/metrics"
	"github.com/energydesk/market-engine/internal/model"
	"github.com/energydesk/market-engine/internal/orders"
)

// Submit places an order. MARKET orders execute at once; others rest until
// a tick fills, expires or cancels them.
func (d *Desk) Submit(ctx context.Context, req model.OrderRequest) (orders.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.book.Submit(req, d.market, d.clock.Now())
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		if errors.Is(err, limits.ErrPerInstrumentLimitExceeded) || errors.Is(err, limits.ErrSectorLimitExceeded) {
			metrics.PositionLimitRejections.Inc()
		}
		return orders.Result{}, err
	}

	metrics.OrdersSubmitted.WithLabelValues(string(req.OrderType)).Inc()
	d.persist(ctx)
	d.updateGauges()
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, orders.ErrValidation):
		return "validation"
	case errors.Is(err, orders.ErrMarketDataMissing):
		return "no_market_data"
	case errors.Is(err, limits.ErrPerInstrumentLimitExceeded), errors.Is(err, limits.ErrSectorLimitExceeded):
		return "position_limit"
	default:
		return "other"
	}
}

// Cancel removes a working order.
func (d *Desk) Cancel(ctx context.Context, orderID string) (model.PendingOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, err := d.book.Cancel(orderID, d.clock.Now())
	if err != nil {
		return model.PendingOrder{}, err
	}
	metrics.OrderOutcomes.WithLabelValues("cancelled").Inc()
	d.persist(ctx)
	d.updateGauges()
	return o, nil
}

// CloseTrade closes an open trade at the current price.
func (d *Desk) CloseTrade(ctx context.Context, tradeID string) (model.Trade, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.book.CloseTrade(tradeID, d.market, d.clock.Now())
	if err != nil {
		return model.Trade{}, err
	}
	metrics.TradesClosed.WithLabelValues("manual").Inc()
	d.persist(ctx)
	d.updateGauges()
	return t, nil
}

// UpdateProtection replaces an open trade's stop-loss and target.
func (d *Desk) UpdateProtection(ctx context.Context, tradeID string, stopLoss, target *float64) (model.Trade, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.book.UpdateProtection(tradeID, stopLoss, target)
	if err != nil {
		return model.Trade{}, err
	}
	d.persist(ctx)
	return t, nil
}

// DeleteTrade removes a trade booked within the delete window.
func (d *Desk) DeleteTrade(ctx context.Context, tradeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.book.DeleteTrade(tradeID, d.clock.Now()); err != nil {
		return err
	}
	d.persist(ctx)
	d.updateGauges()
	return nil
}

// AddAlert registers a price or P&L alert.
func (d *Desk) AddAlert(ctx context.Context, kind model.AlertKind, hub string, value float64) (model.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.alerts.Add(kind, hub, value, d.clock.Now())
	if err != nil {
		return model.Alert{}, err
	}
	d.persist(ctx)
	return a, nil
}

// RemoveAlert deletes an alert.
func (d *Desk) RemoveAlert(ctx context.Context, alertID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.alerts.Remove(alertID); err != nil {
		return err
	}
	d.persist(ctx)
	return nil
}

// SetAlertEnabled toggles an alert.
func (d *Desk) SetAlertEnabled(ctx context.Context, alertID string, enabled bool) (model.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.alerts.SetEnabled(alertID, enabled)
	if err != nil {
		return model.Alert{}, err
	}
	d.persist(ctx)
	return a, nil
}

// SetStartingBalance changes the account's starting balance.
func (d *Desk) SetStartingBalance(ctx context.Context, balance decimal.Decimal) (model.Settings, error) {
	if !balance.IsPositive() {
		return model.Settings{}, fmt.Errorf("%w: starting balance must be positive", ErrInvalidSettings)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.settings.StartingBalance = balance
	d.persist(ctx)
	return d.settings, nil
}

// Mark pushes an observed price onto hub's series outside the tick cycle.
func (d *Desk) Mark(ctx context.Context, hub string, price float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.market.Mark(hub, price); err != nil {
		return err
	}
	d.persist(ctx)
	return nil
}

// Reset discards the ledger, orders, alerts and the simulated market, and
// reseeds from the configured seed.
func (d *Desk) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.book.Load(nil, nil)
	d.alerts.Load(nil)
	d.market = market.New(d.cat, d.cfg.Seed)
	d.settings = model.Settings{StartingBalance: d.cfg.StartingBalance}
	d.updateGauges()

	if d.ledger == nil {
		return nil
	}
	if err := d.ledger.Reset(ctx); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	slog.Info("desk reset", "namespace", d.ledger.Namespace())
	return nil
}
