package orders

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/energydesk/market-engine/internal/model"
)

// PendingReport counts what one matching pass did to the order queue.
type PendingReport struct {
	Filled    int
	Expired   int
	Cancelled int
	Triggered int
	Skipped   int
}

// ExitReport counts protective exits taken in one pass.
type ExitReport struct {
	StopLosses int
	Targets    int
	Skipped    int
}

// ProcessPending runs one matching pass over the working orders. Orders on
// hubs without market data are left untouched for this pass.
func (b *Book) ProcessPending(prices Prices, now time.Time) PendingReport {
	var rep PendingReport
	kept := b.pending[:0]

	for _, o := range b.pending {
		spot, err := prices.Spot(o.Hub)
		if err != nil {
			rep.Skipped++
			slog.Debug("no market data for pending order", "order_id", o.ID, "hub", o.Hub, "err", err)
			kept = append(kept, o)
			continue
		}

		if o.TimeInForce == model.Day && now.Sub(o.CreatedAt) > b.cfg.SessionWindow {
			rep.Expired++
			b.emitOrder(model.EventOrderExpired, o, spot, now,
				fmt.Sprintf("%s %s %s expired (DAY)", o.OrderType, o.Direction, o.Hub))
			continue
		}

		if o.TimeInForce == model.IOC {
			rep.Cancelled++
			b.emitOrder(model.EventOrderCancelled, o, spot, now,
				fmt.Sprintf("%s %s %s cancelled (IOC not filled)", o.OrderType, o.Direction, o.Hub))
			continue
		}

		fillPrice, filled, triggered := evaluate(o, spot)
		if triggered {
			rep.Triggered++
			b.emitOrder(model.EventStopTriggered, o, spot, now,
				fmt.Sprintf("STOP_LIMIT %s %s stop %.4f triggered, working limit %.4f",
					o.Direction, o.Hub, *o.StopPrice, *o.LimitPrice))
		}
		if !filled {
			kept = append(kept, o)
			continue
		}

		rep.Filled++
		t := b.openTrade(o, fillPrice, spot, now)
		ev := model.NewEvent(model.EventOrderFilled, now,
			fmt.Sprintf("%s %s %s %s filled @ %.4f", o.OrderType, o.Direction, o.Volume, o.Hub, fillPrice))
		ev.Hub, ev.OrderID, ev.TradeID, ev.Price = o.Hub, o.ID, t.ID, fillPrice
		b.notify(ev)
		slog.Info("order filled",
			"order_id", o.ID, "trade_id", t.ID, "hub", o.Hub,
			"order_type", o.OrderType, "price", fillPrice)
	}

	// Clear the tail so dropped orders can be collected.
	for i := len(kept); i < len(b.pending); i++ {
		b.pending[i] = nil
	}
	b.pending = kept
	return rep
}

// evaluate decides whether o fills against spot. For STOP_LIMIT orders it
// also latches the stop the first time its condition holds.
func evaluate(o *model.PendingOrder, spot float64) (price float64, filled, triggered bool) {
	buy := o.Direction == model.Buy
	switch o.OrderType {
	case model.Limit:
		return limitFill(buy, *o.LimitPrice, spot)
	case model.Stop:
		if stopHit(buy, *o.StopPrice, spot) {
			return spot, true, false
		}
	case model.StopLimit:
		if !o.StopTriggered {
			if !stopHit(buy, *o.StopPrice, spot) {
				return 0, false, false
			}
			o.StopTriggered = true
			triggered = true
		}
		price, filled, _ = limitFill(buy, *o.LimitPrice, spot)
		return price, filled, triggered
	}
	return 0, false, false
}

func limitFill(buy bool, limit, spot float64) (float64, bool, bool) {
	if (buy && spot <= limit) || (!buy && spot >= limit) {
		return limit, true, false
	}
	return 0, false, false
}

func stopHit(buy bool, stop, spot float64) bool {
	return (buy && spot >= stop) || (!buy && spot <= stop)
}

func (b *Book) emitOrder(kind model.EventKind, o *model.PendingOrder, spot float64, now time.Time, msg string) {
	ev := model.NewEvent(kind, now, msg)
	ev.Hub, ev.OrderID, ev.Price = o.Hub, o.ID, spot
	b.notify(ev)
}

// ProcessExits closes open trades whose stop-loss or target has been
// reached. Stop-loss is checked first; a trade closed by it is not
// evaluated for its target.
func (b *Book) ProcessExits(prices Prices, now time.Time) ExitReport {
	var rep ExitReport
	for _, t := range b.trades {
		if !t.IsOpen() || (t.StopLoss == nil && t.Target == nil) {
			continue
		}
		spot, err := prices.Spot(t.Hub)
		if err != nil {
			rep.Skipped++
			continue
		}
		buy := t.Direction == model.Buy

		if sl := t.StopLoss; sl != nil && ((buy && spot <= *sl) || (!buy && spot >= *sl)) {
			if b.exit(t, spot, model.CloseStopLoss, model.EventStopLossHit, now) {
				rep.StopLosses++
			}
			continue
		}
		if tp := t.Target; tp != nil && ((buy && spot >= *tp) || (!buy && spot <= *tp)) {
			if b.exit(t, spot, model.CloseTarget, model.EventTargetHit, now) {
				rep.Targets++
			}
		}
	}
	return rep
}

func (b *Book) exit(t *model.Trade, spot float64, reason model.CloseReason, kind model.EventKind, now time.Time) bool {
	if err := b.close(t, spot, reason, now); err != nil {
		slog.Warn("exit close failed", "trade_id", t.ID, "err", err)
		return false
	}
	ev := model.NewEvent(kind, now, fmt.Sprintf("%s %s %s closed @ %.4f, P&L %s",
		reason, t.Direction, t.Hub, spot, t.RealizedPnL.Decimal.StringFixed(2)))
	ev.Hub, ev.TradeID, ev.Price = t.Hub, t.ID, spot
	b.notify(ev)
	return true
}
