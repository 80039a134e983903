package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/model"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("orders: invalid order")

// ValidationError rejects an order before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("orders: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Result is the outcome of a submission: a trade for immediate executions,
// a pending order for resting ones.
type Result struct {
	Trade *model.Trade        `json:"trade,omitempty"`
	Order *model.PendingOrder `json:"order,omitempty"`
}

// Submit validates a ticket against the current market and either executes
// it (MARKET) or queues it.
func (b *Book) Submit(req model.OrderRequest, prices Prices, now time.Time) (Result, error) {
	inst, err := b.validateStatic(&req)
	if err != nil {
		return Result{}, err
	}

	spot, err := prices.Spot(req.Hub)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrMarketDataMissing, req.Hub, err)
	}
	if err := validateAgainstMarket(&req, spot); err != nil {
		return Result{}, err
	}

	delta := req.Volume.Mul(decimal.NewFromInt(req.Direction.Sign()))
	target := exposureKey(inst)
	if err := b.cfg.Limiter.CheckLimit(target, delta, b.Exposures()); err != nil {
		return Result{}, err
	}

	if req.OrderType == model.Market {
		t := b.openTrade(orderDraft(req, inst, "", now), req.Price, spot, now)
		slog.Info("market order executed",
			"trade_id", t.ID, "hub", t.Hub, "type", t.Type,
			"direction", t.Direction, "volume", t.Volume.String(), "price", t.EntryPrice)
		c := t.Clone()
		return Result{Trade: &c}, nil
	}

	o := orderDraft(req, inst, b.cfg.NewID(now), now)
	b.pending = append(b.pending, o)
	slog.Info("order queued",
		"order_id", o.ID, "hub", o.Hub, "order_type", o.OrderType,
		"direction", o.Direction, "tif", o.TimeInForce)
	c := o.Clone()
	return Result{Order: &c}, nil
}

func exposureKey(inst catalog.Instrument) limits.Exposure {
	return limits.Exposure{Hub: inst.Name, Sector: inst.Sector}
}

func (b *Book) validateStatic(req *model.OrderRequest) (catalog.Instrument, error) {
	t, err := catalog.ParseInstrumentType(string(req.Type))
	if err != nil {
		return catalog.Instrument{}, invalid("type", "%v", err)
	}
	req.Type = t
	if !req.Direction.Valid() {
		return catalog.Instrument{}, invalid("direction", "must be BUY or SELL")
	}
	if req.Hub == "" {
		return catalog.Instrument{}, invalid("hub", "required")
	}
	inst, err := b.cat.Lookup(req.Hub)
	if err != nil {
		return catalog.Instrument{}, invalid("hub", "unknown hub %q", req.Hub)
	}
	if req.Sector != "" && req.Sector != inst.Sector {
		return catalog.Instrument{}, invalid("sector", "%s is a %s hub", inst.Name, inst.Sector)
	}
	req.Sector = inst.Sector
	if err := catalog.CheckTradable(inst.Sector, t); err != nil {
		return catalog.Instrument{}, invalid("type", "%v", err)
	}
	if !req.Volume.IsPositive() {
		return catalog.Instrument{}, invalid("volume", "must be positive")
	}

	if req.OrderType == "" {
		req.OrderType = model.Market
	}
	if req.TimeInForce == "" {
		req.TimeInForce = model.Day
	}
	switch req.TimeInForce {
	case model.Day, model.IOC:
	default:
		return catalog.Instrument{}, invalid("time_in_force", "must be DAY or IOC")
	}

	switch req.OrderType {
	case model.Market:
	case model.Limit:
		if req.LimitPrice == nil {
			return catalog.Instrument{}, invalid("limit_price", "required for LIMIT orders")
		}
	case model.Stop:
		if req.StopPrice == nil {
			return catalog.Instrument{}, invalid("stop_price", "required for STOP orders")
		}
	case model.StopLimit:
		if req.LimitPrice == nil || req.StopPrice == nil {
			return catalog.Instrument{}, invalid("stop_price", "STOP_LIMIT needs both stop and limit prices")
		}
	default:
		return catalog.Instrument{}, invalid("order_type", "unsupported %q", req.OrderType)
	}
	return inst, nil
}

// validateAgainstMarket enforces side-of-market rules relative to spot.
func validateAgainstMarket(req *model.OrderRequest, spot float64) error {
	buy := req.Direction == model.Buy
	switch req.OrderType {
	case model.Market:
		if req.Price == 0 {
			req.Price = spot
		}
		if req.Type == catalog.TypeBasisSwap {
			return nil
		}
		if buy && req.Price < spot {
			return invalid("price", "BUY at %.4f is below market %.4f", req.Price, spot)
		}
		if !buy && req.Price > spot {
			return invalid("price", "SELL at %.4f is above market %.4f", req.Price, spot)
		}
	case model.Limit:
		lim := *req.LimitPrice
		if buy && lim >= spot {
			return invalid("limit_price", "BUY limit %.4f must be below market %.4f", lim, spot)
		}
		if !buy && lim <= spot {
			return invalid("limit_price", "SELL limit %.4f must be above market %.4f", lim, spot)
		}
	case model.Stop, model.StopLimit:
		stop := *req.StopPrice
		if buy && stop <= spot {
			return invalid("stop_price", "BUY stop %.4f must be above market %.4f", stop, spot)
		}
		if !buy && stop >= spot {
			return invalid("stop_price", "SELL stop %.4f must be below market %.4f", stop, spot)
		}
	}
	return nil
}

func orderDraft(req model.OrderRequest, inst catalog.Instrument, orderID string, now time.Time) *model.PendingOrder {
	o := model.PendingOrder{
		ID:          orderID,
		Sector:      inst.Sector,
		Type:        req.Type,
		Hub:         inst.Name,
		Direction:   req.Direction,
		Volume:      req.Volume,
		OrderType:   req.OrderType,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TimeInForce: req.TimeInForce,
		StopLoss:    req.StopLoss,
		Target:      req.Target,
		Notes:       req.Notes,
		CreatedAt:   now,
	}.Clone()
	return &o
}

// openTrade converts an order draft into an OPEN trade, appends it to the
// ledger and mirrors it remotely.
func (b *Book) openTrade(o *model.PendingOrder, fillPrice, spot float64, now time.Time) *model.Trade {
	t := &model.Trade{
		ID:         b.cfg.NewID(now),
		OrderID:    o.ID,
		Sector:     o.Sector,
		Type:       o.Type,
		Hub:        o.Hub,
		Direction:  o.Direction,
		Volume:     o.Volume,
		EntryPrice: fillPrice,
		SpotRef:    spot,
		StopLoss:   copyPrice(o.StopLoss),
		Target:     copyPrice(o.Target),
		Status:     model.StatusOpen,
		CreatedAt:  now,
		Notes:      o.Notes,
	}
	b.trades = append(b.trades, t)
	b.syncSubmit(t)
	return t
}

// Cancel removes a working order.
func (b *Book) Cancel(orderID string, now time.Time) (model.PendingOrder, error) {
	for i, o := range b.pending {
		if o.ID != orderID {
			continue
		}
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
		ev := model.NewEvent(model.EventOrderCancelled, now,
			fmt.Sprintf("%s %s %s cancelled", o.OrderType, o.Direction, o.Hub))
		ev.Hub, ev.OrderID = o.Hub, o.ID
		b.notify(ev)
		return o.Clone(), nil
	}
	return model.PendingOrder{}, ErrOrderNotFound
}

// CloseTrade closes an open trade manually at the current spot.
func (b *Book) CloseTrade(tradeID string, prices Prices, now time.Time) (model.Trade, error) {
	t := b.findTrade(tradeID)
	if t == nil {
		return model.Trade{}, ErrTradeNotFound
	}
	if !t.IsOpen() {
		return model.Trade{}, model.ErrTradeClosed
	}
	spot, err := prices.Spot(t.Hub)
	if err != nil {
		return model.Trade{}, fmt.Errorf("%w: %s: %v", ErrMarketDataMissing, t.Hub, err)
	}
	if err := b.close(t, spot, model.CloseManual, now); err != nil {
		return model.Trade{}, err
	}
	return t.Clone(), nil
}

func (b *Book) close(t *model.Trade, price float64, reason model.CloseReason, now time.Time) error {
	if err := t.Close(price, reason, now); err != nil {
		return err
	}
	b.syncUpdate(t.ID, model.ClosePatch(*t))
	slog.Info("trade closed",
		"trade_id", t.ID, "hub", t.Hub, "reason", reason,
		"price", price, "realized_pnl", t.RealizedPnL.Decimal.String())
	return nil
}

// UpdateProtection replaces the stop-loss and target of an open trade.
func (b *Book) UpdateProtection(tradeID string, stopLoss, target *float64) (model.Trade, error) {
	t := b.findTrade(tradeID)
	if t == nil {
		return model.Trade{}, ErrTradeNotFound
	}
	if !t.IsOpen() {
		return model.Trade{}, model.ErrTradeClosed
	}
	t.StopLoss = copyPrice(stopLoss)
	t.Target = copyPrice(target)
	b.syncUpdate(t.ID, model.TradePatch{StopLoss: copyPrice(stopLoss), Target: copyPrice(target)})
	return t.Clone(), nil
}

// DeleteTrade removes a trade booked within the delete window.
func (b *Book) DeleteTrade(tradeID string, now time.Time) error {
	for i, t := range b.trades {
		if t.ID != tradeID {
			continue
		}
		if now.Sub(t.CreatedAt) > b.cfg.DeleteWindow {
			return fmt.Errorf("%w: booked %s ago", ErrDeleteWindowElapsed, now.Sub(t.CreatedAt).Round(time.Second))
		}
		b.trades = append(b.trades[:i], b.trades[i+1:]...)
		if b.remote != nil {
			b.remote.Delete(tradeID)
		}
		return nil
	}
	return ErrTradeNotFound
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
