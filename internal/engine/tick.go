package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/energydesk/market-engine/internal/metrics"
	"github.com/energydesk/market-engine/internal/orders"
	"github.com/energydesk/market-engine/internal/risk"
)

// Scheduler advances a simulation by one step. A timer, a test or a
// headless replay may drive it.
type Scheduler interface {
	Tick(ctx context.Context) TickReport
}

// TickReport summarizes one tick.
type TickReport struct {
	Tick    uint64               `json:"tick"`
	At      time.Time            `json:"at"`
	Pending orders.PendingReport `json:"pending"`
	Exits   orders.ExitReport    `json:"exits"`
	Alerts  int                  `json:"alerts_fired"`
	Risk    risk.Snapshot        `json:"risk"`
}

// Tick runs one full simulation step. It never fails: missing market data
// is skipped per instrument and persistence problems are logged.
func (d *Desk) Tick(ctx context.Context) TickReport {
	start := time.Now()
	d.mu.Lock()

	if d.weather != nil {
		d.market.SetWeatherBias(d.weather.Bias())
	}
	d.market.Advance()
	d.market.AdvanceCurves()

	now := d.clock.Now()
	rep := TickReport{Tick: d.market.Ticks(), At: now}
	rep.Pending = d.book.ProcessPending(d.market, now)
	rep.Exits = d.book.ProcessExits(d.market, now)
	rep.Risk = risk.Compute(d.book.Trades(), d.market, d.balance())

	for _, ev := range d.alerts.Evaluate(d.market, rep.Risk.Unrealized, now) {
		d.sink.Notify(ev)
		rep.Alerts++
	}

	d.persist(ctx)
	d.updateGauges()
	quotes := d.market.Quotes()
	d.mu.Unlock()

	if d.prices != nil {
		d.prices.Prices(rep.Tick, quotes)
	}
	recordTick(rep, time.Since(start))
	return rep
}

func recordTick(rep TickReport, took time.Duration) {
	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(took.Seconds())
	metrics.OrderOutcomes.WithLabelValues("filled").Add(float64(rep.Pending.Filled))
	metrics.OrderOutcomes.WithLabelValues("expired").Add(float64(rep.Pending.Expired))
	metrics.OrderOutcomes.WithLabelValues("cancelled").Add(float64(rep.Pending.Cancelled))
	metrics.TradesClosed.WithLabelValues("stop_loss").Add(float64(rep.Exits.StopLosses))
	metrics.TradesClosed.WithLabelValues("target").Add(float64(rep.Exits.Targets))
	metrics.Equity.Set(rep.Risk.Equity.InexactFloat64())
	metrics.VaR95.Set(rep.Risk.VaR95.InexactFloat64())

	if rep.Pending.Skipped > 0 || rep.Exits.Skipped > 0 {
		slog.Debug("tick skipped instruments without market data",
			"tick", rep.Tick, "orders", rep.Pending.Skipped, "trades", rep.Exits.Skipped)
	}
}

// Run ticks every interval until ctx is cancelled.
func Run(ctx context.Context, s Scheduler, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// RunN drives n ticks back to back and returns their reports. Headless
// simulations and tests use it in place of a timer.
func RunN(ctx context.Context, s Scheduler, n int) []TickReport {
	out := make([]TickReport, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		out = append(out, s.Tick(ctx))
	}
	return out
}
