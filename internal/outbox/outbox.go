// Package outbox mirrors ledger changes to the remote trade service.
//
// The local ledger is always the source of truth. Enqueueing never blocks
// the caller; delivery happens on a background worker that retries with
// backoff and finally logs and drops a message it cannot deliver.
package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/energydesk/market-engine/internal/metrics"
	"github.com/energydesk/market-engine/internal/model"
)

// Op is the remote operation a message carries.
type Op string

const (
	OpSubmit Op = "submit"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Message is one queued remote call.
type Message struct {
	ID         string            `json:"id"`
	Op         Op                `json:"op"`
	TradeID    string            `json:"trade_id"`
	Trade      *model.Trade      `json:"trade,omitempty"`
	Patch      *model.TradePatch `json:"patch,omitempty"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Transport delivers one message to the remote side.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Policy bounds queueing and retries.
type Policy struct {
	QueueSize   int
	MaxAttempts int
	// Backoff is the first retry delay; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultPolicy retries three times over a few seconds.
func DefaultPolicy() Policy {
	return Policy{
		QueueSize:   1024,
		MaxAttempts: 3,
		Backoff:     250 * time.Millisecond,
		MaxBackoff:  4 * time.Second,
	}
}

// Stats are delivery counters since creation.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Delivered int64 `json:"delivered"`
	Retried   int64 `json:"retried"`
	Dropped   int64 `json:"dropped"`
}

// Outbox queues remote trade calls. It satisfies the ledger's Remote
// interface.
type Outbox struct {
	transport Transport
	policy    Policy
	queue     chan Message
	now       func() time.Time

	enqueued  atomic.Int64
	delivered atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64

	wg sync.WaitGroup
}

// New creates an outbox. Zero policy fields take DefaultPolicy values.
func New(t Transport, p Policy) *Outbox {
	def := DefaultPolicy()
	if p.QueueSize <= 0 {
		p.QueueSize = def.QueueSize
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return &Outbox{
		transport: t,
		policy:    p,
		queue:     make(chan Message, p.QueueSize),
		now:       time.Now,
	}
}

// Submit queues creation of a trade.
func (o *Outbox) Submit(t model.Trade) {
	c := t.Clone()
	o.enqueue(Message{Op: OpSubmit, TradeID: t.ID, Trade: &c})
}

// Update queues a partial update of a trade.
func (o *Outbox) Update(tradeID string, patch model.TradePatch) {
	p := patch
	o.enqueue(Message{Op: OpUpdate, TradeID: tradeID, Patch: &p})
}

// Delete queues removal of a trade.
func (o *Outbox) Delete(tradeID string) {
	o.enqueue(Message{Op: OpDelete, TradeID: tradeID})
}

func (o *Outbox) enqueue(msg Message) {
	msg.ID = uuid.New().String()
	msg.EnqueuedAt = o.now()
	select {
	case o.queue <- msg:
		o.enqueued.Add(1)
		metrics.OutboxDepth.Set(float64(len(o.queue)))
	default:
		o.dropped.Add(1)
		metrics.OutboxMessages.WithLabelValues(string(msg.Op), "dropped").Inc()
		slog.Warn("outbox full, dropping remote sync", "op", msg.Op, "trade_id", msg.TradeID)
	}
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int { return len(o.queue) }

// Stats returns a snapshot of the delivery counters.
func (o *Outbox) Stats() Stats {
	return Stats{
		Enqueued:  o.enqueued.Load(),
		Delivered: o.delivered.Load(),
		Retried:   o.retried.Load(),
		Dropped:   o.dropped.Load(),
	}
}

// Start launches the delivery worker. It stops when ctx is cancelled.
func (o *Outbox) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx)
	}()
}

func (o *Outbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.queue:
			metrics.OutboxDepth.Set(float64(len(o.queue)))
			o.deliver(ctx, msg)
		}
	}
}

// Drain synchronously delivers everything currently queued and returns the
// number of messages processed. Used at shutdown and by headless runs.
func (o *Outbox) Drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case msg := <-o.queue:
			o.deliver(ctx, msg)
			n++
		default:
			metrics.OutboxDepth.Set(0)
			return n
		}
	}
}

// Wait blocks until the worker started by Start has returned.
func (o *Outbox) Wait() { o.wg.Wait() }

func (o *Outbox) deliver(ctx context.Context, msg Message) {
	delay := o.policy.Backoff
	for {
		msg.Attempts++
		err := o.transport.Send(ctx, msg)
		if err == nil {
			o.delivered.Add(1)
			metrics.OutboxMessages.WithLabelValues(string(msg.Op), "delivered").Inc()
			return
		}
		if msg.Attempts >= o.policy.MaxAttempts || ctx.Err() != nil {
			o.dropped.Add(1)
			metrics.OutboxMessages.WithLabelValues(string(msg.Op), "dropped").Inc()
			slog.Warn("remote sync failed, local ledger kept",
				"op", msg.Op, "trade_id", msg.TradeID, "attempts", msg.Attempts, "err", err)
			return
		}

		o.retried.Add(1)
		metrics.OutboxMessages.WithLabelValues(string(msg.Op), "retried").Inc()
		slog.Debug("remote sync retry", "op", msg.Op, "trade_id", msg.TradeID, "attempt", msg.Attempts, "err", err)
		if !sleep(ctx, delay) {
			o.dropped.Add(1)
			return
		}
		delay *= 2
		if delay > o.policy.MaxBackoff {
			delay = o.policy.MaxBackoff
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Discard is a Transport that accepts everything. Used when no remote
// trade service is configured.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }
