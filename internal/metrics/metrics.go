// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts completed simulation ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_ticks_total",
		Help: "Total number of simulation ticks processed",
	})

	// TickDuration tracks how long one tick takes end to end.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "desk_tick_duration_seconds",
		Help:    "Tick processing latency in seconds",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// OrdersSubmitted counts accepted orders by order type.
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_orders_submitted_total",
		Help: "Orders accepted for execution or queueing",
	}, []string{"order_type"})

	// OrdersRejected counts rejected submissions by reason.
	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_orders_rejected_total",
		Help: "Orders rejected at submission",
	}, []string{"reason"})

	// PositionLimitRejections counts orders rejected by the position limiter.
	PositionLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_position_limit_rejections_total",
		Help: "Orders rejected by position limiter",
	})

	// OrderOutcomes counts pending orders leaving the book.
	OrderOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_order_outcomes_total",
		Help: "Pending orders by terminal outcome",
	}, []string{"outcome"})

	// TradesClosed counts trade closures by reason.
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_trades_closed_total",
		Help: "Trades closed by reason",
	}, []string{"reason"})

	// OpenTrades tracks the number of OPEN trades.
	OpenTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_open_trades",
		Help: "Number of currently open trades",
	})

	// PendingOrders tracks the working order count.
	PendingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_pending_orders",
		Help: "Number of resting orders",
	})

	// Equity tracks account equity after the last tick.
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_equity",
		Help: "Account equity after the last risk recomputation",
	})

	// VaR95 tracks the one-day 95% parametric VaR.
	VaR95 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_var95",
		Help: "One-day 95% parametric value at risk",
	})

	// OutboxMessages counts remote sync messages by op and result.
	OutboxMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_outbox_messages_total",
		Help: "Remote trade sync messages by op and result",
	}, []string{"op", "result"})

	// OutboxDepth tracks queued remote sync messages.
	OutboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_outbox_depth",
		Help: "Remote sync messages waiting for delivery",
	})

	// StoreWriteFailures counts failed persistence writes.
	StoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_store_write_failures_total",
		Help: "Failed writes to the desk state store",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "desk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
