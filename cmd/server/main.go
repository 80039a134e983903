package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/api"
	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/config"
	"github.com/energydesk/market-engine/internal/engine"
	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/metrics"
	"github.com/energydesk/market-engine/internal/notify"
	"github.com/energydesk/market-engine/internal/outbox"
	"github.com/energydesk/market-engine/internal/store"
	"github.com/energydesk/market-engine/internal/weather"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Getenv("DESK_CONFIG"))
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Initialize store ---
	st, closers, err := openStore(ctx, cfg.Store)
	cleanup = append(cleanup, closers...)
	if err != nil {
		slog.Error("store init failed", "backend", cfg.Store.Backend, "err", err)
		os.Exit(1)
	}

	// --- Remote trade sync ---
	transport, err := openTransport(cfg)
	if err != nil {
		slog.Error("remote transport init failed", "transport", cfg.Remote.Transport, "err", err)
		os.Exit(1)
	}
	box := outbox.New(transport, outbox.Policy{
		QueueSize:   cfg.Remote.QueueSize,
		MaxAttempts: cfg.Remote.MaxAttempts,
		Backoff:     cfg.Remote.Backoff,
	})
	box.Start(ctx)

	// --- Weather bias ---
	var bias engine.BiasSource
	if cfg.Weather.URL != "" {
		poller := weather.NewPoller(weather.NewHTTPProvider(cfg.Weather.URL), cfg.Weather.PollInterval)
		poller.Start(ctx)
		bias = poller
		slog.Info("weather bias enabled", "url", cfg.Weather.URL, "interval", cfg.Weather.PollInterval)
	}

	// --- WebSocket hub ---
	wsHub := notify.NewWSHub()
	go wsHub.Run(ctx)

	// --- Position limits ---
	var limiter *limits.Limiter
	if cfg.Desk.MaxPerInstrument > 0 || cfg.Desk.MaxPerSector > 0 {
		limiter = limits.NewLimiter(
			decimal.NewFromFloat(cfg.Desk.MaxPerInstrument),
			decimal.NewFromFloat(cfg.Desk.MaxPerSector),
		)
	}

	desk := engine.New(ctx, catalog.Default(), engine.Config{
		Seed:            cfg.Desk.Seed,
		StartingBalance: decimal.NewFromFloat(cfg.Desk.StartingBalance),
		SessionWindow:   cfg.Desk.SessionWindow,
		DeleteWindow:    cfg.Desk.DeleteWindow,
		Limiter:         limiter,
	}, engine.Deps{
		Ledger:      store.NewLedger(st, cfg.Desk.Trader),
		Remote:      box,
		Sink:        notify.Fanout{notify.LogSink{Logger: logger}, wsHub},
		Weather:     bias,
		Broadcaster: wsHub,
	})

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		engine.Run(ctx, desk, cfg.Desk.TickInterval)
	}()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"market-engine","trader":%q,"tick":%d}`, cfg.Desk.Trader, desk.Ticks())
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", api.NewService(desk, wsHub.HandleWS).Mount)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "port", cfg.Server.Port, "trader", cfg.Desk.Trader, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down market-engine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	<-tickDone

	box.Wait()
	if n := box.Drain(shutdownCtx); n > 0 {
		slog.Info("outbox drained", "messages", n)
	}
	if c, ok := transport.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close remote transport", "err", err)
		}
	}
	slog.Info("market-engine stopped", "outbox", box.Stats())
}

// openStore builds the configured backend. The returned closers must run
// even when err is non-nil.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, []func(), error) {
	var closers []func()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, closers, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		closers = append(closers, func() { rdb.Close() })
	}

	var st store.Store
	switch cfg.Backend {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, closers, fmt.Errorf("database connection failed: %w", err)
		}
		closers = append(closers, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, closers, fmt.Errorf("migrate: %w", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case config.StoreSQLite:
		lite, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, func() { lite.Close() })
		st = lite
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
	case config.StoreRedis:
		slog.Info("using Redis store")
		return store.NewRedisStore(rdb), closers, nil
	default:
		slog.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryStore(), closers, nil
	}

	if rdb != nil {
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}
	return st, closers, nil
}

func openTransport(cfg *config.Config) (outbox.Transport, error) {
	switch cfg.Remote.Transport {
	case config.RemoteHTTP:
		return outbox.NewHTTPTransport(cfg.Remote.URL, cfg.Desk.Trader), nil
	case config.RemoteKafka:
		return outbox.NewKafkaTransport(cfg.Remote.KafkaBrokers, cfg.Remote.KafkaTopic, cfg.Desk.Trader), nil
	case config.RemoteNone, "":
		return outbox.Discard{}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Remote.Transport)
}

// cors allows the browser frontend to call the API cross-origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
