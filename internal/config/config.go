// Package config loads desk service settings from YAML, an optional .env
// file and environment variables, in that order of precedence (environment
// wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Remote sync transports.
const (
	RemoteNone  = "none"
	RemoteHTTP  = "http"
	RemoteKafka = "kafka"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Desk    DeskConfig    `yaml:"desk"`
	Store   StoreConfig   `yaml:"store"`
	Remote  RemoteConfig  `yaml:"remote"`
	Weather WeatherConfig `yaml:"weather"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DeskConfig tunes the simulation and the trader's account.
type DeskConfig struct {
	Trader          string        `yaml:"trader"`
	Seed            uint64        `yaml:"seed"`
	StartingBalance float64       `yaml:"starting_balance"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	SessionWindow   time.Duration `yaml:"session_window"`
	DeleteWindow    time.Duration `yaml:"delete_window"`
	// Zero disables the corresponding position limit.
	MaxPerInstrument float64 `yaml:"max_per_instrument"`
	MaxPerSector     float64 `yaml:"max_per_sector"`
}

// StoreConfig selects the persistence backend. With postgres or sqlite, a
// non-empty RedisURL adds a read-through cache in front of it.
type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	DatabaseURL string        `yaml:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RemoteConfig selects how trades are mirrored to the remote trade service.
type RemoteConfig struct {
	Transport    string        `yaml:"transport"`
	URL          string        `yaml:"url"`
	KafkaBrokers []string      `yaml:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic"`
	QueueSize    int           `yaml:"queue_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Backoff      time.Duration `yaml:"backoff"`
}

type WeatherConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns a self-contained configuration: in-memory store, no
// remote sync, no weather feed.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", ShutdownTimeout: 10 * time.Second},
		Log:    LogConfig{Level: "info"},
		Desk: DeskConfig{
			Trader:          "default",
			Seed:            1,
			StartingBalance: 1_000_000,
			TickInterval:    2 * time.Second,
			SessionWindow:   8 * time.Hour,
			DeleteWindow:    time.Hour,
		},
		Store: StoreConfig{Backend: StoreMemory, CacheTTL: 30 * time.Second},
		Remote: RemoteConfig{
			Transport:   RemoteNone,
			KafkaTopic:  "desk.trades",
			QueueSize:   1024,
			MaxAttempts: 3,
			Backoff:     250 * time.Millisecond,
		},
		Weather: WeatherConfig{PollInterval: 5 * time.Minute},
	}
}

// Load builds a configuration from defaults, the YAML file at path (if
// path is non-empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)
	str("TRADER", &c.Desk.Trader)
	str("REDIS_URL", &c.Store.RedisURL)
	str("WEATHER_BIAS_URL", &c.Weather.URL)
	str("KAFKA_TOPIC", &c.Remote.KafkaTopic)

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Store.DatabaseURL = v
		c.Store.Backend = StorePostgres
	}
	if v, ok := lookup("SQLITE_PATH"); ok && v != "" {
		c.Store.SQLitePath = v
		if c.Store.Backend != StorePostgres {
			c.Store.Backend = StoreSQLite
		}
	}
	if v, ok := lookup("REMOTE_TRADES_URL"); ok && v != "" {
		c.Remote.URL = v
		c.Remote.Transport = RemoteHTTP
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Remote.KafkaBrokers = splitList(v)
		c.Remote.Transport = RemoteKafka
	}
	if v, ok := lookup("DESK_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DESK_SEED: %w", err)
		}
		c.Desk.Seed = seed
	}
	if v, ok := lookup("TICK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		c.Desk.TickInterval = d
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if strings.TrimSpace(c.Desk.Trader) == "" {
		return fmt.Errorf("desk.trader is required")
	}
	if c.Desk.StartingBalance <= 0 {
		return fmt.Errorf("desk.starting_balance must be positive")
	}
	if c.Desk.TickInterval <= 0 {
		return fmt.Errorf("desk.tick_interval must be positive")
	}
	if c.Desk.MaxPerInstrument < 0 || c.Desk.MaxPerSector < 0 {
		return fmt.Errorf("desk position limits must not be negative")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres backend")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, postgres, sqlite, redis")
	}

	switch c.Remote.Transport {
	case RemoteNone, "":
	case RemoteHTTP:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url is required for the http transport")
		}
	case RemoteKafka:
		if len(c.Remote.KafkaBrokers) == 0 || c.Remote.KafkaTopic == "" {
			return fmt.Errorf("remote.kafka_brokers and remote.kafka_topic are required for the kafka transport")
		}
	default:
		return fmt.Errorf("remote.transport must be one of none, http, kafka")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q must be debug, info, warn or error", s)
}
