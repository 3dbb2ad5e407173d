// Package config loads process configuration from the environment via viper.
// Environment variables win over an optional config file; every key has a default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stockflow/internal/core/tx"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
)

// Config groups the application settings.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Stock  StockConfig
	NATS   NATSConfig
	Redis  RedisConfig
	Alerts AlertConfig
	Outbox OutboxConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplySchema     bool
}

// StockConfig holds engine and transaction tunables.
type StockConfig struct {
	MaxBatchSize       int
	SeverityOperations int
	SeverityItems      int
	TxIsolation        tx.Isolation
	StatementTimeout   time.Duration
}

// NATSConfig holds the alert broker settings.
type NATSConfig struct {
	URL     string
	Subject string
}

// RedisConfig holds the throttle store settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AlertConfig controls which alerts are published and how often.
type AlertConfig struct {
	Filter      string // CEL expression, empty allows all
	ThrottleTTL time.Duration
}

// OutboxConfig tunes the relay worker.
type OutboxConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	SweepInterval time.Duration
}

var defaults = map[string]any{
	"APP_ENV":   "development",
	"APP_NAME":  "stockflow",
	"LOG_LEVEL": "info",

	"DATABASE_URL":          "",
	"DB_MAX_CONNS":          25,
	"DB_MIN_CONNS":          5,
	"DB_MAX_CONN_LIFETIME":  time.Hour,
	"DB_MAX_CONN_IDLE_TIME": 30 * time.Minute,
	"DB_APPLY_SCHEMA":       false,

	"STOCK_MAX_BATCH_SIZE":      1000,
	"STOCK_SEVERITY_OPERATIONS": 100,
	"STOCK_SEVERITY_ITEMS":      50,
	"STOCK_TX_ISOLATION":        string(tx.IsolationRepeatableRead),
	"STOCK_STATEMENT_TIMEOUT":   30 * time.Second,

	"NATS_URL":      "nats://127.0.0.1:4222",
	"ALERT_SUBJECT": "stockflow.alerts",

	"REDIS_ADDR":     "127.0.0.1:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"ALERT_FILTER":       "",
	"ALERT_THROTTLE_TTL": 15 * time.Minute,

	"OUTBOX_BATCH_SIZE":     100,
	"OUTBOX_POLL_INTERVAL":  2 * time.Second,
	"OUTBOX_MAX_RETRIES":    5,
	"OUTBOX_RETRY_BACKOFF":  time.Minute,
	"OUTBOX_SWEEP_INTERVAL": time.Hour,
}

// Load reads configuration from the environment and, when CONFIG_FILE is set, from that file.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("bind CONFIG_FILE: %w", err)
	}
	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			Name:     v.GetString("APP_NAME"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			URL:             v.GetString("DATABASE_URL"),
			MaxConns:        v.GetInt32("DB_MAX_CONNS"),
			MinConns:        v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime: v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime: v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			ApplySchema:     v.GetBool("DB_APPLY_SCHEMA"),
		},
		Stock: StockConfig{
			MaxBatchSize:       v.GetInt("STOCK_MAX_BATCH_SIZE"),
			SeverityOperations: v.GetInt("STOCK_SEVERITY_OPERATIONS"),
			SeverityItems:      v.GetInt("STOCK_SEVERITY_ITEMS"),
			TxIsolation:        tx.ParseIsolation(v.GetString("STOCK_TX_ISOLATION")),
			StatementTimeout:   v.GetDuration("STOCK_STATEMENT_TIMEOUT"),
		},
		NATS: NATSConfig{
			URL:     v.GetString("NATS_URL"),
			Subject: v.GetString("ALERT_SUBJECT"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Alerts: AlertConfig{
			Filter:      v.GetString("ALERT_FILTER"),
			ThrottleTTL: v.GetDuration("ALERT_THROTTLE_TTL"),
		},
		Outbox: OutboxConfig{
			BatchSize:     v.GetInt("OUTBOX_BATCH_SIZE"),
			PollInterval:  v.GetDuration("OUTBOX_POLL_INTERVAL"),
			MaxRetries:    v.GetInt("OUTBOX_MAX_RETRIES"),
			RetryBackoff:  v.GetDuration("OUTBOX_RETRY_BACKOFF"),
			SweepInterval: v.GetDuration("OUTBOX_SWEEP_INTERVAL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Stock.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("STOCK_MAX_BATCH_SIZE must be positive, got %d", c.Stock.MaxBatchSize))
	}
	if c.DB.MinConns > c.DB.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// EngineConfig maps the stock settings onto the engine config.
func (c *Config) EngineConfig() stock.Config {
	cfg := stock.DefaultConfig()
	cfg.MaxBatchSize = c.Stock.MaxBatchSize
	cfg.SeverityOperationThreshold = c.Stock.SeverityOperations
	cfg.SeverityItemThreshold = c.Stock.SeverityItems
	return cfg
}

// PoolConfig maps the database settings onto the pool config.
func (c *Config) PoolConfig() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.DB.URL)
	pc.ApplicationName = c.App.Name
	pc.MaxConns = c.DB.MaxConns
	pc.MinConns = c.DB.MinConns
	pc.MaxConnLifetime = c.DB.MaxConnLifetime
	pc.MaxConnIdleTime = c.DB.MaxConnIdleTime
	return pc
}

// TxOptions returns the transaction options stock units of work run with.
func (c *Config) TxOptions() postgres.TxOptions {
	return postgres.TxOptionsFor(c.Stock.TxIsolation, c.Stock.StatementTimeout)
}

// RelayConfig maps the outbox settings onto the relay config.
func (c *Config) RelayConfig() postgres.RelayConfig {
	return postgres.RelayConfig{
		BatchSize:    c.Outbox.BatchSize,
		MaxRetries:   c.Outbox.MaxRetries,
		RetryBackoff: c.Outbox.RetryBackoff,
	}
}
