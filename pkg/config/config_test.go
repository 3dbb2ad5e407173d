package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/tx"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stockflow", cfg.App.Name)
	assert.Equal(t, 1000, cfg.Stock.MaxBatchSize)
	assert.Equal(t, 100, cfg.Stock.SeverityOperations)
	assert.Equal(t, 50, cfg.Stock.SeverityItems)
	assert.Equal(t, tx.IsolationRepeatableRead, cfg.Stock.TxIsolation)
	assert.Equal(t, 30*time.Second, cfg.Stock.StatementTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Alerts.ThrottleTTL)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, int32(25), cfg.DB.MaxConns)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STOCK_MAX_BATCH_SIZE", "250")
	t.Setenv("STOCK_SEVERITY_OPERATIONS", "20")
	t.Setenv("STOCK_TX_ISOLATION", "serializable")
	t.Setenv("STOCK_STATEMENT_TIMEOUT", "5s")
	t.Setenv("ALERT_FILTER", `level == "CRITICAL"`)
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("DB_MIN_CONNS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Stock.MaxBatchSize)
	assert.Equal(t, tx.IsolationSerializable, cfg.Stock.TxIsolation)
	assert.Equal(t, `level == "CRITICAL"`, cfg.Alerts.Filter)

	engine := cfg.EngineConfig()
	assert.Equal(t, 250, engine.MaxBatchSize)
	assert.Equal(t, 20, engine.SeverityOperationThreshold)
	assert.Equal(t, 50, engine.SeverityItemThreshold)
	assert.NotNil(t, engine.Now)

	opts := cfg.TxOptions()
	assert.Equal(t, pgx.Serializable, opts.IsolationLevel)
	assert.Equal(t, 5*time.Second, opts.StatementTimeout)

	pool := cfg.PoolConfig()
	assert.Equal(t, int32(8), pool.MaxConns)
	assert.Equal(t, int32(2), pool.MinConns)
}

func TestLoad_UnknownIsolationFallsBack(t *testing.T) {
	t.Setenv("STOCK_TX_ISOLATION", "read_committed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, tx.IsolationRepeatableRead, cfg.Stock.TxIsolation)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockflow.env")
	require.NoError(t, os.WriteFile(path, []byte("OUTBOX_BATCH_SIZE=42\nNATS_URL=nats://broker:4222\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NATS_URL", "nats://env:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Outbox.BatchSize)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, 42, cfg.RelayConfig().BatchSize)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STOCK_MAX_BATCH_SIZE", "0")
	t.Setenv("DB_MIN_CONNS", "50")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOCK_MAX_BATCH_SIZE")
	assert.Contains(t, err.Error(), "DB_MIN_CONNS")
}
