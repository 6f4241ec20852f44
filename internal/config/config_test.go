package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "ledger.db", cfg.Database.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Zero(t, cfg.Reconcile.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: mysql
  dsn: root:root@tcp(localhost:3306)/ledger?parseTime=true
redis:
  addr: localhost:6379
  cache_ttl: 30s
reconcile:
  interval: 1h
  auto_repair: true
log:
  level: debug
`), 0o600))

	t.Setenv("LEDGER_LOG_FORMAT", "json")
	t.Setenv("LEDGER_SERVER_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Reconcile.Interval)
	assert.True(t, cfg.Reconcile.AutoRepair)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("LEDGER_DATABASE_DRIVER", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported database.driver")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
