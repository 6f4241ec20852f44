package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLAdapter {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestSQLiteMigrateIsRepeatable(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", PoolOptions{})
	require.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	store, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "ledger.db"), PoolOptions{})
	require.NoError(t, err)
	defer store.Close()

	require.Equal(t, "sqlite", store.Dialect())
	require.NoError(t, store.Ping(context.Background()))
}
