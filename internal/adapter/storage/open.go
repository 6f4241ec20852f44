package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolOptions tunes the connection pool of server databases.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database named by driver ("mysql", "postgres" or
// "sqlite"), verifies it is reachable and applies the schema.
func Open(ctx context.Context, driver, dsn string, pool PoolOptions) (*SQLAdapter, error) {
	var store *SQLAdapter

	switch driver {
	case "sqlite", "sqlite3":
		s, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		store = s
	case "mysql", "postgres":
		name := driver
		if driver == "postgres" {
			name = "pgx"
		}
		db, err := sql.Open(name, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if pool.MaxOpenConns > 0 {
			db.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.MaxIdleConns > 0 {
			db.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(pool.ConnMaxLifetime)
		}
		if driver == "mysql" {
			store = NewMySQLAdapter(db)
		} else {
			store = NewPostgresAdapter(db)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
