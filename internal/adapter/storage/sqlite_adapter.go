package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteAdapter wraps a handle opened with the "sqlite3" driver. The
// handle must be limited to one open connection; OpenSQLite does that.
func NewSQLiteAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, d: sqliteDialect}
}

// OpenSQLite opens (or creates) the database file at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(path string) (*SQLAdapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return NewSQLiteAdapter(db), nil
}
