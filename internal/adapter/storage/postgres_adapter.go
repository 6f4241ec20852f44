package storage

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresAdapter wraps a handle opened with the "pgx" driver.
func NewPostgresAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, d: postgresDialect}
}
