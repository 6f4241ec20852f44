package storage

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLAdapter wraps a MySQL handle. The DSN must set parseTime=true.
func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, d: mysqlDialect}
}
