package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/ledger_test?parseTime=true&loc=UTC"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

// resetTables empties a shared server database between cases.
func resetTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"inventory_audit", "position_versions", "stock_positions", "ledger_entries", "items"} {
		if _, err := db.ExecContext(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func TestMySQLStore(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	runStoreSuite(t, func(t *testing.T) *SQLAdapter {
		store := NewMySQLAdapter(db)
		if err := store.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		resetTables(t, db)
		return store
	})
}
