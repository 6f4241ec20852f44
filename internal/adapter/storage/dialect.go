package storage

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// dialect captures the SQL differences between the supported databases.
// Queries are written with '?' placeholders and rebound per dialect.
type dialect struct {
	name string

	// dollarPlaceholders rewrites '?' to $1, $2, ...
	dollarPlaceholders bool

	// returningID means LastInsertId is unsupported and inserts must use
	// RETURNING id
	returningID bool

	// forUpdate is appended to row-locking selects
	forUpdate string

	// lockPositions blocks all other projection writers for the rest of the
	// transaction; empty when the connection setup already serializes writers
	lockPositions string

	// upsertPosition takes item, warehouse, shelf, delta, the version for a
	// fresh row and the timestamp
	upsertPosition string

	// retirePosition records the last version of a deleted position
	retirePosition string
}

const upsertOnConflict = `
	INSERT INTO stock_positions (item_id, warehouse_name, warehouse_shelf, current_quantity, version, last_updated)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (item_id, warehouse_name, warehouse_shelf) DO UPDATE SET
		current_quantity = stock_positions.current_quantity + excluded.current_quantity,
		version = stock_positions.version + 1,
		last_updated = excluded.last_updated`

const retireOnConflict = `
	INSERT INTO position_versions (item_id, warehouse_name, warehouse_shelf, version)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (item_id, warehouse_name, warehouse_shelf) DO UPDATE SET
		version = %s(position_versions.version, excluded.version)`

var (
	mysqlDialect = dialect{
		name:          "mysql",
		forUpdate:     " FOR UPDATE",
		lockPositions: "SELECT id FROM stock_positions FOR UPDATE",
		upsertPosition: `
	INSERT INTO stock_positions (item_id, warehouse_name, warehouse_shelf, current_quantity, version, last_updated)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		current_quantity = current_quantity + VALUES(current_quantity),
		version = version + 1,
		last_updated = VALUES(last_updated)`,
		retirePosition: `
	INSERT INTO position_versions (item_id, warehouse_name, warehouse_shelf, version)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE version = GREATEST(version, VALUES(version))`,
	}

	postgresDialect = dialect{
		name:               "postgres",
		dollarPlaceholders: true,
		returningID:        true,
		forUpdate:          " FOR UPDATE",
		lockPositions:      "LOCK TABLE stock_positions IN EXCLUSIVE MODE",
		upsertPosition:     upsertOnConflict,
		retirePosition:     fmt.Sprintf(retireOnConflict, "GREATEST"),
	}

	// SQLite runs on a single connection, so every transaction is already
	// exclusive.
	sqliteDialect = dialect{
		name:           "sqlite",
		upsertPosition: upsertOnConflict,
		retirePosition: fmt.Sprintf(retireOnConflict, "MAX"),
	}
)

func (d dialect) rebind(query string) string {
	if !d.dollarPlaceholders {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schema returns the DDL statements for the dialect in execution order.
func (d dialect) schema() ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + d.name + ".sql")
	if err != nil {
		return nil, err
	}

	var stmts []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

// page renders a LIMIT/OFFSET clause. MySQL refuses OFFSET without LIMIT.
func page(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = 1<<31 - 1
	}
	return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
}
