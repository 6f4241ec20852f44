package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

var _ port.LedgerRepository = (*SQLAdapter)(nil)

const (
	itemColumns     = "id, manufacturer, item_name, item_subname, item_subno, price, created_at"
	entryColumns    = "id, kind, item_id, movement_date, counterparty, quantity, handler_name, warehouse_name, warehouse_shelf, description, status, created_at, updated_at"
	positionColumns = "item_id, warehouse_name, warehouse_shelf, current_quantity, version, last_updated"
	auditColumns    = "id, item_id, operation_type, quantity_change, previous_quantity, new_quantity, reference_id, reference_type, description, previous_location, new_location, correlation_id, created_at"

	movementWindow = 6 // months
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLAdapter implements the ledger store on database/sql for MySQL,
// PostgreSQL and SQLite.
type SQLAdapter struct {
	db *sql.DB
	d  dialect
}

// DB returns the underlying sql.DB.
func (s *SQLAdapter) DB() *sql.DB {
	return s.db
}

// Dialect returns the database flavour, e.g. "mysql".
func (s *SQLAdapter) Dialect() string {
	return s.d.name
}

// Migrate creates missing tables and indexes. Safe to run repeatedly.
func (s *SQLAdapter) Migrate(ctx context.Context) error {
	stmts, err := s.d.schema()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{q: tx, d: s.d}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit", err)
	}
	return nil
}

func (s *SQLAdapter) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return getItem(ctx, s.db, s.d, id)
}

func (s *SQLAdapter) GetEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	return getEntry(ctx, s.db, s.d, id, false)
}

func (s *SQLAdapter) GetStockPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error) {
	return getPosition(ctx, s.db, s.d, key, false)
}

func (s *SQLAdapter) ListStockPositions(ctx context.Context, filter domain.PositionFilter) ([]domain.StockPosition, error) {
	where, args := positionWhere(filter, "")
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT `+positionColumns+`
		FROM stock_positions`+where+`
		ORDER BY item_id, warehouse_name, warehouse_shelf`+page(filter.Limit, filter.Offset)),
		args...,
	)
	if err != nil {
		return nil, storeError("query positions", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *SQLAdapter) SummarizeStock(ctx context.Context, filter domain.PositionFilter) ([]domain.StockSummary, error) {
	filter.OnlyPositive = true
	where, args := positionWhere(filter, "sp.")
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT i.id, i.manufacturer, i.item_name, i.item_subname, i.item_subno, i.price, i.created_at,
			SUM(sp.current_quantity)
		FROM stock_positions sp
		INNER JOIN items i ON i.id = sp.item_id`+where+`
		GROUP BY i.id, i.manufacturer, i.item_name, i.item_subname, i.item_subno, i.price, i.created_at
		ORDER BY i.item_name, i.item_subname, i.manufacturer, i.id`+page(filter.Limit, filter.Offset)),
		args...,
	)
	if err != nil {
		return nil, storeError("query stock summary", err)
	}
	defer rows.Close()

	var out []domain.StockSummary
	for rows.Next() {
		var (
			sum   domain.StockSummary
			price decimal.NullDecimal
		)
		err := rows.Scan(
			&sum.Item.ID, &sum.Item.Key.Manufacturer, &sum.Item.Key.Name, &sum.Item.Key.SubName,
			&sum.Item.Key.SubNumber, &price, &sum.Item.CreatedAt, &sum.Quantity,
		)
		if err != nil {
			return nil, storeError("scan stock summary", err)
		}
		if price.Valid {
			sum.Item.Price = &price.Decimal
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan stock summary", err)
	}
	return out, nil
}

func (s *SQLAdapter) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.LedgerEntry, error) {
	var (
		conds []string
		args  []any
	)

	from, to := filter.From, filter.To
	if from.IsZero() && to.IsZero() {
		from = time.Now().UTC().AddDate(0, -movementWindow, 0)
	}
	if !from.IsZero() {
		conds = append(conds, "movement_date >= ?")
		args = append(args, domain.MovementDate(from))
	}
	if !to.IsZero() {
		conds = append(conds, "movement_date <= ?")
		args = append(args, domain.MovementDate(to))
	}
	if filter.ItemID != 0 {
		conds = append(conds, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Warehouse != "" {
		conds = append(conds, "warehouse_name = ?")
		args = append(args, filter.Warehouse)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT `+entryColumns+`
		FROM ledger_entries`+whereClause(conds)+`
		ORDER BY movement_date DESC, id DESC`+page(filter.Limit, filter.Offset)),
		args...,
	)
	if err != nil {
		return nil, storeError("query movements", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeError("scan movement", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan movement", err)
	}
	return out, nil
}

func (s *SQLAdapter) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ItemID != 0 {
		conds = append(conds, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.ReferenceID != 0 {
		conds = append(conds, "reference_id = ?")
		args = append(args, filter.ReferenceID)
	}
	if filter.CorrelationID != "" {
		conds = append(conds, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT `+auditColumns+`
		FROM inventory_audit`+whereClause(conds)+`
		ORDER BY id DESC`+page(filter.Limit, filter.Offset)),
		args...,
	)
	if err != nil {
		return nil, storeError("query audit", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var (
			r       domain.AuditRecord
			op, ref string
		)
		err := rows.Scan(
			&r.ID, &r.ItemID, &op, &r.QuantityChange, &r.PreviousQuantity, &r.NewQuantity,
			&r.ReferenceID, &ref, &r.Description, &r.PreviousLocation, &r.NewLocation,
			&r.CorrelationID, &r.CreatedAt,
		)
		if err != nil {
			return nil, storeError("scan audit", err)
		}
		r.Operation = domain.OperationType(op)
		r.ReferenceType = domain.EntryKind(ref)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan audit", err)
	}
	return out, nil
}

func (s *SQLAdapter) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *SQLAdapter) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func positionWhere(f domain.PositionFilter, prefix string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ItemID != 0 {
		conds = append(conds, prefix+"item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.Warehouse != "" {
		conds = append(conds, prefix+"warehouse_name = ?")
		args = append(args, f.Warehouse)
	}
	if f.Shelf != nil {
		conds = append(conds, prefix+"warehouse_shelf = ?")
		args = append(args, *f.Shelf)
	}
	if f.OnlyPositive {
		conds = append(conds, prefix+"current_quantity > 0")
	}
	return whereClause(conds), args
}

func getItem(ctx context.Context, q querier, d dialect, id int64) (*domain.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, d.rebind(`
		SELECT `+itemColumns+` FROM items WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("query item", err)
	}
	return item, nil
}

func getEntry(ctx context.Context, q querier, d dialect, id int64, lock bool) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = ?`
	if lock {
		query += d.forUpdate
	}
	entry, err := scanEntry(q.QueryRowContext(ctx, d.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("query entry", err)
	}
	return entry, nil
}

func getPosition(ctx context.Context, q querier, d dialect, key domain.PositionKey, lock bool) (*domain.StockPosition, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM stock_positions
		WHERE item_id = ? AND warehouse_name = ? AND warehouse_shelf = ?`
	if lock {
		query += d.forUpdate
	}
	pos, err := scanPosition(q.QueryRowContext(ctx, d.rebind(query),
		key.ItemID, key.Location.Warehouse, key.Location.Shelf))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("query position", err)
	}
	return pos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item  domain.Item
		price decimal.NullDecimal
	)
	err := row.Scan(&item.ID, &item.Key.Manufacturer, &item.Key.Name, &item.Key.SubName,
		&item.Key.SubNumber, &price, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		item.Price = &price.Decimal
	}
	return &item, nil
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e            domain.LedgerEntry
		kind, status string
	)
	err := row.Scan(
		&e.ID, &kind, &e.ItemID, &e.Date, &e.Counterparty, &e.Quantity, &e.HandlerName,
		&e.Location.Warehouse, &e.Location.Shelf, &e.Description, &status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = domain.EntryKind(kind)
	e.Status = domain.EntryStatus(status)
	e.Date = domain.MovementDate(e.Date)
	return &e, nil
}

func scanPosition(row rowScanner) (*domain.StockPosition, error) {
	var p domain.StockPosition
	err := row.Scan(&p.Key.ItemID, &p.Key.Location.Warehouse, &p.Key.Location.Shelf,
		&p.Quantity, &p.Version, &p.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPositions(rows *sql.Rows) ([]domain.StockPosition, error) {
	var out []domain.StockPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, storeError("scan position", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan position", err)
	}
	return out, nil
}
