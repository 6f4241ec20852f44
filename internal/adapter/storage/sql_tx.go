package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

var _ port.LedgerTx = (*sqlTx)(nil)

type sqlTx struct {
	q querier
	d dialect
}

func (t *sqlTx) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	if t.d.returningID {
		var id int64
		if err := t.q.QueryRowContext(ctx, t.d.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, storeError(op, err)
		}
		return id, nil
	}

	result, err := t.q.ExecContext(ctx, t.d.rebind(query), args...)
	if err != nil {
		return 0, storeError(op, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storeError(op, err)
	}
	return id, nil
}

func (t *sqlTx) FindItem(ctx context.Context, key domain.ItemKey) (*domain.Item, error) {
	item, err := scanItem(t.q.QueryRowContext(ctx, t.d.rebind(`
		SELECT `+itemColumns+`
		FROM items
		WHERE manufacturer = ? AND item_name = ? AND item_subname = ? AND item_subno = ?`),
		key.Manufacturer, key.Name, key.SubName, key.SubNumber,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("find item", err)
	}
	return item, nil
}

func (t *sqlTx) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return getItem(ctx, t.q, t.d, id)
}

func (t *sqlTx) CreateItem(ctx context.Context, item *domain.Item) error {
	var price decimal.NullDecimal
	if item.Price != nil {
		price = decimal.NewNullDecimal(*item.Price)
	}
	id, err := t.insert(ctx, "insert item", `
		INSERT INTO items (manufacturer, item_name, item_subname, item_subno, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.Key.Manufacturer, item.Key.Name, item.Key.SubName, item.Key.SubNumber, price, item.CreatedAt,
	)
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (t *sqlTx) InsertEntry(ctx context.Context, e *domain.LedgerEntry) error {
	id, err := t.insert(ctx, "insert entry", `
		INSERT INTO ledger_entries (kind, item_id, movement_date, counterparty, quantity, handler_name,
			warehouse_name, warehouse_shelf, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.ItemID, domain.MovementDate(e.Date), e.Counterparty, e.Quantity, e.HandlerName,
		e.Location.Warehouse, e.Location.Shelf, e.Description, string(e.Status), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (t *sqlTx) LockEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	return getEntry(ctx, t.q, t.d, id, true)
}

func (t *sqlTx) UpdateEntry(ctx context.Context, e *domain.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, t.d.rebind(`
		UPDATE ledger_entries
		SET quantity = ?, warehouse_name = ?, warehouse_shelf = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?`),
		e.Quantity, e.Location.Warehouse, e.Location.Shelf, e.Description, string(e.Status), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return storeError("update entry", err)
	}
	return nil
}

func (t *sqlTx) DeleteEntry(ctx context.Context, id int64) error {
	result, err := t.q.ExecContext(ctx, t.d.rebind(`DELETE FROM ledger_entries WHERE id = ?`), id)
	if err != nil {
		return storeError("delete entry", err)
	}
	return expectRow(result, "entry", id)
}

func (t *sqlTx) OutboundCreatedAfter(ctx context.Context, key domain.PositionKey, afterID int64) (int, error) {
	return t.sum(ctx, "sum outbound after entry", `
		SELECT COALESCE(SUM(quantity), 0)
		FROM ledger_entries
		WHERE kind = 'outbound' AND item_id = ? AND warehouse_name = ? AND warehouse_shelf = ? AND id > ?`,
		key.ItemID, key.Location.Warehouse, key.Location.Shelf, afterID,
	)
}

func (t *sqlTx) OutboundAfter(ctx context.Context, e *domain.LedgerEntry) (int, error) {
	date := domain.MovementDate(e.Date)
	return t.sum(ctx, "sum later outbound", `
		SELECT COALESCE(SUM(quantity), 0)
		FROM ledger_entries
		WHERE kind = 'outbound' AND item_id = ?
			AND (movement_date > ? OR (movement_date = ? AND id > ?))`,
		e.ItemID, date, date, e.ID,
	)
}

func (t *sqlTx) HasLaterInbound(ctx context.Context, e *domain.LedgerEntry) (bool, error) {
	date := domain.MovementDate(e.Date)
	n, err := t.sum(ctx, "count later inbound", `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE kind = 'inbound' AND status = 'active' AND item_id = ? AND id <> ?
			AND (movement_date > ? OR (movement_date = ? AND id > ?))`,
		e.ItemID, e.ID, date, date, e.ID,
	)
	return n > 0, err
}

func (t *sqlTx) CountBackingEntries(ctx context.Context, key domain.PositionKey) (int, error) {
	return t.sum(ctx, "count backing entries", `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE item_id = ? AND warehouse_name = ? AND warehouse_shelf = ?
			AND (kind = 'outbound' OR status = 'active')`,
		key.ItemID, key.Location.Warehouse, key.Location.Shelf,
	)
}

func (t *sqlTx) sum(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, t.d.rebind(query), args...).Scan(&n); err != nil {
		return 0, storeError(op, err)
	}
	return n, nil
}

func (t *sqlTx) LockPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error) {
	return getPosition(ctx, t.q, t.d, key, true)
}

func (t *sqlTx) IncrementPosition(ctx context.Context, key domain.PositionKey, delta int, at time.Time) (domain.StockPosition, error) {
	retired, err := t.retiredVersion(ctx, key)
	if err != nil {
		return domain.StockPosition{}, err
	}
	_, err = t.q.ExecContext(ctx, t.d.rebind(t.d.upsertPosition),
		key.ItemID, key.Location.Warehouse, key.Location.Shelf, delta, retired+1, at,
	)
	if err != nil {
		return domain.StockPosition{}, storeError("upsert position", err)
	}
	return t.mustPosition(ctx, key)
}

func (t *sqlTx) DecrementPosition(ctx context.Context, key domain.PositionKey, quantity int, at time.Time) (domain.StockPosition, error) {
	result, err := t.q.ExecContext(ctx, t.d.rebind(`
		UPDATE stock_positions
		SET current_quantity = current_quantity - ?, version = version + 1, last_updated = ?
		WHERE item_id = ? AND warehouse_name = ? AND warehouse_shelf = ? AND current_quantity >= ?`),
		quantity, at, key.ItemID, key.Location.Warehouse, key.Location.Shelf, quantity,
	)
	if err != nil {
		return domain.StockPosition{}, storeError("decrement position", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.StockPosition{}, storeError("decrement position", err)
	}
	if rows == 0 {
		var available int
		if pos, err := getPosition(ctx, t.q, t.d, key, false); err != nil {
			return domain.StockPosition{}, err
		} else if pos != nil {
			available = pos.Quantity
		}
		return domain.StockPosition{}, &domain.ViolationError{
			Kind:      domain.ErrNegativeResultingStock,
			Key:       &key,
			Requested: quantity,
			Available: available,
		}
	}
	return t.mustPosition(ctx, key)
}

func (t *sqlTx) mustPosition(ctx context.Context, key domain.PositionKey) (domain.StockPosition, error) {
	pos, err := getPosition(ctx, t.q, t.d, key, false)
	if err != nil {
		return domain.StockPosition{}, err
	}
	if pos == nil {
		return domain.StockPosition{}, storeError("read position", fmt.Errorf("position %s vanished", key))
	}
	return *pos, nil
}

// retiredVersion returns the last version a deleted position at key reached,
// or 0 when none was ever deleted.
func (t *sqlTx) retiredVersion(ctx context.Context, key domain.PositionKey) (int, error) {
	var version int
	err := t.q.QueryRowContext(ctx, t.d.rebind(`
		SELECT version FROM position_versions
		WHERE item_id = ? AND warehouse_name = ? AND warehouse_shelf = ?`),
		key.ItemID, key.Location.Warehouse, key.Location.Shelf,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeError("read retired version", err)
	}
	return version, nil
}

func (t *sqlTx) retire(ctx context.Context, pos domain.StockPosition) error {
	_, err := t.q.ExecContext(ctx, t.d.rebind(t.d.retirePosition),
		pos.Key.ItemID, pos.Key.Location.Warehouse, pos.Key.Location.Shelf, pos.Version,
	)
	if err != nil {
		return storeError("retire position", err)
	}
	return nil
}

// DeletePosition removes the row and keeps its version, so a later
// IncrementPosition at the same key continues the sequence.
func (t *sqlTx) DeletePosition(ctx context.Context, key domain.PositionKey) error {
	pos, err := getPosition(ctx, t.q, t.d, key, false)
	if err != nil || pos == nil {
		return err
	}
	if err := t.retire(ctx, *pos); err != nil {
		return err
	}

	_, err = t.q.ExecContext(ctx, t.d.rebind(`
		DELETE FROM stock_positions
		WHERE item_id = ? AND warehouse_name = ? AND warehouse_shelf = ?`),
		key.ItemID, key.Location.Warehouse, key.Location.Shelf,
	)
	if err != nil {
		return storeError("delete position", err)
	}
	return nil
}

func (t *sqlTx) InsertAudit(ctx context.Context, r *domain.AuditRecord) error {
	id, err := t.insert(ctx, "insert audit", `
		INSERT INTO inventory_audit (item_id, operation_type, quantity_change, previous_quantity, new_quantity,
			reference_id, reference_type, description, previous_location, new_location, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ItemID, string(r.Operation), r.QuantityChange, r.PreviousQuantity, r.NewQuantity,
		r.ReferenceID, string(r.ReferenceType), r.Description, r.PreviousLocation, r.NewLocation,
		r.CorrelationID, r.CreatedAt,
	)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (t *sqlTx) LockAllPositions(ctx context.Context) error {
	if t.d.lockPositions == "" {
		return nil
	}
	rows, err := t.q.QueryContext(ctx, t.d.lockPositions)
	if err != nil {
		return storeError("lock positions", err)
	}
	return rows.Close()
}

func (t *sqlTx) ListAllPositions(ctx context.Context) ([]domain.StockPosition, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM stock_positions
		ORDER BY item_id, warehouse_name, warehouse_shelf`)
	if err != nil {
		return nil, storeError("query positions", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (t *sqlTx) LedgerTotals(ctx context.Context) ([]domain.LedgerTotal, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT item_id, warehouse_name, warehouse_shelf,
			COALESCE(SUM(CASE WHEN kind = 'inbound' AND status = 'active' THEN quantity ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'outbound' THEN quantity ELSE 0 END), 0)
		FROM ledger_entries
		WHERE kind = 'outbound' OR status = 'active'
		GROUP BY item_id, warehouse_name, warehouse_shelf
		ORDER BY item_id, warehouse_name, warehouse_shelf`)
	if err != nil {
		return nil, storeError("query ledger totals", err)
	}
	defer rows.Close()

	var out []domain.LedgerTotal
	for rows.Next() {
		var total domain.LedgerTotal
		err := rows.Scan(&total.Key.ItemID, &total.Key.Location.Warehouse, &total.Key.Location.Shelf,
			&total.Inbound, &total.Outbound)
		if err != nil {
			return nil, storeError("scan ledger totals", err)
		}
		out = append(out, total)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan ledger totals", err)
	}
	return out, nil
}

func (t *sqlTx) ReplacePositions(ctx context.Context, positions []domain.StockPosition) error {
	current, err := t.ListAllPositions(ctx)
	if err != nil {
		return err
	}
	keep := make(map[domain.PositionKey]bool, len(positions))
	for _, p := range positions {
		keep[p.Key] = true
	}
	for _, p := range current {
		if keep[p.Key] {
			continue
		}
		if err := t.retire(ctx, p); err != nil {
			return err
		}
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM stock_positions`); err != nil {
		return storeError("clear positions", err)
	}

	query := t.d.rebind(`
		INSERT INTO stock_positions (item_id, warehouse_name, warehouse_shelf, current_quantity, version, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for _, p := range positions {
		retired, err := t.retiredVersion(ctx, p.Key)
		if err != nil {
			return err
		}
		if p.Version <= retired {
			p.Version = retired + 1
		}
		_, err = t.q.ExecContext(ctx, query,
			p.Key.ItemID, p.Key.Location.Warehouse, p.Key.Location.Shelf, p.Quantity, p.Version, p.LastUpdated,
		)
		if err != nil {
			return storeError("insert position", err)
		}
	}
	return nil
}

func expectRow(result sql.Result, what string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return storeError("rows affected", err)
	}
	if rows == 0 {
		return domain.NotFoundError(what, id)
	}
	return nil
}
