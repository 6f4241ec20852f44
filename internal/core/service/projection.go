package service

import (
	"context"
	"slices"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// lockPositions locks every distinct key in sorted order so concurrent
// multi-key mutations cannot deadlock. Missing positions map to nil.
func lockPositions(ctx context.Context, tx port.LedgerTx, keys ...domain.PositionKey) (map[domain.PositionKey]*domain.StockPosition, error) {
	sorted := make([]domain.PositionKey, 0, len(keys))
	seen := make(map[domain.PositionKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	slices.SortFunc(sorted, domain.PositionKey.Compare)

	out := make(map[domain.PositionKey]*domain.StockPosition, len(sorted))
	for _, k := range sorted {
		pos, err := tx.LockPosition(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = pos
	}
	return out, nil
}

// applyInboundDelta moves the position at key by delta. Increments upsert
// the row; decrements are guarded and fail with ErrNegativeResultingStock.
func (m *mutation) applyInboundDelta(ctx context.Context, tx port.LedgerTx, key domain.PositionKey, delta int) (domain.StockPosition, error) {
	var (
		pos domain.StockPosition
		err error
	)
	switch {
	case delta > 0:
		pos, err = tx.IncrementPosition(ctx, key, delta, m.at)
	case delta < 0:
		pos, err = tx.DecrementPosition(ctx, key, -delta, m.at)
	default:
		current, err := tx.LockPosition(ctx, key)
		if err != nil {
			return domain.StockPosition{}, err
		}
		if current == nil {
			return domain.StockPosition{Key: key}, nil
		}
		return *current, nil
	}
	if err != nil {
		return domain.StockPosition{}, err
	}

	m.written[key] = pos
	delete(m.pruned, key)
	return pos, nil
}

// applyOutboundDelta books delta more units shipped from key; a negative
// delta returns units to stock.
func (m *mutation) applyOutboundDelta(ctx context.Context, tx port.LedgerTx, key domain.PositionKey, delta int) (domain.StockPosition, error) {
	return m.applyInboundDelta(ctx, tx, key, -delta)
}

// moveLocation applies fromDelta at the old key and toDelta at the new one,
// then drops the old position if nothing backs it any more. The entry must
// already point at its new location.
func (m *mutation) moveLocation(ctx context.Context, tx port.LedgerTx, from, to domain.PositionKey, fromDelta, toDelta int) (domain.StockPosition, domain.StockPosition, error) {
	// Decrements first, so a failing guard aborts before anything grows.
	first, second := from, to
	firstDelta, secondDelta := fromDelta, toDelta
	if toDelta < 0 {
		first, second = to, from
		firstDelta, secondDelta = toDelta, fromDelta
	}

	a, err := m.applyInboundDelta(ctx, tx, first, firstDelta)
	if err != nil {
		return domain.StockPosition{}, domain.StockPosition{}, err
	}
	b, err := m.applyInboundDelta(ctx, tx, second, secondDelta)
	if err != nil {
		return domain.StockPosition{}, domain.StockPosition{}, err
	}
	if err := m.prune(ctx, tx, from); err != nil {
		return domain.StockPosition{}, domain.StockPosition{}, err
	}

	if first == from {
		return a, b, nil
	}
	return b, a, nil
}

// prune deletes the position at key when it sits at zero and no active
// inbound or outbound entry remains there. Reconcile applies the same rule.
func (m *mutation) prune(ctx context.Context, tx port.LedgerTx, key domain.PositionKey) error {
	backing, err := tx.CountBackingEntries(ctx, key)
	if err != nil || backing > 0 {
		return err
	}

	pos, err := tx.LockPosition(ctx, key)
	if err != nil || pos == nil || pos.Quantity != 0 {
		return err
	}
	if err := tx.DeletePosition(ctx, key); err != nil {
		return err
	}

	delete(m.written, key)
	m.pruned[key] = true
	return nil
}
