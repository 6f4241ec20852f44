package memory

import (
	"context"
	"sort"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

type tx struct {
	st *state
}

func (t *tx) FindItem(_ context.Context, key domain.ItemKey) (*domain.Item, error) {
	for _, item := range t.st.items {
		if item.Key == key {
			return &item, nil
		}
	}
	return nil, nil
}

func (t *tx) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	if item, ok := t.st.items[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (t *tx) CreateItem(_ context.Context, item *domain.Item) error {
	t.st.nextItemID++
	item.ID = t.st.nextItemID
	t.st.items[item.ID] = *item
	return nil
}

func (t *tx) InsertEntry(_ context.Context, e *domain.LedgerEntry) error {
	t.st.nextEntryID++
	e.ID = t.st.nextEntryID
	e.Date = domain.MovementDate(e.Date)
	t.st.entries[e.ID] = *e
	return nil
}

func (t *tx) LockEntry(_ context.Context, id int64) (*domain.LedgerEntry, error) {
	if e, ok := t.st.entries[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (t *tx) UpdateEntry(_ context.Context, e *domain.LedgerEntry) error {
	if _, ok := t.st.entries[e.ID]; !ok {
		return domain.NotFoundError("entry", e.ID)
	}
	t.st.entries[e.ID] = *e
	return nil
}

func (t *tx) DeleteEntry(_ context.Context, id int64) error {
	if _, ok := t.st.entries[id]; !ok {
		return domain.NotFoundError("entry", id)
	}
	delete(t.st.entries, id)
	return nil
}

func (t *tx) OutboundCreatedAfter(_ context.Context, key domain.PositionKey, afterID int64) (int, error) {
	sum := 0
	for _, e := range t.st.entries {
		if e.Kind == domain.EntryKindOutbound && e.Key() == key && e.ID > afterID {
			sum += e.Quantity
		}
	}
	return sum, nil
}

func (t *tx) OutboundAfter(_ context.Context, entry *domain.LedgerEntry) (int, error) {
	sum := 0
	for _, e := range t.st.entries {
		if e.Kind == domain.EntryKindOutbound && e.ItemID == entry.ItemID && e.After(entry) {
			sum += e.Quantity
		}
	}
	return sum, nil
}

func (t *tx) HasLaterInbound(_ context.Context, entry *domain.LedgerEntry) (bool, error) {
	for _, e := range t.st.entries {
		if e.Kind == domain.EntryKindInbound && !e.Cancelled() && e.ItemID == entry.ItemID &&
			e.ID != entry.ID && e.After(entry) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) CountBackingEntries(_ context.Context, key domain.PositionKey) (int, error) {
	n := 0
	for _, e := range t.st.entries {
		if e.Key() == key && (e.Kind == domain.EntryKindOutbound || !e.Cancelled()) {
			n++
		}
	}
	return n, nil
}

func (t *tx) LockPosition(_ context.Context, key domain.PositionKey) (*domain.StockPosition, error) {
	if p, ok := t.st.positions[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (t *tx) IncrementPosition(_ context.Context, key domain.PositionKey, delta int, at time.Time) (domain.StockPosition, error) {
	p, ok := t.st.positions[key]
	if !ok {
		p = domain.StockPosition{Key: key, Version: t.st.retired[key]}
	}
	if p.Quantity+delta < 0 {
		return domain.StockPosition{}, &domain.ViolationError{
			Kind:      domain.ErrNegativeResultingStock,
			Key:       &key,
			Requested: -delta,
			Available: p.Quantity,
		}
	}
	p.Quantity += delta
	p.Version++
	p.LastUpdated = at
	t.st.positions[key] = p
	return p, nil
}

func (t *tx) DecrementPosition(_ context.Context, key domain.PositionKey, quantity int, at time.Time) (domain.StockPosition, error) {
	p, ok := t.st.positions[key]
	if !ok || p.Quantity < quantity {
		return domain.StockPosition{}, &domain.ViolationError{
			Kind:      domain.ErrNegativeResultingStock,
			Key:       &key,
			Requested: quantity,
			Available: p.Quantity,
		}
	}
	p.Quantity -= quantity
	p.Version++
	p.LastUpdated = at
	t.st.positions[key] = p
	return p, nil
}

func (t *tx) DeletePosition(_ context.Context, key domain.PositionKey) error {
	t.st.retire(key)
	return nil
}

func (t *tx) InsertAudit(_ context.Context, r *domain.AuditRecord) error {
	t.st.nextAuditID++
	r.ID = t.st.nextAuditID
	t.st.audit = append(t.st.audit, *r)
	return nil
}

func (t *tx) LockAllPositions(context.Context) error {
	return nil
}

func (t *tx) ListAllPositions(context.Context) ([]domain.StockPosition, error) {
	return sortedPositions(t.st), nil
}

func (t *tx) LedgerTotals(context.Context) ([]domain.LedgerTotal, error) {
	totals := make(map[domain.PositionKey]*domain.LedgerTotal)
	for _, e := range t.st.entries {
		if e.Kind == domain.EntryKindInbound && e.Cancelled() {
			continue
		}
		total, ok := totals[e.Key()]
		if !ok {
			total = &domain.LedgerTotal{Key: e.Key()}
			totals[e.Key()] = total
		}
		if e.Kind == domain.EntryKindInbound {
			total.Inbound += e.Quantity
		} else {
			total.Outbound += e.Quantity
		}
	}

	out := make([]domain.LedgerTotal, 0, len(totals))
	for _, total := range totals {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Less(out[j].Key)
	})
	return out, nil
}

func (t *tx) ReplacePositions(_ context.Context, positions []domain.StockPosition) error {
	keep := make(map[domain.PositionKey]bool, len(positions))
	for _, p := range positions {
		keep[p.Key] = true
	}
	for key := range t.st.positions {
		if !keep[key] {
			t.st.retire(key)
		}
	}

	t.st.positions = make(map[domain.PositionKey]domain.StockPosition, len(positions))
	for _, p := range positions {
		if last := t.st.retired[p.Key]; p.Version <= last {
			p.Version = last + 1
		}
		t.st.positions[p.Key] = p
	}
	return nil
}

// Corrupt overwrites a position outside the ledger to simulate projection
// drift. A negative quantity removes the position.
func (s *Store) Corrupt(key domain.PositionKey, quantity int) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 0 {
		s.st.retire(key)
		return
	}
	p, ok := s.st.positions[key]
	if !ok {
		p = domain.StockPosition{Key: key, Version: s.st.retired[key]}
	}
	p.Quantity = quantity
	p.Version++
	s.st.positions[key] = p
}
