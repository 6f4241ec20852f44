// Package memory is an in-process ledger store. Transactions are serialized
// and run against a copy of the state that replaces the original on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

var (
	_ port.LedgerRepository = (*Store)(nil)
	_ port.LedgerTx         = (*tx)(nil)
)

type state struct {
	items     map[int64]domain.Item
	entries   map[int64]domain.LedgerEntry
	positions map[domain.PositionKey]domain.StockPosition
	audit     []domain.AuditRecord

	// retired holds the last version of each deleted position, so a
	// recreated row continues from there instead of restarting at 1.
	retired map[domain.PositionKey]int

	nextItemID  int64
	nextEntryID int64
	nextAuditID int64
}

func newState() *state {
	return &state{
		items:     make(map[int64]domain.Item),
		entries:   make(map[int64]domain.LedgerEntry),
		positions: make(map[domain.PositionKey]domain.StockPosition),
		retired:   make(map[domain.PositionKey]int),
	}
}

func (s *state) clone() *state {
	c := &state{
		items:       make(map[int64]domain.Item, len(s.items)),
		entries:     make(map[int64]domain.LedgerEntry, len(s.entries)),
		positions:   make(map[domain.PositionKey]domain.StockPosition, len(s.positions)),
		audit:       append([]domain.AuditRecord(nil), s.audit...),
		retired:     make(map[domain.PositionKey]int, len(s.retired)),
		nextItemID:  s.nextItemID,
		nextEntryID: s.nextEntryID,
		nextAuditID: s.nextAuditID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.retired {
		c.retired[k] = v
	}
	return c
}

// retire drops the position at key and remembers its version.
func (s *state) retire(key domain.PositionKey) {
	p, ok := s.positions[key]
	if !ok {
		return
	}
	if p.Version > s.retired[key] {
		s.retired[key] = p.Version
	}
	delete(s.positions, key)
}

type Store struct {
	txMu sync.Mutex // one writer at a time

	mu sync.RWMutex
	st *state

	closed bool
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("begin tx: %w", domain.ErrStoreUnavailable)
	}
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w: %w", domain.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read() (*state, func()) {
	s.mu.RLock()
	return s.st, s.mu.RUnlock
}

func (s *Store) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	st, done := s.read()
	defer done()

	if item, ok := st.items[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (s *Store) GetEntry(_ context.Context, id int64) (*domain.LedgerEntry, error) {
	st, done := s.read()
	defer done()

	if e, ok := st.entries[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *Store) GetStockPosition(_ context.Context, key domain.PositionKey) (*domain.StockPosition, error) {
	st, done := s.read()
	defer done()

	if p, ok := st.positions[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) ListStockPositions(_ context.Context, filter domain.PositionFilter) ([]domain.StockPosition, error) {
	st, done := s.read()
	defer done()

	var out []domain.StockPosition
	for _, p := range sortedPositions(st) {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) SummarizeStock(_ context.Context, filter domain.PositionFilter) ([]domain.StockSummary, error) {
	st, done := s.read()
	defer done()

	filter.OnlyPositive = true
	totals := make(map[int64]int)
	for _, p := range st.positions {
		if filter.Matches(p) {
			totals[p.Key.ItemID] += p.Quantity
		}
	}

	out := make([]domain.StockSummary, 0, len(totals))
	for id, qty := range totals {
		out = append(out, domain.StockSummary{Item: st.items[id], Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Item, out[j].Item
		if a.Key.Name != b.Key.Name {
			return a.Key.Name < b.Key.Name
		}
		if a.Key.SubName != b.Key.SubName {
			return a.Key.SubName < b.Key.SubName
		}
		if a.Key.Manufacturer != b.Key.Manufacturer {
			return a.Key.Manufacturer < b.Key.Manufacturer
		}
		return a.ID < b.ID
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.LedgerEntry, error) {
	st, done := s.read()
	defer done()

	from, to := filter.From, filter.To
	if from.IsZero() && to.IsZero() {
		from = time.Now().UTC().AddDate(0, -6, 0)
	}
	from, to = truncate(from), truncate(to)

	var out []domain.LedgerEntry
	for _, e := range st.entries {
		switch {
		case !from.IsZero() && e.Date.Before(from):
		case !to.IsZero() && e.Date.After(to):
		case filter.ItemID != 0 && e.ItemID != filter.ItemID:
		case filter.Kind != "" && e.Kind != filter.Kind:
		case filter.Warehouse != "" && e.Location.Warehouse != filter.Warehouse:
		default:
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].After(&out[j])
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) ListAudit(_ context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	st, done := s.read()
	defer done()

	var out []domain.AuditRecord
	for i := len(st.audit) - 1; i >= 0; i-- {
		r := st.audit[i]
		switch {
		case filter.ItemID != 0 && r.ItemID != filter.ItemID:
		case filter.ReferenceID != 0 && r.ReferenceID != filter.ReferenceID:
		case filter.CorrelationID != "" && r.CorrelationID != filter.CorrelationID:
		default:
			out = append(out, r)
		}
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("ping: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return domain.MovementDate(t)
}

func sortedPositions(st *state) []domain.StockPosition {
	out := make([]domain.StockPosition, 0, len(st.positions))
	for _, p := range st.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Less(out[j].Key)
	})
	return out
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
