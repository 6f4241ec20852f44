package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// runStoreSuite exercises a migrated, empty store. Every SQL dialect runs the
// same cases.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) *SQLAdapter) {
	t.Run("items", func(t *testing.T) { testItems(t, newStore(t)) })
	t.Run("entries", func(t *testing.T) { testEntries(t, newStore(t)) })
	t.Run("positions", func(t *testing.T) { testPositions(t, newStore(t)) })
	t.Run("ordering queries", func(t *testing.T) { testOrderingQueries(t, newStore(t)) })
	t.Run("totals and replace", func(t *testing.T) { testTotalsAndReplace(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("listings", func(t *testing.T) { testListings(t, newStore(t)) })
}

var (
	testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	whA     = domain.Location{Warehouse: "Main", Shelf: "A1"}
	whB     = domain.Location{Warehouse: "Main", Shelf: ""}
)

func inTx(t *testing.T, s *SQLAdapter, fn func(ctx context.Context, tx port.LedgerTx)) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		fn(ctx, tx)
		return nil
	})
	require.NoError(t, err)
}

func seedItem(t *testing.T, s *SQLAdapter, name string) int64 {
	t.Helper()
	item := &domain.Item{
		Key:       domain.ItemKey{Manufacturer: "Acme", Name: name},
		CreatedAt: testNow,
	}
	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		require.NoError(t, tx.CreateItem(ctx, item))
	})
	return item.ID
}

func seedEntry(t *testing.T, s *SQLAdapter, kind domain.EntryKind, itemID int64, date time.Time, qty int, loc domain.Location) *domain.LedgerEntry {
	t.Helper()
	e := &domain.LedgerEntry{
		Kind:         kind,
		ItemID:       itemID,
		Date:         date,
		Counterparty: "Globex",
		Quantity:     qty,
		HandlerName:  "kim",
		Location:     loc,
		Status:       domain.EntryStatusActive,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		require.NoError(t, tx.InsertEntry(ctx, e))
	})
	return e
}

func testItems(t *testing.T, s *SQLAdapter) {
	ctx := context.Background()
	price := decimal.RequireFromString("12.50")
	item := &domain.Item{
		Key:       domain.ItemKey{Manufacturer: "Acme", Name: "Bolt", SubName: "M6", SubNumber: "100"},
		Price:     &price,
		CreatedAt: testNow,
	}

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		require.NoError(t, tx.CreateItem(ctx, item))
		assert.NotZero(t, item.ID)

		found, err := tx.FindItem(ctx, item.Key)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, item.ID, found.ID)

		missing, err := tx.FindItem(ctx, domain.ItemKey{Manufacturer: "Acme", Name: "Nut"})
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.Key, got.Key)
	require.NotNil(t, got.Price)
	assert.True(t, price.Equal(*got.Price))

	none, err := s.GetItem(ctx, item.ID+100)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testEntries(t *testing.T, s *SQLAdapter) {
	ctx := context.Background()
	itemID := seedItem(t, s, "Bolt")
	e := seedEntry(t, s, domain.EntryKindInbound, itemID, testNow, 100, whA)
	assert.NotZero(t, e.ID)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.MovementDate(testNow), got.Date)
	assert.Equal(t, whA, got.Location)
	assert.Equal(t, 100, got.Quantity)
	assert.Equal(t, domain.EntryStatusActive, got.Status)

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		locked, err := tx.LockEntry(ctx, e.ID)
		require.NoError(t, err)
		require.NotNil(t, locked)

		locked.Quantity = 0
		locked.Status = domain.EntryStatusCancelled
		locked.Description = "kept"
		require.NoError(t, tx.UpdateEntry(ctx, locked))
	})

	got, err = s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled())
	assert.Equal(t, 0, got.Quantity)
	assert.Equal(t, "kept", got.Description)

	out := seedEntry(t, s, domain.EntryKindOutbound, itemID, testNow, 5, whA)
	err = s.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		require.NoError(t, tx.DeleteEntry(ctx, out.ID))
		return tx.DeleteEntry(ctx, out.ID)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testPositions(t *testing.T, s *SQLAdapter) {
	ctx := context.Background()
	itemID := seedItem(t, s, "Bolt")
	key := domain.PositionKey{ItemID: itemID, Location: whA}

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		pos, err := tx.LockPosition(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, pos)

		inc, err := tx.IncrementPosition(ctx, key, 100, testNow)
		require.NoError(t, err)
		assert.Equal(t, 100, inc.Quantity)
		assert.Equal(t, 1, inc.Version)

		inc, err = tx.IncrementPosition(ctx, key, 20, testNow)
		require.NoError(t, err)
		assert.Equal(t, 120, inc.Quantity)
		assert.Equal(t, 2, inc.Version)

		dec, err := tx.DecrementPosition(ctx, key, 120, testNow)
		require.NoError(t, err)
		assert.Equal(t, 0, dec.Quantity)
	})

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		_, err := tx.DecrementPosition(ctx, key, 1, testNow)
		return err
	})
	require.ErrorIs(t, err, domain.ErrNegativeResultingStock)
	var v *domain.ViolationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, 0, v.Available)

	pos, err := s.GetStockPosition(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 0, pos.Quantity)

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		require.NoError(t, tx.DeletePosition(ctx, key))
	})
	pos, err = s.GetStockPosition(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, pos)

	// A recreated row continues after the deleted row's version.
	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		inc, err := tx.IncrementPosition(ctx, key, 3, testNow)
		require.NoError(t, err)
		assert.Equal(t, 3, inc.Quantity)
		assert.Equal(t, 4, inc.Version)
	})
}

func testOrderingQueries(t *testing.T, s *SQLAdapter) {
	itemID := seedItem(t, s, "Bolt")
	day1 := testNow
	day2 := testNow.AddDate(0, 0, 1)

	in1 := seedEntry(t, s, domain.EntryKindInbound, itemID, day2, 100, whA)
	seedEntry(t, s, domain.EntryKindOutbound, itemID, day2, 30, whA)
	// Booked later but dated earlier.
	seedEntry(t, s, domain.EntryKindOutbound, itemID, day1, 10, whB)
	in2 := seedEntry(t, s, domain.EntryKindInbound, itemID, day2, 5, whB)

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		n, err := tx.OutboundCreatedAfter(ctx, in1.Key(), in1.ID)
		require.NoError(t, err)
		assert.Equal(t, 30, n)

		n, err = tx.OutboundAfter(ctx, in1)
		require.NoError(t, err)
		assert.Equal(t, 30, n)

		later, err := tx.HasLaterInbound(ctx, in1)
		require.NoError(t, err)
		assert.True(t, later)

		later, err = tx.HasLaterInbound(ctx, in2)
		require.NoError(t, err)
		assert.False(t, later)

		backing, err := tx.CountBackingEntries(ctx, in2.Key())
		require.NoError(t, err)
		assert.Equal(t, 2, backing)
	})
}

func testTotalsAndReplace(t *testing.T, s *SQLAdapter) {
	ctx := context.Background()
	itemID := seedItem(t, s, "Bolt")

	seedEntry(t, s, domain.EntryKindInbound, itemID, testNow, 100, whA)
	seedEntry(t, s, domain.EntryKindOutbound, itemID, testNow, 40, whA)
	cancelled := seedEntry(t, s, domain.EntryKindInbound, itemID, testNow, 0, whB)
	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		cancelled.Status = domain.EntryStatusCancelled
		require.NoError(t, tx.UpdateEntry(ctx, cancelled))
	})

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		require.NoError(t, tx.LockAllPositions(ctx))

		totals, err := tx.LedgerTotals(ctx)
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, 100, totals[0].Inbound)
		assert.Equal(t, 40, totals[0].Outbound)
		assert.Equal(t, 60, totals[0].Quantity())

		require.NoError(t, tx.ReplacePositions(ctx, []domain.StockPosition{
			{Key: totals[0].Key, Quantity: 60, Version: 3, LastUpdated: testNow},
		}))

		all, err := tx.ListAllPositions(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 60, all[0].Quantity)
		assert.Equal(t, 3, all[0].Version)

		require.NoError(t, tx.ReplacePositions(ctx, nil))
		require.NoError(t, tx.ReplacePositions(ctx, []domain.StockPosition{
			{Key: totals[0].Key, Quantity: 60, Version: 1, LastUpdated: testNow},
		}))
		all, err = tx.ListAllPositions(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 4, all[0].Version)
	})

	positions, err := s.ListStockPositions(ctx, domain.PositionFilter{ItemID: itemID})
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func testRollback(t *testing.T, s *SQLAdapter) {
	ctx := context.Background()
	itemID := seedItem(t, s, "Bolt")
	key := domain.PositionKey{ItemID: itemID, Location: whA}
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if _, err := tx.IncrementPosition(ctx, key, 10, testNow); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	pos, err := s.GetStockPosition(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func testListings(t *testing.T, s *SQLAdapter) {
	ctx := context.Background()
	bolt := seedItem(t, s, "Bolt")
	nut := seedItem(t, s, "Nut")

	old := seedEntry(t, s, domain.EntryKindInbound, bolt, testNow.AddDate(-1, 0, 0), 1, whA)
	first := seedEntry(t, s, domain.EntryKindInbound, bolt, testNow, 10, whA)
	second := seedEntry(t, s, domain.EntryKindOutbound, bolt, testNow, 4, whA)
	seedEntry(t, s, domain.EntryKindInbound, nut, testNow.AddDate(0, 0, -1), 7, whB)

	moves, err := s.ListMovements(ctx, domain.MovementFilter{ItemID: bolt, From: testNow.AddDate(0, -1, 0)})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, second.ID, moves[0].ID)
	assert.Equal(t, first.ID, moves[1].ID)

	moves, err = s.ListMovements(ctx, domain.MovementFilter{
		ItemID: bolt,
		From:   testNow.AddDate(-2, 0, 0),
		To:     testNow.AddDate(0, -6, 0),
	})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, old.ID, moves[0].ID)

	moves, err = s.ListMovements(ctx, domain.MovementFilter{Kind: domain.EntryKindOutbound, From: testNow.AddDate(0, -1, 0)})
	require.NoError(t, err)
	require.Len(t, moves, 1)

	inTx(t, s, func(ctx context.Context, tx port.LedgerTx) {
		_, err := tx.IncrementPosition(ctx, domain.PositionKey{ItemID: bolt, Location: whA}, 6, testNow)
		require.NoError(t, err)
		_, err = tx.IncrementPosition(ctx, domain.PositionKey{ItemID: bolt, Location: whB}, 3, testNow)
		require.NoError(t, err)
		_, err = tx.IncrementPosition(ctx, domain.PositionKey{ItemID: nut, Location: whB}, 7, testNow)
		require.NoError(t, err)

		for i, op := range []domain.OperationType{domain.OpInbound, domain.OpOutbound} {
			require.NoError(t, tx.InsertAudit(ctx, &domain.AuditRecord{
				ItemID:        bolt,
				Operation:     op,
				ReferenceID:   first.ID + int64(i),
				ReferenceType: domain.EntryKindInbound,
				CorrelationID: "corr-1",
				CreatedAt:     testNow,
			}))
		}
	})

	shelf := ""
	positions, err := s.ListStockPositions(ctx, domain.PositionFilter{Warehouse: "Main", Shelf: &shelf})
	require.NoError(t, err)
	assert.Len(t, positions, 2)

	summary, err := s.SummarizeStock(ctx, domain.PositionFilter{})
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Bolt", summary[0].Item.Key.Name)
	assert.Equal(t, 9, summary[0].Quantity)
	assert.Equal(t, 7, summary[1].Quantity)

	audit, err := s.ListAudit(ctx, domain.AuditFilter{CorrelationID: "corr-1"})
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, domain.OpOutbound, audit[0].Operation)
	assert.Equal(t, domain.EntryKindInbound, audit[0].ReferenceType)

	audit, err = s.ListAudit(ctx, domain.AuditFilter{ItemID: bolt, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, domain.OpInbound, audit[0].Operation)
}
