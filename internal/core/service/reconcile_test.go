package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

func TestVerify_ReportsDriftWithoutWriting(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	in := inbound(t, svc, 0, day, 100, shelfA)
	item := in.Entry.ItemID
	ghost := domain.PositionKey{ItemID: item, Location: w2}

	store.Corrupt(in.Entry.Key(), 90)
	store.Corrupt(ghost, 7)
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.InsertEntry(ctx, &domain.LedgerEntry{
			Kind:     domain.EntryKindInbound,
			ItemID:   item,
			Date:     day,
			Quantity: 12,
			Location: shelfB,
			Status:   domain.EntryStatusActive,
		})
	})
	require.NoError(t, err)

	report, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.Applied)
	assert.Equal(t, 2, report.Checked)
	assert.ElementsMatch(t, []Drift{
		{Key: in.Entry.Key(), Kind: DriftChanged, Before: 90, After: 100},
		{Key: domain.PositionKey{ItemID: item, Location: shelfB}, Kind: DriftAdded, After: 12},
		{Key: ghost, Kind: DriftRemoved, Before: 7},
	}, report.Drift)

	// Nothing was repaired.
	assert.Equal(t, 90, stockAt(t, svc, item, shelfA).Quantity)
	assert.Equal(t, 7, stockAt(t, svc, item, w2).Quantity)
}

func TestReconcile_RepairsAndIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	in := inbound(t, svc, 0, day, 100, shelfA)
	item := in.Entry.ItemID
	_, err := outbound(svc, item, day, 40, shelfA)
	require.NoError(t, err)
	ghost := domain.PositionKey{ItemID: item, Location: w2}
	store.Corrupt(in.Entry.Key(), 3)
	store.Corrupt(ghost, 7)

	first, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Drift, 2)

	assert.Equal(t, 60, stockAt(t, svc, item, shelfA).Quantity)
	assert.Nil(t, stockAt(t, svc, item, w2))

	records, err := svc.ListAudit(ctx, domain.AuditFilter{CorrelationID: first.CorrelationID})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, domain.OpReconcileAdjust, r.Operation)
		assert.Equal(t, r.NewQuantity-r.PreviousQuantity, r.QuantityChange)
	}

	before, err := svc.ListStockPositions(ctx, domain.PositionFilter{})
	require.NoError(t, err)

	second, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, second.Clean())

	after, err := svc.ListStockPositions(ctx, domain.PositionFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	records, err = svc.ListAudit(ctx, domain.AuditFilter{CorrelationID: second.CorrelationID})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReconcile_KeepsBackedZeroPositions(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	in := inbound(t, svc, 0, day, 10, shelfA)
	_, err := outbound(svc, in.Entry.ItemID, day, 10, shelfA)
	require.NoError(t, err)
	store.Corrupt(in.Entry.Key(), -1)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, report.Drift, 1)
	assert.Equal(t, DriftAdded, report.Drift[0].Kind)

	pos := stockAt(t, svc, in.Entry.ItemID, shelfA)
	require.NotNil(t, pos)
	assert.Equal(t, 0, pos.Quantity)
}

func TestReconcile_NegativeLedgerRollsBack(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	in := inbound(t, svc, 0, day, 10, shelfA)
	store.Corrupt(in.Entry.Key(), 4)
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.InsertEntry(ctx, &domain.LedgerEntry{
			Kind:     domain.EntryKindOutbound,
			ItemID:   in.Entry.ItemID,
			Date:     day,
			Quantity: 25,
			Location: shelfA,
			Status:   domain.EntryStatusActive,
		})
	})
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx)
	require.ErrorIs(t, err, domain.ErrNegativeResultingStock)

	assert.Equal(t, 4, stockAt(t, svc, in.Entry.ItemID, shelfA).Quantity)
	records, err := svc.ListAudit(ctx, domain.AuditFilter{ItemID: in.Entry.ItemID})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// Random mutation sequences must leave the projection equal to a recompute
// and never negative.
func TestRandomMutationsStayReconciled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	locations := []domain.Location{shelfA, shelfB, w2}

	seed := inbound(t, svc, 0, day, 1, shelfA)
	item := seed.Entry.ItemID

	var inbounds, outbounds []int64
	for step := 0; step < 300; step++ {
		loc := locations[rng.Intn(len(locations))]
		date := day.AddDate(0, 0, rng.Intn(10))
		qty := rng.Intn(30) + 1

		switch op := rng.Intn(6); {
		case op == 0 || len(inbounds) == 0:
			res := inbound(t, svc, item, date, qty, loc)
			inbounds = append(inbounds, res.Entry.ID)
		case op == 1:
			if res, err := outbound(svc, item, date, qty, loc); err == nil {
				outbounds = append(outbounds, res.Entry.ID)
			} else {
				require.True(t, domain.IsViolation(err), err)
			}
		case op == 2:
			id := inbounds[rng.Intn(len(inbounds))]
			patch := domain.EntryPatch{Quantity: &qty}
			if rng.Intn(3) == 0 {
				patch.Warehouse, patch.Shelf = &loc.Warehouse, &loc.Shelf
			}
			_, err := svc.AmendInbound(ctx, id, patch)
			require.True(t, err == nil || domain.IsViolation(err), err)
		case op == 3 && len(outbounds) > 0:
			id := outbounds[rng.Intn(len(outbounds))]
			patch := domain.EntryPatch{Quantity: &qty}
			if rng.Intn(3) == 0 {
				patch.Warehouse, patch.Shelf = &loc.Warehouse, &loc.Shelf
			}
			_, err := svc.AmendOutbound(ctx, id, patch)
			require.True(t, err == nil || domain.IsViolation(err), err)
		case op == 4:
			_, err := svc.CancelInbound(ctx, inbounds[rng.Intn(len(inbounds))])
			require.True(t, err == nil || domain.IsViolation(err), err)
		case op == 5 && len(outbounds) > 0:
			i := rng.Intn(len(outbounds))
			_, err := svc.DeleteOutbound(ctx, outbounds[i])
			require.NoError(t, err)
			outbounds = append(outbounds[:i], outbounds[i+1:]...)
		}

		if step%25 == 0 {
			assertNoDrift(t, svc)
		}
	}

	assertNoDrift(t, svc)
	positions, err := svc.ListStockPositions(ctx, domain.PositionFilter{})
	require.NoError(t, err)
	for _, p := range positions {
		assert.GreaterOrEqual(t, p.Quantity, 0, p.Key.String())
	}
}

func TestRunReconciler_AutoRepair(t *testing.T) {
	svc, store := newTestService(t)
	in := inbound(t, svc, 0, day, 10, shelfA)
	store.Corrupt(in.Entry.Key(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunReconciler(ctx, 5*time.Millisecond, true)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pos, err := store.GetStockPosition(context.Background(), in.Entry.Key())
		return err == nil && pos != nil && pos.Quantity == 10
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunReconciler_ReportOnly(t *testing.T) {
	svc, store := newTestService(t)
	in := inbound(t, svc, 0, day, 10, shelfA)
	store.Corrupt(in.Entry.Key(), 1)

	svc.reconcileOnce(context.Background(), false)

	pos, err := store.GetStockPosition(context.Background(), in.Entry.Key())
	require.NoError(t, err)
	assert.Equal(t, 1, pos.Quantity)
}
