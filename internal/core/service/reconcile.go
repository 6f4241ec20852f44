package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

type DriftKind string

const (
	DriftAdded   DriftKind = "added"   // ledger backs a key with no position
	DriftRemoved DriftKind = "removed" // position without any backing entry
	DriftChanged DriftKind = "changed"
)

// Drift is one position that disagrees with the ledger.
type Drift struct {
	Key    domain.PositionKey
	Kind   DriftKind
	Before int
	After  int
}

type ReconcileReport struct {
	CorrelationID string
	Applied       bool // false for Verify
	Checked       int  // keys backed by the ledger
	Drift         []Drift
	StartedAt     time.Time
	FinishedAt    time.Time
}

func (r *ReconcileReport) Clean() bool {
	return len(r.Drift) == 0
}

// Reconcile rebuilds every stock position from the ledger under a table
// lock and records one reconcile_adjust audit record per corrected key. It
// fails with ErrNegativeResultingStock, writing nothing, when the ledger
// itself nets a key below zero.
func (s *LedgerService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{
		CorrelationID: uuid.NewString(),
		Applied:       true,
		StartedAt:     s.now().UTC(),
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		if err := tx.LockAllPositions(ctx); err != nil {
			return err
		}

		desired, err := s.diff(ctx, tx, report)
		if err != nil {
			return err
		}
		if report.Clean() {
			return nil
		}

		if err := tx.ReplacePositions(ctx, desired); err != nil {
			return err
		}
		for _, d := range report.Drift {
			err := tx.InsertAudit(ctx, &domain.AuditRecord{
				ItemID:           d.Key.ItemID,
				Operation:        domain.OpReconcileAdjust,
				QuantityChange:   d.After - d.Before,
				PreviousQuantity: d.Before,
				NewQuantity:      d.After,
				Description:      "reconcile: position " + string(d.Kind),
				PreviousLocation: d.Key.Location.String(),
				NewLocation:      d.Key.Location.String(),
				CorrelationID:    report.CorrelationID,
				CreatedAt:        report.StartedAt,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("correlation_id", report.CorrelationID).Error("reconcile failed")
		return nil, err
	}
	report.FinishedAt = s.now().UTC()

	if s.cache != nil && !report.Clean() {
		if err := s.cache.InvalidatePositions(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("cache invalidation failed")
		}
	}

	s.logReport(report)
	return report, nil
}

// Verify reports drift between the projection and the ledger without
// changing anything.
func (s *LedgerService) Verify(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{
		CorrelationID: uuid.NewString(),
		StartedAt:     s.now().UTC(),
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		_, err := s.diff(ctx, tx, report)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.FinishedAt = s.now().UTC()
	return report, nil
}

// diff fills report.Drift and returns the positions the ledger implies.
// Unchanged positions keep their version; corrected ones get a new version.
func (s *LedgerService) diff(ctx context.Context, tx port.LedgerTx, report *ReconcileReport) ([]domain.StockPosition, error) {
	current, err := tx.ListAllPositions(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := tx.LedgerTotals(ctx)
	if err != nil {
		return nil, err
	}

	existing := make(map[domain.PositionKey]domain.StockPosition, len(current))
	for _, p := range current {
		existing[p.Key] = p
	}

	desired := make([]domain.StockPosition, 0, len(totals))
	for _, total := range totals {
		qty := total.Quantity()
		if qty < 0 {
			key := total.Key
			return nil, &domain.ViolationError{
				Kind:      domain.ErrNegativeResultingStock,
				Key:       &key,
				Requested: total.Outbound,
				Available: total.Inbound,
			}
		}

		p, ok := existing[total.Key]
		delete(existing, total.Key)
		switch {
		case !ok:
			report.Drift = append(report.Drift, Drift{Key: total.Key, Kind: DriftAdded, After: qty})
			p = domain.StockPosition{Key: total.Key, Quantity: qty, Version: 1, LastUpdated: report.StartedAt}
		case p.Quantity != qty:
			report.Drift = append(report.Drift, Drift{Key: total.Key, Kind: DriftChanged, Before: p.Quantity, After: qty})
			p.Quantity = qty
			p.Version++
			p.LastUpdated = report.StartedAt
		}
		desired = append(desired, p)
	}
	report.Checked = len(totals)

	for _, p := range current {
		if _, orphan := existing[p.Key]; orphan {
			report.Drift = append(report.Drift, Drift{Key: p.Key, Kind: DriftRemoved, Before: p.Quantity})
		}
	}
	return desired, nil
}

func (s *LedgerService) logReport(r *ReconcileReport) {
	fields := logrus.Fields{
		"correlation_id": r.CorrelationID,
		"checked":        r.Checked,
		"drift":          len(r.Drift),
		"applied":        r.Applied,
	}
	if r.Clean() {
		s.log.WithFields(fields).Info("reconcile finished")
		return
	}
	for _, d := range r.Drift {
		s.log.WithFields(logrus.Fields{
			"correlation_id": r.CorrelationID,
			"item_id":        d.Key.ItemID,
			"warehouse":      d.Key.Location.Warehouse,
			"shelf":          d.Key.Location.Shelf,
			"kind":           d.Kind,
			"before":         d.Before,
			"after":          d.After,
		}).Warn("stock drift")
	}
	s.log.WithFields(fields).Info("reconcile finished")
}

// RunReconciler checks for drift every interval until ctx is done. Drift is
// repaired when autoRepair is set, otherwise only logged.
func (s *LedgerService) RunReconciler(ctx context.Context, interval time.Duration, autoRepair bool) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileOnce(ctx, autoRepair)
		}
	}
}

func (s *LedgerService) reconcileOnce(ctx context.Context, autoRepair bool) {
	report, err := s.Verify(ctx)
	if err != nil {
		s.log.WithError(err).Error("drift check failed")
		return
	}
	if report.Clean() {
		s.log.WithField("checked", report.Checked).Debug("no stock drift")
		return
	}
	if !autoRepair {
		s.logReport(report)
		return
	}
	if _, err := s.Reconcile(ctx); err != nil {
		s.log.WithError(err).Error("automatic reconcile failed")
	}
}
