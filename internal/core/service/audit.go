package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// mutation collects what one ledger call changed: the correlation id shared
// by its audit records and the positions to push to the cache on commit.
type mutation struct {
	correlationID string
	at            time.Time
	written       map[domain.PositionKey]domain.StockPosition
	pruned        map[domain.PositionKey]bool
}

func (m *mutation) result(entry *domain.LedgerEntry, previous, current int) MutationResult {
	return MutationResult{
		Entry:            *entry,
		PreviousQuantity: previous,
		NewQuantity:      current,
		CorrelationID:    m.correlationID,
	}
}

// record appends the audit record for an entry mutation. It runs inside the
// mutation's transaction, so a failure here rolls everything back. from is the
// entry's location before an amendment; nil for other operations.
func (m *mutation) record(ctx context.Context, tx port.LedgerTx, op domain.OperationType, entry *domain.LedgerEntry, change int, result MutationResult, from *domain.PositionKey) error {
	r := &domain.AuditRecord{
		ItemID:           entry.ItemID,
		Operation:        op,
		QuantityChange:   change,
		PreviousQuantity: result.PreviousQuantity,
		NewQuantity:      result.NewQuantity,
		ReferenceID:      entry.ID,
		ReferenceType:    entry.Kind,
		Description:      entry.Description,
		CorrelationID:    m.correlationID,
		CreatedAt:        m.at,
	}
	if from != nil {
		r.PreviousLocation = from.Location.String()
		r.NewLocation = entry.Location.String()
		if from.Location != entry.Location {
			r.Description = strings.TrimSpace(fmt.Sprintf("%s (moved %s -> %s)", entry.Description, r.PreviousLocation, r.NewLocation))
		}
	}
	return tx.InsertAudit(ctx, r)
}

// publish pushes committed positions to the cache. Cache failures only cost
// freshness, so they are logged and dropped.
func (m *mutation) publish(ctx context.Context, cache port.CacheRepository, log logrus.FieldLogger) {
	if cache == nil {
		return
	}
	for _, pos := range m.written {
		if err := cache.SetPosition(ctx, pos); err != nil {
			log.WithError(err).WithField("key", pos.Key.String()).Warn("cache update failed")
		}
	}
	if len(m.pruned) == 0 {
		return
	}
	keys := make([]domain.PositionKey, 0, len(m.pruned))
	for k := range m.pruned {
		keys = append(keys, k)
	}
	if err := cache.InvalidatePositions(ctx, keys...); err != nil {
		log.WithError(err).Warn("cache invalidation failed")
	}
}
