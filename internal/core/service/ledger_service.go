package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/validator"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

// LedgerService records stock movements and keeps the stock projection and
// audit trail in step with them. Every mutation runs in one store
// transaction.
type LedgerService struct {
	store port.LedgerRepository
	cache port.CacheRepository
	log   logrus.FieldLogger
	now   func() time.Time
}

type Option func(*LedgerService)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *LedgerService) { s.log = l }
}

// WithCache enables the position read cache and request-id dedupe.
func WithCache(c port.CacheRepository) Option {
	return func(s *LedgerService) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store port.LedgerRepository, opts ...Option) *LedgerService {
	s := &LedgerService{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		s.log = l
	}
	return s
}

// ItemRef names an item by id, or by its identity tuple when ID is zero.
// Unknown tuples create the item with the given price.
type ItemRef struct {
	ID    int64
	Key   domain.ItemKey
	Price *decimal.Decimal
}

type InboundRequest struct {
	RequestID   string // optional; repeated ids are rejected
	Item        ItemRef
	Date        time.Time
	Supplier    string
	Quantity    int
	HandlerName string
	Location    domain.Location
	Description string
}

type OutboundRequest struct {
	RequestID   string
	ItemID      int64
	Date        time.Time
	Client      string
	Quantity    int
	HandlerName string
	Location    domain.Location
	Description string
}

// MutationResult describes a committed mutation. PreviousQuantity is the
// stock at the entry's original position before the change; NewQuantity is
// the stock at its final position afterwards.
type MutationResult struct {
	Entry            domain.LedgerEntry
	PreviousQuantity int
	NewQuantity      int
	CorrelationID    string
}

func (s *LedgerService) CreateItem(ctx context.Context, key domain.ItemKey, price *decimal.Decimal) (*domain.Item, error) {
	key = key.Normalize()
	if !key.Valid() {
		return nil, fmt.Errorf("%w: manufacturer and item name are required", domain.ErrInvalidArgument)
	}

	var item *domain.Item
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		item, err = s.findOrCreateItem(ctx, tx, key, price)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *LedgerService) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.NotFoundError("item", id)
	}
	return item, nil
}

func (s *LedgerService) GetEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, domain.NotFoundError("entry", id)
	}
	return entry, nil
}

func (s *LedgerService) findOrCreateItem(ctx context.Context, tx port.LedgerTx, key domain.ItemKey, price *decimal.Decimal) (*domain.Item, error) {
	item, err := tx.FindItem(ctx, key)
	if err != nil || item != nil {
		return item, err
	}

	item = &domain.Item{Key: key, Price: price, CreatedAt: s.now().UTC()}
	if err := tx.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *LedgerService) resolveItem(ctx context.Context, tx port.LedgerTx, ref ItemRef) (*domain.Item, error) {
	if ref.ID != 0 {
		item, err := tx.GetItem(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, domain.NotFoundError("item", ref.ID)
		}
		return item, nil
	}
	return s.findOrCreateItem(ctx, tx, ref.Key.Normalize(), ref.Price)
}

func validateMovement(date time.Time, counterparty, handler string, loc domain.Location) error {
	switch {
	case date.IsZero():
		return fmt.Errorf("%w: movement date is required", domain.ErrInvalidArgument)
	case counterparty == "":
		return fmt.Errorf("%w: counterparty is required", domain.ErrInvalidArgument)
	case handler == "":
		return fmt.Errorf("%w: handler name is required", domain.ErrInvalidArgument)
	case loc.Warehouse == "":
		return fmt.Errorf("%w: warehouse is required", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *LedgerService) CreateInbound(ctx context.Context, req InboundRequest) (*MutationResult, error) {
	if err := validateMovement(req.Date, req.Supplier, req.HandlerName, req.Location); err != nil {
		return nil, err
	}
	if req.Item.ID == 0 && !req.Item.Key.Normalize().Valid() {
		return nil, fmt.Errorf("%w: item id or manufacturer and name are required", domain.ErrInvalidArgument)
	}
	if err := validator.Inbound(req.Quantity); err != nil {
		return nil, s.rejected(domain.OpInbound, 0, err)
	}

	release, err := s.claimRequest(ctx, "inbound", req.RequestID)
	if err != nil {
		return nil, err
	}

	m := s.newMutation()
	var result MutationResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		item, err := s.resolveItem(ctx, tx, req.Item)
		if err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			Kind:         domain.EntryKindInbound,
			ItemID:       item.ID,
			Date:         domain.MovementDate(req.Date),
			Counterparty: req.Supplier,
			Quantity:     req.Quantity,
			HandlerName:  req.HandlerName,
			Location:     req.Location,
			Description:  req.Description,
			Status:       domain.EntryStatusActive,
			CreatedAt:    m.at,
			UpdatedAt:    m.at,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		pos, err := m.applyInboundDelta(ctx, tx, entry.Key(), entry.Quantity)
		if err != nil {
			return err
		}

		result = m.result(entry, pos.Quantity-entry.Quantity, pos.Quantity)
		return m.record(ctx, tx, domain.OpInbound, entry, entry.Quantity, result, nil)
	})

	return s.finish(ctx, m, domain.OpInbound, &result, release, err)
}

func (s *LedgerService) CreateOutbound(ctx context.Context, req OutboundRequest) (*MutationResult, error) {
	if err := validateMovement(req.Date, req.Client, req.HandlerName, req.Location); err != nil {
		return nil, err
	}
	if req.ItemID == 0 {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrInvalidArgument)
	}
	key := domain.PositionKey{ItemID: req.ItemID, Location: req.Location}
	if req.Quantity <= 0 {
		return nil, s.rejected(domain.OpOutbound, 0, validator.Outbound(key, req.Quantity, 0))
	}

	release, err := s.claimRequest(ctx, "outbound", req.RequestID)
	if err != nil {
		return nil, err
	}

	m := s.newMutation()
	var result MutationResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		item, err := tx.GetItem(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.NotFoundError("item", req.ItemID)
		}

		pos, err := tx.LockPosition(ctx, key)
		if err != nil {
			return err
		}
		if err := validator.Outbound(key, req.Quantity, quantityOf(pos)); err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			Kind:         domain.EntryKindOutbound,
			ItemID:       req.ItemID,
			Date:         domain.MovementDate(req.Date),
			Counterparty: req.Client,
			Quantity:     req.Quantity,
			HandlerName:  req.HandlerName,
			Location:     req.Location,
			Description:  req.Description,
			Status:       domain.EntryStatusActive,
			CreatedAt:    m.at,
			UpdatedAt:    m.at,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		after, err := m.applyOutboundDelta(ctx, tx, key, entry.Quantity)
		if err != nil {
			return err
		}

		result = m.result(entry, quantityOf(pos), after.Quantity)
		return m.record(ctx, tx, domain.OpOutbound, entry, -entry.Quantity, result, nil)
	})

	return s.finish(ctx, m, domain.OpOutbound, &result, release, err)
}

// AmendInbound changes the quantity, location or description of an active
// inbound entry.
func (s *LedgerService) AmendInbound(ctx context.Context, id int64, patch domain.EntryPatch) (*MutationResult, error) {
	m := s.newMutation()
	result := MutationResult{Entry: domain.LedgerEntry{ID: id}}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		entry, err := lockEntry(ctx, tx, id, domain.EntryKindInbound)
		if err != nil {
			return err
		}

		newQty := entry.Quantity
		if patch.Quantity != nil {
			newQty = *patch.Quantity
		}
		newLoc, desc := patch.Apply(entry)
		from := entry.Key()
		to := domain.PositionKey{ItemID: entry.ItemID, Location: newLoc}

		positions, err := lockPositions(ctx, tx, from, to)
		if err != nil {
			return err
		}
		current := quantityOf(positions[from])

		shipped, err := tx.OutboundCreatedAfter(ctx, from, entry.ID)
		if err != nil {
			return err
		}
		facts := validator.InboundAmendFacts{
			SubsequentOutbound: shipped,
			ResultingStock:     current - entry.Quantity + newQty,
			Available:          current,
		}
		if from != to {
			facts.ResultingStock = current - entry.Quantity
		}
		if err := validator.InboundAmend(entry, newQty, facts); err != nil {
			return err
		}

		oldQty := entry.Quantity
		entry.Quantity, entry.Location, entry.Description = newQty, newLoc, desc
		entry.UpdatedAt = m.at
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		var after domain.StockPosition
		if from == to {
			after, err = m.applyInboundDelta(ctx, tx, to, newQty-oldQty)
		} else {
			_, after, err = m.moveLocation(ctx, tx, from, to, -oldQty, newQty)
		}
		if err != nil {
			return err
		}

		result = m.result(entry, current, after.Quantity)
		return m.record(ctx, tx, domain.OpInboundUpdate, entry, newQty-oldQty, result, &from)
	})

	return s.finish(ctx, m, domain.OpInboundUpdate, &result, nil, err)
}

// AmendOutbound changes the quantity, location or description of an
// outbound entry. The new quantity is checked against the target position
// with this entry's own quantity given back.
func (s *LedgerService) AmendOutbound(ctx context.Context, id int64, patch domain.EntryPatch) (*MutationResult, error) {
	m := s.newMutation()
	result := MutationResult{Entry: domain.LedgerEntry{ID: id}}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		entry, err := lockEntry(ctx, tx, id, domain.EntryKindOutbound)
		if err != nil {
			return err
		}

		newQty := entry.Quantity
		if patch.Quantity != nil {
			newQty = *patch.Quantity
		}
		newLoc, desc := patch.Apply(entry)
		from := entry.Key()
		to := domain.PositionKey{ItemID: entry.ItemID, Location: newLoc}

		positions, err := lockPositions(ctx, tx, from, to)
		if err != nil {
			return err
		}
		current := quantityOf(positions[from])

		available := quantityOf(positions[to])
		if from == to {
			available += entry.Quantity
		}
		if err := validator.OutboundAmend(entry, to, newQty, available); err != nil {
			return err
		}

		oldQty := entry.Quantity
		entry.Quantity, entry.Location, entry.Description = newQty, newLoc, desc
		entry.UpdatedAt = m.at
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		var after domain.StockPosition
		if from == to {
			after, err = m.applyOutboundDelta(ctx, tx, to, newQty-oldQty)
		} else {
			_, after, err = m.moveLocation(ctx, tx, from, to, oldQty, -newQty)
		}
		if err != nil {
			return err
		}

		result = m.result(entry, current, after.Quantity)
		return m.record(ctx, tx, domain.OpOutboundUpdate, entry, oldQty-newQty, result, &from)
	})

	return s.finish(ctx, m, domain.OpOutboundUpdate, &result, nil, err)
}

// CancelInbound zeroes an inbound entry and marks it cancelled. The row is
// kept for history.
func (s *LedgerService) CancelInbound(ctx context.Context, id int64) (*MutationResult, error) {
	m := s.newMutation()
	result := MutationResult{Entry: domain.LedgerEntry{ID: id}}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		entry, err := lockEntry(ctx, tx, id, domain.EntryKindInbound)
		if err != nil {
			return err
		}
		key := entry.Key()

		pos, err := tx.LockPosition(ctx, key)
		if err != nil {
			return err
		}

		facts := validator.InboundCancelFacts{CurrentStock: quantityOf(pos)}
		if !entry.Cancelled() {
			if facts.SubsequentOutbound, err = tx.OutboundAfter(ctx, entry); err != nil {
				return err
			}
			if facts.HasLaterInbound, err = tx.HasLaterInbound(ctx, entry); err != nil {
				return err
			}
		}
		if err := validator.InboundCancel(entry, facts); err != nil {
			return err
		}

		oldQty := entry.Quantity
		entry.Quantity = 0
		entry.Status = domain.EntryStatusCancelled
		entry.UpdatedAt = m.at
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		after, err := m.applyInboundDelta(ctx, tx, key, -oldQty)
		if err != nil {
			return err
		}
		if err := m.prune(ctx, tx, key); err != nil {
			return err
		}

		result = m.result(entry, quantityOf(pos), after.Quantity)
		return m.record(ctx, tx, domain.OpInboundCancel, entry, -oldQty, result, nil)
	})

	return s.finish(ctx, m, domain.OpInboundCancel, &result, nil, err)
}

// DeleteOutbound removes an outbound entry and returns its quantity to
// stock.
func (s *LedgerService) DeleteOutbound(ctx context.Context, id int64) (*MutationResult, error) {
	m := s.newMutation()
	result := MutationResult{Entry: domain.LedgerEntry{ID: id}}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		entry, err := lockEntry(ctx, tx, id, domain.EntryKindOutbound)
		if err != nil {
			return err
		}
		key := entry.Key()

		pos, err := tx.LockPosition(ctx, key)
		if err != nil {
			return err
		}

		if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
			return err
		}
		after, err := m.applyOutboundDelta(ctx, tx, key, -entry.Quantity)
		if err != nil {
			return err
		}
		if err := m.prune(ctx, tx, key); err != nil {
			return err
		}

		result = m.result(entry, quantityOf(pos), after.Quantity)
		return m.record(ctx, tx, domain.OpOutboundDelete, entry, entry.Quantity, result, nil)
	})

	return s.finish(ctx, m, domain.OpOutboundDelete, &result, nil, err)
}

// GetStockPosition returns the stock at key, or nil when no position
// exists. Cached positions are served when a cache is configured.
func (s *LedgerService) GetStockPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error) {
	if s.cache != nil {
		pos, err := s.cache.GetPosition(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key.String()).Warn("cache read failed")
		} else if pos != nil {
			return pos, nil
		}
	}

	pos, err := s.store.GetStockPosition(ctx, key)
	if err != nil {
		return nil, err
	}
	if pos != nil && s.cache != nil {
		if err := s.cache.SetPosition(ctx, *pos); err != nil {
			s.log.WithError(err).WithField("key", key.String()).Warn("cache fill failed")
		}
	}
	return pos, nil
}

func (s *LedgerService) ListStockPositions(ctx context.Context, filter domain.PositionFilter) ([]domain.StockPosition, error) {
	return s.store.ListStockPositions(ctx, filter)
}

func (s *LedgerService) SummarizeStock(ctx context.Context, filter domain.PositionFilter) ([]domain.StockSummary, error) {
	return s.store.SummarizeStock(ctx, filter)
}

func (s *LedgerService) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.LedgerEntry, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown movement kind %q", domain.ErrInvalidArgument, filter.Kind)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: date range ends before it starts", domain.ErrInvalidArgument)
	}
	if filter.From.IsZero() && filter.To.IsZero() {
		filter.From = s.now().UTC().AddDate(0, -6, 0)
	}
	return s.store.ListMovements(ctx, filter)
}

func (s *LedgerService) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	return s.store.ListAudit(ctx, filter)
}

// Ping reports whether the store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// claimRequest reserves a request id in the cache. The returned func frees it
// again and is nil when nothing was reserved.
func (s *LedgerService) claimRequest(ctx context.Context, kind, requestID string) (func(), error) {
	if requestID == "" || s.cache == nil {
		return nil, nil
	}

	key := fmt.Sprintf("%s:%s", kind, requestID)
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrDuplicateRequest)
	}

	return func() {
		if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
			s.log.WithError(err).WithField("request_id", requestID).Warn("failed to release request id")
		}
	}, nil
}

// finish logs the outcome of a mutation and, once committed, refreshes the
// cache.
func (s *LedgerService) finish(ctx context.Context, m *mutation, op domain.OperationType, result *MutationResult, release func(), err error) (*MutationResult, error) {
	if err != nil {
		if release != nil {
			release()
		}
		entryID := result.Entry.ID
		if op == domain.OpInbound || op == domain.OpOutbound {
			// A failed create rolled its entry back with the transaction.
			entryID = 0
		}
		return nil, s.rejected(op, entryID, err)
	}

	m.publish(context.WithoutCancel(ctx), s.cache, s.log)
	s.log.WithFields(logrus.Fields{
		"correlation_id": result.CorrelationID,
		"op":             op,
		"entry_id":       result.Entry.ID,
		"item_id":        result.Entry.ItemID,
		"warehouse":      result.Entry.Location.Warehouse,
		"shelf":          result.Entry.Location.Shelf,
		"previous":       result.PreviousQuantity,
		"new":            result.NewQuantity,
	}).Info("ledger mutation committed")
	return result, nil
}

func (s *LedgerService) rejected(op domain.OperationType, entryID int64, err error) error {
	fields := logrus.Fields{"op": op}
	if entryID != 0 {
		fields["entry_id"] = entryID
	}
	entry := s.log.WithFields(fields).WithError(err)

	switch {
	case domain.IsViolation(err), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
		entry.Warn("ledger mutation rejected")
	default:
		entry.Error("ledger mutation failed")
	}
	return err
}

func (s *LedgerService) newMutation() *mutation {
	return &mutation{
		correlationID: uuid.NewString(),
		at:            s.now().UTC(),
		written:       make(map[domain.PositionKey]domain.StockPosition),
		pruned:        make(map[domain.PositionKey]bool),
	}
}

func lockEntry(ctx context.Context, tx port.LedgerTx, id int64, kind domain.EntryKind) (*domain.LedgerEntry, error) {
	entry, err := tx.LockEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Kind != kind {
		return nil, domain.NotFoundError(string(kind)+" entry", id)
	}
	return entry, nil
}

func quantityOf(pos *domain.StockPosition) int {
	if pos == nil {
		return 0
	}
	return pos.Quantity
}
