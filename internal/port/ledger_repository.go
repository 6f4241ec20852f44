package port

import (
	"context"
	"time"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

type LedgerRepository interface {
	// WithinTx runs fn inside one transaction. A non-nil error from fn rolls
	// back every write made through tx and is returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// GetItem returns nil when the item does not exist
	GetItem(ctx context.Context, id int64) (*domain.Item, error)

	// GetEntry returns nil when the entry does not exist
	GetEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error)

	// GetStockPosition returns nil when no position exists for key
	GetStockPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error)

	ListStockPositions(ctx context.Context, filter domain.PositionFilter) ([]domain.StockPosition, error)
	SummarizeStock(ctx context.Context, filter domain.PositionFilter) ([]domain.StockSummary, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.LedgerEntry, error)
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// LedgerTx is the transactional view of the store. Lock* methods hold row
// locks until the transaction ends.
type LedgerTx interface {
	FindItem(ctx context.Context, key domain.ItemKey) (*domain.Item, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	// CreateItem assigns item.ID
	CreateItem(ctx context.Context, item *domain.Item) error

	// InsertEntry assigns entry.ID
	InsertEntry(ctx context.Context, entry *domain.LedgerEntry) error
	// LockEntry returns nil when the entry does not exist
	LockEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error)
	UpdateEntry(ctx context.Context, entry *domain.LedgerEntry) error
	DeleteEntry(ctx context.Context, id int64) error

	// OutboundCreatedAfter sums outbound quantities at key created after the
	// entry with id afterID
	OutboundCreatedAfter(ctx context.Context, key domain.PositionKey, afterID int64) (int, error)
	// OutboundAfter sums outbound quantities of the entry's item that happened
	// after it, by movement date then creation order
	OutboundAfter(ctx context.Context, entry *domain.LedgerEntry) (int, error)
	// HasLaterInbound reports an active inbound of the same item after entry
	HasLaterInbound(ctx context.Context, entry *domain.LedgerEntry) (bool, error)
	// CountBackingEntries counts active inbound and all outbound rows at key
	CountBackingEntries(ctx context.Context, key domain.PositionKey) (int, error)

	// LockPosition returns nil when no position exists for key
	LockPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error)
	// IncrementPosition upserts key and adds delta. A recreated row takes a
	// version above any row previously deleted at key.
	IncrementPosition(ctx context.Context, key domain.PositionKey, delta int, at time.Time) (domain.StockPosition, error)
	// DecrementPosition subtracts quantity, refusing to go below zero
	DecrementPosition(ctx context.Context, key domain.PositionKey, quantity int, at time.Time) (domain.StockPosition, error)
	// DeletePosition removes the row at key and remembers its version
	DeletePosition(ctx context.Context, key domain.PositionKey) error

	InsertAudit(ctx context.Context, record *domain.AuditRecord) error

	// LockAllPositions blocks every other writer of the projection
	LockAllPositions(ctx context.Context) error
	ListAllPositions(ctx context.Context) ([]domain.StockPosition, error)
	LedgerTotals(ctx context.Context) ([]domain.LedgerTotal, error)
	// ReplacePositions swaps the whole projection. Versions never fall below
	// those of rows deleted at the same key.
	ReplacePositions(ctx context.Context, positions []domain.StockPosition) error
}
