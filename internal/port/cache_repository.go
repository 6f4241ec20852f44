package port

import (
	"context"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

type CacheRepository interface {
	// GetPosition returns nil on a cache miss
	GetPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error)

	// SetPosition stores pos unless a newer version is already cached
	SetPosition(ctx context.Context, pos domain.StockPosition) error

	// InvalidatePositions drops cached positions (all of them when keys is empty)
	InvalidatePositions(ctx context.Context, keys ...domain.PositionKey) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key whose request did not commit
	ReleaseIdempotency(ctx context.Context, key string) error
}
