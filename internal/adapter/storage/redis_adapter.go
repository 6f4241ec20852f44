package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

const (
	stockKeyPrefix        = "stock:"
	idempotencyKeyPrefix  = "idem:"
	defaultIdempotencyTTL = 24 * time.Hour
	defaultPositionTTL    = 10 * time.Minute
)

var _ port.CacheRepository = (*RedisAdapter)(nil)

// setPositionScript stores ARGV[2] under KEYS[1] unless the cached copy has
// a version of at least ARGV[1].
var setPositionScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key, 'version', version, 'data', ARGV[2])
redis.call('PEXPIRE', key, ARGV[3])
return 1
`)

type RedisAdapter struct {
	client  *redis.Client
	ttl     time.Duration
	idemTTL time.Duration
}

// NewRedisAdapter caches positions for ttl and remembers request ids for
// idemTTL. Non-positive durations fall back to the defaults.
func NewRedisAdapter(client *redis.Client, ttl, idemTTL time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultPositionTTL
	}
	if idemTTL <= 0 {
		idemTTL = defaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl, idemTTL: idemTTL}
}

type cachedPosition struct {
	ItemID      int64     `json:"item_id"`
	Warehouse   string    `json:"warehouse"`
	Shelf       string    `json:"shelf"`
	Quantity    int       `json:"quantity"`
	Version     int       `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

func positionKey(key domain.PositionKey) string {
	return fmt.Sprintf("%s%d:%s:%s", stockKeyPrefix, key.ItemID, key.Location.Warehouse, key.Location.Shelf)
}

func (r *RedisAdapter) GetPosition(ctx context.Context, key domain.PositionKey) (*domain.StockPosition, error) {
	raw, err := r.client.HGet(ctx, positionKey(key), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c cachedPosition
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode cached position: %w", err)
	}
	return &domain.StockPosition{
		Key:         domain.PositionKey{ItemID: c.ItemID, Location: domain.Location{Warehouse: c.Warehouse, Shelf: c.Shelf}},
		Quantity:    c.Quantity,
		Version:     c.Version,
		LastUpdated: c.LastUpdated,
	}, nil
}

func (r *RedisAdapter) SetPosition(ctx context.Context, pos domain.StockPosition) error {
	data, err := json.Marshal(cachedPosition{
		ItemID:      pos.Key.ItemID,
		Warehouse:   pos.Key.Location.Warehouse,
		Shelf:       pos.Key.Location.Shelf,
		Quantity:    pos.Quantity,
		Version:     pos.Version,
		LastUpdated: pos.LastUpdated,
	})
	if err != nil {
		return err
	}

	keys := []string{positionKey(pos.Key)}
	return setPositionScript.Run(ctx, r.client, keys, pos.Version, data, r.ttl.Milliseconds()).Err()
}

func (r *RedisAdapter) InvalidatePositions(ctx context.Context, keys ...domain.PositionKey) error {
	if len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = positionKey(k)
		}
		return r.client.Del(ctx, names...).Err()
	}

	iter := r.client.Scan(ctx, 0, stockKeyPrefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idemTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
