package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

var cacheKey = domain.PositionKey{ItemID: 900001, Location: domain.Location{Warehouse: "W1", Shelf: "S1"}}

func TestSetPosition_RoundTrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	// Setup
	client.Del(ctx, positionKey(cacheKey))

	pos := domain.StockPosition{Key: cacheKey, Quantity: 70, Version: 3, LastUpdated: time.Now().UTC()}
	if err := adapter.SetPosition(ctx, pos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := adapter.GetPosition(ctx, cacheKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached position")
	}
	if got.Quantity != 70 || got.Version != 3 || got.Key != cacheKey {
		t.Errorf("unexpected cached position: %+v", got)
	}
}

func TestSetPosition_IgnoresStaleVersion(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	// Setup
	client.Del(ctx, positionKey(cacheKey))
	adapter.SetPosition(ctx, domain.StockPosition{Key: cacheKey, Quantity: 50, Version: 5})

	// Test - older version must not overwrite
	if err := adapter.SetPosition(ctx, domain.StockPosition{Key: cacheKey, Quantity: 99, Version: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := adapter.GetPosition(ctx, cacheKey)
	if got == nil || got.Quantity != 50 {
		t.Errorf("expected quantity 50 to survive, got %+v", got)
	}
}

func TestGetPosition_Miss(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	client.Del(ctx, positionKey(cacheKey))

	got, err := adapter.GetPosition(ctx, cacheKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected cache miss")
	}
}

func TestInvalidatePositions(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	other := cacheKey
	other.Location.Shelf = "S2"
	adapter.SetPosition(ctx, domain.StockPosition{Key: cacheKey, Quantity: 1, Version: 1000})
	adapter.SetPosition(ctx, domain.StockPosition{Key: other, Quantity: 2, Version: 1000})

	if err := adapter.InvalidatePositions(ctx, cacheKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := adapter.GetPosition(ctx, cacheKey); got != nil {
		t.Error("expected key to be dropped")
	}
	if got, _ := adapter.GetPosition(ctx, other); got == nil {
		t.Error("expected other key to survive")
	}

	if err := adapter.InvalidatePositions(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := adapter.GetPosition(ctx, other); got != nil {
		t.Error("expected every key to be dropped")
	}
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	// Setup
	adapter.ReleaseIdempotency(ctx, "test-idem-key")

	// First call should succeed
	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	// Second call should fail (key exists)
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}

	// Released keys can be claimed again
	if err := adapter.ReleaseIdempotency(ctx, "test-idem-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, _ = adapter.SetIdempotency(ctx, "test-idem-key")
	if !ok {
		t.Error("expected claim after release to succeed")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	// Setup
	adapter.ReleaseIdempotency(ctx, "concurrent-idem-key")

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}
