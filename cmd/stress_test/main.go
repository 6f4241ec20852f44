package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/warehouse-ledger/internal/adapter/storage"
	"github.com/rl1809/warehouse-ledger/internal/config"
	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

var location = domain.Location{Warehouse: "stress", Shelf: "S1"}

func main() {
	ctx := context.Background()

	// LEDGER_DATABASE_* selects the store; a throwaway SQLite file otherwise
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if os.Getenv("LEDGER_DATABASE_DSN") == "" {
		dir, err := os.MkdirTemp("", "ledger-stress")
		if err != nil {
			log.Fatalf("failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = filepath.Join(dir, "stress.db")
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	ledger := service.NewLedgerService(store, service.WithLogger(logger))

	// Seed stock for a fresh item
	now := time.Now()
	seeded, err := ledger.CreateInbound(ctx, service.InboundRequest{
		Item: service.ItemRef{Key: domain.ItemKey{
			Manufacturer: "stress",
			Name:         fmt.Sprintf("item-%d", now.UnixNano()),
		}},
		Date:        now,
		Supplier:    "stress-supplier",
		Quantity:    initialStock,
		HandlerName: "stress",
		Location:    location,
	})
	if err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}
	itemID := seeded.Entry.ItemID

	// Counters
	var successCount atomic.Int32
	var rejectCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent outbound requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			_, err := ledger.CreateOutbound(ctx, service.OutboundRequest{
				ItemID:      itemID,
				Date:        now,
				Client:      fmt.Sprintf("client-%d", client),
				Quantity:    1,
				HandlerName: "stress",
				Location:    location,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("client %d: %v", client, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.Database.Driver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && rejected == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d outbound succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, rejected)
	}

	// Verify final position and ledger agreement
	pos, err := ledger.GetStockPosition(ctx, domain.PositionKey{ItemID: itemID, Location: location})
	if err != nil {
		log.Fatalf("failed to read position: %v", err)
	}
	final := 0
	if pos != nil {
		final = pos.Quantity
	}
	fmt.Printf("Final Stock:      %d\n", final)
	if final == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final)
	}

	report, err := ledger.Verify(ctx)
	if err != nil {
		log.Fatalf("failed to verify: %v", err)
	}
	if report.Clean() {
		fmt.Println("PASS: Positions match the ledger")
	} else {
		fmt.Printf("FAIL: %d positions drifted\n", len(report.Drift))
	}
}
