package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-transfer/internal/adapter/storage"
	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/core/service"
)

const (
	productID    = "stress-item"
	initialStock = 20
	maxRetries   = 5
)

var (
	driver   = domain.Principal{ID: "stress-driver", Roles: []domain.Role{domain.RoleCommissary}}
	sender   = domain.Principal{ID: "stress-sender", StoreID: "stress-a", Roles: []domain.Role{domain.RoleStoreOperations}}
	receiver = domain.Principal{ID: "stress-receiver", StoreID: "stress-b", Roles: []domain.Role{domain.RoleStoreOperations}}
)

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.Event) {}

func main() {
	dialect := flag.String("driver", storage.DialectSQLite, "mysql, postgres or sqlite")
	dsn := flag.String("dsn", "file:stress.db?mode=memory&cache=shared", "database DSN")
	totalRequests := flag.Int("transfers", 50, "concurrent transfers, one unit each")
	flag.Parse()

	ctx := context.Background()

	db, err := storage.Open(ctx, *dialect, *dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, *dialect); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	adapter := storage.NewSQLAdapter(db)
	err = adapter.SeedCatalog(ctx,
		[]domain.Store{{ID: "stress-a", StoreKey: "SA", Name: "Stress A"}, {ID: "stress-b", StoreKey: "SB", Name: "Stress B"}},
		[]domain.Product{{ID: productID, Name: "Stress Item"}},
	)
	if err != nil {
		log.Printf("seed skipped: %v", err)
	}

	transfers := service.NewTransferService(adapter, service.NewStatusValidator(service.DefaultTransitionPolicy),
		service.NewReconciler(nil, nil), discardPublisher{})
	stock := service.NewStockService(adapter, nil, nil)

	startA, startB := onHand(ctx, stock, "stress-a"), onHand(ctx, stock, "stress-b")
	if _, err := stock.DeliverStock(ctx, service.DeliverStockInput{
		StoreID: "stress-a",
		Actor:   driver,
		Items:   []domain.DeliveryItem{{ProductID: productID, Quantity: initialStock, Price: decimal.NewFromInt(1)}},
	}); err != nil {
		log.Fatalf("failed to deliver stock: %v", err)
	}
	startA += initialStock

	// Ship every transfer first so the race is purely on the Received step.
	ids := make([]string, 0, *totalRequests)
	for i := 0; i < *totalRequests; i++ {
		t, err := transfers.CreateTransferRequest(ctx, service.CreateTransferInput{
			SendingStoreID:   "stress-a",
			ReceivingStoreID: "stress-b",
			Initiator:        sender,
			Items:            []service.TransferItemInput{{ProductID: productID, Quantity: 1}},
		})
		if err != nil {
			log.Fatalf("failed to create transfer: %v", err)
		}
		mustUpdate(ctx, transfers, t.ID, domain.TransferStatusAccepted, receiver)
		mustUpdate(ctx, transfers, t.ID, domain.TransferStatusShipped, sender)
		ids = append(ids, t.ID)
	}

	// Counters
	var successCount, conflictCount, shortCount, failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			for attempt := 0; attempt < maxRetries; attempt++ {
				_, err := transfers.UpdateStatus(ctx, service.UpdateStatusInput{TransferID: id, Status: domain.TransferStatusReceived, Actor: receiver})
				switch {
				case err == nil:
					successCount.Add(1)
					return
				case errors.Is(err, domain.ErrConcurrencyConflict):
					conflictCount.Add(1)
					continue
				case errors.Is(err, domain.ErrDataIntegrity):
					shortCount.Add(1)
					return
				default:
					failCount.Add(1)
					return
				}
			}
			failCount.Add(1)
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	endA, endB := onHand(ctx, stock, "stress-a"), onHand(ctx, stock, "stress-b")

	fmt.Println("========== Stress Test Results ==========")
	fmt.Printf("Transfers:          %d\n", *totalRequests)
	fmt.Printf("Received:           %d\n", successCount.Load())
	fmt.Printf("Conflicts retried:  %d\n", conflictCount.Load())
	fmt.Printf("Insufficient stock: %d\n", shortCount.Load())
	fmt.Printf("Gave up / errors:   %d\n", failCount.Load())
	fmt.Printf("Sender stock:       %d -> %d\n", startA, endA)
	fmt.Printf("Receiver stock:     %d -> %d\n", startB, endB)
	fmt.Printf("Elapsed:            %v\n", elapsed)
	fmt.Println("=========================================")

	if startA+startB != endA+endB {
		log.Fatalf("FAIL: stock not conserved (%d before, %d after)", startA+startB, endA+endB)
	}
	if int(successCount.Load()) != endB-startB {
		log.Fatalf("FAIL: %d receipts but receiver gained %d", successCount.Load(), endB-startB)
	}
	if endA < 0 {
		log.Fatalf("FAIL: negative sender stock %d", endA)
	}
	fmt.Println("PASS: stock conserved")
}

func mustUpdate(ctx context.Context, transfers *service.TransferService, id string, status domain.TransferStatus, actor domain.Principal) {
	if _, err := transfers.UpdateStatus(ctx, service.UpdateStatusInput{TransferID: id, Status: status, Actor: actor}); err != nil {
		log.Fatalf("failed to move %s to %s: %v", id, status, err)
	}
}

func onHand(ctx context.Context, stock *service.StockService, storeID string) int {
	rows, err := stock.GetInventory(ctx, storeID)
	if err != nil {
		log.Fatalf("failed to read inventory: %v", err)
	}
	total := 0
	for _, row := range rows {
		if row.ProductID == productID {
			total += row.Quantity
		}
	}
	return total
}
