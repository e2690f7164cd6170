package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/store-transfer/internal/core/domain"
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

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, 0)

	// Setup
	client.Del(ctx, "test-idem-key")

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

	ttl := client.TTL(ctx, "test-idem-key").Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}
}

func TestReleaseIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0, 0)
	client.Del(ctx, "release-idem-key")

	if ok, _ := adapter.SetIdempotency(ctx, "release-idem-key"); !ok {
		t.Fatal("expected key to be set")
	}
	if err := adapter.ReleaseIdempotency(ctx, "release-idem-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := adapter.SetIdempotency(ctx, "release-idem-key"); !ok {
		t.Error("released key should be settable again")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0, 0)

	// Setup
	client.Del(ctx, "concurrent-idem-key")

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

func TestStoreTransfersCache(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0, time.Minute)
	client.Del(ctx, storeTransfersKeyPrefix+"cache-store-a", storeTransfersKeyPrefix+"cache-store-b",
		generationKey("cache-store-a"), generationKey("cache-store-b"))

	if _, ok, err := adapter.GetStoreTransfers(ctx, "cache-store-a"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	transfers := []domain.TransferRequest{{
		ID:               "t-1",
		SendingStoreID:   "cache-store-a",
		ReceivingStoreID: "cache-store-b",
		Status:           domain.TransferStatusShipped,
		Version:          3,
		Items:            []domain.TransferRequestItem{{ProductID: "widget", QuantityRequested: 2}},
	}}
	for _, store := range []string{"cache-store-a", "cache-store-b"} {
		gen, err := adapter.StoreTransfersGeneration(ctx, store)
		if err != nil || gen != 0 {
			t.Fatalf("expected generation 0, got %d err=%v", gen, err)
		}
		if stored, err := adapter.SetStoreTransfers(ctx, store, gen, transfers); err != nil || !stored {
			t.Fatalf("SetStoreTransfers failed: stored=%v err=%v", stored, err)
		}
	}

	got, ok, err := adapter.GetStoreTransfers(ctx, "cache-store-a")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].Status != domain.TransferStatusShipped || got[0].Items[0].QuantityRequested != 2 {
		t.Errorf("unexpected cached list %+v", got)
	}

	if err := adapter.InvalidateStoreTransfers(ctx, "cache-store-a", "cache-store-b"); err != nil {
		t.Fatalf("InvalidateStoreTransfers failed: %v", err)
	}
	for _, store := range []string{"cache-store-a", "cache-store-b"} {
		if _, ok, _ := adapter.GetStoreTransfers(ctx, store); ok {
			t.Errorf("expected %s to be invalidated", store)
		}
	}
}

func TestStoreTransfersCache_StaleGenerationIsDiscarded(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, 0, time.Minute)
	store := "cache-store-gen"
	client.Del(ctx, storeTransfersKeyPrefix+store, generationKey(store))

	// reader takes the generation, then a commit lands before it writes back
	gen, err := adapter.StoreTransfersGeneration(ctx, store)
	if err != nil {
		t.Fatalf("StoreTransfersGeneration failed: %v", err)
	}
	if err := adapter.InvalidateStoreTransfers(ctx, store); err != nil {
		t.Fatalf("InvalidateStoreTransfers failed: %v", err)
	}

	stale := []domain.TransferRequest{{ID: "t-1", Status: domain.TransferStatusRequested}}
	stored, err := adapter.SetStoreTransfers(ctx, store, gen, stale)
	if err != nil {
		t.Fatalf("SetStoreTransfers failed: %v", err)
	}
	if stored {
		t.Fatal("list read under an old generation must not be cached")
	}
	if _, ok, _ := adapter.GetStoreTransfers(ctx, store); ok {
		t.Fatal("stale list found in cache")
	}

	current, err := adapter.StoreTransfersGeneration(ctx, store)
	if err != nil || current != gen+1 {
		t.Fatalf("expected generation %d, got %d err=%v", gen+1, current, err)
	}
	fresh := []domain.TransferRequest{{ID: "t-1", Status: domain.TransferStatusAccepted}}
	if stored, err := adapter.SetStoreTransfers(ctx, store, current, fresh); err != nil || !stored {
		t.Fatalf("expected fresh list to be cached, stored=%v err=%v", stored, err)
	}
	got, ok, err := adapter.GetStoreTransfers(ctx, store)
	if err != nil || !ok || got[0].Status != domain.TransferStatusAccepted {
		t.Errorf("unexpected cached list %+v ok=%v err=%v", got, ok, err)
	}
}
