package port

import (
	"context"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

// CacheRepository is a best-effort accelerator; the database stays the source of truth.
type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key whose request failed so it can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetStoreTransfers returns a cached transfer list, ok=false on miss
	GetStoreTransfers(ctx context.Context, storeID string) ([]domain.TransferRequest, bool, error)

	// StoreTransfersGeneration reads the store's list generation. Read it before
	// querying the database and pass it to SetStoreTransfers.
	StoreTransfersGeneration(ctx context.Context, storeID string) (int64, error)

	// SetStoreTransfers caches the list only if no invalidation happened since
	// generation was read; stored=false means the list was discarded.
	SetStoreTransfers(ctx context.Context, storeID string, generation int64, transfers []domain.TransferRequest) (stored bool, err error)

	// InvalidateStoreTransfers drops the lists and bumps their generations
	InvalidateStoreTransfers(ctx context.Context, storeIDs ...string) error
}
