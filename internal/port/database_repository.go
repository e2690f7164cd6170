package port

import (
	"context"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

type DatabaseRepository interface {
	// RunInTx runs fn inside a single transaction. A non-nil error from fn, or
	// cancellation of ctx, rolls back every write made through tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	TransferReader

	// ListInventory returns every ledger row held by a store
	ListInventory(ctx context.Context, storeID string) ([]domain.InventoryRecord, error)
}

type TransferReader interface {
	// GetTransfer loads a transfer with its items; missing transfers wrap domain.ErrNotFound
	GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error)

	// ListTransfersForStore returns transfers where the store is sender or receiver, newest first
	ListTransfersForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error)
}

// InventoryLedger is the version-checked view of inventory rows used by every
// mutator: transfer reconciliation, deliveries and sales.
type InventoryLedger interface {
	// LoadInventory batch-reads rows for stores x products
	LoadInventory(ctx context.Context, storeIDs, productIDs []string) ([]domain.InventoryRecord, error)

	// ApplyInventory writes deletes, updates and inserts. Any stale version or
	// duplicate insert fails the whole call with domain.ErrConcurrencyConflict.
	ApplyInventory(ctx context.Context, changes domain.InventoryChangeSet) error
}

type TxRepository interface {
	TransferReader
	InventoryLedger

	FindStores(ctx context.Context, ids []string) (map[string]domain.Store, error)
	FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)

	// CreateTransfer persists header and items
	CreateTransfer(ctx context.Context, transfer *domain.TransferRequest) error

	// UpdateTransfer writes the header if its version is unchanged, then bumps transfer.Version
	UpdateTransfer(ctx context.Context, transfer *domain.TransferRequest) error

	// CreateSale persists a sales log with its items
	CreateSale(ctx context.Context, sale domain.Sale) error
}
