package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryRecord is one store's on-hand quantity of a product.
type InventoryRecord struct {
	ID           string
	StoreID      string
	ProductID    string
	Quantity     int
	Price        decimal.Decimal
	LastVerified *time.Time
	Version      int64 // optimistic locking
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InventoryKey identifies a ledger row by store and product.
type InventoryKey struct {
	StoreID   string
	ProductID string
}

func (r InventoryRecord) Key() InventoryKey {
	return InventoryKey{StoreID: r.StoreID, ProductID: r.ProductID}
}

// InventoryChangeSet is a batch of ledger writes applied in one transaction.
// Updates and Deletes carry the version that was read; Inserts are new rows.
type InventoryChangeSet struct {
	Inserts []InventoryRecord
	Updates []InventoryRecord
	Deletes []InventoryRecord
}

func (c InventoryChangeSet) IsEmpty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}

// Store is a retail location as seen by the transfer workflow.
type Store struct {
	ID       string
	StoreKey string
	Name     string
}

// Product is a catalog entry referenced by transfers and ledger rows.
type Product struct {
	ID   string
	Name string
}
