package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a cashier's logged sales transaction. Recording one debits the
// store's ledger in the same transaction the sale is inserted.
type Sale struct {
	ID          string
	StoreID     string
	EmployeeID  string
	Items       []SaleItem
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
}

type SaleItem struct {
	ProductID   string
	Quantity    int
	PriceAtSale decimal.Decimal
	Amount      decimal.Decimal
}

func (s Sale) TotalQuantity() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// Delivery is a commissary stock drop at a store.
type Delivery struct {
	StoreID     string
	DeliveredBy string
	DeliveredAt time.Time
	Items       []DeliveryItem
	RowsCreated int
	RowsUpdated int
}

type DeliveryItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}
