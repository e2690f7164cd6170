package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

type DeliverStockInput struct {
	StoreID string
	Actor   domain.Principal
	Items   []domain.DeliveryItem
}

type SaleItemInput struct {
	ProductID string
	Quantity  int
}

type RecordSaleInput struct {
	StoreID string
	Actor   domain.Principal
	Items   []SaleItemInput
}

// StockService holds the non-transfer inventory mutators. They share the
// version-checked ledger writes used by transfer reconciliation.
type StockService struct {
	repo    port.DatabaseRepository
	metrics port.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewStockService(repo port.DatabaseRepository, metrics port.Metrics, logger *zap.Logger) *StockService {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DeliverStock credits a commissary delivery to a store, creating ledger rows
// for products the store has never held. The delivered price replaces the
// store price.
func (s *StockService) DeliverStock(ctx context.Context, in DeliverStockInput) (*domain.Delivery, error) {
	if !in.Actor.HasRole(domain.RoleCommissary) {
		return nil, s.fail("deliver_stock", fmt.Errorf("%w: delivering stock requires the %s role", domain.ErrForbidden, domain.RoleCommissary))
	}
	if in.StoreID == "" || len(in.Items) == 0 {
		return nil, s.fail("deliver_stock", fmt.Errorf("%w: store and at least one item are required", domain.ErrValidation))
	}
	// drivers without a home store serve the whole route
	if in.Actor.StoreID != "" && !in.Actor.ActsFor(in.StoreID) {
		return nil, s.fail("deliver_stock", fmt.Errorf("%w: %s cannot deliver to store %s", domain.ErrForbidden, in.Actor.ID, in.StoreID))
	}

	order := make([]string, 0, len(in.Items))
	merged := make(map[string]domain.DeliveryItem, len(in.Items))
	for i, item := range in.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, s.fail("deliver_stock", fmt.Errorf("%w: item %d needs a product and a positive quantity", domain.ErrValidation, i))
		}
		if item.Price.IsNegative() {
			return nil, s.fail("deliver_stock", fmt.Errorf("%w: item %d has a negative price", domain.ErrValidation, i))
		}
		existing, seen := merged[item.ProductID]
		if !seen {
			order = append(order, item.ProductID)
		}
		existing.ProductID = item.ProductID
		existing.Quantity += item.Quantity
		existing.Price = item.Price
		merged[item.ProductID] = existing
	}

	now := s.now()
	delivery := &domain.Delivery{StoreID: in.StoreID, DeliveredBy: in.Actor.ID, DeliveredAt: now}
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx port.TxRepository) error {
		if err := requireStore(ctx, tx, in.StoreID); err != nil {
			return err
		}
		if err := requireProducts(ctx, tx, order); err != nil {
			return err
		}

		rows, err := tx.LoadInventory(ctx, []string{in.StoreID}, order)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		byProduct := make(map[string]domain.InventoryRecord, len(rows))
		for _, row := range rows {
			byProduct[row.ProductID] = row
		}

		var changes domain.InventoryChangeSet
		for _, productID := range order {
			item := merged[productID]
			verified := now
			if row, ok := byProduct[productID]; ok {
				row.Quantity += item.Quantity
				row.Price = item.Price
				row.LastVerified = &verified
				row.UpdatedAt = now
				changes.Updates = append(changes.Updates, row)
			} else {
				changes.Inserts = append(changes.Inserts, domain.InventoryRecord{
					ID:           newID(),
					StoreID:      in.StoreID,
					ProductID:    productID,
					Quantity:     item.Quantity,
					Price:        item.Price,
					LastVerified: &verified,
					CreatedAt:    now,
					UpdatedAt:    now,
				})
			}
			delivery.Items = append(delivery.Items, item)
		}
		delivery.RowsCreated = len(changes.Inserts)
		delivery.RowsUpdated = len(changes.Updates)
		return tx.ApplyInventory(ctx, changes)
	})
	if err != nil {
		return nil, s.fail("deliver_stock", err)
	}

	s.logger.Info("stock delivered",
		zap.String("store_id", in.StoreID),
		zap.String("delivered_by", in.Actor.ID),
		zap.Int("created", delivery.RowsCreated),
		zap.Int("updated", delivery.RowsUpdated),
	)
	return delivery, nil
}

// RecordSale logs a cashier's sale and debits the store ledger in the same
// transaction. Rows sold down to zero are removed.
func (s *StockService) RecordSale(ctx context.Context, in RecordSaleInput) (*domain.Sale, error) {
	if !in.Actor.HasAnyRole(domain.RoleStoreOperations, domain.RoleStoreManager, domain.RoleRegionalManager) {
		return nil, s.fail("record_sale", fmt.Errorf("%w: recording sales requires a store role", domain.ErrForbidden))
	}
	if in.StoreID == "" || len(in.Items) == 0 {
		return nil, s.fail("record_sale", fmt.Errorf("%w: store and at least one item are required", domain.ErrValidation))
	}
	if !in.Actor.ActsFor(in.StoreID) {
		return nil, s.fail("record_sale", fmt.Errorf("%w: %s cannot record sales for store %s", domain.ErrForbidden, in.Actor.ID, in.StoreID))
	}

	order := make([]string, 0, len(in.Items))
	quantities := make(map[string]int, len(in.Items))
	for i, item := range in.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, s.fail("record_sale", fmt.Errorf("%w: item %d needs a product and a positive quantity", domain.ErrValidation, i))
		}
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	now := s.now()
	sale := &domain.Sale{
		ID:          newID(),
		StoreID:     in.StoreID,
		EmployeeID:  in.Actor.ID,
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
	}
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx port.TxRepository) error {
		rows, err := tx.LoadInventory(ctx, []string{in.StoreID}, order)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		byProduct := make(map[string]domain.InventoryRecord, len(rows))
		for _, row := range rows {
			byProduct[row.ProductID] = row
		}

		var changes domain.InventoryChangeSet
		for _, productID := range order {
			qty := quantities[productID]
			row, ok := byProduct[productID]
			if !ok {
				return fmt.Errorf("%w: product %s is not stocked in store %s", domain.ErrNotFound, productID, in.StoreID)
			}
			if row.Quantity < qty {
				return fmt.Errorf("%w: product %s available %d, requested %d", domain.ErrInsufficientStock, productID, row.Quantity, qty)
			}

			amount := row.Price.Mul(decimal.NewFromInt(int64(qty)))
			sale.Items = append(sale.Items, domain.SaleItem{
				ProductID:   productID,
				Quantity:    qty,
				PriceAtSale: row.Price,
				Amount:      amount,
			})
			sale.TotalAmount = sale.TotalAmount.Add(amount)

			row.Quantity -= qty
			row.UpdatedAt = now
			if row.Quantity == 0 {
				changes.Deletes = append(changes.Deletes, row)
			} else {
				changes.Updates = append(changes.Updates, row)
			}
		}

		if err := tx.CreateSale(ctx, *sale); err != nil {
			return err
		}
		return tx.ApplyInventory(ctx, changes)
	})
	if err != nil {
		return nil, s.fail("record_sale", err)
	}

	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("store_id", sale.StoreID),
		zap.Int("quantity", sale.TotalQuantity()),
		zap.String("total", sale.TotalAmount.StringFixed(2)),
	)
	return sale, nil
}

func (s *StockService) GetInventory(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: store id is required", domain.ErrValidation)
	}
	return s.repo.ListInventory(ctx, storeID)
}

func (s *StockService) fail(operation string, err error) error {
	s.metrics.ObserveError(operation, domain.ErrorKind(err))
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		s.logger.Warn("inventory write rolled back: concurrency conflict", zap.String("operation", operation), zap.Error(err))
	}
	return err
}

func requireStore(ctx context.Context, tx port.TxRepository, storeID string) error {
	stores, err := tx.FindStores(ctx, []string{storeID})
	if err != nil {
		return fmt.Errorf("find stores: %w", err)
	}
	if _, ok := stores[storeID]; !ok {
		return fmt.Errorf("%w: store %s", domain.ErrNotFound, storeID)
	}
	return nil
}

func requireProducts(ctx context.Context, tx port.TxRepository, productIDs []string) error {
	products, err := tx.FindProducts(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("find products: %w", err)
	}
	for _, id := range productIDs {
		if _, ok := products[id]; !ok {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
		}
	}
	return nil
}
