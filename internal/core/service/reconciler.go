package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

// Reconciler moves stock between two stores' ledgers for a received transfer.
type Reconciler struct {
	logger  *zap.Logger
	metrics port.Metrics
	now     func() time.Time
	newID   func() string
}

func NewReconciler(logger *zap.Logger, metrics port.Metrics) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &Reconciler{
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   newID,
	}
}

// Reconcile debits the sending store and credits the receiving store for every
// line of transfer, then applies the batch through ledger. It must run inside
// the transaction that moves transfer into Received.
func (r *Reconciler) Reconcile(ctx context.Context, ledger port.InventoryLedger, transfer *domain.TransferRequest) (domain.InventoryChangeSet, error) {
	if transfer.Status != domain.TransferStatusReceived {
		return domain.InventoryChangeSet{}, fmt.Errorf("%w: reconcile transfer %s in status %s",
			domain.ErrInvalidTransition, transfer.ID, transfer.Status)
	}
	if transfer.SendingStoreID == transfer.ReceivingStoreID {
		return domain.InventoryChangeSet{}, fmt.Errorf("%w: transfer %s sends to its own store", domain.ErrValidation, transfer.ID)
	}

	start := time.Now()
	changes, err := r.reconcile(ctx, ledger, transfer)
	r.metrics.ObserveReconciliation(time.Since(start), outcome(err))
	if err != nil {
		return domain.InventoryChangeSet{}, err
	}

	r.logger.Info("inventory reconciled",
		zap.String("transfer_id", transfer.ID),
		zap.String("sending_store_id", transfer.SendingStoreID),
		zap.String("receiving_store_id", transfer.ReceivingStoreID),
		zap.Int("updated", len(changes.Updates)),
		zap.Int("inserted", len(changes.Inserts)),
		zap.Int("deleted", len(changes.Deletes)),
	)
	return changes, nil
}

func (r *Reconciler) reconcile(ctx context.Context, ledger port.InventoryLedger, transfer *domain.TransferRequest) (domain.InventoryChangeSet, error) {
	productIDs, quantities := transfer.QuantitiesByProduct()
	names := make(map[string]string, len(transfer.Items))
	for _, item := range transfer.Items {
		names[item.ProductID] = item.ProductName
	}

	rows, err := ledger.LoadInventory(ctx, []string{transfer.SendingStoreID, transfer.ReceivingStoreID}, productIDs)
	if err != nil {
		return domain.InventoryChangeSet{}, fmt.Errorf("load inventory: %w", err)
	}
	byKey := make(map[domain.InventoryKey]domain.InventoryRecord, len(rows))
	for _, row := range rows {
		byKey[row.Key()] = row
	}

	now := r.now()
	var changes domain.InventoryChangeSet
	for _, productID := range productIDs {
		qty := quantities[productID]

		sending, ok := byKey[domain.InventoryKey{StoreID: transfer.SendingStoreID, ProductID: productID}]
		if !ok {
			return domain.InventoryChangeSet{}, fmt.Errorf("%w: no inventory record for product %s (%s) in sending store %s",
				domain.ErrDataIntegrity, names[productID], productID, transfer.SendingStoreID)
		}
		if sending.Quantity < qty {
			return domain.InventoryChangeSet{}, fmt.Errorf("%w: product %s (%s) in store %s has %d, transfer moves %d",
				domain.ErrInsufficientStock, names[productID], productID, transfer.SendingStoreID, sending.Quantity, qty)
		}

		unitPrice := sending.Price
		sending.Quantity -= qty
		sending.UpdatedAt = now
		if sending.Quantity == 0 {
			changes.Deletes = append(changes.Deletes, sending)
		} else {
			changes.Updates = append(changes.Updates, sending)
		}

		receiving, ok := byKey[domain.InventoryKey{StoreID: transfer.ReceivingStoreID, ProductID: productID}]
		if ok {
			receiving.Quantity += qty
			receiving.UpdatedAt = now
			changes.Updates = append(changes.Updates, receiving)
			continue
		}
		changes.Inserts = append(changes.Inserts, domain.InventoryRecord{
			ID:        r.newID(),
			StoreID:   transfer.ReceivingStoreID,
			ProductID: productID,
			Quantity:  qty,
			Price:     unitPrice,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := ledger.ApplyInventory(ctx, changes); err != nil {
		return domain.InventoryChangeSet{}, fmt.Errorf("apply inventory: %w", err)
	}
	return changes, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return domain.ErrorKind(err)
}
