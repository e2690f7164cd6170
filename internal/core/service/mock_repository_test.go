package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

// Mock DatabaseRepository. Writes are applied in place and undone when the
// transaction function fails, with version checks mirroring the SQL adapter.
type mockDatabaseRepo struct {
	mu        sync.Mutex
	stores    map[string]domain.Store
	products  map[string]domain.Product
	transfers map[string]*domain.TransferRequest
	inventory map[domain.InventoryKey]domain.InventoryRecord
	sales     []domain.Sale

	// afterLoad, afterGet and afterList run after every transactional
	// LoadInventory, GetTransfer and ListTransfersForStore, outside the lock.
	afterLoad func()
	afterGet  func()
	afterList func()
	applyErr  error
	commits   int
}

func newMockDatabaseRepo() *mockDatabaseRepo {
	return &mockDatabaseRepo{
		stores:    make(map[string]domain.Store),
		products:  make(map[string]domain.Product),
		transfers: make(map[string]*domain.TransferRequest),
		inventory: make(map[domain.InventoryKey]domain.InventoryRecord),
	}
}

func (m *mockDatabaseRepo) addStore(id string) {
	m.stores[id] = domain.Store{ID: id, StoreKey: "key-" + id, Name: "Store " + id}
}

func (m *mockDatabaseRepo) addProduct(id, name string) {
	m.products[id] = domain.Product{ID: id, Name: name}
}

func (m *mockDatabaseRepo) setStock(storeID, productID string, qty int, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.InventoryKey{StoreID: storeID, ProductID: productID}
	m.inventory[key] = domain.InventoryRecord{
		ID:        fmt.Sprintf("inv-%s-%s", storeID, productID),
		StoreID:   storeID,
		ProductID: productID,
		Quantity:  qty,
		Price:     decimal.RequireFromString(price),
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (m *mockDatabaseRepo) stock(storeID, productID string) (domain.InventoryRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.inventory[domain.InventoryKey{StoreID: storeID, ProductID: productID}]
	return rec, ok
}

// bumpStock simulates a concurrent writer outside any transaction under test.
func (m *mockDatabaseRepo) bumpStock(storeID, productID string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.InventoryKey{StoreID: storeID, ProductID: productID}
	rec := m.inventory[key]
	rec.Quantity += delta
	rec.Version++
	m.inventory[key] = rec
}

func (m *mockDatabaseRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx port.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &mockTx{repo: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

func (m *mockDatabaseRepo) GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (m *mockDatabaseRepo) ListTransfersForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TransferRequest
	for _, t := range m.transfers {
		if t.Involves(storeID) {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockDatabaseRepo) ListInventory(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryRecord
	for _, rec := range m.inventory {
		if rec.StoreID == storeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type mockTx struct {
	repo *mockDatabaseRepo
	undo []func()
}

func (tx *mockTx) rollback() {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *mockTx) GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error) {
	t, err := tx.repo.GetTransfer(ctx, id)
	tx.repo.mu.Lock()
	hook := tx.repo.afterGet
	tx.repo.mu.Unlock()
	if hook != nil {
		hook()
	}
	return t, err
}

func (tx *mockTx) ListTransfersForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error) {
	list, err := tx.repo.ListTransfersForStore(ctx, storeID)
	tx.repo.mu.Lock()
	hook := tx.repo.afterList
	tx.repo.mu.Unlock()
	if hook != nil {
		hook()
	}
	return list, err
}

func (tx *mockTx) FindStores(ctx context.Context, ids []string) (map[string]domain.Store, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	out := make(map[string]domain.Store)
	for _, id := range ids {
		if s, ok := tx.repo.stores[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (tx *mockTx) FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := tx.repo.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *mockTx) CreateTransfer(ctx context.Context, t *domain.TransferRequest) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if _, exists := tx.repo.transfers[t.ID]; exists {
		return fmt.Errorf("%w: transfer %s exists", domain.ErrConcurrencyConflict, t.ID)
	}
	tx.repo.transfers[t.ID] = t.Clone()
	id := t.ID
	tx.undo = append(tx.undo, func() { delete(tx.repo.transfers, id) })
	return nil
}

func (tx *mockTx) UpdateTransfer(ctx context.Context, t *domain.TransferRequest) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored, ok := tx.repo.transfers[t.ID]
	if !ok || stored.Version != t.Version {
		return fmt.Errorf("%w: transfer %s", domain.ErrConcurrencyConflict, t.ID)
	}
	t.Version++
	tx.repo.transfers[t.ID] = t.Clone()
	tx.undo = append(tx.undo, func() { tx.repo.transfers[stored.ID] = stored })
	return nil
}

func (tx *mockTx) CreateSale(ctx context.Context, sale domain.Sale) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.sales = append(tx.repo.sales, sale)
	n := len(tx.repo.sales) - 1
	tx.undo = append(tx.undo, func() { tx.repo.sales = tx.repo.sales[:n] })
	return nil
}

func (tx *mockTx) LoadInventory(ctx context.Context, storeIDs, productIDs []string) ([]domain.InventoryRecord, error) {
	tx.repo.mu.Lock()
	var out []domain.InventoryRecord
	for _, s := range storeIDs {
		for _, p := range productIDs {
			if rec, ok := tx.repo.inventory[domain.InventoryKey{StoreID: s, ProductID: p}]; ok {
				out = append(out, rec)
			}
		}
	}
	hook := tx.repo.afterLoad
	tx.repo.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (tx *mockTx) ApplyInventory(ctx context.Context, changes domain.InventoryChangeSet) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.repo.applyErr != nil {
		return tx.repo.applyErr
	}

	inv := tx.repo.inventory
	for _, rec := range append(append([]domain.InventoryRecord{}, changes.Deletes...), changes.Updates...) {
		current, ok := inv[rec.Key()]
		if !ok || current.Version != rec.Version {
			return fmt.Errorf("%w: inventory %s", domain.ErrConcurrencyConflict, rec.ID)
		}
	}
	for _, rec := range changes.Inserts {
		if _, ok := inv[rec.Key()]; ok {
			return fmt.Errorf("%w: inventory for %s/%s exists", domain.ErrConcurrencyConflict, rec.StoreID, rec.ProductID)
		}
	}

	for _, rec := range changes.Deletes {
		old := inv[rec.Key()]
		delete(inv, rec.Key())
		tx.undo = append(tx.undo, func() { inv[old.Key()] = old })
	}
	for _, rec := range changes.Updates {
		old := inv[rec.Key()]
		rec.Version++
		inv[rec.Key()] = rec
		tx.undo = append(tx.undo, func() { inv[old.Key()] = old })
	}
	for _, rec := range changes.Inserts {
		rec.Version = 1
		inv[rec.Key()] = rec
		key := rec.Key()
		tx.undo = append(tx.undo, func() { delete(inv, key) })
	}
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	storeLists     map[string][]domain.TransferRequest
	generations    map[string]int64
	invalidated    []string
	skippedWrites  int
	failReads      bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		idempotencySet: make(map[string]bool),
		storeLists:     make(map[string][]domain.TransferRequest),
		generations:    make(map[string]int64),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) GetStoreTransfers(ctx context.Context, storeID string) ([]domain.TransferRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, false, errors.New("cache unavailable")
	}
	list, ok := m.storeLists[storeID]
	return list, ok, nil
}

func (m *mockCacheRepo) StoreTransfersGeneration(ctx context.Context, storeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[storeID], nil
}

func (m *mockCacheRepo) SetStoreTransfers(ctx context.Context, storeID string, generation int64, transfers []domain.TransferRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[storeID] != generation {
		m.skippedWrites++
		return false, nil
	}
	m.storeLists[storeID] = transfers
	return true, nil
}

func (m *mockCacheRepo) cachedList(storeID string) ([]domain.TransferRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.storeLists[storeID]
	return list, ok
}

func (m *mockCacheRepo) InvalidateStoreTransfers(ctx context.Context, storeIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range storeIDs {
		m.generations[id]++
		delete(m.storeLists, id)
		m.invalidated = append(m.invalidated, id)
	}
	return nil
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *mockPublisher) Publish(ctx context.Context, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *mockPublisher) published() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}
