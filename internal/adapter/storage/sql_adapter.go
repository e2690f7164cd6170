package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

// ErrOptimisticLock is returned when a versioned row changed since it was read.
var ErrOptimisticLock = fmt.Errorf("%w: optimistic lock conflict", domain.ErrConcurrencyConflict)

var (
	_ port.DatabaseRepository = (*SQLAdapter)(nil)
	_ port.TxRepository       = (*sqlTx)(nil)
)

const transferColumns = `id, sending_store_id, receiving_store_id, initiating_employee_id,
	responding_employee_id, status, request_notes, response_notes, system_message,
	shipped_at, received_at, version, created_at, updated_at`

const inventoryColumns = `id, store_id, product_id, quantity, price, last_verified, version, created_at, updated_at`

type transferRow struct {
	ID                   string         `db:"id"`
	SendingStoreID       string         `db:"sending_store_id"`
	ReceivingStoreID     string         `db:"receiving_store_id"`
	InitiatingEmployeeID string         `db:"initiating_employee_id"`
	RespondingEmployeeID sql.NullString `db:"responding_employee_id"`
	Status               string         `db:"status"`
	RequestNotes         string         `db:"request_notes"`
	ResponseNotes        string         `db:"response_notes"`
	SystemMessage        string         `db:"system_message"`
	ShippedAt            sql.NullTime   `db:"shipped_at"`
	ReceivedAt           sql.NullTime   `db:"received_at"`
	Version              int64          `db:"version"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r transferRow) toDomain() domain.TransferRequest {
	t := domain.TransferRequest{
		ID:                   r.ID,
		SendingStoreID:       r.SendingStoreID,
		ReceivingStoreID:     r.ReceivingStoreID,
		InitiatingEmployeeID: r.InitiatingEmployeeID,
		Status:               domain.TransferStatus(r.Status),
		RequestNotes:         r.RequestNotes,
		ResponseNotes:        r.ResponseNotes,
		SystemMessage:        r.SystemMessage,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.RespondingEmployeeID.Valid {
		v := r.RespondingEmployeeID.String
		t.RespondingEmployeeID = &v
	}
	t.ShippedAt = timePtr(r.ShippedAt)
	t.ReceivedAt = timePtr(r.ReceivedAt)
	return t
}

type itemRow struct {
	ID                string `db:"id"`
	TransferRequestID string `db:"transfer_request_id"`
	ProductID         string `db:"product_id"`
	ProductName       string `db:"product_name"`
	QuantityRequested int    `db:"quantity_requested"`
}

type inventoryRow struct {
	ID           string          `db:"id"`
	StoreID      string          `db:"store_id"`
	ProductID    string          `db:"product_id"`
	Quantity     int             `db:"quantity"`
	Price        decimal.Decimal `db:"price"`
	LastVerified sql.NullTime    `db:"last_verified"`
	Version      int64           `db:"version"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r inventoryRow) toDomain() domain.InventoryRecord {
	return domain.InventoryRecord{
		ID:           r.ID,
		StoreID:      r.StoreID,
		ProductID:    r.ProductID,
		Quantity:     r.Quantity,
		Price:        r.Price,
		LastVerified: timePtr(r.LastVerified),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// SQLAdapter implements the relational store on top of any sqlx driver
// registered by Open. All mutations go through RunInTx.
type SQLAdapter struct {
	queries
	db *sqlx.DB
}

func NewSQLAdapter(db *sqlx.DB) *SQLAdapter {
	return &SQLAdapter{queries: queries{q: db}, db: db}
}

func (a *SQLAdapter) RunInTx(ctx context.Context, fn func(ctx context.Context, tx port.TxRepository) error) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{queries: queries{q: tx}}); err != nil {
		return asLockConflict(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return asLockConflict(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// SeedCatalog inserts stores and products. Used by tests and the stress tool.
func (a *SQLAdapter) SeedCatalog(ctx context.Context, stores []domain.Store, products []domain.Product) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, store := range stores {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO stores (id, store_key, name) VALUES (?, ?, ?)`),
			store.ID, store.StoreKey, store.Name); err != nil {
			return fmt.Errorf("insert store %s: %w", store.ID, err)
		}
	}
	for _, product := range products {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO products (id, name) VALUES (?, ?)`),
			product.ID, product.Name); err != nil {
			return fmt.Errorf("insert product %s: %w", product.ID, err)
		}
	}
	return tx.Commit()
}

// queries holds the reads shared by the pool and a transaction.
type queries struct {
	q sqlx.ExtContext
}

func (s queries) GetTransfer(ctx context.Context, id string) (*domain.TransferRequest, error) {
	var row transferRow
	err := sqlx.GetContext(ctx, s.q, &row, s.q.Rebind(`SELECT `+transferColumns+` FROM transfer_requests WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query transfer: %w", err)
	}

	transfer := row.toDomain()
	items, err := s.loadItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	transfer.Items = items[id]
	return &transfer, nil
}

func (s queries) ListTransfersForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error) {
	var rows []transferRow
	err := sqlx.SelectContext(ctx, s.q, &rows, s.q.Rebind(`
		SELECT `+transferColumns+` FROM transfer_requests
		WHERE sending_store_id = ? OR receiving_store_id = ?
		ORDER BY created_at DESC, id DESC`), storeID, storeID)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	if len(rows) == 0 {
		return []domain.TransferRequest{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	transfers := make([]domain.TransferRequest, len(rows))
	for i, row := range rows {
		transfers[i] = row.toDomain()
		transfers[i].Items = items[row.ID]
	}
	return transfers, nil
}

func (s queries) loadItems(ctx context.Context, transferIDs []string) (map[string][]domain.TransferRequestItem, error) {
	query, args, err := sqlx.In(`
		SELECT id, transfer_request_id, product_id, product_name, quantity_requested
		FROM transfer_request_items
		WHERE transfer_request_id IN (?)
		ORDER BY transfer_request_id, line_no`, transferIDs)
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query transfer items: %w", err)
	}

	out := make(map[string][]domain.TransferRequestItem, len(transferIDs))
	for _, row := range rows {
		out[row.TransferRequestID] = append(out[row.TransferRequestID], domain.TransferRequestItem{
			ID:                row.ID,
			TransferRequestID: row.TransferRequestID,
			ProductID:         row.ProductID,
			ProductName:       row.ProductName,
			QuantityRequested: row.QuantityRequested,
		})
	}
	return out, nil
}

func (s queries) ListInventory(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	var rows []inventoryRow
	err := sqlx.SelectContext(ctx, s.q, &rows, s.q.Rebind(`
		SELECT `+inventoryColumns+` FROM store_inventories
		WHERE store_id = ? ORDER BY product_id`), storeID)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	out := make([]domain.InventoryRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type sqlTx struct {
	queries
}

func (t *sqlTx) FindStores(ctx context.Context, ids []string) (map[string]domain.Store, error) {
	out := make(map[string]domain.Store, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, store_key, name FROM stores WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build stores query: %w", err)
	}

	var rows []struct {
		ID       string `db:"id"`
		StoreKey string `db:"store_key"`
		Name     string `db:"name"`
	}
	if err := sqlx.SelectContext(ctx, t.q, &rows, t.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = domain.Store{ID: row.ID, StoreKey: row.StoreKey, Name: row.Name}
	}
	return out, nil
}

func (t *sqlTx) FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, name FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build products query: %w", err)
	}

	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	if err := sqlx.SelectContext(ctx, t.q, &rows, t.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = domain.Product{ID: row.ID, Name: row.Name}
	}
	return out, nil
}

func (t *sqlTx) CreateTransfer(ctx context.Context, transfer *domain.TransferRequest) error {
	_, err := t.q.ExecContext(ctx, t.q.Rebind(`
		INSERT INTO transfer_requests (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		transfer.ID, transfer.SendingStoreID, transfer.ReceivingStoreID, transfer.InitiatingEmployeeID,
		nullString(transfer.RespondingEmployeeID), string(transfer.Status), transfer.RequestNotes,
		transfer.ResponseNotes, transfer.SystemMessage, nullTime(transfer.ShippedAt),
		nullTime(transfer.ReceivedAt), transfer.Version, transfer.CreatedAt, transfer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transfer %s already exists", domain.ErrConcurrencyConflict, transfer.ID)
		}
		return fmt.Errorf("insert transfer: %w", err)
	}

	for i, item := range transfer.Items {
		_, err := t.q.ExecContext(ctx, t.q.Rebind(`
			INSERT INTO transfer_request_items (id, transfer_request_id, line_no, product_id, product_name, quantity_requested)
			VALUES (?, ?, ?, ?, ?, ?)`),
			item.ID, transfer.ID, i, item.ProductID, item.ProductName, item.QuantityRequested,
		)
		if err != nil {
			return fmt.Errorf("insert transfer item: %w", err)
		}
	}
	return nil
}

func (t *sqlTx) UpdateTransfer(ctx context.Context, transfer *domain.TransferRequest) error {
	result, err := t.q.ExecContext(ctx, t.q.Rebind(`
		UPDATE transfer_requests
		SET status = ?, responding_employee_id = ?, response_notes = ?, system_message = ?,
			shipped_at = ?, received_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`),
		string(transfer.Status), nullString(transfer.RespondingEmployeeID), transfer.ResponseNotes,
		transfer.SystemMessage, nullTime(transfer.ShippedAt), nullTime(transfer.ReceivedAt),
		transfer.UpdatedAt, transfer.ID, transfer.Version,
	)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: transfer %s at version %d", ErrOptimisticLock, transfer.ID, transfer.Version)
	}

	transfer.Version++
	return nil
}

func (t *sqlTx) LoadInventory(ctx context.Context, storeIDs, productIDs []string) ([]domain.InventoryRecord, error) {
	if len(storeIDs) == 0 || len(productIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+inventoryColumns+` FROM store_inventories
		WHERE store_id IN (?) AND product_id IN (?)`, storeIDs, productIDs)
	if err != nil {
		return nil, fmt.Errorf("build inventory query: %w", err)
	}

	var rows []inventoryRow
	if err := sqlx.SelectContext(ctx, t.q, &rows, t.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	out := make([]domain.InventoryRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type inventoryWriteKind int

const (
	inventoryDelete inventoryWriteKind = iota
	inventoryUpdate
	inventoryInsert
)

type inventoryWrite struct {
	kind inventoryWriteKind
	rec  domain.InventoryRecord
}

// orderedWrites flattens a change set into (store, product) order. Every
// transaction touching inventory takes row locks in that order, so a pair of
// opposite transfers cannot deadlock on each other.
func orderedWrites(changes domain.InventoryChangeSet) []inventoryWrite {
	writes := make([]inventoryWrite, 0, len(changes.Deletes)+len(changes.Updates)+len(changes.Inserts))
	for _, rec := range changes.Deletes {
		writes = append(writes, inventoryWrite{kind: inventoryDelete, rec: rec})
	}
	for _, rec := range changes.Updates {
		writes = append(writes, inventoryWrite{kind: inventoryUpdate, rec: rec})
	}
	for _, rec := range changes.Inserts {
		writes = append(writes, inventoryWrite{kind: inventoryInsert, rec: rec})
	}
	sort.SliceStable(writes, func(i, j int) bool {
		a, b := writes[i].rec, writes[j].rec
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		return a.ProductID < b.ProductID
	})
	return writes
}

func (t *sqlTx) ApplyInventory(ctx context.Context, changes domain.InventoryChangeSet) error {
	for _, w := range orderedWrites(changes) {
		rec := w.rec
		switch w.kind {
		case inventoryDelete:
			result, err := t.q.ExecContext(ctx, t.q.Rebind(`
				DELETE FROM store_inventories WHERE id = ? AND version = ?`),
				rec.ID, rec.Version,
			)
			if err := checkVersioned(result, err, "delete", rec); err != nil {
				return err
			}

		case inventoryUpdate:
			result, err := t.q.ExecContext(ctx, t.q.Rebind(`
				UPDATE store_inventories
				SET quantity = ?, price = ?, last_verified = ?, updated_at = ?, version = version + 1
				WHERE id = ? AND version = ?`),
				rec.Quantity, rec.Price, nullTime(rec.LastVerified), rec.UpdatedAt, rec.ID, rec.Version,
			)
			if err := checkVersioned(result, err, "update", rec); err != nil {
				return err
			}

		case inventoryInsert:
			_, err := t.q.ExecContext(ctx, t.q.Rebind(`
				INSERT INTO store_inventories (`+inventoryColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`),
				rec.ID, rec.StoreID, rec.ProductID, rec.Quantity, rec.Price,
				nullTime(rec.LastVerified), rec.CreatedAt, rec.UpdatedAt,
			)
			if err != nil {
				// another transaction created the row first
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: inventory for store %s product %s", ErrOptimisticLock, rec.StoreID, rec.ProductID)
				}
				return asLockConflict(fmt.Errorf("insert inventory: %w", err))
			}
		}
	}
	return nil
}

func (t *sqlTx) CreateSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.q.ExecContext(ctx, t.q.Rebind(`
		INSERT INTO sales_logs (id, store_id, employee_id, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		sale.ID, sale.StoreID, sale.EmployeeID, sale.TotalAmount, sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for i, item := range sale.Items {
		_, err := t.q.ExecContext(ctx, t.q.Rebind(`
			INSERT INTO sales_log_items (sales_log_id, line_no, product_id, quantity, price_at_sale, amount)
			VALUES (?, ?, ?, ?, ?, ?)`),
			sale.ID, i, item.ProductID, item.Quantity, item.PriceAtSale, item.Amount,
		)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func checkVersioned(result sql.Result, err error, op string, rec domain.InventoryRecord) error {
	if err != nil {
		return asLockConflict(fmt.Errorf("%s inventory: %w", op, err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s inventory: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: inventory %s at version %d", ErrOptimisticLock, rec.ID, rec.Version)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isLockConflict reports errors the database raises when it aborts a
// transaction to break a deadlock or a lock wait: MySQL 1213 and 1205,
// Postgres 40P01, 40001 and 55P03, SQLite BUSY and LOCKED.
func isLockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "40001", "55P03":
			return true
		}
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// asLockConflict turns a deadlock or lock timeout into ErrOptimisticLock so
// callers retry it like any other lost race.
func asLockConflict(err error) error {
	if err == nil || errors.Is(err, domain.ErrConcurrencyConflict) || !isLockConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrOptimisticLock, err)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
