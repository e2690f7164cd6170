package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-transfer/internal/adapter/storage"
	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/core/service"
)

const testSecret = "test-secret"

var (
	commissary = domain.Principal{ID: "driver-1", Roles: []domain.Role{domain.RoleCommissary}}
	senderOps  = domain.Principal{ID: "emp-a", StoreID: "store-a", Roles: []domain.Role{domain.RoleStoreOperations}}
	receiver   = domain.Principal{ID: "emp-b", StoreID: "store-b", Roles: []domain.Role{domain.RoleStoreOperations}}
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) {}

func newServices(t *testing.T) (*service.TransferService, *service.StockService) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(ctx, db, storage.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	adapter := storage.NewSQLAdapter(db)
	err = adapter.SeedCatalog(ctx,
		[]domain.Store{{ID: "store-a", StoreKey: "A", Name: "Downtown"}, {ID: "store-b", StoreKey: "B", Name: "Harbor"}},
		[]domain.Product{{ID: "widget", Name: "Widget"}},
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	transfers := service.NewTransferService(adapter, service.NewStatusValidator(service.DefaultTransitionPolicy),
		service.NewReconciler(nil, nil), nopPublisher{})
	return transfers, service.NewStockService(adapter, nil, nil)
}

type httpEnv struct {
	server *httptest.Server
	auth   *Authenticator
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	transfers, stock := newServices(t)
	auth := NewAuthenticator(testSecret)
	h := NewHTTPHandler(transfers, stock, auth, nil)
	srv := httptest.NewServer(h.Routes(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics"))
	})))
	t.Cleanup(srv.Close)
	return &httpEnv{server: srv, auth: auth}
}

func (e *httpEnv) do(t *testing.T, method, path string, as *domain.Principal, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if as != nil {
		token, err := e.auth.Issue(*as, time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *httpEnv) deliver(t *testing.T, storeID string, qty int) {
	t.Helper()
	body := DeliveryRequest{Items: []DeliveryItemRequest{{ProductID: "widget", Quantity: qty, Price: decimal.RequireFromString("3.10")}}}
	if code := e.do(t, http.MethodPost, "/api/stores/"+storeID+"/deliveries", &commissary, body, nil); code != http.StatusCreated {
		t.Fatalf("deliver: status %d", code)
	}
}

func (e *httpEnv) create(t *testing.T, qty int) TransferResponse {
	t.Helper()
	var resp TransferResponse
	body := CreateTransferRequest{
		ReceivingStoreID: "store-b",
		RequestNotes:     "weekend rush",
		Items:            []TransferItemRequest{{ProductID: "widget", Quantity: qty}},
	}
	if code := e.do(t, http.MethodPost, "/api/stores/store-a/request-transfer", &senderOps, body, &resp); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	return resp
}

func (e *httpEnv) updateStatus(t *testing.T, id string, as domain.Principal, status string, out any) int {
	t.Helper()
	return e.do(t, http.MethodPut, "/api/transfers/requests/"+id+"/update-status", &as, UpdateStatusRequest{Status: status}, out)
}

func TestHTTP_HealthAndMetricsAreOpen(t *testing.T) {
	env := newHTTPEnv(t)

	var health map[string]string
	if code := env.do(t, http.MethodGet, "/health", nil, nil, &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("health: %d %v", code, health)
	}
	if code := env.do(t, http.MethodGet, "/metrics", nil, nil, nil); code != http.StatusOK {
		t.Errorf("metrics: %d", code)
	}
}

func TestHTTP_RequiresBearerToken(t *testing.T) {
	env := newHTTPEnv(t)

	var resp errorResponse
	if code := env.do(t, http.MethodGet, "/api/stores/store-a/requests", nil, nil, &resp); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
	if resp.Error != "unauthenticated" {
		t.Errorf("unexpected body %+v", resp)
	}

	forged := NewAuthenticator("other-secret")
	token, _ := forged.Issue(senderOps, time.Hour)
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/stores/store-a/requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for foreign signature, got %d", res.StatusCode)
	}
}

func TestHTTP_TransferLifecycle(t *testing.T) {
	env := newHTTPEnv(t)
	env.deliver(t, "store-a", 10)

	created := env.create(t, 4)
	if created.Status != "Requested" || created.SendingStoreID != "store-a" || created.InitiatingEmployeeID != "emp-a" {
		t.Fatalf("unexpected created transfer %+v", created)
	}

	steps := []struct {
		as     domain.Principal
		status string
	}{
		{receiver, "accepted"},
		{senderOps, "Shipped"},
		{receiver, "Received"},
	}
	var last TransferResponse
	for _, step := range steps {
		if code := env.updateStatus(t, created.ID, step.as, step.status, &last); code != http.StatusOK {
			t.Fatalf("%s: status %d", step.status, code)
		}
	}
	if last.Status != "Received" || last.ReceivedAt == nil || last.ShippedAt == nil {
		t.Errorf("unexpected final transfer %+v", last)
	}

	var fetched TransferResponse
	if code := env.do(t, http.MethodGet, "/api/transfers/requests/"+created.ID, &receiver, nil, &fetched); code != http.StatusOK {
		t.Fatalf("get: status %d", code)
	}
	if fetched.Version != last.Version || len(fetched.Items) != 1 {
		t.Errorf("unexpected fetched transfer %+v", fetched)
	}

	var sender, recv []InventoryResponse
	env.do(t, http.MethodGet, "/api/stores/store-a/inventory", &senderOps, nil, &sender)
	env.do(t, http.MethodGet, "/api/stores/store-b/inventory", &receiver, nil, &recv)
	if len(sender) != 1 || sender[0].Quantity != 6 {
		t.Errorf("expected sender at 6, got %+v", sender)
	}
	if len(recv) != 1 || recv[0].Quantity != 4 || !recv[0].Price.Equal(decimal.RequireFromString("3.10")) {
		t.Errorf("expected receiver at 4 @ 3.10, got %+v", recv)
	}

	var list []TransferResponse
	if code := env.do(t, http.MethodGet, "/api/stores/store-b/requests/", &receiver, nil, &list); code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	env := newHTTPEnv(t)
	env.deliver(t, "store-a", 2)
	transfer := env.create(t, 1)

	t.Run("sending store mismatch", func(t *testing.T) {
		body := CreateTransferRequest{
			SendingStoreID:   "store-b",
			ReceivingStoreID: "store-a",
			Items:            []TransferItemRequest{{ProductID: "widget", Quantity: 1}},
		}
		if code := env.do(t, http.MethodPost, "/api/stores/store-a/request-transfer", &senderOps, body, nil); code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/stores/store-a/request-transfer", bytes.NewBufferString("{"))
		token, _ := env.auth.Issue(senderOps, time.Hour)
		req.Header.Set("Authorization", "Bearer "+token)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", res.StatusCode)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		if code := env.updateStatus(t, transfer.ID, receiver, "Teleported", nil); code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if code := env.do(t, http.MethodGet, "/api/transfers/requests/missing", &receiver, nil, nil); code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", code)
		}
	})

	t.Run("wrong party", func(t *testing.T) {
		if code := env.updateStatus(t, transfer.ID, senderOps, "Accepted", nil); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})

	t.Run("invalid transition reports current status", func(t *testing.T) {
		var resp errorResponse
		if code := env.updateStatus(t, transfer.ID, receiver, "Received", &resp); code != http.StatusConflict {
			t.Errorf("expected 409, got %d", code)
		}
		if resp.Error != "invalid_transition" || resp.CurrentStatus != "Requested" {
			t.Errorf("unexpected body %+v", resp)
		}
	})

	t.Run("insufficient stock", func(t *testing.T) {
		body := SaleRequest{Items: []SaleItemRequest{{ProductID: "widget", Quantity: 5}}}
		var resp errorResponse
		if code := env.do(t, http.MethodPost, "/api/stores/store-a/sales", &senderOps, body, &resp); code != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d", code)
		}
		if resp.Error != "insufficient_stock" {
			t.Errorf("unexpected body %+v", resp)
		}
	})

	t.Run("delivery needs commissary", func(t *testing.T) {
		body := DeliveryRequest{Items: []DeliveryItemRequest{{ProductID: "widget", Quantity: 1, Price: decimal.NewFromInt(1)}}}
		if code := env.do(t, http.MethodPost, "/api/stores/store-a/deliveries", &senderOps, body, nil); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})
}

func TestHTTP_RecordSale(t *testing.T) {
	env := newHTTPEnv(t)
	env.deliver(t, "store-a", 5)

	var sale SaleResponse
	body := SaleRequest{Items: []SaleItemRequest{{ProductID: "widget", Quantity: 3}}}
	if code := env.do(t, http.MethodPost, "/api/stores/store-a/sales", &senderOps, body, &sale); code != http.StatusCreated {
		t.Fatalf("sale: status %d", code)
	}
	if !sale.TotalAmount.Equal(decimal.RequireFromString("9.30")) || sale.EmployeeID != "emp-a" {
		t.Errorf("unexpected sale %+v", sale)
	}

	var errResp errorResponse
	if code := env.do(t, http.MethodPost, "/api/stores/store-a/sales", &receiver, body, &errResp); code != http.StatusForbidden {
		t.Errorf("sale by another store's employee: expected 403, got %d", code)
	}

	var inv []InventoryResponse
	env.do(t, http.MethodGet, "/api/stores/store-a/inventory", &senderOps, nil, &inv)
	if len(inv) != 1 || inv[0].Quantity != 2 {
		t.Errorf("expected 2 left, got %+v", inv)
	}
}
