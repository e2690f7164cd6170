package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	transfers *service.TransferService
	stock     *service.StockService
	auth      *Authenticator
	logger    *zap.Logger
}

func NewHTTPHandler(transfers *service.TransferService, stock *service.StockService, auth *Authenticator, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{transfers: transfers, stock: stock, auth: auth, logger: logger}
}

// Routes builds the router. metricsHandler may be nil.
func (h *HTTPHandler) Routes(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.StripSlashes)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.HealthCheck)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/stores/{id}", func(r chi.Router) {
			r.Post("/request-transfer", h.CreateTransferRequest)
			r.Get("/requests", h.ListStoreTransfers)
			r.Post("/deliveries", h.DeliverStock)
			r.Post("/sales", h.RecordSale)
			r.Get("/inventory", h.GetInventory)
		})

		r.Route("/transfers/requests/{requestId}", func(r chi.Router) {
			r.Get("/", h.GetTransferRequest)
			r.Put("/update-status", h.UpdateStatus)
		})
	})

	return r
}

// CreateTransferRequest opens a transfer from the store in the path. The
// initiator is the authenticated employee.
func (h *HTTPHandler) CreateTransferRequest(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	var req CreateTransferRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SendingStoreID != "" && req.SendingStoreID != storeID {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation",
			Message: "sending_store_id does not match the store in the path",
		})
		return
	}

	p, _ := PrincipalFromContext(r.Context())
	transfer, err := h.transfers.CreateTransferRequest(r.Context(), req.toInput(storeID, p, r.Header.Get(idempotencyHeader)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTransferResponse(transfer))
}

func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := domain.ParseTransferStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, _ := PrincipalFromContext(r.Context())
	transfer, err := h.transfers.UpdateStatus(r.Context(), service.UpdateStatusInput{
		TransferID:    chi.URLParam(r, "requestId"),
		Status:        status,
		Actor:         p,
		ResponseNotes: req.ResponseNotes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTransferResponse(transfer))
}

func (h *HTTPHandler) GetTransferRequest(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transfers.GetTransferRequest(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransferResponse(transfer))
}

func (h *HTTPHandler) ListStoreTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transfers.ListTransferRequestsForStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransferListResponse(transfers))
}

func (h *HTTPHandler) DeliverStock(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if !decode(w, r, &req) {
		return
	}

	in := service.DeliverStockInput{StoreID: chi.URLParam(r, "id")}
	in.Actor, _ = PrincipalFromContext(r.Context())
	for _, item := range req.Items {
		in.Items = append(in.Items, domain.DeliveryItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}

	delivery, err := h.stock.DeliverStock(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := DeliveryResponse{
		StoreID:     delivery.StoreID,
		DeliveredBy: delivery.DeliveredBy,
		DeliveredAt: delivery.DeliveredAt,
		RowsCreated: delivery.RowsCreated,
		RowsUpdated: delivery.RowsUpdated,
		Items:       make([]DeliveryItemRequest, len(delivery.Items)),
	}
	for i, item := range delivery.Items {
		resp.Items[i] = DeliveryItemRequest{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *HTTPHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !decode(w, r, &req) {
		return
	}

	in := service.RecordSaleInput{StoreID: chi.URLParam(r, "id")}
	in.Actor, _ = PrincipalFromContext(r.Context())
	for _, item := range req.Items {
		in.Items = append(in.Items, service.SaleItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	sale, err := h.stock.RecordSale(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := SaleResponse{
		ID:          sale.ID,
		StoreID:     sale.StoreID,
		EmployeeID:  sale.EmployeeID,
		TotalAmount: sale.TotalAmount,
		CreatedAt:   sale.CreatedAt,
		Items:       make([]SaleItemResponse, len(sale.Items)),
	}
	for i, item := range sale.Items {
		resp.Items[i] = SaleItemResponse{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			PriceAtSale: item.PriceAtSale,
			Amount:      item.Amount,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *HTTPHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	records, err := h.stock.GetInventory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]InventoryResponse, len(records))
	for i, rec := range records {
		resp[i] = InventoryResponse{
			ID:           rec.ID,
			StoreID:      rec.StoreID,
			ProductID:    rec.ProductID,
			Quantity:     rec.Quantity,
			Price:        rec.Price,
			LastVerified: rec.LastVerified,
			Version:      rec.Version,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, newErrorResponse(err))
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorizedTransition),
		errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDataIntegrity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
