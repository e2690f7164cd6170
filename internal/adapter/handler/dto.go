package handler

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/core/service"
)

type TransferItemRequest struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type CreateTransferRequest struct {
	SendingStoreID   string                `json:"sending_store_id"`
	ReceivingStoreID string                `json:"receiving_store_id"`
	RequestNotes     string                `json:"request_notes"`
	Items            []TransferItemRequest `json:"items"`
}

type UpdateStatusRequest struct {
	Status        string `json:"status"`
	ResponseNotes string `json:"response_notes"`
}

type TransferItemResponse struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	QuantityRequested int    `json:"quantity_requested"`
}

type TransferResponse struct {
	ID                   string                 `json:"id"`
	SendingStoreID       string                 `json:"sending_store_id"`
	ReceivingStoreID     string                 `json:"receiving_store_id"`
	InitiatingEmployeeID string                 `json:"initiating_employee_id"`
	RespondingEmployeeID *string                `json:"responding_employee_id"`
	Status               string                 `json:"status"`
	RequestNotes         string                 `json:"request_notes"`
	ResponseNotes        string                 `json:"response_notes"`
	SystemMessage        string                 `json:"system_message"`
	ShippedAt            *time.Time             `json:"shipped_at"`
	ReceivedAt           *time.Time             `json:"received_at"`
	Version              int64                  `json:"version"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	Items                []TransferItemResponse `json:"items"`
}

type DeliveryItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type DeliveryRequest struct {
	Items []DeliveryItemRequest `json:"items"`
}

type DeliveryResponse struct {
	StoreID     string                `json:"store_id"`
	DeliveredBy string                `json:"delivered_by"`
	DeliveredAt time.Time             `json:"delivered_at"`
	RowsCreated int                   `json:"rows_created"`
	RowsUpdated int                   `json:"rows_updated"`
	Items       []DeliveryItemRequest `json:"items"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleRequest struct {
	Items []SaleItemRequest `json:"items"`
}

type SaleItemResponse struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale"`
	Amount      decimal.Decimal `json:"amount"`
}

type SaleResponse struct {
	ID          string             `json:"id"`
	StoreID     string             `json:"store_id"`
	EmployeeID  string             `json:"employee_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	CreatedAt   time.Time          `json:"created_at"`
	Items       []SaleItemResponse `json:"items"`
}

type InventoryResponse struct {
	ID           string          `json:"id"`
	StoreID      string          `json:"store_id"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	LastVerified *time.Time      `json:"last_verified"`
	Version      int64           `json:"version"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CurrentStatus string `json:"current_status,omitempty"`
}

func (r CreateTransferRequest) toInput(sendingStoreID string, initiator domain.Principal, idempotencyKey string) service.CreateTransferInput {
	in := service.CreateTransferInput{
		SendingStoreID:   sendingStoreID,
		ReceivingStoreID: r.ReceivingStoreID,
		Initiator:        initiator,
		RequestNotes:     r.RequestNotes,
		IdempotencyKey:   idempotencyKey,
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, service.TransferItemInput{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
		})
	}
	return in
}

func newTransferResponse(t *domain.TransferRequest) TransferResponse {
	resp := TransferResponse{
		ID:                   t.ID,
		SendingStoreID:       t.SendingStoreID,
		ReceivingStoreID:     t.ReceivingStoreID,
		InitiatingEmployeeID: t.InitiatingEmployeeID,
		RespondingEmployeeID: t.RespondingEmployeeID,
		Status:               string(t.Status),
		RequestNotes:         t.RequestNotes,
		ResponseNotes:        t.ResponseNotes,
		SystemMessage:        t.SystemMessage,
		ShippedAt:            t.ShippedAt,
		ReceivedAt:           t.ReceivedAt,
		Version:              t.Version,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		Items:                make([]TransferItemResponse, len(t.Items)),
	}
	for i, item := range t.Items {
		resp.Items[i] = TransferItemResponse{
			ID:                item.ID,
			ProductID:         item.ProductID,
			ProductName:       item.ProductName,
			QuantityRequested: item.QuantityRequested,
		}
	}
	return resp
}

func newTransferListResponse(transfers []domain.TransferRequest) []TransferResponse {
	out := make([]TransferResponse, len(transfers))
	for i := range transfers {
		out[i] = newTransferResponse(&transfers[i])
	}
	return out
}

func newErrorResponse(err error) errorResponse {
	resp := errorResponse{Error: domain.ErrorKind(err), Message: err.Error()}
	var te *domain.TransitionError
	if errors.As(err, &te) {
		resp.CurrentStatus = string(te.Current)
	}
	if resp.Error == "internal" {
		resp.Message = "internal error"
	}
	return resp
}
