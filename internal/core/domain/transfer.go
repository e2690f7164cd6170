package domain

import (
	"fmt"
	"strings"
	"time"
)

type TransferStatus string

const (
	TransferStatusRequested TransferStatus = "Requested" // sending store created the request
	TransferStatusAccepted  TransferStatus = "Accepted"  // receiving store agreed to take the items
	TransferStatusRejected  TransferStatus = "Rejected"
	TransferStatusShipped   TransferStatus = "Shipped"  // items left the sending store
	TransferStatusReceived  TransferStatus = "Received" // receiving store confirmed arrival
	TransferStatusCancelled TransferStatus = "Cancelled"
)

// TransferStatuses lists every status in lifecycle order.
var TransferStatuses = []TransferStatus{
	TransferStatusRequested,
	TransferStatusAccepted,
	TransferStatusRejected,
	TransferStatusShipped,
	TransferStatusReceived,
	TransferStatusCancelled,
}

// ParseTransferStatus accepts any casing of a known status name.
func ParseTransferStatus(s string) (TransferStatus, error) {
	for _, status := range TransferStatuses {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: unknown transfer status %q", ErrValidation, s)
}

func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusRejected, TransferStatusReceived, TransferStatusCancelled:
		return true
	}
	return false
}

func (s TransferStatus) String() string { return string(s) }

// TransferRequest is the aggregate root for one store-to-store stock movement.
type TransferRequest struct {
	ID                   string
	SendingStoreID       string
	ReceivingStoreID     string
	InitiatingEmployeeID string
	RespondingEmployeeID *string
	Status               TransferStatus
	RequestNotes         string
	ResponseNotes        string
	SystemMessage        string
	ShippedAt            *time.Time
	ReceivedAt           *time.Time
	Version              int64 // optimistic locking
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Items                []TransferRequestItem
}

type TransferRequestItem struct {
	ID                string
	TransferRequestID string
	ProductID         string
	ProductName       string
	QuantityRequested int
}

// Involves reports whether storeID is the sending or receiving store.
func (t *TransferRequest) Involves(storeID string) bool {
	return storeID != "" && (t.SendingStoreID == storeID || t.ReceivingStoreID == storeID)
}

// QuantitiesByProduct sums requested quantities per product, preserving first-seen order.
func (t *TransferRequest) QuantitiesByProduct() ([]string, map[string]int) {
	order := make([]string, 0, len(t.Items))
	qty := make(map[string]int, len(t.Items))
	for _, item := range t.Items {
		if _, ok := qty[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		qty[item.ProductID] += item.QuantityRequested
	}
	return order, qty
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t *TransferRequest) Clone() *TransferRequest {
	if t == nil {
		return nil
	}
	c := *t
	if t.RespondingEmployeeID != nil {
		v := *t.RespondingEmployeeID
		c.RespondingEmployeeID = &v
	}
	if t.ShippedAt != nil {
		v := *t.ShippedAt
		c.ShippedAt = &v
	}
	if t.ReceivedAt != nil {
		v := *t.ReceivedAt
		c.ReceivedAt = &v
	}
	c.Items = append([]TransferRequestItem(nil), t.Items...)
	return &c
}

// StatusMessage is the system-generated text shown alongside a status change.
func StatusMessage(from, to TransferStatus, responseNotes string) string {
	switch to {
	case TransferStatusAccepted:
		return "Transfer request has been accepted."
	case TransferStatusRejected:
		reason := responseNotes
		if reason == "" {
			reason = "No reason provided"
		}
		return "Transfer request has been rejected. Reason: " + reason
	case TransferStatusShipped:
		return "Items have been shipped."
	case TransferStatusReceived:
		return "Items have been received."
	case TransferStatusCancelled:
		if responseNotes == "" {
			return "Transfer request has been cancelled."
		}
		return "Transfer request has been cancelled. Reason: " + responseNotes
	default:
		return fmt.Sprintf("Transfer status changed from %s to %s.", from, to)
	}
}
