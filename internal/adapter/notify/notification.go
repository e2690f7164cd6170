package notify

import (
	"time"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

// Notification is the store-scoped message pushed to store staff.
type Notification struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	Link       string    `json:"link"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
	SenderID   string    `json:"sender_id,omitempty"`
	StoreID    string    `json:"store_id"`
	TransferID string    `json:"transfer_id"`
	Status     string    `json:"status"`
}

const (
	notificationNewTransfer   = "NewTransferRequest"
	notificationStatusUpdated = "TransferStatusUpdated"
)

// TargetStore picks the store that should hear about an event: the party
// that did not cause it.
func TargetStore(event domain.Event) string {
	t := event.Transfer
	if event.Type == domain.EventTransferRequestCreated {
		return t.ReceivingStoreID
	}
	switch t.Status {
	case domain.TransferStatusAccepted, domain.TransferStatusRejected, domain.TransferStatusReceived:
		return t.SendingStoreID
	case domain.TransferStatusShipped:
		return t.ReceivingStoreID
	case domain.TransferStatusCancelled:
		if event.ActorStoreID == t.ReceivingStoreID {
			return t.SendingStoreID
		}
		return t.ReceivingStoreID
	}
	return t.ReceivingStoreID
}

// BuildNotification renders the notification for event. id is supplied by the
// caller so sinks stay deterministic under test.
func BuildNotification(id string, event domain.Event) Notification {
	t := event.Transfer
	n := Notification{
		ID:         id,
		Link:       "/transfers/requests/" + t.ID,
		Timestamp:  event.OccurredAt.UTC(),
		SenderID:   event.ActorID,
		StoreID:    TargetStore(event),
		TransferID: t.ID,
		Status:     string(t.Status),
	}

	if event.Type == domain.EventTransferRequestCreated {
		n.Type = notificationNewTransfer
		n.Message = "New transfer request received from store " + t.SendingStoreID
		return n
	}

	n.Type = notificationStatusUpdated
	switch t.Status {
	case domain.TransferStatusAccepted:
		n.Message = "Transfer request has been accepted"
	case domain.TransferStatusRejected:
		n.Message = "Transfer request has been rejected"
	case domain.TransferStatusShipped:
		n.Message = "Transfer items have been shipped"
	case domain.TransferStatusReceived:
		n.Message = "Transfer items have been received"
	case domain.TransferStatusCancelled:
		n.Message = "Transfer request has been cancelled"
	default:
		n.Message = "Transfer request status updated to " + string(t.Status)
	}
	return n
}
