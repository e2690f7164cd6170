package domain

import "time"

type EventType string

const (
	EventTransferRequestCreated       EventType = "TransferRequestCreated"
	EventTransferRequestStatusUpdated EventType = "TransferRequestStatusUpdated"
)

// Event is emitted after a transfer change has been committed.
type Event struct {
	ID             string
	Type           EventType
	OccurredAt     time.Time
	Transfer       TransferRequest
	PreviousStatus TransferStatus
	SystemMessage  string
	ActorID        string
	ActorStoreID   string
}
