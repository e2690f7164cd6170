package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink streams every committed transfer event to a topic keyed by
// transfer ID, so one transfer's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}

	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, event domain.Event) error {
	eventJSON, err := json.Marshal(newEventMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal transfer event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Transfer.ID),
		Value: eventJSON,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write transfer event to kafka: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

type eventItem struct {
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	QuantityRequested int    `json:"quantity_requested"`
}

type eventMessage struct {
	ID               string      `json:"id"`
	Type             string      `json:"type"`
	OccurredAt       time.Time   `json:"occurred_at"`
	TransferID       string      `json:"transfer_id"`
	SendingStoreID   string      `json:"sending_store_id"`
	ReceivingStoreID string      `json:"receiving_store_id"`
	Status           string      `json:"status"`
	PreviousStatus   string      `json:"previous_status,omitempty"`
	SystemMessage    string      `json:"system_message,omitempty"`
	ActorID          string      `json:"actor_id"`
	Version          int64       `json:"version"`
	Items            []eventItem `json:"items"`
}

func newEventMessage(event domain.Event) eventMessage {
	t := event.Transfer
	msg := eventMessage{
		ID:               event.ID,
		Type:             string(event.Type),
		OccurredAt:       event.OccurredAt.UTC(),
		TransferID:       t.ID,
		SendingStoreID:   t.SendingStoreID,
		ReceivingStoreID: t.ReceivingStoreID,
		Status:           string(t.Status),
		PreviousStatus:   string(event.PreviousStatus),
		SystemMessage:    event.SystemMessage,
		ActorID:          event.ActorID,
		Version:          t.Version,
		Items:            make([]eventItem, len(t.Items)),
	}
	for i, item := range t.Items {
		msg.Items[i] = eventItem{
			ProductID:         item.ProductID,
			ProductName:       item.ProductName,
			QuantityRequested: item.QuantityRequested,
		}
	}
	return msg
}
