package port

import (
	"context"

	"github.com/rl1809/store-transfer/internal/core/domain"
)

// EventPublisher accepts committed domain events. Publish must not block on
// delivery and has no error to report: delivery is the publisher's concern.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}
