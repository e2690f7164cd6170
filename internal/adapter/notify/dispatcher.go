package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

// Sink delivers one committed event to an external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event domain.Event) error
}

const defaultDeliveryTimeout = 5 * time.Second

var _ port.EventPublisher = (*Dispatcher)(nil)

// Dispatcher is a bounded queue drained by a worker pool. Publish never
// blocks the caller; events that do not fit are dropped and counted.
type Dispatcher struct {
	queue   chan domain.Event
	sinks   []Sink
	logger  *zap.Logger
	metrics port.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(queueSize, workers int, logger *zap.Logger, metrics port.Metrics, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = port.NopMetrics{}
	}

	d := &Dispatcher{
		queue:   make(chan domain.Event, queueSize),
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
		timeout: defaultDeliveryTimeout,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

func (d *Dispatcher) Publish(_ context.Context, event domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := sink.Deliver(ctx, event)
			cancel()

			if err != nil {
				d.metrics.ObserveNotification(sink.Name(), "failed")
				d.logger.Error("event delivery failed",
					zap.Int("worker", id),
					zap.String("sink", sink.Name()),
					zap.String("event_id", event.ID),
					zap.String("transfer_id", event.Transfer.ID),
					zap.Error(err),
				)
				continue
			}
			d.metrics.ObserveNotification(sink.Name(), "delivered")
			d.logger.Debug("event delivered",
				zap.Int("worker", id),
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
			)
		}
	}
}

func (d *Dispatcher) drop(event domain.Event, reason string) {
	d.metrics.ObserveNotification("queue", "dropped")
	d.logger.Warn("event dropped",
		zap.String("reason", reason),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("transfer_id", event.Transfer.ID),
	)
}
