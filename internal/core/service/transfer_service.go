package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/store-transfer/internal/core/domain"
	"github.com/rl1809/store-transfer/internal/port"
)

const idempotencyKeyPrefix = "idempotency:transfer:"

type TransferItemInput struct {
	ProductID   string
	ProductName string
	Quantity    int
}

type CreateTransferInput struct {
	SendingStoreID   string
	ReceivingStoreID string
	Initiator        domain.Principal
	RequestNotes     string
	Items            []TransferItemInput
	// IdempotencyKey, when set, makes a replayed create fail with ErrDuplicateRequest.
	IdempotencyKey string
}

type UpdateStatusInput struct {
	TransferID    string
	Status        domain.TransferStatus
	Actor         domain.Principal
	ResponseNotes string
}

// TransferService owns the transfer request lifecycle.
type TransferService struct {
	repo       port.DatabaseRepository
	validator  *StatusValidator
	reconciler *Reconciler
	publisher  port.EventPublisher
	cache      port.CacheRepository
	metrics    port.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*TransferService)

func WithCache(cache port.CacheRepository) Option {
	return func(s *TransferService) { s.cache = cache }
}

func WithMetrics(metrics port.Metrics) Option {
	return func(s *TransferService) { s.metrics = metrics }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *TransferService) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *TransferService) { s.now = now }
}

func NewTransferService(
	repo port.DatabaseRepository,
	validator *StatusValidator,
	reconciler *Reconciler,
	publisher port.EventPublisher,
	opts ...Option,
) *TransferService {
	s := &TransferService{
		repo:       repo,
		validator:  validator,
		reconciler: reconciler,
		publisher:  publisher,
		metrics:    port.NopMetrics{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("github.com/rl1809/store-transfer/internal/core/service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TransferService) CreateTransferRequest(ctx context.Context, in CreateTransferInput) (_ *domain.TransferRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "TransferService.CreateTransferRequest", trace.WithAttributes(
		attribute.String("transfer.sending_store_id", in.SendingStoreID),
		attribute.String("transfer.receiving_store_id", in.ReceivingStoreID),
	))
	defer func() { s.finish(span, "create", err) }()

	if err := validateCreate(in); err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" && s.cache != nil {
		key := idempotencyKeyPrefix + in.IdempotencyKey
		ok, setErr := s.cache.SetIdempotency(ctx, key)
		if setErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", setErr)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	now := s.now()
	transfer := &domain.TransferRequest{
		ID:                   newID(),
		SendingStoreID:       in.SendingStoreID,
		ReceivingStoreID:     in.ReceivingStoreID,
		InitiatingEmployeeID: in.Initiator.ID,
		Status:               domain.TransferStatusRequested,
		RequestNotes:         strings.TrimSpace(in.RequestNotes),
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx port.TxRepository) error {
		stores, err := tx.FindStores(ctx, []string{in.SendingStoreID, in.ReceivingStoreID})
		if err != nil {
			return fmt.Errorf("find stores: %w", err)
		}
		for _, id := range []string{in.SendingStoreID, in.ReceivingStoreID} {
			if _, ok := stores[id]; !ok {
				return fmt.Errorf("%w: store %s", domain.ErrNotFound, id)
			}
		}

		productIDs := make([]string, 0, len(in.Items))
		for _, item := range in.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		products, err := tx.FindProducts(ctx, productIDs)
		if err != nil {
			return fmt.Errorf("find products: %w", err)
		}

		transfer.Items = make([]domain.TransferRequestItem, 0, len(in.Items))
		for _, item := range in.Items {
			product, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %s", domain.ErrNotFound, item.ProductID)
			}
			name := product.Name
			if name == "" {
				name = item.ProductName
			}
			transfer.Items = append(transfer.Items, domain.TransferRequestItem{
				ID:                newID(),
				TransferRequestID: transfer.ID,
				ProductID:         item.ProductID,
				ProductName:       name,
				QuantityRequested: item.Quantity,
			})
		}

		return tx.CreateTransfer(ctx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer request created",
		zap.String("transfer_id", transfer.ID),
		zap.String("sending_store_id", transfer.SendingStoreID),
		zap.String("receiving_store_id", transfer.ReceivingStoreID),
		zap.Int("items", len(transfer.Items)),
	)
	s.afterCommit(ctx, domain.Event{
		ID:           newID(),
		Type:         domain.EventTransferRequestCreated,
		OccurredAt:   now,
		Transfer:     *transfer.Clone(),
		ActorID:      in.Initiator.ID,
		ActorStoreID: in.Initiator.StoreID,
	})
	return transfer, nil
}

func (s *TransferService) UpdateStatus(ctx context.Context, in UpdateStatusInput) (_ *domain.TransferRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "TransferService.UpdateStatus", trace.WithAttributes(
		attribute.String("transfer.id", in.TransferID),
		attribute.String("transfer.requested_status", string(in.Status)),
	))
	defer func() { s.finish(span, "update_status", err) }()

	if in.TransferID == "" {
		return nil, fmt.Errorf("%w: transfer id is required", domain.ErrValidation)
	}
	if _, known := transitionGraph[in.Status]; !known {
		return nil, fmt.Errorf("%w: unknown transfer status %q", domain.ErrValidation, in.Status)
	}

	var (
		result   *domain.TransferRequest
		previous domain.TransferStatus
		changed  bool
	)
	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx port.TxRepository) error {
		transfer, err := tx.GetTransfer(ctx, in.TransferID)
		if err != nil {
			return err
		}
		if err := s.validator.Authorize(in.Actor, transfer, in.Status); err != nil {
			return err
		}
		if transfer.Status == in.Status {
			result = transfer
			return nil
		}

		previous = transfer.Status
		now := s.now()
		notes := strings.TrimSpace(in.ResponseNotes)
		responder := in.Actor.ID

		transfer.Status = in.Status
		transfer.RespondingEmployeeID = &responder
		if notes != "" {
			transfer.ResponseNotes = notes
		}
		transfer.SystemMessage = domain.StatusMessage(previous, in.Status, notes)
		transfer.UpdatedAt = now
		switch in.Status {
		case domain.TransferStatusShipped:
			transfer.ShippedAt = &now
		case domain.TransferStatusReceived:
			transfer.ReceivedAt = &now
		}

		if err := tx.UpdateTransfer(ctx, transfer); err != nil {
			return err
		}
		if in.Status == domain.TransferStatusReceived {
			if _, err := s.reconciler.Reconcile(ctx, tx, transfer); err != nil {
				return err
			}
		}

		result = transfer
		changed = true
		return nil
	})
	if err != nil {
		s.logRollback(in, err)
		return nil, err
	}
	if !changed {
		return result, nil
	}

	s.metrics.ObserveTransition(string(previous), string(result.Status))
	s.logger.Info("transfer status updated",
		zap.String("transfer_id", result.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(result.Status)),
		zap.String("actor_id", in.Actor.ID),
	)
	s.afterCommit(ctx, domain.Event{
		ID:             newID(),
		Type:           domain.EventTransferRequestStatusUpdated,
		OccurredAt:     result.UpdatedAt,
		Transfer:       *result.Clone(),
		PreviousStatus: previous,
		SystemMessage:  result.SystemMessage,
		ActorID:        in.Actor.ID,
		ActorStoreID:   in.Actor.StoreID,
	})
	return result, nil
}

func (s *TransferService) GetTransferRequest(ctx context.Context, id string) (*domain.TransferRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: transfer id is required", domain.ErrValidation)
	}
	return s.repo.GetTransfer(ctx, id)
}

// ListTransferRequestsForStore returns transfers the store sends or receives.
// The cache is consulted first; any cache failure falls back to the database.
// A list read from the database is cached only if no transfer touching the
// store committed in between.
func (s *TransferService) ListTransferRequestsForStore(ctx context.Context, storeID string) ([]domain.TransferRequest, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: store id is required", domain.ErrValidation)
	}

	cacheable := false
	var generation int64
	if s.cache != nil {
		cached, ok, err := s.cache.GetStoreTransfers(ctx, storeID)
		if err != nil {
			s.logger.Warn("store transfer cache read failed", zap.String("store_id", storeID), zap.Error(err))
		} else if ok {
			return cached, nil
		}

		generation, err = s.cache.StoreTransfersGeneration(ctx, storeID)
		if err != nil {
			s.logger.Warn("store transfer cache generation read failed", zap.String("store_id", storeID), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	var transfers []domain.TransferRequest
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx port.TxRepository) error {
		stores, err := tx.FindStores(ctx, []string{storeID})
		if err != nil {
			return err
		}
		if _, ok := stores[storeID]; !ok {
			return fmt.Errorf("%w: store %s", domain.ErrNotFound, storeID)
		}
		transfers, err = tx.ListTransfersForStore(ctx, storeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if transfers == nil {
		transfers = []domain.TransferRequest{}
	}

	if cacheable {
		stored, err := s.cache.SetStoreTransfers(ctx, storeID, generation, transfers)
		if err != nil {
			s.logger.Warn("store transfer cache write failed", zap.String("store_id", storeID), zap.Error(err))
		} else if !stored {
			s.logger.Debug("store transfer list changed while reading; not cached", zap.String("store_id", storeID))
		}
	}
	return transfers, nil
}

// afterCommit runs the post-commit side effects. Nothing here can fail the
// operation: the committed state is already the source of truth.
func (s *TransferService) afterCommit(ctx context.Context, event domain.Event) {
	ctx = context.WithoutCancel(ctx)
	if s.cache != nil {
		if err := s.cache.InvalidateStoreTransfers(ctx, event.Transfer.SendingStoreID, event.Transfer.ReceivingStoreID); err != nil {
			s.logger.Warn("store transfer cache invalidation failed", zap.String("transfer_id", event.Transfer.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, event)
	}
}

func (s *TransferService) logRollback(in UpdateStatusInput, err error) {
	fields := []zap.Field{
		zap.String("transfer_id", in.TransferID),
		zap.String("requested_status", string(in.Status)),
		zap.String("actor_id", in.Actor.ID),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, domain.ErrConcurrencyConflict):
		s.logger.Warn("transfer status update rolled back: concurrency conflict", fields...)
	case errors.Is(err, domain.ErrDataIntegrity):
		s.logger.Error("transfer status update rolled back: data integrity violation", fields...)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrUnauthorizedTransition):
		s.logger.Warn("transfer status update rejected", fields...)
	}
}

func (s *TransferService) finish(span trace.Span, operation string, err error) {
	if err != nil {
		s.metrics.ObserveError(operation, domain.ErrorKind(err))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, domain.ErrorKind(err))
	}
	span.End()
}

func validateCreate(in CreateTransferInput) error {
	if in.SendingStoreID == "" || in.ReceivingStoreID == "" {
		return fmt.Errorf("%w: sending and receiving store are required", domain.ErrValidation)
	}
	if in.SendingStoreID == in.ReceivingStoreID {
		return fmt.Errorf("%w: sending and receiving store must differ", domain.ErrValidation)
	}
	if in.Initiator.ID == "" {
		return fmt.Errorf("%w: initiating employee is required", domain.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	}
	for i, item := range in.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product", domain.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive, got %d", domain.ErrValidation, i, item.Quantity)
		}
	}
	return nil
}
