package event

import (
	"context"

	"github.com/erp/realty/internal/domain/shared"
	"go.uber.org/zap"
)

// dedupKeyer is implemented by events whose consumers deduplicate on a
// business key instead of the event id
type dedupKeyer interface {
	DedupKey() string
}

// RedeliveryRecorder counts deliveries dropped as repeats
type RedeliveryRecorder interface {
	RecordRedelivery(ctx context.Context, eventType string)
}

// IdempotentHandler lets a delivery through to the wrapped handler once per
// key and TTL. The outbox redelivers after crashes and failed publishes, so
// the wrapped handler sees at-least-once delivery without this guard.
type IdempotentHandler struct {
	handler  shared.EventHandler
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	logger   *zap.Logger
	recorder RedeliveryRecorder
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides shared.DefaultIdempotencyConfig
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithRedeliveryRecorder reports dropped repeats to recorder
func WithRedeliveryRecorder(recorder RedeliveryRecorder) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.recorder = recorder
	}
}

// NewIdempotentHandler guards handler with store
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// DeliveryKey is the marker key of event: its type plus the dedup key when
// the event carries one, the event id otherwise
func DeliveryKey(event shared.DomainEvent) string {
	if k, ok := event.(dedupKeyer); ok && k.DedupKey() != "" {
		return event.EventType() + ":" + k.DedupKey()
	}
	return event.EventType() + ":" + event.EventID().String()
}

// Handle delivers event unless its key is already marked. A store failure
// lets the delivery through; a handler failure releases the marker so the
// outbox retry is not taken for a repeat.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := DeliveryKey(event)
	fields := []zap.Field{
		zap.String("delivery_key", key),
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	}

	first, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		h.logger.Warn("idempotency store unavailable, delivering unguarded", append(fields, zap.Error(err))...)
	case !first:
		if h.recorder != nil {
			h.recorder.RecordRedelivery(ctx, event.EventType())
		}
		h.logger.Debug("repeat delivery dropped", fields...)
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		if unmarkErr := h.store.Unmark(ctx, key); unmarkErr != nil {
			h.logger.Warn("failed to release delivery marker", append(fields, zap.Error(unmarkErr))...)
		}
		return err
	}
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
