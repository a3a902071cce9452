package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/realty/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus routes outbox deliveries to handlers in this process.
// Publish is synchronous so the outbox marks an entry sent only after every
// handler accepted it.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	catchAll []shared.EventHandler
	logger   *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		byType: make(map[string][]shared.EventHandler),
		logger: logger,
	}
}

// Subscribe routes the handler's EventTypes to it; a handler with no types
// receives every event
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler) {
	types := handler.EventTypes()

	b.mu.Lock()
	if len(types) == 0 {
		b.catchAll = append(b.catchAll, handler)
	}
	for _, eventType := range types {
		b.byType[eventType] = append(b.byType[eventType], handler)
	}
	b.mu.Unlock()

	b.logger.Debug("handler subscribed", zap.Strings("event_types", types))
}

// Publish hands each event to its handlers. Every handler runs; failures
// are joined into the returned error so the outbox schedules a retry.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		for _, handler := range b.handlersFor(event.EventType()) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	typed := b.byType[eventType]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.catchAll))
	handlers = append(handlers, typed...)
	return append(handlers, b.catchAll...)
}

// dispatch turns a handler panic into an error for that delivery
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)
