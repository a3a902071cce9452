package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRecorder writes domain events to the outbox inside the caller's
// transaction, so they commit or roll back together with the aggregate
type OutboxRecorder struct {
	repo       *GormOutboxRepository
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxRecorder creates a recorder bound to tx
func NewOutboxRecorder(tx *gorm.DB, serializer *EventSerializer) *OutboxRecorder {
	return &OutboxRecorder{
		repo:       NewGormOutboxRepository(tx),
		serializer: serializer,
	}
}

// WithMaxRetries sets the delivery attempts of new entries; n <= 0 keeps
// shared.DefaultMaxRetries
func (r *OutboxRecorder) WithMaxRetries(n int) *OutboxRecorder {
	r.maxRetries = n
	return r
}

// Record serializes and stores every event
func (r *OutboxRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		entry, err := r.entryFor(event)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	return r.repo.Save(ctx, entries...)
}

// RecordOnce stores the event unless an entry with the same event id
// exists. It reports whether a new entry was written; the unique index on
// event_id backs the check against concurrent writers.
func (r *OutboxRecorder) RecordOnce(ctx context.Context, event shared.DomainEvent) (bool, error) {
	_, err := r.repo.FindByEventID(ctx, event.EventID())
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return false, fmt.Errorf("failed to look up outbox entry: %w", err)
	}

	entry, err := r.entryFor(event)
	if err != nil {
		return false, err
	}
	result := r.repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(models.OutboxEntryModelFromDomain(entry))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *OutboxRecorder) entryFor(event shared.DomainEvent) (*shared.OutboxEntry, error) {
	payload, err := r.serializer.Serialize(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", event.EventType(), err)
	}
	return shared.NewOutboxEntry(event, payload, r.maxRetries, time.Now()), nil
}
