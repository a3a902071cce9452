package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// DefaultMaxRetries is the delivery budget of an entry recorded without one
const DefaultMaxRetries = 5

var (
	ErrOutboxNotDead    = errors.New("only dead letter entries can be requeued")
	ErrOutboxNotClaimed = errors.New("entry is not being processed")
)

// Backoff spaces out redelivery of a failed entry: Base doubles per failure
// and never exceeds Max
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff waits 1s, 2s, 4s... up to fifteen minutes
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 15 * time.Minute}
}

// Delay returns the wait after the given number of consecutive failures
func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// OutboxEntry is a domain event written in the transaction that produced it
// and delivered later by the outbox processor
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps an encoded event. maxRetries <= 0 selects DefaultMaxRetries.
func NewOutboxEntry(event DomainEvent, payload []byte, maxRetries int, now time.Time) *OutboxEntry {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Delivered records a successful publish
func (e *OutboxEntry) Delivered(now time.Time) error {
	if e.Status != OutboxStatusProcessing {
		return ErrOutboxNotClaimed
	}
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// Failed records a failed publish. The entry is parked as DEAD once its
// retry budget is spent, otherwise it becomes due again after backoff.
func (e *OutboxEntry) Failed(cause error, backoff Backoff, now time.Time) {
	e.RetryCount++
	if cause != nil {
		e.LastError = cause.Error()
	}
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(backoff.Delay(e.RetryCount))
	e.NextRetryAt = &next
}

// DueForRetry reports whether a failed entry may be delivered at now
func (e *OutboxEntry) DueForRetry(now time.Time) bool {
	if e.Status != OutboxStatusFailed || e.RetryCount >= e.MaxRetries {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

// Requeue gives a dead entry a fresh retry budget
func (e *OutboxEntry) Requeue(now time.Time) error {
	if e.Status != OutboxStatusDead {
		return ErrOutboxNotDead
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// IsDead reports whether the entry is parked in the dead letter queue
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository is the store the outbox processor delivers from
type OutboxRepository interface {
	// FindPending returns never-attempted entries, oldest first
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries due at or before asOf
	FindRetryable(ctx context.Context, asOf time.Time, limit int) ([]*OutboxEntry, error)
	// MarkProcessing claims the given entries and returns the ones this
	// caller won; entries claimed elsewhere are left out
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteOlderThan removes sent entries processed before the cutoff
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
