package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requeueBatchSize = 100

// DeadLetterRepository is the slice of the outbox store the service needs
type DeadLetterRepository interface {
	FindDead(ctx context.Context, limit int) ([]*shared.OutboxEntry, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*shared.OutboxEntry, error)
	Update(ctx context.Context, entry *shared.OutboxEntry) error
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// OutboxService inspects the outbox and requeues dead commission events
type OutboxService struct {
	repo   DeadLetterRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo DeadLetterRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{
		repo:   repo,
		logger: logger,
	}
}

// OutboxEntryDTO represents an outbox entry data transfer object
type OutboxEntryDTO struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	EventType   string     `json:"event_type"`
	AggregateID uuid.UUID  `json:"aggregate_id"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// ListDead returns up to limit dead letter entries, oldest first
func (s *OutboxService) ListDead(ctx context.Context, limit int) ([]OutboxEntryDTO, error) {
	if limit <= 0 || limit > requeueBatchSize {
		limit = requeueBatchSize
	}
	entries, err := s.repo.FindDead(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to find dead letter entries", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve dead letter entries")
	}
	dtos := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toOutboxEntryDTO(entry)
	}
	return dtos, nil
}

// Requeue resets the dead entry recorded for eventID so the processor
// delivers it again. The commission handler stays idempotent on redelivery.
func (s *OutboxService) Requeue(ctx context.Context, eventID uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.repo.FindByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("ENTRY_NOT_FOUND", "Outbox entry not found")
		}
		s.logger.Error("Failed to find outbox entry", zap.Error(err), zap.String("event_id", eventID.String()))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve outbox entry")
	}

	if err := entry.Requeue(time.Now()); err != nil {
		return nil, shared.NewDomainError("INVALID_STATUS", err.Error())
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("event_id", eventID.String()))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to requeue entry")
	}

	s.logger.Info("Dead letter entry requeued",
		zap.String("event_id", eventID.String()),
		zap.String("event_type", entry.EventType),
	)
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RequeueAll resets every dead letter entry and returns how many were requeued
func (s *OutboxService) RequeueAll(ctx context.Context) (int64, error) {
	var count int64
	for {
		entries, err := s.repo.FindDead(ctx, requeueBatchSize)
		if err != nil {
			s.logger.Error("Failed to find dead letter entries", zap.Error(err))
			return count, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve dead letter entries")
		}
		requeued := 0
		for _, entry := range entries {
			if err := entry.Requeue(time.Now()); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", entry.ID.String()))
				continue
			}
			requeued++
		}
		count += int64(requeued)
		// A batch that made no progress would be returned again
		if len(entries) < requeueBatchSize || requeued == 0 {
			break
		}
	}

	s.logger.Info("Requeued dead letter entries", zap.Int64("count", count))
	return count, nil
}

// Stats returns entry counts per status
func (s *OutboxService) Stats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to get outbox stats")
	}

	stats := &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Sent + stats.Failed + stats.Dead
	return stats, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:          entry.ID,
		EventID:     entry.EventID,
		EventType:   entry.EventType,
		AggregateID: entry.AggregateID,
		Status:      string(entry.Status),
		RetryCount:  entry.RetryCount,
		LastError:   entry.LastError,
		NextRetryAt: entry.NextRetryAt,
		CreatedAt:   entry.CreatedAt,
	}
}
