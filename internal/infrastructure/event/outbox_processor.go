package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// Backoff spaces redelivery of failed entries; zero selects shared.DefaultBackoff
	Backoff shared.Backoff
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour, // 7 days
		CleanupInterval:  1 * time.Hour,
		Backoff:          shared.DefaultBackoff(),
	}
}

// OutboxProcessor processes outbox entries in the background
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	clock      shared.Clock
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if config.Backoff == (shared.Backoff{}) {
		config.Backoff = shared.DefaultBackoff()
	}
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		clock:      shared.SystemClock{},
		logger:     logger,
	}
}

// WithClock sets the clock used for retry scheduling and retention
func (p *OutboxProcessor) WithClock(clock shared.Clock) *OutboxProcessor {
	p.clock = clock
	return p
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	// Start main processor
	p.wg.Add(1)
	go p.processLoop(ctx)

	// Start cleanup processor if enabled
	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)

	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processLoop is the main processing loop
func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch delivers one batch of pending and retryable entries and
// returns how many were published successfully
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (sent int) {
	ctx, span := telemetry.StartSpan(ctx, "outbox.process_batch",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, p.config.BatchSize),
		telemetry.WithSpanKind(trace.SpanKindConsumer),
	)
	defer func() {
		telemetry.SetAttributes(span, "sent", sent)
		span.End()
	}()

	telemetry.WithProfilingLabels(ctx, telemetry.EngineOperationLabels(telemetry.OperationOutbox, "deliver"), func(c context.Context) {
		sent = p.processBatch(c)
	})
	return sent
}

func (p *OutboxProcessor) processBatch(ctx context.Context) int {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return 0
	}
	sent := p.processEntries(ctx, pending)

	retryable, err := p.repo.FindRetryable(ctx, p.clock.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
		return sent
	}
	return sent + p.processEntries(ctx, retryable)
}

// processEntries claims and delivers a slice of outbox entries
func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	// Atomically claim entries
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range claimed {
		if p.processEntry(ctx, entry) {
			sent++
		}
	}
	return sent
}

// processEntry delivers a single outbox entry
func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		p.logger.Error("failed to deserialize event",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
		p.markFailed(ctx, entry, err)
		return false
	}

	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish event",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
		p.markFailed(ctx, entry, err)
		return false
	}

	if err := entry.Delivered(p.clock.Now()); err != nil {
		p.logger.Error("claimed entry lost its processing state",
			zap.String("event_id", entry.EventID.String()),
			zap.String("status", string(entry.Status)),
		)
		return false
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return false
	}
	p.logger.Debug("event processed successfully",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	return true
}

func (p *OutboxProcessor) markFailed(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.Failed(cause, p.config.Backoff, p.clock.Now())
	if entry.IsDead() {
		p.logger.Warn("event moved to dead letter queue",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to update entry", zap.Error(err))
	}
}

// cleanupLoop periodically cleans up old processed entries
func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.Cleanup(ctx)
		}
	}
}

// Cleanup removes sent entries older than the configured retention and
// returns how many were deleted
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return 0, err
	}

	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}
