package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const defaultAgingBatchSize = 200

// AgingService flags past-due receivables and schedule rows as overdue
type AgingService struct {
	scope     TransactionScope
	batchSize int
	logger    *zap.Logger
	metrics   *telemetry.EngineMetrics
}

// NewAgingService creates a new AgingService. batchSize <= 0 uses the default.
func NewAgingService(scope TransactionScope, batchSize int, logger *zap.Logger) *AgingService {
	if batchSize <= 0 {
		batchSize = defaultAgingBatchSize
	}
	return &AgingService{scope: scope, batchSize: batchSize, logger: logger}
}

// SetEngineMetrics sets the metrics collector
func (s *AgingService) SetEngineMetrics(m *telemetry.EngineMetrics) {
	s.metrics = m
}

// Sweep marks every PENDING or PARTIAL receivable due before asOf as OVERDUE,
// one batch per transaction, then flags pending schedule rows due before asOf.
func (s *AgingService) Sweep(ctx context.Context, asOf time.Time) (result *AgingResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "aging", "sweep")
	defer func() { telemetry.Finish(span, err) }()
	telemetry.SetAttributes(span, telemetry.SpanAttrBatchSize, s.batchSize)

	telemetry.WithProfilingLabels(ctx, telemetry.EngineOperationLabels(telemetry.OperationAging, "sweep"), func(c context.Context) {
		result, err = s.sweep(c, asOf)
	})
	if result != nil {
		s.metrics.RecordOverdue(ctx, result.ReceivablesMarked)
		telemetry.SetAttributes(span,
			"receivables_marked", result.ReceivablesMarked,
			"schedules_marked", result.SchedulesMarked,
		)
	}
	return result, err
}

func (s *AgingService) sweep(ctx context.Context, asOf time.Time) (*AgingResult, error) {
	result := &AgingResult{AsOf: asOf}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		marked := 0
		err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			candidates, err := repos.ReceivableRepo().FindAgingCandidates(ctx, asOf, s.batchSize)
			if err != nil {
				return fmt.Errorf("failed to load aging candidates: %w", err)
			}
			var events []shared.DomainEvent
			for i := range candidates {
				ar := &candidates[i]
				if !ar.MarkOverdue(asOf) {
					continue
				}
				if err := repos.ReceivableRepo().Update(ctx, ar); err != nil {
					return fmt.Errorf("failed to update receivable %s: %w", ar.ReceivableNumber, err)
				}
				events = append(events, ar.GetDomainEvents()...)
				ar.ClearDomainEvents()
				marked++
			}
			if err := repos.Events().Record(ctx, events...); err != nil {
				return fmt.Errorf("failed to record overdue events: %w", err)
			}
			return nil
		})
		if err != nil {
			s.logger.Error("aging sweep batch failed", zap.Error(err))
			return result, err
		}
		result.ReceivablesMarked += marked
		if marked < s.batchSize {
			break
		}
	}

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		n, err := repos.ScheduleRepo().MarkOverdue(ctx, asOf)
		if err != nil {
			return fmt.Errorf("failed to mark overdue schedule rows: %w", err)
		}
		result.SchedulesMarked = n
		return nil
	})
	if err != nil {
		s.logger.Error("aging sweep failed on schedule rows", zap.Error(err))
		return result, err
	}

	s.logger.Info("aging sweep finished",
		zap.Time("as_of", asOf),
		zap.Int("receivables_marked", result.ReceivablesMarked),
		zap.Int64("schedules_marked", result.SchedulesMarked),
	)
	return result, nil
}
