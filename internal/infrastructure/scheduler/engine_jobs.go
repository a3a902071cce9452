package scheduler

import (
	"context"
	"time"

	appfinance "github.com/erp/realty/internal/application/finance"
	"github.com/erp/realty/internal/domain/shared"
	"go.uber.org/zap"
)

// Job names
const (
	JobAging         = "receivable_aging"
	JobOutboxCleanup = "outbox_cleanup"
)

// AgingSweeper flags past-due receivables
type AgingSweeper interface {
	Sweep(ctx context.Context, asOf time.Time) (*appfinance.AgingResult, error)
}

// OutboxCleaner removes delivered outbox entries past retention
type OutboxCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// NewAgingJob sweeps receivables as of the clock's current time
func NewAgingJob(sweeper AgingSweeper, clock shared.Clock, logger *zap.Logger) Job {
	return JobFunc{
		JobName: JobAging,
		Fn: func(ctx context.Context) error {
			result, err := sweeper.Sweep(ctx, clock.Now())
			if err != nil {
				return err
			}
			if result.ReceivablesMarked > 0 || result.SchedulesMarked > 0 {
				logger.Info("Receivables aged",
					zap.Int("receivables_marked", result.ReceivablesMarked),
					zap.Int64("schedules_marked", result.SchedulesMarked),
				)
			}
			return nil
		},
	}
}

// NewOutboxCleanupJob prunes the outbox
func NewOutboxCleanupJob(cleaner OutboxCleaner) Job {
	return JobFunc{
		JobName: JobOutboxCleanup,
		Fn: func(ctx context.Context) error {
			_, err := cleaner.Cleanup(ctx)
			return err
		},
	}
}
