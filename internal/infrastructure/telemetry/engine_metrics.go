package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Payment outcomes for metrics labeling
const (
	OutcomeRecorded = "recorded"
	OutcomeRejected = "rejected"
)

// Schedule generation outcomes per contract
const (
	OutcomeGenerated = "generated"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// ReceivableMetricsProvider reads portfolio state for the periodic gauges
type ReceivableMetricsProvider interface {
	// OpenReceivablesByStatus counts receivables that still carry a balance
	OpenReceivablesByStatus(ctx context.Context) (map[string]int64, error)
	// OutstandingByCurrency sums the open balance per currency
	OutstandingByCurrency(ctx context.Context) (map[string]decimal.Decimal, error)
}

// EngineMetricsConfig configures NewEngineMetrics
type EngineMetricsConfig struct {
	Meter    metric.Meter
	Logger   *zap.Logger
	Provider ReceivableMetricsProvider
}

// EngineMetrics records reconciliation activity. All methods are safe on a
// nil receiver so services can run without metrics.
type EngineMetrics struct {
	logger   *zap.Logger
	provider ReceivableMetricsProvider

	payments           *Counter
	paymentAmount      *Counter
	receivablesCreated *Counter
	schedules          *Counter
	commissionEvents   *Counter
	overdueMarked      *Counter
	redeliveries       *Counter
	jobDuration        *Histogram

	openReceivables *Gauge
	outstanding     *FloatGauge

	stopCh      chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
	wg          sync.WaitGroup
}

// NewEngineMetrics registers every engine instrument on cfg.Meter
func NewEngineMetrics(cfg EngineMetricsConfig) (*EngineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &EngineMetrics{logger: logger, provider: cfg.Provider, stopCh: make(chan struct{})}

	counters := []struct {
		dst              **Counter
		name, desc, unit string
	}{
		{&m.payments, "realty_payments_total", "Payments submitted, by method and outcome", "{payments}"},
		{&m.paymentAmount, "realty_payment_amount_cents_total", "Applied payment amount in cents", "{cents}"},
		{&m.receivablesCreated, "realty_receivables_created_total", "Receivables created from schedule rows", "{receivables}"},
		{&m.schedules, "realty_schedule_generations_total", "Contracts processed by schedule generation", "{contracts}"},
		{&m.commissionEvents, "realty_commission_events_total", "Commission events dispatched", "{events}"},
		{&m.overdueMarked, "realty_receivables_overdue_total", "Receivables flagged overdue by the aging sweep", "{receivables}"},
		{&m.redeliveries, "realty_event_redeliveries_total", "Event deliveries dropped as repeats", "{events}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	if m.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "realty_job_duration_seconds",
		Description: "Duration of background jobs",
		Unit:        "s",
		Boundaries:  JobDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.openReceivables, err = NewGauge(cfg.Meter, "realty_open_receivables", "Receivables with an outstanding balance", "{receivables}"); err != nil {
		return nil, err
	}
	if m.outstanding, err = NewFloatGauge(cfg.Meter, "realty_outstanding_amount", "Outstanding receivable balance", "{currency}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPayment counts a payment attempt; amount is added only when recorded
func (m *EngineMetrics) RecordPayment(ctx context.Context, method, outcome string, amount decimal.Decimal, currency string) {
	if m == nil {
		return
	}
	m.payments.Inc(ctx, AttrPaymentMethod.String(method), AttrOutcome.String(outcome))
	if outcome == OutcomeRecorded {
		m.paymentAmount.Add(ctx, amount.Shift(2).IntPart(), AttrCurrency.String(currency))
	}
}

// RecordScheduleGeneration counts one contract run and the receivables it created
func (m *EngineMetrics) RecordScheduleGeneration(ctx context.Context, outcome string, receivablesCreated int) {
	if m == nil {
		return
	}
	m.schedules.Inc(ctx, AttrOutcome.String(outcome))
	if receivablesCreated > 0 {
		m.receivablesCreated.Add(ctx, int64(receivablesCreated))
	}
}

// RecordCommissionDispatched counts a commission event by installment position
func (m *EngineMetrics) RecordCommissionDispatched(ctx context.Context, position string) {
	if m == nil {
		return
	}
	m.commissionEvents.Inc(ctx, AttrPosition.String(position))
}

// RecordOverdue counts receivables flagged by one sweep
func (m *EngineMetrics) RecordOverdue(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueMarked.Add(ctx, int64(n))
}

// RecordRedelivery counts a delivery the idempotency guard dropped
func (m *EngineMetrics) RecordRedelivery(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.redeliveries.Inc(ctx, AttrEventType.String(eventType))
}

// RecordJob records a background job run
func (m *EngineMetrics) RecordJob(ctx context.Context, job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobDuration.RecordDuration(ctx, d, AttrJob.String(job), AttrOutcome.String(outcome))
}

// StartPeriodicCollection refreshes the portfolio gauges every interval
// (default 5 minutes) until Stop or ctx cancellation. Only the first call
// starts a collector.
func (m *EngineMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if m == nil {
		return
	}
	m.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		m.wg.Add(1)
		go m.runCollection(ctx, interval)
	})
}

func (m *EngineMetrics) runCollection(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Collect(ctx)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(ctx)
		}
	}
}

// Collect refreshes the portfolio gauges once
func (m *EngineMetrics) Collect(ctx context.Context) {
	if m == nil || m.provider == nil {
		return
	}
	byStatus, err := m.provider.OpenReceivablesByStatus(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect open receivables", zap.Error(err))
	} else {
		for status, n := range byStatus {
			m.openReceivables.Record(ctx, n, AttrReceivableStatus.String(status))
		}
	}

	byCurrency, err := m.provider.OutstandingByCurrency(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect outstanding balance", zap.Error(err))
		return
	}
	for currency, amount := range byCurrency {
		m.outstanding.Record(ctx, amount.InexactFloat64(), AttrCurrency.String(currency))
	}
}

// Stop ends periodic collection and waits for the collector to exit
func (m *EngineMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}
