package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommissionTrigger is what the commission subsystem receives for one
// commissionable payment
type CommissionTrigger struct {
	// DedupKey is the payment id; the sink must treat repeats as no-ops
	DedupKey        string
	EventID         uuid.UUID
	PaymentID       uuid.UUID
	ContractID      *uuid.UUID
	ClientID        uuid.UUID
	InstallmentType finance.InstallmentType
	Amount          decimal.Decimal
	PaymentDate     time.Time
	// Metadata records why the payment was classified commissionable
	Metadata finance.DetectionMetadata
}

// CommissionSink is the downstream commission subsystem
type CommissionSink interface {
	Trigger(ctx context.Context, trigger CommissionTrigger) error
}

// CommissionEventHandler forwards CommissionTriggered events to a sink.
// Wrap it with an idempotent handler keyed on the payment so redelivery
// from the outbox reaches the sink once.
type CommissionEventHandler struct {
	sink   CommissionSink
	logger *zap.Logger
}

// NewCommissionEventHandler creates a new CommissionEventHandler
func NewCommissionEventHandler(sink CommissionSink, logger *zap.Logger) *CommissionEventHandler {
	return &CommissionEventHandler{sink: sink, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *CommissionEventHandler) EventTypes() []string {
	return []string{finance.EventTypeCommissionTriggered}
}

// Handle processes a CommissionTriggered event
func (h *CommissionEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*finance.CommissionTriggeredEvent)
	if !ok {
		h.logger.Warn("unexpected event type for commission handler",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
		)
		return nil
	}

	trigger := CommissionTrigger{
		DedupKey:        e.DedupKey(),
		EventID:         e.EventID(),
		PaymentID:       e.PaymentID,
		ContractID:      e.ContractID,
		ClientID:        e.ClientID,
		InstallmentType: e.InstallmentType,
		Amount:          e.Amount,
		PaymentDate:     e.PaymentDate,
		Metadata:        e.Metadata,
	}
	if err := h.sink.Trigger(ctx, trigger); err != nil {
		h.logger.Error("commission sink rejected trigger",
			zap.String("payment_id", e.PaymentID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to trigger commission for payment %s: %w", e.PaymentID, err)
	}

	h.logger.Info("commission triggered",
		zap.String("payment_id", e.PaymentID.String()),
		zap.String("installment_type", string(e.InstallmentType)),
		zap.String("amount", e.Amount.StringFixed(2)),
	)
	return nil
}

// LoggingCommissionSink writes triggers to the log. It stands in for the
// commission subsystem when none is configured.
type LoggingCommissionSink struct {
	logger *zap.Logger
}

// NewLoggingCommissionSink creates a new LoggingCommissionSink
func NewLoggingCommissionSink(logger *zap.Logger) *LoggingCommissionSink {
	return &LoggingCommissionSink{logger: logger}
}

// Trigger logs the trigger
func (s *LoggingCommissionSink) Trigger(_ context.Context, trigger CommissionTrigger) error {
	s.logger.Info("commission trigger received",
		zap.String("dedup_key", trigger.DedupKey),
		zap.String("client_id", trigger.ClientID.String()),
		zap.String("installment_type", string(trigger.InstallmentType)),
		zap.String("amount", trigger.Amount.StringFixed(2)),
		zap.Time("payment_date", trigger.PaymentDate),
		zap.Int("prior_commissionable", trigger.Metadata.PriorCommissionable),
		zap.String("amount_ratio", trigger.Metadata.AmountRatio.String()),
	)
	return nil
}

var _ shared.EventHandler = (*CommissionEventHandler)(nil)
var _ CommissionSink = (*LoggingCommissionSink)(nil)
