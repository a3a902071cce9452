package finance

import (
	"context"
	"fmt"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassificationService classifies payments and dispatches commission events
type ClassificationService struct {
	scope      TransactionScope
	classifier finance.InstallmentClassifier
	clock      shared.Clock
	logger     *zap.Logger
	metrics    *telemetry.EngineMetrics
}

// ClassificationOption is a functional option for configuring ClassificationService
type ClassificationOption func(*ClassificationService)

// WithClassifier overrides the default thresholds
func WithClassifier(classifier finance.InstallmentClassifier) ClassificationOption {
	return func(s *ClassificationService) {
		s.classifier = classifier
	}
}

// WithClassificationClock sets the clock used for timestamps
func WithClassificationClock(clock shared.Clock) ClassificationOption {
	return func(s *ClassificationService) {
		s.clock = clock
	}
}

// NewClassificationService creates a new ClassificationService
func NewClassificationService(scope TransactionScope, logger *zap.Logger, opts ...ClassificationOption) *ClassificationService {
	s := &ClassificationService{
		scope:      scope,
		classifier: finance.NewInstallmentClassifier(finance.DefaultMinAmountRatio, finance.DefaultGraceDays),
		clock:      shared.SystemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEngineMetrics sets the metrics collector
func (s *ClassificationService) SetEngineMetrics(m *telemetry.EngineMetrics) {
	s.metrics = m
}

// Classify classifies a payment that has not been classified yet. An already
// classified payment is returned as stored, without reevaluation.
func (s *ClassificationService) Classify(ctx context.Context, paymentID uuid.UUID) (*ClassificationResult, error) {
	return s.run(ctx, paymentID, false)
}

// Redetect reevaluates a payment against the current payment history. It may
// dispatch a commission event that was not owed before, but never dispatches
// a second one for the same payment.
func (s *ClassificationService) Redetect(ctx context.Context, paymentID uuid.UUID) (*ClassificationResult, error) {
	return s.run(ctx, paymentID, true)
}

func (s *ClassificationService) run(ctx context.Context, paymentID uuid.UUID, force bool) (result *ClassificationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "classification", "run")
	defer func() { telemetry.Finish(span, err) }()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, paymentID, "redetect", force)

	telemetry.WithProfilingLabels(ctx, telemetry.EngineOperationLabels(telemetry.OperationClassification, ""), func(c context.Context) {
		result, err = s.classify(c, paymentID, force)
	})
	if err != nil {
		return nil, err
	}

	position := string(result.InstallmentType)
	telemetry.SetAttributes(span, telemetry.SpanAttrPosition, position)
	if result.CommissionDispatched {
		telemetry.AddEvent(span, "commission_dispatched", telemetry.SpanAttrPosition, position)
		s.metrics.RecordCommissionDispatched(ctx, position)
	}
	return result, nil
}

func (s *ClassificationService) classify(ctx context.Context, paymentID uuid.UUID, force bool) (*ClassificationResult, error) {
	log := s.logger.With(zap.String("payment_id", paymentID.String()), zap.Bool("redetect", force))

	var result *ClassificationResult
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, err := repos.PaymentRepo().FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		if payment.IsClassified() && !force {
			result = classificationResultOf(payment, false)
			return nil
		}

		// The payment history is locked before counting so two payments of
		// one contract cannot both classify as first
		if payment.ContractID != nil {
			if err := repos.Contracts().LockContract(ctx, *payment.ContractID); err != nil {
				return fmt.Errorf("failed to lock contract: %w", err)
			}
		}
		ar, err := repos.ReceivableRepo().FindByIDForUpdate(ctx, payment.ReceivableID)
		if err != nil {
			return fmt.Errorf("failed to load receivable: %w", err)
		}
		prior, err := repos.PaymentRepo().CountPriorCommissionable(ctx, payment)
		if err != nil {
			return fmt.Errorf("failed to count prior payments: %w", err)
		}

		c, err := s.classifier.Classify(payment, ar, prior)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		payment.ApplyClassification(c, now)

		dispatched := false
		if payment.NeedsCommissionDispatch() {
			event, err := payment.DispatchCommission(now)
			if err != nil {
				return err
			}
			recorded, err := repos.Events().RecordOnce(ctx, event)
			if err != nil {
				return fmt.Errorf("failed to record commission event: %w", err)
			}
			if !recorded {
				log.Warn("commission event already in outbox, flag restored",
					zap.String("event_id", event.EventID().String()))
			}
			dispatched = recorded
		}
		payment.ClearDomainEvents()

		if err := repos.PaymentRepo().Update(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		result = classificationResultOf(payment, dispatched)
		return nil
	})
	if err != nil {
		log.Error("payment classification failed", zap.Error(err))
		return nil, &finance.ClassificationError{PaymentID: paymentID, Err: err}
	}

	log.Info("payment classified",
		zap.String("installment_type", string(result.InstallmentType)),
		zap.Bool("affects_commissions", result.AffectsCommissions),
		zap.Bool("commission_dispatched", result.CommissionDispatched),
	)
	return result, nil
}

func classificationResultOf(p *finance.CustomerPayment, dispatched bool) *ClassificationResult {
	r := &ClassificationResult{
		PaymentID:            p.ID,
		AffectsCommissions:   p.AffectsCommissions,
		CommissionDispatched: dispatched,
		AlreadyDispatched:    p.CommissionEventDispatched && !dispatched,
	}
	if p.InstallmentType != nil {
		r.InstallmentType = *p.InstallmentType
	}
	if p.DetectionMetadata != nil {
		r.Metadata = *p.DetectionMetadata
	}
	return r
}
