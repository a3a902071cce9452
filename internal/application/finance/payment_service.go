package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/erp/realty/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PaymentService applies customer payments to receivables
type PaymentService struct {
	scope      TransactionScope
	ledger     *LedgerService
	classifier *ClassificationService
	clock      shared.Clock
	logger     *zap.Logger
	metrics    *telemetry.EngineMetrics
}

// PaymentOption is a functional option for configuring PaymentService
type PaymentOption func(*PaymentService)

// WithPaymentClock sets the clock used for timestamps
func WithPaymentClock(clock shared.Clock) PaymentOption {
	return func(s *PaymentService) {
		s.clock = clock
	}
}

// WithClassification classifies every payment right after it is committed
func WithClassification(classifier *ClassificationService) PaymentOption {
	return func(s *PaymentService) {
		s.classifier = classifier
	}
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(scope TransactionScope, ledger *LedgerService, logger *zap.Logger, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		scope:  scope,
		ledger: ledger,
		clock:  shared.SystemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEngineMetrics sets the metrics collector
func (s *PaymentService) SetEngineMetrics(m *telemetry.EngineMetrics) {
	s.metrics = m
}

// RecordPayment applies a payment to a receivable atomically: the payment
// row, its journal entry and the receivable balance are committed together
// or not at all.
//
// When classification is enabled it runs after the commit. A classification
// failure does not undo the payment; the committed result is returned along
// with a *finance.ClassificationError.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (result *RecordPaymentResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record")
	defer func() { telemetry.Finish(span, err) }()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceivableID, req.ReceivableID,
		telemetry.SpanAttrAmount, req.Amount,
		telemetry.SpanAttrMethod, req.Method,
	)

	telemetry.WithProfilingLabels(ctx, telemetry.EngineOperationLabels(telemetry.OperationPayment, req.Method), func(c context.Context) {
		result, err = s.recordPayment(c, req)
	})
	if result != nil {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrPaymentID, result.PaymentID,
			telemetry.SpanAttrEntryNumber, result.EntryNumber,
			telemetry.SpanAttrStatus, string(result.ReceivableStatus),
		)
	}
	return result, err
}

func (s *PaymentService) recordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	if !req.Amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	log := s.logger.With(
		zap.String("receivable_id", req.ReceivableID.String()),
		zap.String("actor_id", req.ActorID.String()),
	)

	var (
		result   *RecordPaymentResult
		currency string
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		ar, err := repos.ReceivableRepo().FindByIDForUpdate(ctx, req.ReceivableID)
		if err != nil {
			return fmt.Errorf("failed to lock receivable: %w", err)
		}
		currency = string(ar.Currency)
		if err := ar.CheckPayable(req.Amount); err != nil {
			return err
		}

		now := s.clock.Now()
		amount, err := valueobject.NewMoney(req.Amount, ar.Currency)
		if err != nil {
			return err
		}
		payment, err := finance.NewCustomerPayment(ar, amount, req.PaymentDate, finance.PaymentMethod(req.Method), req.Reference, req.ActorID, now)
		if err != nil {
			return err
		}

		entry, err := s.ledger.Post(ctx, repos, PaymentReceived{
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			Method:    payment.Method,
			Date:      payment.PaymentDate,
			ActorID:   req.ActorID,
		})
		if err != nil {
			return err
		}
		if err := payment.LinkJournalEntry(entry.ID); err != nil {
			return err
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		if err := ar.ApplyPayment(amount, payment.ID, now); err != nil {
			return err
		}
		if err := repos.ReceivableRepo().Update(ctx, ar); err != nil {
			return fmt.Errorf("failed to update receivable: %w", err)
		}

		if ar.IsPaid() && ar.ScheduleEntryID != nil {
			if err := s.settleScheduleEntry(ctx, repos, ar, now); err != nil {
				return err
			}
		}

		events := make([]shared.DomainEvent, 0, len(payment.GetDomainEvents())+len(ar.GetDomainEvents()))
		events = append(events, payment.GetDomainEvents()...)
		events = append(events, ar.GetDomainEvents()...)
		if err := repos.Events().Record(ctx, events...); err != nil {
			return fmt.Errorf("failed to record payment events: %w", err)
		}
		payment.ClearDomainEvents()
		ar.ClearDomainEvents()

		result = &RecordPaymentResult{
			PaymentID:        payment.ID,
			JournalEntryID:   entry.ID,
			EntryNumber:      entry.EntryNumber,
			ReceivableStatus: ar.Status,
			Outstanding:      ar.OutstandingAmount,
		}
		return nil
	})
	if err != nil {
		log.Warn("payment rejected", zap.String("amount", req.Amount.StringFixed(2)), zap.Error(err))
		s.metrics.RecordPayment(ctx, req.Method, telemetry.OutcomeRejected, req.Amount, currency)
		return nil, err
	}
	s.metrics.RecordPayment(ctx, req.Method, telemetry.OutcomeRecorded, req.Amount, currency)

	log.Info("payment recorded",
		zap.String("payment_id", result.PaymentID.String()),
		zap.String("entry_number", result.EntryNumber),
		zap.String("receivable_status", string(result.ReceivableStatus)),
		zap.String("outstanding", result.Outstanding.StringFixed(2)),
	)

	if s.classifier == nil {
		return result, nil
	}
	classification, err := s.classifier.Classify(ctx, result.PaymentID)
	if err != nil {
		var cerr *finance.ClassificationError
		if !errors.As(err, &cerr) {
			err = &finance.ClassificationError{PaymentID: result.PaymentID, Err: err}
		}
		return result, err
	}
	result.Classification = classification
	return result, nil
}

func (s *PaymentService) settleScheduleEntry(ctx context.Context, repos TransactionalRepositories, ar *finance.AccountReceivable, now time.Time) error {
	entry, err := repos.ScheduleRepo().FindByID(ctx, *ar.ScheduleEntryID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load schedule entry: %w", err)
	}
	if err := entry.MarkPaid(now); err != nil {
		return err
	}
	if err := repos.ScheduleRepo().Update(ctx, entry); err != nil {
		return fmt.Errorf("failed to update schedule entry: %w", err)
	}
	return nil
}
