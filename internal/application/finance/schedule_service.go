package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/sales"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/erp/realty/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrContractNotActive is returned when generating a schedule for a contract
// that is not active
var ErrContractNotActive = shared.NewDomainError("CONTRACT_NOT_ACTIVE", "Only active contracts can have a payment schedule generated")

// errReceivableExists rolls back a receivable insert that hit the storage key
var errReceivableExists = errors.New("receivable already exists")

// ScheduleService generates payment schedules and their receivables
type ScheduleService struct {
	contracts sales.ContractRepository
	lots      sales.LotRepository
	pricing   sales.PricingRepository
	scope     TransactionScope
	ledger    *LedgerService
	planner   *finance.AmortizationPlanner
	clock     shared.Clock
	logger    *zap.Logger
	metrics   *telemetry.EngineMetrics
}

// ScheduleOption is a functional option for configuring ScheduleService
type ScheduleOption func(*ScheduleService)

// WithScheduleClock sets the clock used for plan start dates and timestamps
func WithScheduleClock(clock shared.Clock) ScheduleOption {
	return func(s *ScheduleService) {
		s.clock = clock
	}
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(
	contracts sales.ContractRepository,
	lots sales.LotRepository,
	pricing sales.PricingRepository,
	scope TransactionScope,
	ledger *LedgerService,
	logger *zap.Logger,
	opts ...ScheduleOption,
) *ScheduleService {
	s := &ScheduleService{
		contracts: contracts,
		lots:      lots,
		pricing:   pricing,
		scope:     scope,
		ledger:    ledger,
		planner:   finance.NewAmortizationPlanner(),
		clock:     shared.SystemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEngineMetrics sets the metrics collector
func (s *ScheduleService) SetEngineMetrics(m *telemetry.EngineMetrics) {
	s.metrics = m
}

// GenerateForContract plans the contract, persists its schedule and creates
// one receivable per schedule row. Rows are handled independently: a failing
// row is reported in RowErrors and the remaining rows still proceed.
func (s *ScheduleService) GenerateForContract(ctx context.Context, contractID, actorID uuid.UUID) (result *GenerationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "schedule", "generate")
	defer func() { telemetry.Finish(span, err) }()
	telemetry.SetAttributes(span, telemetry.SpanAttrContractID, contractID)

	result, err = s.generateForContract(ctx, contractID, actorID)
	switch {
	case err != nil:
		s.metrics.RecordScheduleGeneration(ctx, telemetry.OutcomeFailed, 0)
	case result.SchedulesCreated == 0 && result.ReceivablesCreated == 0:
		s.metrics.RecordScheduleGeneration(ctx, telemetry.OutcomeSkipped, 0)
	default:
		s.metrics.RecordScheduleGeneration(ctx, telemetry.OutcomeGenerated, result.ReceivablesCreated)
	}
	if result != nil {
		telemetry.SetAttributes(span,
			"schedules_created", result.SchedulesCreated,
			"receivables_created", result.ReceivablesCreated,
			"row_errors", len(result.RowErrors),
		)
	}
	return result, err
}

func (s *ScheduleService) generateForContract(ctx context.Context, contractID, actorID uuid.UUID) (*GenerationResult, error) {
	log := s.logger.With(zap.String("contract_id", contractID.String()))

	contract, err := s.contracts.FindByID(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	if !contract.IsActive() {
		return nil, ErrContractNotActive
	}

	template, rule, err := s.loadPricing(ctx, contract)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	plan, err := s.planner.Plan(finance.PlanInput{
		FinancingMode:         contract.FinancingMode,
		RequestedInstallments: contract.RequestedInstallments,
		Template:              template,
		Rule:                  rule,
		ContractDownPayment:   contract.DownPayment,
		SignDate:              contract.SignedAt,
		Now:                   now,
	})
	if err != nil {
		var missing *finance.MissingTemplateError
		if errors.As(err, &missing) {
			missing.ContractID = contract.ID
			missing.LotID = contract.LotID
		}
		log.Warn("amortization plan could not be resolved", zap.Error(err))
		return nil, err
	}

	params := finance.ScheduleParams{
		ContractID: contract.ID,
		Currency:   contract.CurrencyOrDefault(),
		Now:        now,
	}
	if contract.SignedAt != nil {
		params.DownPaymentDue = *contract.SignedAt
	}
	built, err := finance.BuildSchedule(plan, params)
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{
		ContractID:  contract.ID,
		Plan:        plan,
		TotalAmount: finance.ScheduleTotal(built),
	}

	var entries []finance.ScheduleEntry
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.ScheduleRepo().FindByContract(ctx, contract.ID)
		if err != nil {
			return fmt.Errorf("failed to load existing schedule: %w", err)
		}
		if len(existing) > 0 {
			entries = existing
			return nil
		}
		if err := repos.ScheduleRepo().SaveBatch(ctx, built); err != nil {
			return fmt.Errorf("failed to save schedule: %w", err)
		}
		entries = built
		result.SchedulesCreated = len(built)
		return nil
	})
	if err != nil {
		log.Error("failed to persist payment schedule", zap.Error(err))
		return nil, err
	}

	for i := range entries {
		entry := &entries[i]
		created, err := s.createReceivable(ctx, contract, entry, actorID)
		if err != nil {
			log.Error("failed to create receivable for schedule row",
				zap.Int("installment_number", entry.InstallmentNumber),
				zap.String("due_date", entry.DueDate.Format("2006-01-02")),
				zap.Error(err),
			)
			result.RowErrors = append(result.RowErrors, RowError{
				InstallmentNumber: entry.InstallmentNumber,
				Error:             err.Error(),
			})
			continue
		}
		if created {
			result.ReceivablesCreated++
		} else {
			result.ReceivablesSkipped++
		}
	}

	log.Info("payment schedule generated",
		zap.String("strategy", string(plan.Strategy)),
		zap.Int("installments", plan.InstallmentCount),
		zap.Int("schedules_created", result.SchedulesCreated),
		zap.Int("receivables_created", result.ReceivablesCreated),
		zap.Int("receivables_skipped", result.ReceivablesSkipped),
		zap.Int("row_errors", len(result.RowErrors)),
		zap.String("total", result.TotalAmount.StringFixed(2)),
	)
	return result, nil
}

// GenerateBulk runs GenerateForContract for every active contract without a
// schedule. A failing contract never stops the batch.
func (s *ScheduleService) GenerateBulk(ctx context.Context, opts BulkOptions) (result *BulkResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "schedule", "generate_bulk")
	defer func() { telemetry.Finish(span, err) }()

	telemetry.WithProfilingLabels(ctx, telemetry.EngineOperationLabels(telemetry.OperationScheduleGeneration, "bulk"), func(c context.Context) {
		result, err = s.generateBulk(c, opts)
	})
	if result != nil {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrBatchSize, result.Processed,
			"failures", len(result.Failures),
		)
	}
	return result, err
}

func (s *ScheduleService) generateBulk(ctx context.Context, opts BulkOptions) (*BulkResult, error) {
	contracts, err := s.contracts.FindActiveWithoutSchedule(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	result := &BulkResult{Success: true}
	for _, contract := range contracts {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Processed++
		if _, err := s.GenerateForContract(ctx, contract.ID, opts.ActorID); err != nil {
			result.Success = false
			result.Failures = append(result.Failures, ContractFailure{
				ContractID: contract.ID,
				Error:      err.Error(),
			})
			continue
		}
		result.Succeeded++
	}

	s.logger.Info("bulk schedule generation finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// loadPricing resolves the template (contract first, then lot) and the zone
// rule. A zone without a rule imposes no restriction.
func (s *ScheduleService) loadPricing(ctx context.Context, contract *sales.Contract) (*sales.FinancialTemplate, *sales.FinancingRule, error) {
	lot, err := s.lots.FindByID(ctx, contract.LotID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load lot: %w", err)
	}

	template, err := s.findTemplate(ctx, contract, lot)
	if err != nil {
		return nil, nil, err
	}

	rule, err := s.pricing.FindRuleByZone(ctx, lot.ZoneID)
	if errors.Is(err, shared.ErrNotFound) {
		rule = nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to load financing rule: %w", err)
	}
	return template, rule, nil
}

func (s *ScheduleService) findTemplate(ctx context.Context, contract *sales.Contract, lot *sales.Lot) (*sales.FinancialTemplate, error) {
	candidates := []*uuid.UUID{contract.TemplateID, lot.TemplateID}
	for _, id := range candidates {
		if id == nil || *id == uuid.Nil {
			continue
		}
		t, err := s.pricing.FindTemplateByID(ctx, *id)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to load financial template: %w", err)
		}
	}

	t, err := s.pricing.FindTemplateByLot(ctx, lot.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, &finance.MissingTemplateError{ContractID: contract.ID, LotID: lot.ID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load financial template: %w", err)
	}
	return t, nil
}

// createReceivable creates the receivable for one schedule row in its own
// transaction. It returns false when an equivalent receivable already exists.
// Concurrent generators of one contract are serialized on the contract row.
func (s *ScheduleService) createReceivable(ctx context.Context, contract *sales.Contract, entry *finance.ScheduleEntry, actorID uuid.UUID) (bool, error) {
	created := false
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.Contracts().LockContract(ctx, contract.ID); err != nil {
			return fmt.Errorf("failed to lock contract: %w", err)
		}
		exists, err := repos.ReceivableRepo().ExistsByKey(ctx, contract.ID, entry.DueDate, entry.Amount)
		if err != nil {
			return fmt.Errorf("failed to check existing receivable: %w", err)
		}
		if exists {
			return nil
		}

		n, err := repos.Numbers().Next(ctx, finance.SequenceReceivable)
		if err != nil {
			return fmt.Errorf("failed to allocate receivable number: %w", err)
		}
		amount, err := valueobject.NewMoney(entry.Amount, entry.Currency)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		contractID := contract.ID
		entryID := entry.ID
		due := entry.DueDate
		ar, err := finance.NewAccountReceivable(
			finance.FormatReceivableNumber(n),
			contract.ClientID,
			finance.ReceivableSource{
				ContractID:      &contractID,
				ScheduleEntryID: &entryID,
				Description:     receivableDescription(contract, entry),
			},
			amount,
			&due,
			actorID,
			now,
		)
		if err != nil {
			return err
		}
		if err := repos.ReceivableRepo().Save(ctx, ar); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				return errReceivableExists
			}
			return fmt.Errorf("failed to save receivable: %w", err)
		}

		if _, err := s.ledger.Post(ctx, repos, ReceivableCreated{
			ReceivableID:     ar.ID,
			ReceivableNumber: ar.ReceivableNumber,
			Amount:           ar.OriginalAmount,
			Date:             now,
			ActorID:          actorID,
		}); err != nil {
			return err
		}

		if err := repos.Events().Record(ctx, ar.GetDomainEvents()...); err != nil {
			return fmt.Errorf("failed to record receivable events: %w", err)
		}
		ar.ClearDomainEvents()
		created = true
		return nil
	})
	if errors.Is(err, errReceivableExists) {
		return false, nil
	}
	return created, err
}

func receivableDescription(contract *sales.Contract, entry *finance.ScheduleEntry) string {
	switch entry.Type {
	case finance.ScheduleTypeDownPayment:
		return fmt.Sprintf("Contract %s down payment", contract.ContractNumber)
	case finance.ScheduleTypeBalloon:
		return fmt.Sprintf("Contract %s balloon payment", contract.ContractNumber)
	default:
		return fmt.Sprintf("Contract %s installment %d", contract.ContractNumber, entry.InstallmentNumber)
	}
}

