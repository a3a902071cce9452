package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerEvent is a monetary movement the ledger must account for.
// Implementations: PaymentReceived, ReceivableCreated.
type LedgerEvent interface {
	ledgerEvent()
}

// PaymentReceived is money collected from a client
type PaymentReceived struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Method    finance.PaymentMethod
	Date      time.Time
	ActorID   uuid.UUID
}

// ReceivableCreated is a new obligation billed to a client
type ReceivableCreated struct {
	ReceivableID     uuid.UUID
	ReceivableNumber string
	Amount           decimal.Decimal
	Date             time.Time
	ActorID          uuid.UUID
}

func (PaymentReceived) ledgerEvent()   {}
func (ReceivableCreated) ledgerEvent() {}

// LedgerService turns monetary events into balanced journal entries
type LedgerService struct {
	codes    finance.AccountCodes
	suspense uuid.UUID
	clock    shared.Clock
	logger   *zap.Logger
}

// LedgerOption is a functional option for configuring LedgerService
type LedgerOption func(*LedgerService)

// WithAccountCodes overrides the chart-of-accounts codes
func WithAccountCodes(codes finance.AccountCodes) LedgerOption {
	return func(s *LedgerService) {
		s.codes = codes
	}
}

// WithSuspenseAccount overrides the fallback account for missing codes
func WithSuspenseAccount(id uuid.UUID) LedgerOption {
	return func(s *LedgerService) {
		if id != uuid.Nil {
			s.suspense = id
		}
	}
}

// WithLedgerClock sets the clock used for entry timestamps
func WithLedgerClock(clock shared.Clock) LedgerOption {
	return func(s *LedgerService) {
		s.clock = clock
	}
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(logger *zap.Logger, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		codes:    finance.DefaultAccountCodes(),
		suspense: finance.SuspenseAccountID,
		clock:    shared.SystemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post writes the journal entry for event using the caller's transaction.
// Lines are checked for balance before a number is allocated or anything is
// written.
func (s *LedgerService) Post(ctx context.Context, repos TransactionalRepositories, event LedgerEvent) (*finance.JournalEntry, error) {
	var (
		lines       []finance.JournalLine
		ref         finance.JournalReference
		description string
		entryDate   time.Time
		actorID     uuid.UUID
		err         error
	)

	switch ev := event.(type) {
	case PaymentReceived:
		if !ev.Amount.IsPositive() {
			return nil, shared.NewDomainError("INVALID_AMOUNT", "Posted amount must be positive")
		}
		lines, err = s.lines(ctx, repos.Accounts(),
			s.codes.CashAccountFor(ev.Method), s.codes.ReceivableControl, ev.Amount,
			fmt.Sprintf("Payment received (%s)", ev.Method))
		ref = finance.JournalReference{Type: finance.ReferenceTypePayment, ID: ev.PaymentID}
		description = fmt.Sprintf("Customer payment %s", ev.PaymentID)
		entryDate, actorID = ev.Date, ev.ActorID
	case ReceivableCreated:
		if !ev.Amount.IsPositive() {
			return nil, shared.NewDomainError("INVALID_AMOUNT", "Posted amount must be positive")
		}
		lines, err = s.lines(ctx, repos.Accounts(),
			s.codes.ReceivableControl, s.codes.SalesRevenue, ev.Amount,
			fmt.Sprintf("Receivable %s", ev.ReceivableNumber))
		ref = finance.JournalReference{Type: finance.ReferenceTypeReceivable, ID: ev.ReceivableID}
		description = fmt.Sprintf("Receivable %s issued", ev.ReceivableNumber)
		entryDate, actorID = ev.Date, ev.ActorID
	default:
		return nil, fmt.Errorf("unsupported ledger event %T", event)
	}
	if err != nil {
		return nil, err
	}

	if err := finance.ValidateLines(lines); err != nil {
		s.logger.Error("refusing to post unbalanced journal entry",
			zap.String("reference_type", string(ref.Type)),
			zap.String("reference_id", ref.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	if entryDate.IsZero() {
		entryDate = now
	}
	entry, err := s.newEntry(ctx, repos, entryDate, description, ref, lines, actorID, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("journal entry posted",
		zap.String("entry_number", entry.EntryNumber),
		zap.String("reference_type", string(ref.Type)),
		zap.String("reference_id", ref.ID.String()),
		zap.String("amount", entry.TotalDebit().StringFixed(2)),
	)
	return entry, nil
}

// ReverseEntryRequest asks for an offsetting entry
type ReverseEntryRequest struct {
	EntryID uuid.UUID `validate:"required"`
	Reason  string    `validate:"required,max=200"`
	ActorID uuid.UUID `validate:"required"`
}

// ErrAlreadyReversed is returned when an entry already has a reversal
var ErrAlreadyReversed = shared.NewDomainError("ALREADY_REVERSED", "Journal entry has already been reversed")

// Reverse appends a reversing entry for a posted entry. The original entry
// is never modified; a second reversal of the same entry is rejected.
func (s *LedgerService) Reverse(ctx context.Context, scope TransactionScope, req ReverseEntryRequest) (*finance.JournalEntry, error) {
	if err := validate.Struct(req); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	var reversal *finance.JournalEntry
	err := scope.Execute(ctx, func(repos TransactionalRepositories) error {
		original, err := repos.JournalRepo().FindByID(ctx, req.EntryID)
		if err != nil {
			return fmt.Errorf("failed to load journal entry: %w", err)
		}
		existing, err := repos.JournalRepo().FindReversalOf(ctx, original.ID)
		if err == nil && existing != nil {
			return ErrAlreadyReversed
		}
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to check existing reversal: %w", err)
		}

		n, err := repos.Numbers().Next(ctx, finance.SequenceJournalEntry)
		if err != nil {
			return fmt.Errorf("failed to allocate entry number: %w", err)
		}
		now := s.clock.Now()
		reversal, err = original.NewReversal(finance.FormatEntryNumber(n), req.Reason, now, req.ActorID, now)
		if err != nil {
			return err
		}
		if err := repos.JournalRepo().Save(ctx, reversal); err != nil {
			return fmt.Errorf("failed to save reversing entry: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("journal entry reversal failed",
			zap.String("entry_id", req.EntryID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("journal entry reversed",
		zap.String("entry_id", req.EntryID.String()),
		zap.String("reversal_number", reversal.EntryNumber),
		zap.String("actor_id", req.ActorID.String()),
	)
	return reversal, nil
}

func (s *LedgerService) newEntry(
	ctx context.Context,
	repos TransactionalRepositories,
	entryDate time.Time,
	description string,
	ref finance.JournalReference,
	lines []finance.JournalLine,
	actorID uuid.UUID,
	now time.Time,
) (*finance.JournalEntry, error) {
	n, err := repos.Numbers().Next(ctx, finance.SequenceJournalEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate entry number: %w", err)
	}
	entry, err := finance.NewJournalEntry(finance.FormatEntryNumber(n), entryDate, description, ref, lines, actorID, now)
	if err != nil {
		return nil, err
	}
	if err := repos.JournalRepo().Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save journal entry: %w", err)
	}
	return entry, nil
}

// lines builds a two-line debit/credit pair
func (s *LedgerService) lines(ctx context.Context, chart finance.ChartOfAccounts, debitCode, creditCode string, amount decimal.Decimal, description string) ([]finance.JournalLine, error) {
	debitID, err := s.accountID(ctx, chart, debitCode)
	if err != nil {
		return nil, err
	}
	creditID, err := s.accountID(ctx, chart, creditCode)
	if err != nil {
		return nil, err
	}
	return []finance.JournalLine{
		finance.DebitLine(debitID, debitCode, amount, description),
		finance.CreditLine(creditID, creditCode, amount, description),
	}, nil
}

// accountID resolves code, falling back to the suspense account when the
// code is not in the chart
func (s *LedgerService) accountID(ctx context.Context, chart finance.ChartOfAccounts, code string) (uuid.UUID, error) {
	id, err := chart.AccountIDForCode(ctx, code)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("account code not found, posting to suspense account",
			zap.String("account_code", code),
			zap.String("suspense_account_id", s.suspense.String()),
		)
		return s.suspense, nil
	}
	return uuid.Nil, fmt.Errorf("failed to resolve account %s: %w", code, err)
}
