package finance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentScheduleRepository persists schedule rows
type PaymentScheduleRepository interface {
	// SaveBatch inserts new rows
	SaveBatch(ctx context.Context, entries []ScheduleEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error)
	// FindByContract returns rows ordered by installment number
	FindByContract(ctx context.Context, contractID uuid.UUID) ([]ScheduleEntry, error)
	Update(ctx context.Context, entry *ScheduleEntry) error
	// MarkOverdue flags pending rows due before asOf and returns the count
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// AccountReceivableRepository persists receivables
type AccountReceivableRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*AccountReceivable, error)
	// FindByIDForUpdate loads the receivable and holds a row lock until the
	// surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*AccountReceivable, error)
	FindByContract(ctx context.Context, contractID uuid.UUID) ([]AccountReceivable, error)
	// ExistsByKey reports whether a receivable with the same contract, due
	// date and original amount already exists
	ExistsByKey(ctx context.Context, contractID uuid.UUID, dueDate time.Time, amount decimal.Decimal) (bool, error)
	// FindAgingCandidates returns PENDING/PARTIAL receivables due before asOf
	FindAgingCandidates(ctx context.Context, asOf time.Time, limit int) ([]AccountReceivable, error)
	// Save inserts ar. It returns shared.ErrAlreadyExists when a receivable
	// with the same contract, due date and original amount is stored.
	Save(ctx context.Context, ar *AccountReceivable) error
	// Update saves changes guarded by the aggregate version
	Update(ctx context.Context, ar *AccountReceivable) error
}

// ContractLocker serializes writers of one contract's receivables and
// payment history
type ContractLocker interface {
	// LockContract holds a row lock on the contract until the surrounding
	// transaction ends. An unknown contract is not an error.
	LockContract(ctx context.Context, contractID uuid.UUID) error
}

// CustomerPaymentRepository persists payments
type CustomerPaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CustomerPayment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*CustomerPayment, error)
	FindByContract(ctx context.Context, contractID uuid.UUID) ([]CustomerPayment, error)
	// CountPriorCommissionable counts other payments in p's history (its
	// contract, or its receivable when it has no contract) that affect
	// commissions and were paid strictly before p
	CountPriorCommissionable(ctx context.Context, p *CustomerPayment) (int, error)
	Save(ctx context.Context, p *CustomerPayment) error
	Update(ctx context.Context, p *CustomerPayment) error
}

// JournalEntryRepository persists journal entries with their lines
type JournalEntryRepository interface {
	// Save inserts the entry and all of its lines
	Save(ctx context.Context, entry *JournalEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	FindByReference(ctx context.Context, refType ReferenceType, refID uuid.UUID) ([]JournalEntry, error)
	// FindReversalOf returns shared.ErrNotFound when entryID was never reversed
	FindReversalOf(ctx context.Context, entryID uuid.UUID) (*JournalEntry, error)
}

// Counter names used with NumberAllocator
const (
	SequenceJournalEntry = "journal_entry"
	SequenceReceivable   = "account_receivable"
)

// NumberAllocator hands out gap-free, strictly increasing document numbers.
// Implementations serialize concurrent callers on the counter row.
type NumberAllocator interface {
	Next(ctx context.Context, sequence string) (int64, error)
}
