package finance

import (
	"context"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
)

// TransactionScope provides transactional access to finance repositories.
// All repository operations executed inside fn share one database transaction
// and are committed or rolled back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all finance repositories
// within a transaction
type TransactionalRepositories interface {
	ScheduleRepo() finance.PaymentScheduleRepository
	ReceivableRepo() finance.AccountReceivableRepository
	PaymentRepo() finance.CustomerPaymentRepository
	JournalRepo() finance.JournalEntryRepository
	Accounts() finance.ChartOfAccounts
	Numbers() finance.NumberAllocator
	Contracts() finance.ContractLocker
	// Events writes domain events to the outbox in the same transaction
	Events() EventRecorder
}

// EventRecorder stores domain events for asynchronous delivery
type EventRecorder interface {
	Record(ctx context.Context, events ...shared.DomainEvent) error
	// RecordOnce stores event unless an event with the same id was already
	// stored. It returns false when the event was a duplicate.
	RecordOnce(ctx context.Context, event shared.DomainEvent) (bool, error)
}

// NoOpTransactionScope runs fn against fixed repositories without a real
// transaction. Useful for tests with in-memory repositories.
type NoOpTransactionScope struct {
	Schedules   finance.PaymentScheduleRepository
	Receivables finance.AccountReceivableRepository
	Payments    finance.CustomerPaymentRepository
	Journal     finance.JournalEntryRepository
	Chart       finance.ChartOfAccounts
	Counter     finance.NumberAllocator
	Locker      finance.ContractLocker
	Recorder    EventRecorder
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) ScheduleRepo() finance.PaymentScheduleRepository    { return s.Schedules }
func (s *NoOpTransactionScope) ReceivableRepo() finance.AccountReceivableRepository { return s.Receivables }
func (s *NoOpTransactionScope) PaymentRepo() finance.CustomerPaymentRepository      { return s.Payments }
func (s *NoOpTransactionScope) JournalRepo() finance.JournalEntryRepository         { return s.Journal }
func (s *NoOpTransactionScope) Accounts() finance.ChartOfAccounts                   { return s.Chart }
func (s *NoOpTransactionScope) Numbers() finance.NumberAllocator                    { return s.Counter }
func (s *NoOpTransactionScope) Contracts() finance.ContractLocker                   { return s.Locker }
func (s *NoOpTransactionScope) Events() EventRecorder                               { return s.Recorder }

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
