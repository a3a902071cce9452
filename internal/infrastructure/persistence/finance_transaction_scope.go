package persistence

import (
	"context"

	appfinance "github.com/erp/realty/internal/application/finance"
	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db         *gorm.DB
	serializer *event.EventSerializer
	maxRetries int
}

// NewGormTransactionScope creates a new GormTransactionScope. Events
// recorded inside a transaction are serialized with serializer into the outbox.
func NewGormTransactionScope(db *gorm.DB, serializer *event.EventSerializer) *GormTransactionScope {
	return &GormTransactionScope{db: db, serializer: serializer}
}

// WithOutboxMaxRetries sets the delivery attempts of recorded events
func (s *GormTransactionScope) WithOutboxMaxRetries(n int) *GormTransactionScope {
	s.maxRetries = n
	return s
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appfinance.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx, serializer: s.serializer, maxRetries: s.maxRetries}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx         *gorm.DB
	serializer *event.EventSerializer
	maxRetries int
}

// ScheduleRepo returns the payment schedule repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ScheduleRepo() finance.PaymentScheduleRepository {
	return NewGormPaymentScheduleRepository(r.tx)
}

// ReceivableRepo returns the receivable repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ReceivableRepo() finance.AccountReceivableRepository {
	return NewGormAccountReceivableRepository(r.tx)
}

// PaymentRepo returns the customer payment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) PaymentRepo() finance.CustomerPaymentRepository {
	return NewGormCustomerPaymentRepository(r.tx)
}

// JournalRepo returns the journal entry repository scoped to the current transaction.
func (r *gormTransactionalRepositories) JournalRepo() finance.JournalEntryRepository {
	return NewGormJournalEntryRepository(r.tx)
}

// Accounts returns the chart of accounts read through the current transaction.
func (r *gormTransactionalRepositories) Accounts() finance.ChartOfAccounts {
	return NewGormChartOfAccounts(r.tx)
}

// Numbers returns the document number allocator; its counter locks are held
// until the current transaction ends.
func (r *gormTransactionalRepositories) Numbers() finance.NumberAllocator {
	return NewGormNumberAllocator(r.tx)
}

// Contracts returns the contract row locker bound to the current transaction.
func (r *gormTransactionalRepositories) Contracts() finance.ContractLocker {
	return NewGormContractRepository(r.tx)
}

// Events returns the outbox recorder bound to the current transaction.
func (r *gormTransactionalRepositories) Events() appfinance.EventRecorder {
	return event.NewOutboxRecorder(r.tx, r.serializer).WithMaxRetries(r.maxRetries)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appfinance.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appfinance.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
