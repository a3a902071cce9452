package finance

import (
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceivableStatus represents the status of an account receivable
type ReceivableStatus string

const (
	ReceivableStatusPending   ReceivableStatus = "PENDING"   // Unpaid, outstanding == original
	ReceivableStatusPartial   ReceivableStatus = "PARTIAL"   // 0 < outstanding < original
	ReceivableStatusPaid      ReceivableStatus = "PAID"      // outstanding == 0
	ReceivableStatusOverdue   ReceivableStatus = "OVERDUE"   // Past due and not fully paid
	ReceivableStatusCancelled ReceivableStatus = "CANCELLED" // Cancelled before any payment
)

// IsValid checks if the status is a valid ReceivableStatus
func (s ReceivableStatus) IsValid() bool {
	switch s {
	case ReceivableStatusPending, ReceivableStatusPartial, ReceivableStatusPaid,
		ReceivableStatusOverdue, ReceivableStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of ReceivableStatus
func (s ReceivableStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the receivable is in a terminal state
func (s ReceivableStatus) IsTerminal() bool {
	return s == ReceivableStatusPaid || s == ReceivableStatusCancelled
}

// CanApplyPayment returns true if payments can be applied in this status
func (s ReceivableStatus) CanApplyPayment() bool {
	return s == ReceivableStatusPending || s == ReceivableStatusPartial || s == ReceivableStatusOverdue
}

// ReceivableSource links a receivable to the obligation it bills
type ReceivableSource struct {
	ContractID      *uuid.UUID
	ScheduleEntryID *uuid.UUID
	Description     string
}

// AccountReceivable is a single billable obligation owed by a client
type AccountReceivable struct {
	shared.BaseAggregateRoot
	ReceivableNumber  string
	ClientID          uuid.UUID
	ContractID        *uuid.UUID
	ScheduleEntryID   *uuid.UUID
	Description       string
	OriginalAmount    decimal.Decimal
	PaidAmount        decimal.Decimal
	OutstandingAmount decimal.Decimal
	Currency          valueobject.Currency
	IssueDate         time.Time
	DueDate           *time.Time
	Status            ReceivableStatus
	CreatedBy         uuid.UUID
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CancelReason      string
}

// NewAccountReceivable creates a new pending receivable
func NewAccountReceivable(
	receivableNumber string,
	clientID uuid.UUID,
	source ReceivableSource,
	amount valueobject.Money,
	dueDate *time.Time,
	createdBy uuid.UUID,
	now time.Time,
) (*AccountReceivable, error) {
	if receivableNumber == "" {
		return nil, shared.NewDomainError("INVALID_RECEIVABLE_NUMBER", "Receivable number cannot be empty")
	}
	if len(receivableNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_RECEIVABLE_NUMBER", "Receivable number cannot exceed 50 characters")
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Original amount must be positive")
	}

	ar := &AccountReceivable{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ReceivableNumber:  receivableNumber,
		ClientID:          clientID,
		ContractID:        source.ContractID,
		ScheduleEntryID:   source.ScheduleEntryID,
		Description:       source.Description,
		OriginalAmount:    amount.Amount(),
		PaidAmount:        decimal.Zero,
		OutstandingAmount: amount.Amount(),
		Currency:          amount.Currency(),
		IssueDate:         now,
		DueDate:           dueDate,
		Status:            ReceivableStatusPending,
		CreatedBy:         createdBy,
	}

	ar.AddDomainEvent(NewAccountReceivableCreatedEvent(ar, now))

	return ar, nil
}

// CheckPayable validates a prospective payment without mutating the receivable
func (ar *AccountReceivable) CheckPayable(amount decimal.Decimal) error {
	if !ar.Status.CanApplyPayment() {
		return &NotPayableError{ReceivableID: ar.ID, Status: ar.Status}
	}
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if amount.GreaterThan(ar.OutstandingAmount) {
		return &AmountExceedsBalanceError{ReceivableID: ar.ID, Amount: amount, Outstanding: ar.OutstandingAmount}
	}
	return nil
}

// ApplyPayment decrements the outstanding balance.
// Status becomes PAID at zero and PARTIAL while 0 < outstanding < original.
func (ar *AccountReceivable) ApplyPayment(amount valueobject.Money, paymentID uuid.UUID, now time.Time) error {
	if err := ar.CheckPayable(amount.Amount()); err != nil {
		return err
	}
	if amount.Currency() != ar.Currency {
		return shared.NewDomainError("CURRENCY_MISMATCH", fmt.Sprintf("Payment currency %s does not match receivable currency %s", amount.Currency(), ar.Currency))
	}
	if paymentID == uuid.Nil {
		return shared.NewDomainError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}

	ar.PaidAmount = ar.PaidAmount.Add(amount.Amount())
	ar.OutstandingAmount = ar.OriginalAmount.Sub(ar.PaidAmount)

	switch {
	case ar.OutstandingAmount.IsZero():
		ar.Status = ReceivableStatusPaid
		ar.PaidAt = &now
		ar.AddDomainEvent(NewAccountReceivablePaidEvent(ar, paymentID, now))
	case ar.OutstandingAmount.LessThan(ar.OriginalAmount):
		ar.Status = ReceivableStatusPartial
		ar.AddDomainEvent(NewAccountReceivablePartiallyPaidEvent(ar, paymentID, amount.Amount(), now))
	}

	ar.UpdatedAt = now
	ar.IncrementVersion()
	return nil
}

// MarkOverdue flags an unpaid receivable whose due date is before asOf.
// Returns false when nothing changed.
func (ar *AccountReceivable) MarkOverdue(asOf time.Time) bool {
	if ar.Status != ReceivableStatusPending && ar.Status != ReceivableStatusPartial {
		return false
	}
	if ar.DueDate == nil || !ar.DueDate.Before(asOf) {
		return false
	}
	ar.Status = ReceivableStatusOverdue
	ar.UpdatedAt = asOf
	ar.IncrementVersion()
	ar.AddDomainEvent(NewAccountReceivableOverdueEvent(ar, asOf))
	return true
}

// Cancel cancels the receivable (only if no payments have been applied)
func (ar *AccountReceivable) Cancel(reason string, now time.Time) error {
	if ar.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel receivable in %s status", ar.Status))
	}
	if ar.PaidAmount.IsPositive() {
		return shared.NewDomainError("HAS_PAYMENTS", "Cannot cancel receivable with existing payments")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}

	ar.Status = ReceivableStatusCancelled
	ar.CancelledAt = &now
	ar.CancelReason = reason
	ar.UpdatedAt = now
	ar.IncrementVersion()

	ar.AddDomainEvent(NewAccountReceivableCancelledEvent(ar, now))
	return nil
}

// OriginalMoney returns the original amount as Money
func (ar *AccountReceivable) OriginalMoney() valueobject.Money {
	return valueobject.MustMoney(ar.OriginalAmount, ar.Currency)
}

// IsPaid returns true if receivable is fully paid
func (ar *AccountReceivable) IsPaid() bool {
	return ar.Status == ReceivableStatusPaid
}

// DaysOverdue returns whole days past due at asOf (0 if not past due)
func (ar *AccountReceivable) DaysOverdue(asOf time.Time) int {
	if ar.Status.IsTerminal() || ar.DueDate == nil {
		return 0
	}
	days := CalendarDaysBetween(*ar.DueDate, asOf)
	if days < 0 {
		return 0
	}
	return days
}
