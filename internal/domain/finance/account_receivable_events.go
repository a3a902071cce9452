package finance

import (
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const aggregateTypeReceivable = "AccountReceivable"

// Event type names
const (
	EventTypeReceivableCreated       = "AccountReceivableCreated"
	EventTypeReceivablePaid          = "AccountReceivablePaid"
	EventTypeReceivablePartiallyPaid = "AccountReceivablePartiallyPaid"
	EventTypeReceivableOverdue       = "AccountReceivableOverdue"
	EventTypeReceivableCancelled     = "AccountReceivableCancelled"
)

// AccountReceivableCreatedEvent is raised when a new account receivable is created
type AccountReceivableCreatedEvent struct {
	shared.BaseDomainEvent
	ReceivableID     uuid.UUID       `json:"receivable_id"`
	ReceivableNumber string          `json:"receivable_number"`
	ClientID         uuid.UUID       `json:"client_id"`
	ContractID       *uuid.UUID      `json:"contract_id,omitempty"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *AccountReceivableCreatedEvent) EventType() string {
	return EventTypeReceivableCreated
}

// NewAccountReceivableCreatedEvent creates a new AccountReceivableCreatedEvent
func NewAccountReceivableCreatedEvent(ar *AccountReceivable, at time.Time) *AccountReceivableCreatedEvent {
	return &AccountReceivableCreatedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeReceivableCreated, aggregateTypeReceivable, ar.ID, at),
		ReceivableID:     ar.ID,
		ReceivableNumber: ar.ReceivableNumber,
		ClientID:         ar.ClientID,
		ContractID:       ar.ContractID,
		OriginalAmount:   ar.OriginalAmount,
		DueDate:          ar.DueDate,
	}
}

// AccountReceivablePaidEvent is raised when a receivable is fully paid
type AccountReceivablePaidEvent struct {
	shared.BaseDomainEvent
	ReceivableID   uuid.UUID       `json:"receivable_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	ClientID       uuid.UUID       `json:"client_id"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	PaidAt         time.Time       `json:"paid_at"`
}

// EventType returns the event type name
func (e *AccountReceivablePaidEvent) EventType() string {
	return EventTypeReceivablePaid
}

// NewAccountReceivablePaidEvent creates a new AccountReceivablePaidEvent
func NewAccountReceivablePaidEvent(ar *AccountReceivable, paymentID uuid.UUID, at time.Time) *AccountReceivablePaidEvent {
	return &AccountReceivablePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReceivablePaid, aggregateTypeReceivable, ar.ID, at),
		ReceivableID:    ar.ID,
		PaymentID:       paymentID,
		ClientID:        ar.ClientID,
		OriginalAmount:  ar.OriginalAmount,
		PaidAt:          at,
	}
}

// AccountReceivablePartiallyPaidEvent is raised when a payment leaves a balance
type AccountReceivablePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	ReceivableID      uuid.UUID       `json:"receivable_id"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// EventType returns the event type name
func (e *AccountReceivablePartiallyPaidEvent) EventType() string {
	return EventTypeReceivablePartiallyPaid
}

// NewAccountReceivablePartiallyPaidEvent creates a new AccountReceivablePartiallyPaidEvent
func NewAccountReceivablePartiallyPaidEvent(ar *AccountReceivable, paymentID uuid.UUID, amount decimal.Decimal, at time.Time) *AccountReceivablePartiallyPaidEvent {
	return &AccountReceivablePartiallyPaidEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeReceivablePartiallyPaid, aggregateTypeReceivable, ar.ID, at),
		ReceivableID:      ar.ID,
		PaymentID:         paymentID,
		PaymentAmount:     amount,
		OutstandingAmount: ar.OutstandingAmount,
	}
}

// AccountReceivableOverdueEvent is raised by the aging sweep
type AccountReceivableOverdueEvent struct {
	shared.BaseDomainEvent
	ReceivableID      uuid.UUID       `json:"receivable_id"`
	ClientID          uuid.UUID       `json:"client_id"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *AccountReceivableOverdueEvent) EventType() string {
	return EventTypeReceivableOverdue
}

// NewAccountReceivableOverdueEvent creates a new AccountReceivableOverdueEvent
func NewAccountReceivableOverdueEvent(ar *AccountReceivable, at time.Time) *AccountReceivableOverdueEvent {
	return &AccountReceivableOverdueEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeReceivableOverdue, aggregateTypeReceivable, ar.ID, at),
		ReceivableID:      ar.ID,
		ClientID:          ar.ClientID,
		OutstandingAmount: ar.OutstandingAmount,
		DueDate:           ar.DueDate,
	}
}

// AccountReceivableCancelledEvent is raised when a receivable is cancelled
type AccountReceivableCancelledEvent struct {
	shared.BaseDomainEvent
	ReceivableID uuid.UUID       `json:"receivable_id"`
	ClientID     uuid.UUID       `json:"client_id"`
	Amount       decimal.Decimal `json:"amount"`
	CancelReason string          `json:"cancel_reason"`
}

// EventType returns the event type name
func (e *AccountReceivableCancelledEvent) EventType() string {
	return EventTypeReceivableCancelled
}

// NewAccountReceivableCancelledEvent creates a new AccountReceivableCancelledEvent
func NewAccountReceivableCancelledEvent(ar *AccountReceivable, at time.Time) *AccountReceivableCancelledEvent {
	return &AccountReceivableCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReceivableCancelled, aggregateTypeReceivable, ar.ID, at),
		ReceivableID:    ar.ID,
		ClientID:        ar.ClientID,
		Amount:          ar.OriginalAmount,
		CancelReason:    ar.CancelReason,
	}
}
