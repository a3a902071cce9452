package finance

import (
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const aggregateTypePayment = "CustomerPayment"

// Event type names
const (
	EventTypePaymentRecorded     = "CustomerPaymentRecorded"
	EventTypeCommissionTriggered = "CommissionTriggered"
)

// PaymentRecordedEvent is raised when a payment is recorded
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID    uuid.UUID            `json:"payment_id"`
	ReceivableID uuid.UUID            `json:"receivable_id"`
	ClientID     uuid.UUID            `json:"client_id"`
	ContractID   *uuid.UUID           `json:"contract_id,omitempty"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     valueobject.Currency `json:"currency"`
	Method       PaymentMethod        `json:"method"`
	PaymentDate  time.Time            `json:"payment_date"`
}

// EventType returns the event type name
func (e *PaymentRecordedEvent) EventType() string {
	return EventTypePaymentRecorded
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(p *CustomerPayment, at time.Time) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, aggregateTypePayment, p.ID, at),
		PaymentID:       p.ID,
		ReceivableID:    p.ReceivableID,
		ClientID:        p.ClientID,
		ContractID:      p.ContractID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Method:          p.Method,
		PaymentDate:     p.PaymentDate,
	}
}

// CommissionTriggeredEvent tells commission processing that a first or
// second installment qualified. Its id is a pure function of the payment id.
type CommissionTriggeredEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID         `json:"payment_id"`
	ContractID      *uuid.UUID        `json:"contract_id,omitempty"`
	ClientID        uuid.UUID         `json:"client_id"`
	InstallmentType InstallmentType   `json:"installment_type"`
	Amount          decimal.Decimal   `json:"amount"`
	PaymentDate     time.Time         `json:"payment_date"`
	Metadata        DetectionMetadata `json:"metadata"`
}

// EventType returns the event type name
func (e *CommissionTriggeredEvent) EventType() string {
	return EventTypeCommissionTriggered
}

// DedupKey is the key commission consumers deduplicate on
func (e *CommissionTriggeredEvent) DedupKey() string {
	return e.PaymentID.String()
}

// NewCommissionTriggeredEvent creates the commission event for p
func NewCommissionTriggeredEvent(p *CustomerPayment, at time.Time) *CommissionTriggeredEvent {
	e := &CommissionTriggeredEvent{
		BaseDomainEvent: shared.NewDomainEventWithID(EventTypeCommissionTriggered, aggregateTypePayment, p.ID, CommissionEventID(p.ID), at),
		PaymentID:       p.ID,
		ContractID:      p.ContractID,
		ClientID:        p.ClientID,
		Amount:          p.Amount,
		PaymentDate:     p.PaymentDate,
	}
	if p.InstallmentType != nil {
		e.InstallmentType = *p.InstallmentType
	}
	if p.DetectionMetadata != nil {
		e.Metadata = *p.DetectionMetadata
	}
	return e
}

// CommissionEventID derives the id of the commission event for paymentID
func CommissionEventID(paymentID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(paymentID, []byte(EventTypeCommissionTriggered))
}
