package finance

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstallmentType is the commission position of a payment within its contract
type InstallmentType string

const (
	InstallmentTypeFirst   InstallmentType = "first"
	InstallmentTypeSecond  InstallmentType = "second"
	InstallmentTypeRegular InstallmentType = "regular"
)

// IsCommissionRelevant reports whether the position can trigger a commission
func (t InstallmentType) IsCommissionRelevant() bool {
	return t == InstallmentTypeFirst || t == InstallmentTypeSecond
}

// DetectionMetadata records the inputs of the last classification
type DetectionMetadata struct {
	PriorCommissionable int             `json:"prior_commissionable"`
	AmountRatio         decimal.Decimal `json:"amount_ratio"`
	MinAmountRatio      decimal.Decimal `json:"min_amount_ratio"`
	MeetsMinimumAmount  bool            `json:"meets_minimum_amount"`
	DaysAfterDue        *int            `json:"days_after_due,omitempty"`
	GraceDays           int             `json:"grace_days"`
	WithinGracePeriod   bool            `json:"within_grace_period"`
	ReceivableOriginal  decimal.Decimal `json:"receivable_original"`
	Redetected          bool            `json:"redetected,omitempty"`
}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (m DetectionMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (m *DetectionMetadata) Scan(value any) error {
	if value == nil {
		*m = DetectionMetadata{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan DetectionMetadata: unsupported type")
	}
	if len(bytes) == 0 {
		*m = DetectionMetadata{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// CustomerPayment is money received from a client against one receivable
type CustomerPayment struct {
	shared.BaseAggregateRoot
	ClientID       uuid.UUID
	ReceivableID   uuid.UUID
	ContractID     *uuid.UUID
	Amount         decimal.Decimal
	Currency       valueobject.Currency
	PaymentDate    time.Time
	Method         PaymentMethod
	Reference      string
	ProcessedBy    uuid.UUID
	JournalEntryID *uuid.UUID

	InstallmentType           *InstallmentType
	AffectsCommissions        bool
	CommissionEventDispatched bool
	CommissionDispatchedAt    *time.Time
	ClassifiedAt              *time.Time
	DetectionMetadata         *DetectionMetadata
}

// NewCustomerPayment creates a payment against ar. Balance checks are the
// receivable's job; this only validates the payment itself.
func NewCustomerPayment(
	ar *AccountReceivable,
	amount valueobject.Money,
	paymentDate time.Time,
	method PaymentMethod,
	reference string,
	processedBy uuid.UUID,
	now time.Time,
) (*CustomerPayment, error) {
	if ar == nil {
		return nil, shared.NewDomainError("INVALID_RECEIVABLE", "Receivable cannot be nil")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if method == "" {
		method = PaymentMethodOther
	}
	if paymentDate.IsZero() {
		paymentDate = now
	}
	if len(reference) > 100 {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Reference cannot exceed 100 characters")
	}

	p := &CustomerPayment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ClientID:          ar.ClientID,
		ReceivableID:      ar.ID,
		ContractID:        ar.ContractID,
		Amount:            amount.Amount(),
		Currency:          amount.Currency(),
		PaymentDate:       paymentDate,
		Method:            method,
		Reference:         reference,
		ProcessedBy:       processedBy,
	}
	p.AddDomainEvent(NewPaymentRecordedEvent(p, now))
	return p, nil
}

// LinkJournalEntry records the ledger entry that accounts for this payment
func (p *CustomerPayment) LinkJournalEntry(entryID uuid.UUID) error {
	if p.JournalEntryID != nil && *p.JournalEntryID != entryID {
		return shared.NewDomainError("ALREADY_POSTED", "Payment is already linked to a journal entry")
	}
	p.JournalEntryID = &entryID
	return nil
}

// IsClassified reports whether the classifier has run at least once
func (p *CustomerPayment) IsClassified() bool {
	return p.InstallmentType != nil
}

// ApplyClassification stores classifier output. A payment whose commission
// event was already dispatched keeps its dispatched flag regardless of the
// new outcome.
func (p *CustomerPayment) ApplyClassification(c Classification, now time.Time) {
	typ := c.Type
	meta := c.Metadata
	meta.Redetected = p.IsClassified()
	p.InstallmentType = &typ
	p.AffectsCommissions = c.AffectsCommissions
	p.DetectionMetadata = &meta
	p.ClassifiedAt = &now
	p.UpdatedAt = now
}

// NeedsCommissionDispatch reports whether a commission event is still owed
func (p *CustomerPayment) NeedsCommissionDispatch() bool {
	return p.AffectsCommissions && !p.CommissionEventDispatched
}

// ErrCommissionAlreadyDispatched is returned on a second dispatch attempt
var ErrCommissionAlreadyDispatched = shared.NewDomainError("COMMISSION_ALREADY_DISPATCHED", "Commission event was already dispatched for this payment")

// DispatchCommission marks the commission event as dispatched and returns it.
// The event id is derived from the payment id so every attempt for the same
// payment yields the same id.
func (p *CustomerPayment) DispatchCommission(now time.Time) (*CommissionTriggeredEvent, error) {
	if p.CommissionEventDispatched {
		return nil, ErrCommissionAlreadyDispatched
	}
	if !p.AffectsCommissions || p.InstallmentType == nil {
		return nil, shared.NewDomainError("NOT_COMMISSIONABLE", "Payment does not affect commissions")
	}
	p.CommissionEventDispatched = true
	p.CommissionDispatchedAt = &now
	p.UpdatedAt = now

	event := NewCommissionTriggeredEvent(p, now)
	p.AddDomainEvent(event)
	return event, nil
}
