package sales

import (
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractStatus represents the lifecycle status of a sales contract
type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "draft"
	ContractStatusActive    ContractStatus = "active"
	ContractStatusCompleted ContractStatus = "completed"
	ContractStatusCancelled ContractStatus = "cancelled"
)

// IsValid checks if the status is a valid ContractStatus
func (s ContractStatus) IsValid() bool {
	switch s {
	case ContractStatusDraft, ContractStatusActive, ContractStatusCompleted, ContractStatusCancelled:
		return true
	}
	return false
}

// FinancingMode is how the buyer chose to pay for the lot
type FinancingMode string

const (
	FinancingModeCash         FinancingMode = "cash"
	FinancingModeInstallments FinancingMode = "installments"
)

// Contract is a signed sale of a lot. Its financial fields are fixed at
// signing; this engine only reads them.
type Contract struct {
	shared.BaseAggregateRoot
	ContractNumber        string
	ClientID              uuid.UUID
	LotID                 uuid.UUID
	TemplateID            *uuid.UUID
	TotalPrice            decimal.Decimal
	DownPayment           decimal.Decimal
	FinancedAmount        decimal.Decimal
	TermMonths            int
	MonthlyPayment        decimal.Decimal
	BalloonPayment        decimal.Decimal
	Currency              valueobject.Currency
	Status                ContractStatus
	FinancingMode         FinancingMode
	RequestedInstallments int
	SignedAt              *time.Time
}

// IsActive reports whether the contract accepts schedule generation
func (c *Contract) IsActive() bool {
	return c.Status == ContractStatusActive
}

// CurrencyOrDefault returns the contract currency, defaulting to PEN
func (c *Contract) CurrencyOrDefault() valueobject.Currency {
	if c.Currency == "" {
		return valueobject.DefaultCurrency
	}
	return c.Currency
}

// Lot is a parcel of land inside a zone (manzana)
type Lot struct {
	ID         uuid.UUID
	Code       string
	ZoneID     uuid.UUID
	TemplateID *uuid.UUID
}
