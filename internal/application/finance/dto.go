package finance

import (
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// GenerationResult reports what GenerateForContract did
type GenerationResult struct {
	ContractID         uuid.UUID
	SchedulesCreated   int
	ReceivablesCreated int
	ReceivablesSkipped int
	TotalAmount        decimal.Decimal
	Plan               *finance.AmortizationPlan
	RowErrors          []RowError
}

// RowError is a schedule row whose receivable could not be created
type RowError struct {
	InstallmentNumber int    `json:"installment_number"`
	Error             string `json:"error"`
}

// BulkOptions controls GenerateBulk
type BulkOptions struct {
	// Limit caps the number of contracts; <= 0 processes all
	Limit   int
	ActorID uuid.UUID
}

// BulkResult summarizes a bulk generation run
type BulkResult struct {
	Success   bool              `json:"success"`
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failures  []ContractFailure `json:"failures,omitempty"`
}

// ContractFailure is one contract that failed during a bulk run
type ContractFailure struct {
	ContractID uuid.UUID `json:"contractId"`
	Error      string    `json:"error"`
}

// RecordPaymentRequest is the input for recording a payment
type RecordPaymentRequest struct {
	ReceivableID uuid.UUID       `validate:"required"`
	Amount       decimal.Decimal `validate:"-"`
	PaymentDate  time.Time
	Method       string    `validate:"max=20"`
	Reference    string    `validate:"max=100"`
	ActorID      uuid.UUID `validate:"required"`
}

// RecordPaymentResult is the committed outcome of a payment
type RecordPaymentResult struct {
	PaymentID        uuid.UUID
	JournalEntryID   uuid.UUID
	EntryNumber      string
	ReceivableStatus finance.ReceivableStatus
	Outstanding      decimal.Decimal
	// Classification is nil when classification is disabled or failed
	Classification *ClassificationResult
}

// ClassificationResult is the outcome of classifying one payment
type ClassificationResult struct {
	PaymentID          uuid.UUID
	InstallmentType    finance.InstallmentType
	AffectsCommissions bool
	// CommissionDispatched is true when this call wrote the commission event
	CommissionDispatched bool
	// AlreadyDispatched is true when an earlier call wrote it
	AlreadyDispatched bool
	Metadata          finance.DetectionMetadata
}

// AgingResult summarizes an aging sweep
type AgingResult struct {
	AsOf              time.Time
	ReceivablesMarked int
	SchedulesMarked   int64
}
