package finance

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NoValidPricingError is returned when planning cannot resolve a positive amount
type NoValidPricingError struct {
	Strategy PricingStrategyKind
	Total    decimal.Decimal
}

func (e *NoValidPricingError) Error() string {
	if e.Strategy == "" {
		return "no valid pricing: no strategy matched"
	}
	return fmt.Sprintf("no valid pricing: %s resolved total %s", e.Strategy, e.Total.StringFixed(2))
}

// MissingTemplateError is returned when a lot has no pricing template
type MissingTemplateError struct {
	ContractID uuid.UUID
	LotID      uuid.UUID
}

func (e *MissingTemplateError) Error() string {
	return fmt.Sprintf("missing financial template for lot %s (contract %s)", e.LotID, e.ContractID)
}

// NotPayableError is returned when a receivable cannot accept payments
type NotPayableError struct {
	ReceivableID uuid.UUID
	Status       ReceivableStatus
}

func (e *NotPayableError) Error() string {
	return fmt.Sprintf("receivable %s is not payable in %s status", e.ReceivableID, e.Status)
}

// AmountExceedsBalanceError is returned on an overpayment attempt
type AmountExceedsBalanceError struct {
	ReceivableID uuid.UUID
	Amount       decimal.Decimal
	Outstanding  decimal.Decimal
}

func (e *AmountExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment amount %s exceeds outstanding balance %s of receivable %s",
		e.Amount.StringFixed(2), e.Outstanding.StringFixed(2), e.ReceivableID)
}

// UnbalancedJournalEntryError is returned when debits and credits differ
type UnbalancedJournalEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedJournalEntryError) Error() string {
	return fmt.Sprintf("unbalanced journal entry: debit %s != credit %s",
		e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// ClassificationError wraps an unexpected failure while classifying a payment
type ClassificationError struct {
	PaymentID uuid.UUID
	Err       error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("failed to classify payment %s: %v", e.PaymentID, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}
