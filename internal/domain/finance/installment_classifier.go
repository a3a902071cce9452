package finance

import (
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Commission eligibility defaults
const (
	DefaultGraceDays = 5
)

// DefaultMinAmountRatio is the share of the receivable a payment must cover
var DefaultMinAmountRatio = decimal.RequireFromString("0.90")

// Classification is the classifier's verdict for one payment
type Classification struct {
	Type               InstallmentType
	AffectsCommissions bool
	Metadata           DetectionMetadata
}

// InstallmentClassifier decides the commission position of a payment.
type InstallmentClassifier struct {
	MinAmountRatio decimal.Decimal
	GraceDays      int
}

// NewInstallmentClassifier creates a classifier. A non-positive ratio or a
// negative grace period takes the default; zero grace days means none.
func NewInstallmentClassifier(minAmountRatio decimal.Decimal, graceDays int) InstallmentClassifier {
	if !minAmountRatio.IsPositive() {
		minAmountRatio = DefaultMinAmountRatio
	}
	if graceDays < 0 {
		graceDays = DefaultGraceDays
	}
	return InstallmentClassifier{MinAmountRatio: minAmountRatio, GraceDays: graceDays}
}

// Classify evaluates payment against its receivable.
//
// priorCommissionable is the number of earlier payments on the same contract
// that already affect commissions: 0 means first, 1 second, anything more
// regular. A payment that misses the minimum amount or the grace period keeps
// its position but does not affect commissions.
func (c InstallmentClassifier) Classify(payment *CustomerPayment, ar *AccountReceivable, priorCommissionable int) (Classification, error) {
	if payment == nil || ar == nil {
		return Classification{}, shared.NewDomainError("INVALID_INPUT", "Payment and receivable are required")
	}
	if payment.ReceivableID != ar.ID {
		return Classification{}, shared.NewDomainError("RECEIVABLE_MISMATCH", "Payment does not belong to the receivable")
	}
	if !ar.OriginalAmount.IsPositive() {
		return Classification{}, shared.NewDomainError("INVALID_AMOUNT", "Receivable original amount must be positive")
	}
	if priorCommissionable < 0 {
		return Classification{}, shared.NewDomainError("INVALID_INPUT", "Prior payment count cannot be negative")
	}

	var typ InstallmentType
	switch priorCommissionable {
	case 0:
		typ = InstallmentTypeFirst
	case 1:
		typ = InstallmentTypeSecond
	default:
		typ = InstallmentTypeRegular
	}

	meta := DetectionMetadata{
		PriorCommissionable: priorCommissionable,
		AmountRatio:         payment.Amount.Div(ar.OriginalAmount).Round(6),
		MinAmountRatio:      c.MinAmountRatio,
		GraceDays:           c.GraceDays,
		ReceivableOriginal:  ar.OriginalAmount,
		MeetsMinimumAmount:  c.MeetsMinimumAmount(payment.Amount, ar.OriginalAmount),
		WithinGracePeriod:   true,
	}
	if ar.DueDate != nil {
		days := CalendarDaysBetween(*ar.DueDate, payment.PaymentDate)
		meta.DaysAfterDue = &days
		meta.WithinGracePeriod = days <= c.GraceDays
	}

	return Classification{
		Type:               typ,
		AffectsCommissions: typ.IsCommissionRelevant() && meta.MeetsMinimumAmount && meta.WithinGracePeriod,
		Metadata:           meta,
	}, nil
}

// MeetsMinimumAmount reports amount >= ratio * original, compared exactly
func (c InstallmentClassifier) MeetsMinimumAmount(amount, original decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(original.Mul(c.MinAmountRatio))
}

// CalendarDaysBetween counts calendar days from a to b, read in a's location.
// Time of day is ignored, so anything on the due date itself is day 0.
func CalendarDaysBetween(a, b time.Time) int {
	loc := a.Location()
	ay, am, ad := a.Date()
	by, bm, bd := b.In(loc).Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
