package sales

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FinancialTemplate holds the price list of a lot
type FinancialTemplate struct {
	ID                 uuid.UUID
	LotID              *uuid.UUID
	ListPrice          decimal.Decimal
	SalePrice          decimal.Decimal
	CashPrice          decimal.Decimal
	DownPayment        decimal.Decimal
	BalloonAmount      decimal.Decimal
	InstallmentOptions map[int]decimal.Decimal
}

// OptionCounts returns the installment counts that carry a positive monthly
// amount, in ascending order
func (t *FinancialTemplate) OptionCounts() []int {
	counts := make([]int, 0, len(t.InstallmentOptions))
	for n, amount := range t.InstallmentOptions {
		if n > 0 && amount.IsPositive() {
			counts = append(counts, n)
		}
	}
	slices.Sort(counts)
	return counts
}

// MonthlyFor returns the configured monthly amount for n installments
func (t *FinancialTemplate) MonthlyFor(n int) (decimal.Decimal, bool) {
	amount, ok := t.InstallmentOptions[n]
	if !ok || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

// RuleMode is the financing policy of a zone
type RuleMode string

const (
	RuleModeCashOnly     RuleMode = "cash_only"
	RuleModeInstallments RuleMode = "installments"
)

// DefaultInstallmentStep is the spacing between allowed installment counts
const DefaultInstallmentStep = 12

// FinancingRule constrains the payment structures available in a zone
type FinancingRule struct {
	ID                     uuid.UUID
	ZoneID                 uuid.UUID
	Mode                   RuleMode
	MaxInstallments        int
	InstallmentStep        int
	AllowsBalloon          bool
	AllowsBonusDownPayment bool
}

// IsCashOnly reports whether the zone forbids financing
func (r *FinancingRule) IsCashOnly() bool {
	return r != nil && r.Mode == RuleModeCashOnly
}

// AllowedInstallmentCounts derives step, 2*step, ... up to MaxInstallments.
// A nil rule or a zero maximum returns nil, meaning no restriction.
func (r *FinancingRule) AllowedInstallmentCounts() []int {
	if r == nil || r.MaxInstallments <= 0 {
		return nil
	}
	step := r.InstallmentStep
	if step <= 0 {
		step = DefaultInstallmentStep
	}
	counts := make([]int, 0, r.MaxInstallments/step+1)
	for n := step; n <= r.MaxInstallments; n += step {
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		counts = append(counts, r.MaxInstallments)
	}
	return counts
}

// BalloonAllowed reports whether a balloon payment may be scheduled
func (r *FinancingRule) BalloonAllowed() bool {
	return r == nil || r.AllowsBalloon
}
