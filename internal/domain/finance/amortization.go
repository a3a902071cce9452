package finance

import (
	"time"

	"github.com/erp/realty/internal/domain/sales"
	"github.com/shopspring/decimal"
)

// PricingStrategyKind tags one step of the pricing fallback chain
type PricingStrategyKind string

const (
	StrategyInstallmentExact          PricingStrategyKind = "installment_exact"
	StrategyInstallmentFirstAvailable PricingStrategyKind = "installment_first_available"
	StrategyCashPrice                 PricingStrategyKind = "cash_price"
	StrategySalePrice                 PricingStrategyKind = "sale_price"
	StrategyListPrice                 PricingStrategyKind = "list_price"
)

// IsInstallment reports whether the strategy prices a financed plan
func (k PricingStrategyKind) IsInstallment() bool {
	return k == StrategyInstallmentExact || k == StrategyInstallmentFirstAvailable
}

// PricingStrategy is one resolution attempt against a template.
// Count is only meaningful for StrategyInstallmentExact.
type PricingStrategy struct {
	Kind  PricingStrategyKind
	Count int
}

// PricingResolution is the outcome of a matching strategy
type PricingResolution struct {
	Strategy         PricingStrategy
	InstallmentCount int
	Amount           decimal.Decimal // monthly amount for installment kinds, full price otherwise
}

// Resolve evaluates the strategy; ok is false when the template has no
// usable value for it
func (s PricingStrategy) Resolve(t *sales.FinancialTemplate) (PricingResolution, bool) {
	res := PricingResolution{Strategy: s}
	switch s.Kind {
	case StrategyInstallmentExact:
		amount, ok := t.MonthlyFor(s.Count)
		if !ok {
			return res, false
		}
		res.InstallmentCount = s.Count
		res.Amount = amount
		return res, true
	case StrategyInstallmentFirstAvailable:
		counts := t.OptionCounts()
		if len(counts) == 0 {
			return res, false
		}
		res.InstallmentCount = counts[0]
		res.Amount = t.InstallmentOptions[counts[0]]
		return res, true
	case StrategyCashPrice:
		return positive(res, t.CashPrice)
	case StrategySalePrice:
		return positive(res, t.SalePrice)
	case StrategyListPrice:
		return positive(res, t.ListPrice)
	}
	return res, false
}

func positive(res PricingResolution, amount decimal.Decimal) (PricingResolution, bool) {
	if !amount.IsPositive() {
		return res, false
	}
	res.Amount = amount
	return res, true
}

// PricingChain is an ordered list of strategies; the first match wins
type PricingChain []PricingStrategy

// InstallmentChain is the fallback order for a financed sale of count installments
func InstallmentChain(count int) PricingChain {
	return PricingChain{
		{Kind: StrategyInstallmentExact, Count: count},
		{Kind: StrategyInstallmentFirstAvailable},
		{Kind: StrategyCashPrice},
		{Kind: StrategySalePrice},
		{Kind: StrategyListPrice},
	}
}

// CashChain is the fallback order for a cash sale
func CashChain() PricingChain {
	return PricingChain{
		{Kind: StrategyCashPrice},
		{Kind: StrategySalePrice},
		{Kind: StrategyListPrice},
	}
}

// Resolve returns the first matching resolution
func (c PricingChain) Resolve(t *sales.FinancialTemplate) (PricingResolution, bool) {
	for _, s := range c {
		if res, ok := s.Resolve(t); ok {
			return res, true
		}
	}
	return PricingResolution{}, false
}

// PlanInput is everything the planner needs about a contract
type PlanInput struct {
	FinancingMode         sales.FinancingMode
	RequestedInstallments int
	Template              *sales.FinancialTemplate
	Rule                  *sales.FinancingRule
	// ContractDownPayment is used when the template has no fixed down payment
	ContractDownPayment decimal.Decimal
	SignDate            *time.Time
	Now                 time.Time
}

// AmortizationPlan is the resolved financial structure of a contract
type AmortizationPlan struct {
	PaymentType      sales.FinancingMode
	InstallmentCount int
	TotalAmount      decimal.Decimal
	FinancingAmount  decimal.Decimal
	DownPayment      decimal.Decimal
	BalloonAmount    decimal.Decimal
	MonthlyPayment   decimal.Decimal
	StartDate        time.Time
	Strategy         PricingStrategyKind
}

// InstallmentTotal is the part of the financed amount spread over monthly rows
func (p *AmortizationPlan) InstallmentTotal() decimal.Decimal {
	return p.FinancingAmount.Sub(p.BalloonAmount)
}

// IsCash reports whether the plan is a single cash payment
func (p *AmortizationPlan) IsCash() bool {
	return p.PaymentType == sales.FinancingModeCash
}

// AmortizationPlanner resolves contract financing terms against pricing
// templates and zone rules. It performs no I/O.
type AmortizationPlanner struct{}

// NewAmortizationPlanner creates a planner
func NewAmortizationPlanner() *AmortizationPlanner {
	return &AmortizationPlanner{}
}

// Plan resolves the plan for the given input
func (p *AmortizationPlanner) Plan(in PlanInput) (*AmortizationPlan, error) {
	if in.Template == nil {
		return nil, &MissingTemplateError{}
	}

	mode := in.FinancingMode
	if mode == "" {
		mode = sales.FinancingModeInstallments
	}
	if in.Rule.IsCashOnly() {
		mode = sales.FinancingModeCash
	}

	var chain PricingChain
	if mode == sales.FinancingModeInstallments {
		count := in.RequestedInstallments
		if allowed := in.Rule.AllowedInstallmentCounts(); len(allowed) > 0 {
			count = ClosestInstallmentCount(count, allowed)
		}
		chain = InstallmentChain(count)
	} else {
		chain = CashChain()
	}

	res, ok := chain.Resolve(in.Template)
	if !ok {
		return nil, &NoValidPricingError{}
	}

	plan := &AmortizationPlan{
		StartDate: DefaultStartDate(in.SignDate, in.Now),
		Strategy:  res.Strategy.Kind,
	}

	if res.Strategy.Kind.IsInstallment() {
		plan.PaymentType = sales.FinancingModeInstallments
		plan.InstallmentCount = res.InstallmentCount
		plan.MonthlyPayment = res.Amount
		plan.DownPayment = in.Template.DownPayment
		if !plan.DownPayment.IsPositive() {
			plan.DownPayment = in.ContractDownPayment
		}
		if plan.DownPayment.IsNegative() {
			plan.DownPayment = decimal.Zero
		}
		if in.Rule.BalloonAllowed() && in.Template.BalloonAmount.IsPositive() {
			plan.BalloonAmount = in.Template.BalloonAmount
		}
		plan.FinancingAmount = res.Amount.Mul(decimal.NewFromInt(int64(res.InstallmentCount))).Add(plan.BalloonAmount)
		plan.TotalAmount = plan.DownPayment.Add(plan.FinancingAmount)
	} else {
		plan.PaymentType = sales.FinancingModeCash
		plan.TotalAmount = res.Amount
	}

	if !plan.TotalAmount.IsPositive() {
		return nil, &NoValidPricingError{Strategy: plan.Strategy, Total: plan.TotalAmount}
	}
	return plan, nil
}

// ClosestInstallmentCount picks the allowed count nearest to requested.
// allowed must be ascending; on a tie the smaller count wins.
func ClosestInstallmentCount(requested int, allowed []int) int {
	best := allowed[0]
	for _, c := range allowed[1:] {
		if absInt(c-requested) < absInt(best-requested) {
			best = c
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// DefaultStartDate is the first day of the month after signing, or 15 days
// from now when the contract has no sign date
func DefaultStartDate(signDate *time.Time, now time.Time) time.Time {
	if signDate != nil {
		y, m, _ := signDate.Date()
		return time.Date(y, m+1, 1, 0, 0, 0, 0, signDate.Location())
	}
	return dateOnly(now.AddDate(0, 0, 15))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
