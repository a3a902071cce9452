package finance

import (
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScheduleType is the kind of obligation a schedule row represents
type ScheduleType string

const (
	ScheduleTypeDownPayment ScheduleType = "down_payment"
	ScheduleTypeInstallment ScheduleType = "installment"
	ScheduleTypeBalloon     ScheduleType = "balloon"
)

// ScheduleStatus is the payment state of a schedule row
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusPaid      ScheduleStatus = "paid"
	ScheduleStatusOverdue   ScheduleStatus = "overdue"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// ScheduleEntry is one dated obligation within a contract's payment plan
type ScheduleEntry struct {
	shared.BaseEntity
	ContractID        uuid.UUID
	InstallmentNumber int
	DueDate           time.Time
	Amount            decimal.Decimal
	Currency          valueobject.Currency
	Type              ScheduleType
	Status            ScheduleStatus
	PaidDate          *time.Time
}

// ReceivableKey is the idempotency key of the receivable derived from this row
func (e *ScheduleEntry) ReceivableKey() ReceivableKey {
	return ReceivableKey{ContractID: e.ContractID, DueDate: e.DueDate, Amount: e.Amount}
}

// MarkPaid records that the obligation was settled
func (e *ScheduleEntry) MarkPaid(at time.Time) error {
	if e.Status == ScheduleStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot pay a cancelled schedule entry")
	}
	if e.Status == ScheduleStatusPaid {
		return nil
	}
	e.Status = ScheduleStatusPaid
	e.PaidDate = &at
	e.UpdatedAt = at
	return nil
}

// MarkOverdue flags a pending row whose due date has passed
func (e *ScheduleEntry) MarkOverdue(asOf time.Time) bool {
	if e.Status != ScheduleStatusPending || !e.DueDate.Before(asOf) {
		return false
	}
	e.Status = ScheduleStatusOverdue
	e.UpdatedAt = asOf
	return true
}

// ReceivableKey identifies the receivable created for a schedule row
type ReceivableKey struct {
	ContractID uuid.UUID
	DueDate    time.Time
	Amount     decimal.Decimal
}

// ScheduleParams carries the contract data needed to lay out rows
type ScheduleParams struct {
	ContractID uuid.UUID
	Currency   valueobject.Currency
	// DownPaymentDue is when the down payment row falls due
	DownPaymentDue time.Time
	Now            time.Time
}

// BuildSchedule lays out the ordered schedule rows for a plan.
//
// Installments are numbered from 1 and the down payment is row 0. Monthly
// rows split the installment total evenly, the last row absorbing the
// rounding remainder. A balloon row shares the final due date. Cash plans
// produce a single installment row for the full amount on the start date.
func BuildSchedule(plan *AmortizationPlan, params ScheduleParams) ([]ScheduleEntry, error) {
	if plan == nil {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan cannot be nil")
	}
	if params.ContractID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CONTRACT", "Contract ID cannot be empty")
	}
	currency := params.Currency
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	newEntry := func(n int, due time.Time, amount decimal.Decimal, typ ScheduleType) ScheduleEntry {
		return ScheduleEntry{
			BaseEntity:        shared.NewBaseEntity(params.Now),
			ContractID:        params.ContractID,
			InstallmentNumber: n,
			DueDate:           due,
			Amount:            amount,
			Currency:          currency,
			Type:              typ,
			Status:            ScheduleStatusPending,
		}
	}

	if plan.IsCash() {
		return []ScheduleEntry{newEntry(1, plan.StartDate, plan.TotalAmount.Round(2), ScheduleTypeInstallment)}, nil
	}

	if plan.InstallmentCount <= 0 {
		return nil, shared.NewDomainError("INVALID_PLAN", fmt.Sprintf("Installment plan must have at least one installment, got %d", plan.InstallmentCount))
	}

	entries := make([]ScheduleEntry, 0, plan.InstallmentCount+2)
	if plan.DownPayment.IsPositive() {
		due := params.DownPaymentDue
		if due.IsZero() {
			due = dateOnly(params.Now)
		}
		entries = append(entries, newEntry(0, due, plan.DownPayment.Round(2), ScheduleTypeDownPayment))
	}

	installmentTotal, err := valueobject.NewMoney(plan.InstallmentTotal().Round(2), currency)
	if err != nil {
		return nil, err
	}
	parts, err := installmentTotal.SplitEven(plan.InstallmentCount)
	if err != nil {
		return nil, err
	}
	var lastDue time.Time
	for i, part := range parts {
		lastDue = addMonths(plan.StartDate, i)
		entries = append(entries, newEntry(i+1, lastDue, part.Amount(), ScheduleTypeInstallment))
	}

	if plan.BalloonAmount.IsPositive() {
		entries = append(entries, newEntry(plan.InstallmentCount+1, lastDue, plan.BalloonAmount.Round(2), ScheduleTypeBalloon))
	}
	return entries, nil
}

// ScheduleTotal sums the amounts of the given rows
func ScheduleTotal(entries []ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// addMonths moves t forward n calendar months, clamping to the last day of
// the target month so a 31st start never skips a month
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}
