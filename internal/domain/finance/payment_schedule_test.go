package finance

import (
	"testing"
	"time"

	"github.com/erp/realty/internal/domain/sales"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installmentPlan(count int, monthly, down, balloon string) *AmortizationPlan {
	m := d(monthly)
	b := d(balloon)
	financing := m.Mul(decimal.NewFromInt(int64(count))).Add(b)
	return &AmortizationPlan{
		PaymentType:      sales.FinancingModeInstallments,
		InstallmentCount: count,
		MonthlyPayment:   m,
		DownPayment:      d(down),
		BalloonAmount:    b,
		FinancingAmount:  financing,
		TotalAmount:      financing.Add(d(down)),
		StartDate:        time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildSchedule_Installments(t *testing.T) {
	contractID := uuid.New()
	downDue := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	plan := installmentPlan(12, "6900", "20000", "5000")

	entries, err := BuildSchedule(plan, ScheduleParams{
		ContractID:     contractID,
		Currency:       valueobject.PEN,
		DownPaymentDue: downDue,
		Now:            planNow,
	})
	require.NoError(t, err)
	require.Len(t, entries, 14)

	down := entries[0]
	assert.Equal(t, ScheduleTypeDownPayment, down.Type)
	assert.Equal(t, 0, down.InstallmentNumber)
	assert.Equal(t, downDue, down.DueDate)
	assert.True(t, down.Amount.Equal(d("20000")))

	for i := 1; i <= 12; i++ {
		e := entries[i]
		assert.Equal(t, ScheduleTypeInstallment, e.Type)
		assert.Equal(t, i, e.InstallmentNumber)
		assert.Equal(t, plan.StartDate.AddDate(0, i-1, 0), e.DueDate)
		assert.True(t, e.Amount.Equal(d("6900")))
		assert.Equal(t, ScheduleStatusPending, e.Status)
		assert.Equal(t, contractID, e.ContractID)
	}

	balloon := entries[13]
	assert.Equal(t, ScheduleTypeBalloon, balloon.Type)
	assert.Equal(t, entries[12].DueDate, balloon.DueDate)
	assert.True(t, balloon.Amount.Equal(d("5000")))

	assert.True(t, ScheduleTotal(entries).Equal(plan.TotalAmount))
}

func TestBuildSchedule_RemainderOnLastRow(t *testing.T) {
	plan := installmentPlan(3, "0", "0", "0")
	plan.FinancingAmount = d("1000")
	plan.TotalAmount = d("1000")

	entries, err := BuildSchedule(plan, ScheduleParams{ContractID: uuid.New(), Now: planNow})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "333.33", entries[0].Amount.StringFixed(2))
	assert.Equal(t, "333.33", entries[1].Amount.StringFixed(2))
	assert.Equal(t, "333.34", entries[2].Amount.StringFixed(2))
	assert.True(t, ScheduleTotal(entries).Equal(d("1000")))
	assert.Equal(t, valueobject.PEN, entries[0].Currency)
}

func TestBuildSchedule_SubCentMonthlyPayment(t *testing.T) {
	plan := installmentPlan(12, "833.3333", "0", "0")

	entries, err := BuildSchedule(plan, ScheduleParams{ContractID: uuid.New(), Now: planNow})
	require.NoError(t, err)
	require.Len(t, entries, 12)

	for _, e := range entries {
		assert.True(t, e.Amount.Equal(e.Amount.Round(2)), "row %d carries %s", e.InstallmentNumber, e.Amount)
	}
	assert.Equal(t, "833.33", entries[0].Amount.StringFixed(2))
	last := entries[11].Amount
	assert.Equal(t, int32(-2), last.Exponent())
	assert.Equal(t, "833.37", last.String())
	assert.True(t, ScheduleTotal(entries).Equal(d("10000.00")))
}

func TestBuildSchedule_Cash(t *testing.T) {
	plan := &AmortizationPlan{
		PaymentType: sales.FinancingModeCash,
		TotalAmount: d("95000"),
		StartDate:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	entries, err := BuildSchedule(plan, ScheduleParams{ContractID: uuid.New(), Currency: valueobject.USD, Now: planNow})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ScheduleTypeInstallment, entries[0].Type)
	assert.Equal(t, plan.StartDate, entries[0].DueDate)
	assert.True(t, entries[0].Amount.Equal(d("95000")))
	assert.Equal(t, valueobject.USD, entries[0].Currency)
}

func TestBuildSchedule_Invalid(t *testing.T) {
	_, err := BuildSchedule(nil, ScheduleParams{ContractID: uuid.New()})
	assert.Error(t, err)

	_, err = BuildSchedule(installmentPlan(12, "100", "0", "0"), ScheduleParams{})
	assert.Error(t, err)

	_, err = BuildSchedule(installmentPlan(0, "100", "0", "0"), ScheduleParams{ContractID: uuid.New()})
	assert.Error(t, err)
}

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), addMonths(start, 1))
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), addMonths(start, 2))
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), addMonths(start, 3))
}

func TestScheduleEntry_Status(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	e := &ScheduleEntry{DueDate: due, Status: ScheduleStatusPending}

	assert.False(t, e.MarkOverdue(due))
	assert.True(t, e.MarkOverdue(due.Add(time.Hour)))
	assert.Equal(t, ScheduleStatusOverdue, e.Status)

	paidAt := due.AddDate(0, 0, 3)
	require.NoError(t, e.MarkPaid(paidAt))
	assert.Equal(t, ScheduleStatusPaid, e.Status)
	assert.Equal(t, &paidAt, e.PaidDate)

	cancelled := &ScheduleEntry{Status: ScheduleStatusCancelled}
	assert.Error(t, cancelled.MarkPaid(paidAt))
}
