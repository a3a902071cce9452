package finance

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var arNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func pen(s string) valueobject.Money {
	return valueobject.MustMoney(d(s), valueobject.PEN)
}

// Test helpers
func createTestReceivable(t *testing.T, amount string) *AccountReceivable {
	contractID := uuid.New()
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ar, err := NewAccountReceivable(
		"AR-00000001",
		uuid.New(),
		ReceivableSource{ContractID: &contractID, Description: "Installment 1"},
		pen(amount),
		&due,
		uuid.New(),
		arNow,
	)
	require.NoError(t, err)
	return ar
}

// ============================================
// ReceivableStatus Tests
// ============================================

func TestReceivableStatus_CanApplyPayment(t *testing.T) {
	tests := []struct {
		status   ReceivableStatus
		canApply bool
	}{
		{ReceivableStatusPending, true},
		{ReceivableStatusPartial, true},
		{ReceivableStatusOverdue, true},
		{ReceivableStatusPaid, false},
		{ReceivableStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.canApply, tt.status.CanApplyPayment())
		})
	}
}

func TestReceivableStatus_IsValid(t *testing.T) {
	assert.True(t, ReceivableStatusOverdue.IsValid())
	assert.False(t, ReceivableStatus("REVERSED").IsValid())
	assert.False(t, ReceivableStatus("").IsValid())
}

// ============================================
// Constructor Tests
// ============================================

func TestNewAccountReceivable(t *testing.T) {
	t.Run("creates pending receivable", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")

		assert.Equal(t, ReceivableStatusPending, ar.Status)
		assert.True(t, ar.OriginalAmount.Equal(d("1000")))
		assert.True(t, ar.OutstandingAmount.Equal(d("1000")))
		assert.True(t, ar.PaidAmount.IsZero())
		assert.Equal(t, valueobject.PEN, ar.Currency)
		require.Len(t, ar.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeReceivableCreated, ar.GetDomainEvents()[0].EventType())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := NewAccountReceivable("", uuid.New(), ReceivableSource{}, pen("1"), nil, uuid.Nil, arNow)
		assert.Error(t, err)

		_, err = NewAccountReceivable("AR-1", uuid.Nil, ReceivableSource{}, pen("1"), nil, uuid.Nil, arNow)
		assert.Error(t, err)

		_, err = NewAccountReceivable("AR-1", uuid.New(), ReceivableSource{}, pen("0"), nil, uuid.Nil, arNow)
		assert.Error(t, err)
	})
}

// ============================================
// ApplyPayment Tests
// ============================================

func TestAccountReceivable_ApplyPayment(t *testing.T) {
	t.Run("full payment marks paid", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		ar.ClearDomainEvents()

		require.NoError(t, ar.ApplyPayment(pen("1000"), uuid.New(), arNow))

		assert.Equal(t, ReceivableStatusPaid, ar.Status)
		assert.True(t, ar.OutstandingAmount.IsZero())
		assert.NotNil(t, ar.PaidAt)
		assert.Equal(t, 2, ar.Version)
		require.Len(t, ar.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeReceivablePaid, ar.GetDomainEvents()[0].EventType())
	})

	t.Run("partial payment marks partial", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")

		require.NoError(t, ar.ApplyPayment(pen("400"), uuid.New(), arNow))
		assert.Equal(t, ReceivableStatusPartial, ar.Status)
		assert.True(t, ar.OutstandingAmount.Equal(d("600")))

		require.NoError(t, ar.ApplyPayment(pen("600"), uuid.New(), arNow))
		assert.Equal(t, ReceivableStatusPaid, ar.Status)
	})

	t.Run("overdue receivable accepts payment", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		require.True(t, ar.MarkOverdue(arNow.AddDate(0, 0, 1)))

		require.NoError(t, ar.ApplyPayment(pen("100"), uuid.New(), arNow))
		assert.Equal(t, ReceivableStatusPartial, ar.Status)
	})

	t.Run("overpayment is rejected without changes", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")

		err := ar.ApplyPayment(pen("1000.01"), uuid.New(), arNow)
		var target *AmountExceedsBalanceError
		require.True(t, errors.As(err, &target))
		assert.True(t, target.Outstanding.Equal(d("1000")))
		assert.True(t, ar.OutstandingAmount.Equal(d("1000")))
		assert.Equal(t, ReceivableStatusPending, ar.Status)
	})

	t.Run("paid receivable is not payable", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		require.NoError(t, ar.ApplyPayment(pen("1000"), uuid.New(), arNow))

		err := ar.ApplyPayment(pen("1"), uuid.New(), arNow)
		var target *NotPayableError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, ReceivableStatusPaid, target.Status)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		err := ar.ApplyPayment(valueobject.MustMoney(d("10"), valueobject.USD), uuid.New(), arNow)
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "CURRENCY_MISMATCH", de.Code)
	})

	t.Run("outstanding stays within bounds", func(t *testing.T) {
		ar := createTestReceivable(t, "100")
		for range 4 {
			require.NoError(t, ar.ApplyPayment(pen("25"), uuid.New(), arNow))
			assert.True(t, ar.OutstandingAmount.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, ar.OutstandingAmount.LessThanOrEqual(ar.OriginalAmount))
		}
		assert.True(t, ar.IsPaid())
	})
}

// ============================================
// Aging and Cancel Tests
// ============================================

func TestAccountReceivable_MarkOverdue(t *testing.T) {
	ar := createTestReceivable(t, "1000")

	assert.False(t, ar.MarkOverdue(*ar.DueDate))
	assert.True(t, ar.MarkOverdue(ar.DueDate.AddDate(0, 0, 1)))
	assert.Equal(t, ReceivableStatusOverdue, ar.Status)
	assert.False(t, ar.MarkOverdue(ar.DueDate.AddDate(0, 0, 2)))
	assert.Equal(t, 10, ar.DaysOverdue(ar.DueDate.AddDate(0, 0, 10)))
}

func TestAccountReceivable_Cancel(t *testing.T) {
	t.Run("cancels unpaid receivable", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		require.NoError(t, ar.Cancel("contract rescinded", arNow))
		assert.Equal(t, ReceivableStatusCancelled, ar.Status)
		assert.NotNil(t, ar.CancelledAt)
	})

	t.Run("rejects receivable with payments", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		require.NoError(t, ar.ApplyPayment(pen("1"), uuid.New(), arNow))

		err := ar.Cancel("contract rescinded", arNow)
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "HAS_PAYMENTS", de.Code)
	})

	t.Run("requires reason", func(t *testing.T) {
		ar := createTestReceivable(t, "1000")
		assert.Error(t, ar.Cancel("", arNow))
	})
}
