package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payReq(arID uuid.UUID, amount string, at time.Time) RecordPaymentRequest {
	return RecordPaymentRequest{
		ReceivableID: arID,
		Amount:       d(amount),
		PaymentDate:  at,
		Method:       string(finance.PaymentMethodTransfer),
		Reference:    "OP-778812",
		ActorID:      uuid.New(),
	}
}

func TestPaymentService_RecordPayment_PartialThenFull(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	ar := env.addReceivable(t, "1000", due, nil)

	first, err := env.paymentSvc.RecordPayment(ctx, payReq(ar.ID, "400", due))
	require.NoError(t, err)
	assert.Equal(t, finance.ReceivableStatusPartial, first.ReceivableStatus)
	assert.True(t, d("600").Equal(first.Outstanding))
	assert.Equal(t, "JE-000001", first.EntryNumber)

	_, err = env.paymentSvc.RecordPayment(ctx, payReq(ar.ID, "700", due))
	var exceeds *finance.AmountExceedsBalanceError
	require.True(t, errors.As(err, &exceeds))
	assert.True(t, d("600").Equal(exceeds.Outstanding))

	stored, err := env.receivables.FindByID(ctx, ar.ID)
	require.NoError(t, err)
	assert.True(t, d("600").Equal(stored.OutstandingAmount), "rejected payment must not change the balance")

	second, err := env.paymentSvc.RecordPayment(ctx, payReq(ar.ID, "600", due))
	require.NoError(t, err)
	assert.Equal(t, finance.ReceivableStatusPaid, second.ReceivableStatus)
	assert.True(t, second.Outstanding.IsZero())

	_, err = env.paymentSvc.RecordPayment(ctx, payReq(ar.ID, "1", due))
	var notPayable *finance.NotPayableError
	require.True(t, errors.As(err, &notPayable))
	assert.Equal(t, finance.ReceivableStatusPaid, notPayable.Status)

	assert.Len(t, env.payments.rows, 2)
	assert.Len(t, env.journal.all(), 2)
	assert.Len(t, env.recorder.ofType(finance.EventTypeReceivablePaid), 1)
	assert.Len(t, env.recorder.ofType(finance.EventTypePaymentRecorded), 2)
}

func TestPaymentService_RecordPayment_LinksJournalEntry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ar := env.addReceivable(t, "250", testNow, nil)

	result, err := env.paymentSvc.RecordPayment(ctx, payReq(ar.ID, "250", testNow))
	require.NoError(t, err)

	payment, err := env.payments.FindByID(ctx, result.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, payment.JournalEntryID)
	assert.Equal(t, result.JournalEntryID, *payment.JournalEntryID)

	entry, err := env.journal.FindByID(ctx, result.JournalEntryID)
	require.NoError(t, err)
	assert.Equal(t, "1041", entry.Lines[0].AccountCode)
	assert.Equal(t, "1213", entry.Lines[1].AccountCode)
	assert.Equal(t, payment.ID, entry.ReferenceID)
}

func TestPaymentService_RecordPayment_MarksScheduleEntryPaid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	contract := env.addContract(t, 12)
	_, err := env.scheduler.GenerateForContract(ctx, contract.ID, uuid.New())
	require.NoError(t, err)

	receivables, err := env.receivables.FindByContract(ctx, contract.ID)
	require.NoError(t, err)
	down := receivables[0]
	require.NotNil(t, down.ScheduleEntryID)

	_, err = env.paymentSvc.RecordPayment(ctx, payReq(down.ID, "2000", testNow))
	require.NoError(t, err)
	row, err := env.schedules.FindByID(ctx, *down.ScheduleEntryID)
	require.NoError(t, err)
	assert.Equal(t, finance.ScheduleStatusPending, row.Status)

	_, err = env.paymentSvc.RecordPayment(ctx, payReq(down.ID, "3000", testNow))
	require.NoError(t, err)
	row, err = env.schedules.FindByID(ctx, *down.ScheduleEntryID)
	require.NoError(t, err)
	assert.Equal(t, finance.ScheduleStatusPaid, row.Status)
	require.NotNil(t, row.PaidDate)
}

func TestPaymentService_RecordPayment_Validation(t *testing.T) {
	env := newTestEnv(t)
	ar := env.addReceivable(t, "100", testNow, nil)

	tests := []struct {
		name string
		req  RecordPaymentRequest
	}{
		{"missing receivable", RecordPaymentRequest{Amount: d("10"), ActorID: uuid.New()}},
		{"missing actor", RecordPaymentRequest{ReceivableID: ar.ID, Amount: d("10")}},
		{"zero amount", RecordPaymentRequest{ReceivableID: ar.ID, Amount: decimal.Zero, ActorID: uuid.New()}},
		{"negative amount", RecordPaymentRequest{ReceivableID: ar.ID, Amount: d("-5"), ActorID: uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.paymentSvc.RecordPayment(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, env.payments.rows)
}

func TestPaymentService_RecordPayment_UnknownReceivable(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.paymentSvc.RecordPayment(context.Background(), payReq(uuid.New(), "10", testNow))
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaymentService_RecordPayment_CancelledReceivable(t *testing.T) {
	env := newTestEnv(t)
	ar := env.addReceivable(t, "100", testNow, nil)
	stored := env.receivables.rows[ar.ID]
	require.NoError(t, stored.Cancel("contract rescinded", testNow))
	env.receivables.rows[ar.ID] = stored

	_, err := env.paymentSvc.RecordPayment(context.Background(), payReq(ar.ID, "10", testNow))
	var notPayable *finance.NotPayableError
	assert.True(t, errors.As(err, &notPayable))
}

func TestPaymentService_RecordPayment_OverdueIsPayable(t *testing.T) {
	env := newTestEnv(t)
	due := testNow.AddDate(0, -1, 0)
	ar := env.addReceivable(t, "100", due, nil)
	stored := env.receivables.rows[ar.ID]
	require.True(t, stored.MarkOverdue(testNow))
	env.receivables.rows[ar.ID] = stored

	result, err := env.paymentSvc.RecordPayment(context.Background(), payReq(ar.ID, "100", testNow))
	require.NoError(t, err)
	assert.Equal(t, finance.ReceivableStatusPaid, result.ReceivableStatus)
}

// failingCountPayments fails the prior-payment lookup used by classification
type failingCountPayments struct {
	*memPayments
}

func (r failingCountPayments) CountPriorCommissionable(context.Context, *finance.CustomerPayment) (int, error) {
	return 0, errors.New("statement timeout")
}

func TestPaymentService_RecordPayment_ClassificationFailureKeepsPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.scope.Payments = failingCountPayments{env.payments}
	ar := env.addReceivable(t, "100", testNow, nil)

	result, err := env.paymentSvc.RecordPayment(ctx, payReq(ar.ID, "100", testNow))
	var cerr *finance.ClassificationError
	require.True(t, errors.As(err, &cerr))
	require.NotNil(t, result)
	assert.Equal(t, result.PaymentID, cerr.PaymentID)
	assert.Nil(t, result.Classification)

	payment, err := env.payments.FindByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.False(t, payment.IsClassified())
	assert.Equal(t, finance.ReceivableStatusPaid, result.ReceivableStatus)
}
