package finance

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/sales"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memSchedules is an in-memory PaymentScheduleRepository
type memSchedules struct {
	mu   sync.Mutex
	rows map[uuid.UUID]finance.ScheduleEntry
}

func (r *memSchedules) SaveBatch(_ context.Context, entries []finance.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.rows[e.ID] = e
	}
	return nil
}

func (r *memSchedules) FindByID(_ context.Context, id uuid.UUID) (*finance.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &e, nil
}

func (r *memSchedules) FindByContract(_ context.Context, contractID uuid.UUID) ([]finance.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []finance.ScheduleEntry
	for _, e := range r.rows {
		if e.ContractID == contractID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNumber < out[j].InstallmentNumber })
	return out, nil
}

func (r *memSchedules) Update(_ context.Context, entry *finance.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[entry.ID] = *entry
	return nil
}

func (r *memSchedules) MarkOverdue(_ context.Context, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.rows {
		if e.MarkOverdue(asOf) {
			r.rows[id] = e
			n++
		}
	}
	return n, nil
}

// memReceivables is an in-memory AccountReceivableRepository
type memReceivables struct {
	mu   sync.Mutex
	rows map[uuid.UUID]finance.AccountReceivable
	// staleKeys makes ExistsByKey miss rows, as when a concurrent insert is
	// not yet visible
	staleKeys bool
}

func (r *memReceivables) FindByID(_ context.Context, id uuid.UUID) (*finance.AccountReceivable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ar, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &ar, nil
}

func (r *memReceivables) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*finance.AccountReceivable, error) {
	return r.FindByID(ctx, id)
}

func (r *memReceivables) FindByContract(_ context.Context, contractID uuid.UUID) ([]finance.AccountReceivable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []finance.AccountReceivable
	for _, ar := range r.rows {
		if ar.ContractID != nil && *ar.ContractID == contractID {
			out = append(out, ar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivableNumber < out[j].ReceivableNumber })
	return out, nil
}

func (r *memReceivables) ExistsByKey(_ context.Context, contractID uuid.UUID, dueDate time.Time, amount decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleKeys {
		return false, nil
	}
	return r.hasKey(contractID, dueDate, amount), nil
}

func (r *memReceivables) hasKey(contractID uuid.UUID, dueDate time.Time, amount decimal.Decimal) bool {
	for _, ar := range r.rows {
		if ar.ContractID != nil && *ar.ContractID == contractID &&
			ar.DueDate != nil && ar.DueDate.Equal(dueDate) &&
			ar.OriginalAmount.Equal(amount) {
			return true
		}
	}
	return false
}

func (r *memReceivables) FindAgingCandidates(_ context.Context, asOf time.Time, limit int) ([]finance.AccountReceivable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []finance.AccountReceivable
	for _, ar := range r.rows {
		if (ar.Status == finance.ReceivableStatusPending || ar.Status == finance.ReceivableStatusPartial) &&
			ar.DueDate != nil && ar.DueDate.Before(asOf) {
			out = append(out, ar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivableNumber < out[j].ReceivableNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memReceivables) Save(_ context.Context, ar *finance.AccountReceivable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[ar.ID]; ok {
		return shared.ErrAlreadyExists
	}
	if ar.ContractID != nil && ar.DueDate != nil && r.hasKey(*ar.ContractID, *ar.DueDate, ar.OriginalAmount) {
		return shared.ErrAlreadyExists
	}
	r.rows[ar.ID] = *ar
	return nil
}

func (r *memReceivables) Update(_ context.Context, ar *finance.AccountReceivable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[ar.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != ar.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.rows[ar.ID] = *ar
	return nil
}

// memLocker records the contracts locked through it
type memLocker struct {
	mu     sync.Mutex
	locked []uuid.UUID
}

func (l *memLocker) LockContract(_ context.Context, contractID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = append(l.locked, contractID)
	return nil
}

func (l *memLocker) count(contractID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, id := range l.locked {
		if id == contractID {
			n++
		}
	}
	return n
}

// memPayments is an in-memory CustomerPaymentRepository
type memPayments struct {
	mu   sync.Mutex
	rows map[uuid.UUID]finance.CustomerPayment
}

func (r *memPayments) FindByID(_ context.Context, id uuid.UUID) (*finance.CustomerPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *memPayments) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*finance.CustomerPayment, error) {
	return r.FindByID(ctx, id)
}

func (r *memPayments) FindByContract(_ context.Context, contractID uuid.UUID) ([]finance.CustomerPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []finance.CustomerPayment
	for _, p := range r.rows {
		if p.ContractID != nil && *p.ContractID == contractID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDate.Before(out[j].PaymentDate) })
	return out, nil
}

func (r *memPayments) CountPriorCommissionable(_ context.Context, p *finance.CustomerPayment) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, other := range r.rows {
		if other.ID == p.ID || !other.AffectsCommissions || !other.PaymentDate.Before(p.PaymentDate) {
			continue
		}
		if p.ContractID != nil {
			if other.ContractID != nil && *other.ContractID == *p.ContractID {
				n++
			}
		} else if other.ReceivableID == p.ReceivableID {
			n++
		}
	}
	return n, nil
}

func (r *memPayments) Save(_ context.Context, p *finance.CustomerPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = *p
	return nil
}

func (r *memPayments) Update(_ context.Context, p *finance.CustomerPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = *p
	return nil
}

// memJournal is an in-memory JournalEntryRepository
type memJournal struct {
	mu      sync.Mutex
	entries []finance.JournalEntry
}

func (r *memJournal) Save(_ context.Context, entry *finance.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memJournal) FindByID(_ context.Context, id uuid.UUID) (*finance.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memJournal) FindByReference(_ context.Context, refType finance.ReferenceType, refID uuid.UUID) ([]finance.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []finance.JournalEntry
	for _, e := range r.entries {
		if e.ReferenceType == refType && e.ReferenceID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memJournal) FindReversalOf(_ context.Context, entryID uuid.UUID) (*finance.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ReversesEntryID != nil && *e.ReversesEntryID == entryID {
			return &e, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memJournal) all() []finance.JournalEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finance.JournalEntry(nil), r.entries...)
}

// memChart resolves codes from a fixed map
type memChart struct {
	ids map[string]uuid.UUID
}

func newMemChart(codes ...string) *memChart {
	c := &memChart{ids: make(map[string]uuid.UUID)}
	for _, code := range codes {
		c.ids[code] = uuid.New()
	}
	return c
}

func (c *memChart) AccountIDForCode(_ context.Context, code string) (uuid.UUID, error) {
	id, ok := c.ids[code]
	if !ok {
		return uuid.Nil, shared.ErrNotFound
	}
	return id, nil
}

// memCounter hands out increasing numbers per sequence
type memCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func (c *memCounter) Next(_ context.Context, sequence string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[sequence]++
	return c.values[sequence], nil
}

// memRecorder keeps recorded events and rejects duplicate ids in RecordOnce
type memRecorder struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *memRecorder) Record(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memRecorder) RecordOnce(_ context.Context, event shared.DomainEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventID() == event.EventID() {
			return false, nil
		}
	}
	r.events = append(r.events, event)
	return true, nil
}

func (r *memRecorder) ofType(eventType string) []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// memSales serves contracts, lots, templates and rules from maps
type memSales struct {
	contracts map[uuid.UUID]*sales.Contract
	lots      map[uuid.UUID]*sales.Lot
	templates map[uuid.UUID]*sales.FinancialTemplate
	rules     map[uuid.UUID]*sales.FinancingRule
}

func newMemSales() *memSales {
	return &memSales{
		contracts: make(map[uuid.UUID]*sales.Contract),
		lots:      make(map[uuid.UUID]*sales.Lot),
		templates: make(map[uuid.UUID]*sales.FinancialTemplate),
		rules:     make(map[uuid.UUID]*sales.FinancingRule),
	}
}

func (m *memSales) FindByID(_ context.Context, id uuid.UUID) (*sales.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (m *memSales) FindActiveWithoutSchedule(_ context.Context, limit int) ([]sales.Contract, error) {
	var out []sales.Contract
	for _, c := range m.contracts {
		if c.IsActive() {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractNumber < out[j].ContractNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memLots struct{ m *memSales }

func (l memLots) FindByID(_ context.Context, id uuid.UUID) (*sales.Lot, error) {
	lot, ok := l.m.lots[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return lot, nil
}

func (m *memSales) FindTemplateByID(_ context.Context, id uuid.UUID) (*sales.FinancialTemplate, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return t, nil
}

func (m *memSales) FindTemplateByLot(_ context.Context, lotID uuid.UUID) (*sales.FinancialTemplate, error) {
	for _, t := range m.templates {
		if t.LotID != nil && *t.LotID == lotID {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memSales) FindRuleByZone(_ context.Context, zoneID uuid.UUID) (*sales.FinancingRule, error) {
	r, ok := m.rules[zoneID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

// MockCommissionSink is a mock implementation of CommissionSink
type MockCommissionSink struct {
	mock.Mock
}

func (m *MockCommissionSink) Trigger(ctx context.Context, trigger CommissionTrigger) error {
	args := m.Called(ctx, trigger)
	return args.Error(0)
}

// MockChartOfAccounts is a mock implementation of ChartOfAccounts
type MockChartOfAccounts struct {
	mock.Mock
}

func (m *MockChartOfAccounts) AccountIDForCode(ctx context.Context, code string) (uuid.UUID, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

// testEnv wires every service against in-memory repositories
type testEnv struct {
	scope       *NoOpTransactionScope
	schedules   *memSchedules
	receivables *memReceivables
	payments    *memPayments
	journal     *memJournal
	chart       *memChart
	recorder    *memRecorder
	locker      *memLocker
	sales       *memSales
	clock       *shared.FixedClock

	ledger         *LedgerService
	scheduler      *ScheduleService
	classification *ClassificationService
	paymentSvc     *PaymentService
	aging          *AgingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codes := finance.DefaultAccountCodes()
	env := &testEnv{
		schedules:   &memSchedules{rows: make(map[uuid.UUID]finance.ScheduleEntry)},
		receivables: &memReceivables{rows: make(map[uuid.UUID]finance.AccountReceivable)},
		payments:    &memPayments{rows: make(map[uuid.UUID]finance.CustomerPayment)},
		journal:     &memJournal{},
		chart: newMemChart("1011", "1041", "1031", "1042", "1043", "1044", "1045", "1049",
			codes.ReceivableControl, codes.SalesRevenue),
		recorder: &memRecorder{},
		locker:   &memLocker{},
		sales:    newMemSales(),
		clock:    &shared.FixedClock{T: testNow},
	}
	env.scope = &NoOpTransactionScope{
		Schedules:   env.schedules,
		Receivables: env.receivables,
		Payments:    env.payments,
		Journal:     env.journal,
		Chart:       env.chart,
		Counter:     &memCounter{values: make(map[string]int64)},
		Locker:      env.locker,
		Recorder:    env.recorder,
	}

	logger := zap.NewNop()
	env.ledger = NewLedgerService(logger, WithLedgerClock(env.clock))
	env.scheduler = NewScheduleService(env.sales, memLots{env.sales}, env.sales, env.scope, env.ledger, logger,
		WithScheduleClock(env.clock))
	env.classification = NewClassificationService(env.scope, logger, WithClassificationClock(env.clock))
	env.paymentSvc = NewPaymentService(env.scope, env.ledger, logger,
		WithPaymentClock(env.clock), WithClassification(env.classification))
	env.aging = NewAgingService(env.scope, 2, logger)
	return env
}

// addContract registers an active installment contract on a lot with a
// template offering 12 and 24 installments
func (env *testEnv) addContract(t *testing.T, requested int) *sales.Contract {
	t.Helper()
	zoneID := uuid.New()
	lot := &sales.Lot{ID: uuid.New(), Code: "MZ-A-01", ZoneID: zoneID}
	template := &sales.FinancialTemplate{
		ID:          uuid.New(),
		LotID:       &lot.ID,
		ListPrice:   d("60000"),
		SalePrice:   d("55000"),
		CashPrice:   d("50000"),
		DownPayment: d("5000"),
		InstallmentOptions: map[int]decimal.Decimal{
			12: d("4500"),
			24: d("2400"),
		},
	}
	signed := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	contract := &sales.Contract{
		BaseAggregateRoot:     shared.NewBaseAggregateRoot(testNow),
		ContractNumber:        "CT-" + lot.Code,
		ClientID:              uuid.New(),
		LotID:                 lot.ID,
		Status:                sales.ContractStatusActive,
		FinancingMode:         sales.FinancingModeInstallments,
		RequestedInstallments: requested,
		SignedAt:              &signed,
	}
	env.sales.lots[lot.ID] = lot
	env.sales.templates[template.ID] = template
	env.sales.contracts[contract.ID] = contract
	return contract
}

// addReceivable stores a pending receivable due on due
func (env *testEnv) addReceivable(t *testing.T, amount string, due time.Time, contractID *uuid.UUID) *finance.AccountReceivable {
	t.Helper()
	money, err := valueobject.NewMoneyFromString(amount, valueobject.PEN)
	if err != nil {
		t.Fatalf("money: %v", err)
	}
	n := len(env.receivables.rows) + 1
	ar, err := finance.NewAccountReceivable(finance.FormatReceivableNumber(int64(n)), uuid.New(),
		finance.ReceivableSource{ContractID: contractID, Description: "test"}, money, &due, uuid.New(), testNow)
	if err != nil {
		t.Fatalf("receivable: %v", err)
	}
	ar.ClearDomainEvents()
	env.receivables.rows[ar.ID] = *ar
	return ar
}
