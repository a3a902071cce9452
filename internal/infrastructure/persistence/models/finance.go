package models

import (
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScheduleEntryModel is the persistence model for a payment schedule row.
type ScheduleEntryModel struct {
	BaseModel
	ContractID        uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_schedule_contract_number,priority:1"`
	InstallmentNumber int                    `gorm:"not null;uniqueIndex:idx_schedule_contract_number,priority:2"`
	DueDate           time.Time              `gorm:"not null;index"`
	Amount            decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	Currency          valueobject.Currency   `gorm:"type:varchar(3);not null"`
	Type              finance.ScheduleType   `gorm:"type:varchar(20);not null"`
	Status            finance.ScheduleStatus `gorm:"type:varchar(20);not null;index"`
	PaidDate          *time.Time
}

// TableName returns the table name for GORM
func (ScheduleEntryModel) TableName() string {
	return "payment_schedules"
}

// ToDomain converts the persistence model to a domain ScheduleEntry
func (m *ScheduleEntryModel) ToDomain() finance.ScheduleEntry {
	return finance.ScheduleEntry{
		BaseEntity:        m.BaseModel.ToDomain(),
		ContractID:        m.ContractID,
		InstallmentNumber: m.InstallmentNumber,
		DueDate:           m.DueDate,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Type:              m.Type,
		Status:            m.Status,
		PaidDate:          m.PaidDate,
	}
}

// FromDomain populates the persistence model from a domain ScheduleEntry
func (m *ScheduleEntryModel) FromDomain(e *finance.ScheduleEntry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.ContractID = e.ContractID
	m.InstallmentNumber = e.InstallmentNumber
	m.DueDate = e.DueDate
	m.Amount = e.Amount
	m.Currency = e.Currency
	m.Type = e.Type
	m.Status = e.Status
	m.PaidDate = e.PaidDate
}

// ScheduleEntryModelFromDomain creates a new persistence model from a domain ScheduleEntry
func ScheduleEntryModelFromDomain(e *finance.ScheduleEntry) *ScheduleEntryModel {
	m := &ScheduleEntryModel{}
	m.FromDomain(e)
	return m
}

// AccountReceivableModel is the persistence model for the AccountReceivable aggregate root.
// The composite index backs the (contract, due date, amount) idempotency lookup.
type AccountReceivableModel struct {
	AggregateModel
	ReceivableNumber  string                   `gorm:"type:varchar(50);not null;uniqueIndex"`
	ClientID          uuid.UUID                `gorm:"type:uuid;not null;index"`
	ContractID        *uuid.UUID               `gorm:"type:uuid;uniqueIndex:idx_receivable_key,priority:1,where:contract_id IS NOT NULL"`
	ScheduleEntryID   *uuid.UUID               `gorm:"type:uuid;index"`
	Description       string                   `gorm:"type:varchar(255)"`
	OriginalAmount    decimal.Decimal          `gorm:"type:decimal(18,2);not null;uniqueIndex:idx_receivable_key,priority:3,where:contract_id IS NOT NULL"`
	PaidAmount        decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	OutstandingAmount decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	Currency          valueobject.Currency     `gorm:"type:varchar(3);not null"`
	IssueDate         time.Time                `gorm:"not null"`
	DueDate           *time.Time               `gorm:"uniqueIndex:idx_receivable_key,priority:2,where:contract_id IS NOT NULL"`
	Status            finance.ReceivableStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CreatedBy         uuid.UUID                `gorm:"type:uuid;not null"`
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CancelReason      string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (AccountReceivableModel) TableName() string {
	return "account_receivables"
}

// ToDomain converts the persistence model to a domain AccountReceivable entity.
func (m *AccountReceivableModel) ToDomain() *finance.AccountReceivable {
	return &finance.AccountReceivable{
		BaseAggregateRoot: m.ToAggregateRoot(),
		ReceivableNumber:  m.ReceivableNumber,
		ClientID:          m.ClientID,
		ContractID:        m.ContractID,
		ScheduleEntryID:   m.ScheduleEntryID,
		Description:       m.Description,
		OriginalAmount:    m.OriginalAmount,
		PaidAmount:        m.PaidAmount,
		OutstandingAmount: m.OutstandingAmount,
		Currency:          m.Currency,
		IssueDate:         m.IssueDate,
		DueDate:           m.DueDate,
		Status:            m.Status,
		CreatedBy:         m.CreatedBy,
		PaidAt:            m.PaidAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain AccountReceivable entity.
func (m *AccountReceivableModel) FromDomain(ar *finance.AccountReceivable) {
	m.FromDomainAggregateRoot(ar.BaseAggregateRoot)
	m.ReceivableNumber = ar.ReceivableNumber
	m.ClientID = ar.ClientID
	m.ContractID = ar.ContractID
	m.ScheduleEntryID = ar.ScheduleEntryID
	m.Description = ar.Description
	m.OriginalAmount = ar.OriginalAmount
	m.PaidAmount = ar.PaidAmount
	m.OutstandingAmount = ar.OutstandingAmount
	m.Currency = ar.Currency
	m.IssueDate = ar.IssueDate
	m.DueDate = ar.DueDate
	m.Status = ar.Status
	m.CreatedBy = ar.CreatedBy
	m.PaidAt = ar.PaidAt
	m.CancelledAt = ar.CancelledAt
	m.CancelReason = ar.CancelReason
}

// AccountReceivableModelFromDomain creates a new persistence model from a domain AccountReceivable.
func AccountReceivableModelFromDomain(ar *finance.AccountReceivable) *AccountReceivableModel {
	m := &AccountReceivableModel{}
	m.FromDomain(ar)
	return m
}

// CustomerPaymentModel is the persistence model for the CustomerPayment aggregate root.
type CustomerPaymentModel struct {
	AggregateModel
	ClientID       uuid.UUID             `gorm:"type:uuid;not null;index"`
	ReceivableID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	ContractID     *uuid.UUID            `gorm:"type:uuid;index:idx_payment_contract_date,priority:1"`
	Amount         decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Currency       valueobject.Currency  `gorm:"type:varchar(3);not null"`
	PaymentDate    time.Time             `gorm:"not null;index:idx_payment_contract_date,priority:2"`
	Method         finance.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reference      string                `gorm:"type:varchar(100)"`
	ProcessedBy    uuid.UUID             `gorm:"type:uuid;not null"`
	JournalEntryID *uuid.UUID            `gorm:"type:uuid"`

	InstallmentType           *finance.InstallmentType   `gorm:"type:varchar(20)"`
	AffectsCommissions        bool                       `gorm:"not null;default:false;index"`
	CommissionEventDispatched bool                       `gorm:"not null;default:false"`
	CommissionDispatchedAt    *time.Time
	ClassifiedAt              *time.Time
	DetectionMetadata         *finance.DetectionMetadata `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (CustomerPaymentModel) TableName() string {
	return "customer_payments"
}

// ToDomain converts the persistence model to a domain CustomerPayment
func (m *CustomerPaymentModel) ToDomain() *finance.CustomerPayment {
	return &finance.CustomerPayment{
		BaseAggregateRoot:         m.ToAggregateRoot(),
		ClientID:                  m.ClientID,
		ReceivableID:              m.ReceivableID,
		ContractID:                m.ContractID,
		Amount:                    m.Amount,
		Currency:                  m.Currency,
		PaymentDate:               m.PaymentDate,
		Method:                    m.Method,
		Reference:                 m.Reference,
		ProcessedBy:               m.ProcessedBy,
		JournalEntryID:            m.JournalEntryID,
		InstallmentType:           m.InstallmentType,
		AffectsCommissions:        m.AffectsCommissions,
		CommissionEventDispatched: m.CommissionEventDispatched,
		CommissionDispatchedAt:    m.CommissionDispatchedAt,
		ClassifiedAt:              m.ClassifiedAt,
		DetectionMetadata:         m.DetectionMetadata,
	}
}

// FromDomain populates the persistence model from a domain CustomerPayment
func (m *CustomerPaymentModel) FromDomain(p *finance.CustomerPayment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.ClientID = p.ClientID
	m.ReceivableID = p.ReceivableID
	m.ContractID = p.ContractID
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.PaymentDate = p.PaymentDate
	m.Method = p.Method
	m.Reference = p.Reference
	m.ProcessedBy = p.ProcessedBy
	m.JournalEntryID = p.JournalEntryID
	m.InstallmentType = p.InstallmentType
	m.AffectsCommissions = p.AffectsCommissions
	m.CommissionEventDispatched = p.CommissionEventDispatched
	m.CommissionDispatchedAt = p.CommissionDispatchedAt
	m.ClassifiedAt = p.ClassifiedAt
	m.DetectionMetadata = p.DetectionMetadata
}

// CustomerPaymentModelFromDomain creates a new persistence model from a domain CustomerPayment
func CustomerPaymentModelFromDomain(p *finance.CustomerPayment) *CustomerPaymentModel {
	m := &CustomerPaymentModel{}
	m.FromDomain(p)
	return m
}

// JournalEntryModel is the persistence model for a journal entry header.
type JournalEntryModel struct {
	AggregateModel
	EntryNumber     string                     `gorm:"type:varchar(20);not null;uniqueIndex"`
	EntryDate       time.Time                  `gorm:"not null;index"`
	Description     string                     `gorm:"type:varchar(500)"`
	ReferenceType   finance.ReferenceType      `gorm:"type:varchar(30);not null;index:idx_journal_reference,priority:1"`
	ReferenceID     uuid.UUID                  `gorm:"type:uuid;not null;index:idx_journal_reference,priority:2"`
	Status          finance.JournalEntryStatus `gorm:"type:varchar(20);not null"`
	CreatedBy       uuid.UUID                  `gorm:"type:uuid;not null"`
	ReversesEntryID *uuid.UUID                 `gorm:"type:uuid;uniqueIndex"`
	Lines           []JournalLineModel         `gorm:"foreignKey:JournalEntryID;references:ID"`
}

// TableName returns the table name for GORM
func (JournalEntryModel) TableName() string {
	return "journal_entries"
}

// ToDomain converts the persistence model to a domain JournalEntry
func (m *JournalEntryModel) ToDomain() *finance.JournalEntry {
	e := &finance.JournalEntry{
		BaseAggregateRoot: m.ToAggregateRoot(),
		EntryNumber:       m.EntryNumber,
		EntryDate:         m.EntryDate,
		Description:       m.Description,
		ReferenceType:     m.ReferenceType,
		ReferenceID:       m.ReferenceID,
		Status:            m.Status,
		CreatedBy:         m.CreatedBy,
		ReversesEntryID:   m.ReversesEntryID,
		Lines:             make([]finance.JournalLine, len(m.Lines)),
	}
	for i, l := range m.Lines {
		e.Lines[i] = l.ToDomain()
	}
	return e
}

// JournalEntryModelFromDomain creates a new persistence model from a domain JournalEntry, lines included
func JournalEntryModelFromDomain(e *finance.JournalEntry) *JournalEntryModel {
	m := &JournalEntryModel{
		EntryNumber:     e.EntryNumber,
		EntryDate:       e.EntryDate,
		Description:     e.Description,
		ReferenceType:   e.ReferenceType,
		ReferenceID:     e.ReferenceID,
		Status:          e.Status,
		CreatedBy:       e.CreatedBy,
		ReversesEntryID: e.ReversesEntryID,
		Lines:           make([]JournalLineModel, len(e.Lines)),
	}
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	for i, l := range e.Lines {
		m.Lines[i] = JournalLineModel{
			ID:             l.ID,
			JournalEntryID: e.ID,
			LineNumber:     l.LineNumber,
			AccountID:      l.AccountID,
			AccountCode:    l.AccountCode,
			Debit:          l.Debit,
			Credit:         l.Credit,
			Description:    l.Description,
		}
	}
	return m
}

// JournalLineModel is the persistence model for one journal line
type JournalLineModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	JournalEntryID uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber     int             `gorm:"not null"`
	AccountID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountCode    string          `gorm:"type:varchar(20);not null"`
	Debit          decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Credit         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Description    string          `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (JournalLineModel) TableName() string {
	return "journal_lines"
}

// ToDomain converts the persistence model to a domain JournalLine
func (m *JournalLineModel) ToDomain() finance.JournalLine {
	return finance.JournalLine{
		ID:          m.ID,
		LineNumber:  m.LineNumber,
		AccountID:   m.AccountID,
		AccountCode: m.AccountCode,
		Debit:       m.Debit,
		Credit:      m.Credit,
		Description: m.Description,
	}
}

// AccountModel is a chart-of-accounts row
type AccountModel struct {
	ID     uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Code   string              `gorm:"type:varchar(20);not null;uniqueIndex"`
	Name   string              `gorm:"type:varchar(200);not null"`
	Type   finance.AccountType `gorm:"type:varchar(20);not null"`
	Active bool                `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *AccountModel) ToDomain() *finance.Account {
	return &finance.Account{ID: m.ID, Code: m.Code, Name: m.Name, Type: m.Type}
}

// SequenceModel is a named document counter. Value is the last number handed out.
type SequenceModel struct {
	Name      string    `gorm:"type:varchar(50);primaryKey"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SequenceModel) TableName() string {
	return "sequences"
}

// AllModels lists every model for auto-migration in tests and development
func AllModels() []any {
	return []any{
		&ContractModel{},
		&LotModel{},
		&FinancialTemplateModel{},
		&FinancingRuleModel{},
		&ScheduleEntryModel{},
		&AccountReceivableModel{},
		&CustomerPaymentModel{},
		&JournalEntryModel{},
		&JournalLineModel{},
		&AccountModel{},
		&SequenceModel{},
		&OutboxEntryModel{},
	}
}

