package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/erp/realty/internal/domain/sales"
	"github.com/erp/realty/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractModel is the persistence model for the Contract aggregate root.
// Contracts are written by the sales module; this engine reads them.
type ContractModel struct {
	AggregateModel
	ContractNumber        string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	ClientID              uuid.UUID            `gorm:"type:uuid;not null;index"`
	LotID                 uuid.UUID            `gorm:"type:uuid;not null;index"`
	TemplateID            *uuid.UUID           `gorm:"type:uuid"`
	TotalPrice            decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	DownPayment           decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	FinancedAmount        decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	TermMonths            int                  `gorm:"not null;default:0"`
	MonthlyPayment        decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	BalloonPayment        decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	Currency              valueobject.Currency `gorm:"type:varchar(3);not null;default:'PEN'"`
	Status                sales.ContractStatus `gorm:"type:varchar(20);not null;index"`
	FinancingMode         sales.FinancingMode  `gorm:"type:varchar(20);not null"`
	RequestedInstallments int                  `gorm:"not null;default:0"`
	SignedAt              *time.Time
}

// TableName returns the table name for GORM
func (ContractModel) TableName() string {
	return "contracts"
}

// ToDomain converts the persistence model to a domain Contract
func (m *ContractModel) ToDomain() *sales.Contract {
	return &sales.Contract{
		BaseAggregateRoot:     m.ToAggregateRoot(),
		ContractNumber:        m.ContractNumber,
		ClientID:              m.ClientID,
		LotID:                 m.LotID,
		TemplateID:            m.TemplateID,
		TotalPrice:            m.TotalPrice,
		DownPayment:           m.DownPayment,
		FinancedAmount:        m.FinancedAmount,
		TermMonths:            m.TermMonths,
		MonthlyPayment:        m.MonthlyPayment,
		BalloonPayment:        m.BalloonPayment,
		Currency:              m.Currency,
		Status:                m.Status,
		FinancingMode:         m.FinancingMode,
		RequestedInstallments: m.RequestedInstallments,
		SignedAt:              m.SignedAt,
	}
}

// FromDomain populates the persistence model from a domain Contract
func (m *ContractModel) FromDomain(c *sales.Contract) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.ContractNumber = c.ContractNumber
	m.ClientID = c.ClientID
	m.LotID = c.LotID
	m.TemplateID = c.TemplateID
	m.TotalPrice = c.TotalPrice
	m.DownPayment = c.DownPayment
	m.FinancedAmount = c.FinancedAmount
	m.TermMonths = c.TermMonths
	m.MonthlyPayment = c.MonthlyPayment
	m.BalloonPayment = c.BalloonPayment
	m.Currency = c.Currency
	m.Status = c.Status
	m.FinancingMode = c.FinancingMode
	m.RequestedInstallments = c.RequestedInstallments
	m.SignedAt = c.SignedAt
}

// ContractModelFromDomain creates a new persistence model from a domain Contract
func ContractModelFromDomain(c *sales.Contract) *ContractModel {
	m := &ContractModel{}
	m.FromDomain(c)
	return m
}

// LotModel is the persistence model for a lot
type LotModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Code       string     `gorm:"type:varchar(50);not null"`
	ZoneID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	TemplateID *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (LotModel) TableName() string {
	return "lots"
}

// ToDomain converts the persistence model to a domain Lot
func (m *LotModel) ToDomain() *sales.Lot {
	return &sales.Lot{ID: m.ID, Code: m.Code, ZoneID: m.ZoneID, TemplateID: m.TemplateID}
}

// InstallmentOptions stores installment count -> monthly amount as JSON
type InstallmentOptions map[int]decimal.Decimal

// Value implements driver.Valuer
func (o InstallmentOptions) Value() (driver.Value, error) {
	if o == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[int]decimal.Decimal(o))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (o *InstallmentOptions) Scan(value any) error {
	if value == nil {
		*o = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported type for InstallmentOptions")
	}
	out := map[int]decimal.Decimal{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*o = out
	return nil
}

// FinancialTemplateModel is the persistence model for a lot pricing template
type FinancialTemplateModel struct {
	ID                 uuid.UUID          `gorm:"type:uuid;primaryKey"`
	LotID              *uuid.UUID         `gorm:"type:uuid;index"`
	ListPrice          decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	SalePrice          decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	CashPrice          decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	DownPayment        decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	BalloonAmount      decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	InstallmentOptions InstallmentOptions `gorm:"type:jsonb"`
	CreatedAt          time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FinancialTemplateModel) TableName() string {
	return "financial_templates"
}

// ToDomain converts the persistence model to a domain FinancialTemplate
func (m *FinancialTemplateModel) ToDomain() *sales.FinancialTemplate {
	return &sales.FinancialTemplate{
		ID:                 m.ID,
		LotID:              m.LotID,
		ListPrice:          m.ListPrice,
		SalePrice:          m.SalePrice,
		CashPrice:          m.CashPrice,
		DownPayment:        m.DownPayment,
		BalloonAmount:      m.BalloonAmount,
		InstallmentOptions: map[int]decimal.Decimal(m.InstallmentOptions),
	}
}

// FinancialTemplateModelFromDomain creates a new persistence model from a domain FinancialTemplate
func FinancialTemplateModelFromDomain(t *sales.FinancialTemplate, createdAt time.Time) *FinancialTemplateModel {
	return &FinancialTemplateModel{
		ID:                 t.ID,
		LotID:              t.LotID,
		ListPrice:          t.ListPrice,
		SalePrice:          t.SalePrice,
		CashPrice:          t.CashPrice,
		DownPayment:        t.DownPayment,
		BalloonAmount:      t.BalloonAmount,
		InstallmentOptions: InstallmentOptions(t.InstallmentOptions),
		CreatedAt:          createdAt,
	}
}

// FinancingRuleModel is the persistence model for a zone financing rule
type FinancingRuleModel struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ZoneID                 uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	Mode                   sales.RuleMode `gorm:"type:varchar(20);not null"`
	MaxInstallments        int            `gorm:"not null;default:0"`
	InstallmentStep        int            `gorm:"not null;default:12"`
	AllowsBalloon          bool           `gorm:"not null;default:false"`
	AllowsBonusDownPayment bool           `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (FinancingRuleModel) TableName() string {
	return "financing_rules"
}

// ToDomain converts the persistence model to a domain FinancingRule
func (m *FinancingRuleModel) ToDomain() *sales.FinancingRule {
	return &sales.FinancingRule{
		ID:                     m.ID,
		ZoneID:                 m.ZoneID,
		Mode:                   m.Mode,
		MaxInstallments:        m.MaxInstallments,
		InstallmentStep:        m.InstallmentStep,
		AllowsBalloon:          m.AllowsBalloon,
		AllowsBonusDownPayment: m.AllowsBonusDownPayment,
	}
}

// FinancingRuleModelFromDomain creates a new persistence model from a domain FinancingRule
func FinancingRuleModelFromDomain(r *sales.FinancingRule) *FinancingRuleModel {
	return &FinancingRuleModel{
		ID:                     r.ID,
		ZoneID:                 r.ZoneID,
		Mode:                   r.Mode,
		MaxInstallments:        r.MaxInstallments,
		InstallmentStep:        r.InstallmentStep,
		AllowsBalloon:          r.AllowsBalloon,
		AllowsBonusDownPayment: r.AllowsBonusDownPayment,
	}
}
