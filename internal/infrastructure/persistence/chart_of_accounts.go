package persistence

import (
	"context"
	"errors"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormChartOfAccounts resolves account codes against the accounts table
type GormChartOfAccounts struct {
	db *gorm.DB
}

// NewGormChartOfAccounts creates a new GormChartOfAccounts
func NewGormChartOfAccounts(db *gorm.DB) *GormChartOfAccounts {
	return &GormChartOfAccounts{db: db}
}

// AccountIDForCode returns the id of the active account with the given code
func (c *GormChartOfAccounts) AccountIDForCode(ctx context.Context, code string) (uuid.UUID, error) {
	var model models.AccountModel
	if err := c.db.WithContext(ctx).
		Select("id").
		Where("code = ? AND active = ?", code, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, shared.ErrNotFound
		}
		return uuid.Nil, err
	}
	return model.ID, nil
}

// Ensure inserts the given accounts, leaving existing codes untouched
func (c *GormChartOfAccounts) Ensure(ctx context.Context, accounts ...finance.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]models.AccountModel, len(accounts))
	for i, a := range accounts {
		rows[i] = models.AccountModel{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, Active: true}
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&rows).Error
}

// Ensure GormChartOfAccounts implements ChartOfAccounts
var _ finance.ChartOfAccounts = (*GormChartOfAccounts)(nil)
