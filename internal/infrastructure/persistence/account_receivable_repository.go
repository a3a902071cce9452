package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountReceivableRepository implements AccountReceivableRepository using GORM
type GormAccountReceivableRepository struct {
	db *gorm.DB
}

// NewGormAccountReceivableRepository creates a new GormAccountReceivableRepository
func NewGormAccountReceivableRepository(db *gorm.DB) *GormAccountReceivableRepository {
	return &GormAccountReceivableRepository{db: db}
}

// FindByID finds an account receivable by its ID
func (r *GormAccountReceivableRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.AccountReceivable, error) {
	return r.first(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds an account receivable and locks its row with SELECT ... FOR UPDATE
func (r *GormAccountReceivableRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*finance.AccountReceivable, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormAccountReceivableRepository) first(query *gorm.DB, id uuid.UUID) (*finance.AccountReceivable, error) {
	var model models.AccountReceivableModel
	if err := query.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByContract finds the receivables of a contract ordered by due date
func (r *GormAccountReceivableRepository) FindByContract(ctx context.Context, contractID uuid.UUID) ([]finance.AccountReceivable, error) {
	var receivableModels []models.AccountReceivableModel
	if err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("due_date ASC, receivable_number ASC").
		Find(&receivableModels).Error; err != nil {
		return nil, err
	}
	return toReceivables(receivableModels), nil
}

// ExistsByKey checks for a receivable with the same contract, due date and original amount
func (r *GormAccountReceivableRepository) ExistsByKey(ctx context.Context, contractID uuid.UUID, dueDate time.Time, amount decimal.Decimal) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.AccountReceivableModel{}).
		Where("contract_id = ? AND due_date = ? AND original_amount = ?", contractID, dueDate, amount).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindAgingCandidates finds open receivables due before asOf, oldest first
func (r *GormAccountReceivableRepository) FindAgingCandidates(ctx context.Context, asOf time.Time, limit int) ([]finance.AccountReceivable, error) {
	var receivableModels []models.AccountReceivableModel
	query := r.db.WithContext(ctx).
		Where("status IN ?", []finance.ReceivableStatus{finance.ReceivableStatusPending, finance.ReceivableStatusPartial}).
		Where("due_date IS NOT NULL AND due_date < ?", asOf).
		Order("due_date ASC, receivable_number ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&receivableModels).Error; err != nil {
		return nil, err
	}
	return toReceivables(receivableModels), nil
}

// Save inserts a new account receivable. A unique key violation is reported
// as shared.ErrAlreadyExists; the database must be opened with TranslateError.
func (r *GormAccountReceivableRepository) Save(ctx context.Context, receivable *finance.AccountReceivable) error {
	model := models.AccountReceivableModelFromDomain(receivable)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update saves with optimistic locking. The domain has already bumped the
// version, so the stored row must still carry the previous one.
func (r *GormAccountReceivableRepository) Update(ctx context.Context, receivable *finance.AccountReceivable) error {
	model := models.AccountReceivableModelFromDomain(receivable)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", receivable.ID, receivable.Version-1).
		Select("*").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func toReceivables(receivableModels []models.AccountReceivableModel) []finance.AccountReceivable {
	receivables := make([]finance.AccountReceivable, len(receivableModels))
	for i, model := range receivableModels {
		receivables[i] = *model.ToDomain()
	}
	return receivables
}

// Ensure GormAccountReceivableRepository implements AccountReceivableRepository
var _ finance.AccountReceivableRepository = (*GormAccountReceivableRepository)(nil)
