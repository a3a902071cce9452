package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentScheduleRepository implements finance.PaymentScheduleRepository using GORM
type GormPaymentScheduleRepository struct {
	db *gorm.DB
}

// NewGormPaymentScheduleRepository creates a new GormPaymentScheduleRepository
func NewGormPaymentScheduleRepository(db *gorm.DB) *GormPaymentScheduleRepository {
	return &GormPaymentScheduleRepository{db: db}
}

// SaveBatch inserts all rows in one statement
func (r *GormPaymentScheduleRepository) SaveBatch(ctx context.Context, entries []finance.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.ScheduleEntryModel, len(entries))
	for i := range entries {
		rows[i] = models.ScheduleEntryModelFromDomain(&entries[i])
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// FindByID finds a schedule row by its ID
func (r *GormPaymentScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.ScheduleEntry, error) {
	var model models.ScheduleEntryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	entry := model.ToDomain()
	return &entry, nil
}

// FindByContract returns the rows of a contract ordered by installment number
func (r *GormPaymentScheduleRepository) FindByContract(ctx context.Context, contractID uuid.UUID) ([]finance.ScheduleEntry, error) {
	var rows []models.ScheduleEntryModel
	if err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("installment_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]finance.ScheduleEntry, len(rows))
	for i, model := range rows {
		entries[i] = model.ToDomain()
	}
	return entries, nil
}

// Update writes every column of the row
func (r *GormPaymentScheduleRepository) Update(ctx context.Context, entry *finance.ScheduleEntry) error {
	model := models.ScheduleEntryModelFromDomain(entry)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ?", entry.ID).
		Select("*").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkOverdue flags pending rows due before asOf in one statement
func (r *GormPaymentScheduleRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ScheduleEntryModel{}).
		Where("status = ? AND due_date < ?", finance.ScheduleStatusPending, asOf).
		Updates(map[string]any{
			"status":     finance.ScheduleStatusOverdue,
			"updated_at": asOf,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormPaymentScheduleRepository implements PaymentScheduleRepository
var _ finance.PaymentScheduleRepository = (*GormPaymentScheduleRepository)(nil)
