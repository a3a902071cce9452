package persistence

import (
	"context"
	"errors"

	"github.com/erp/realty/internal/domain/sales"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormContractRepository implements sales.ContractRepository using GORM
type GormContractRepository struct {
	db *gorm.DB
}

// NewGormContractRepository creates a new GormContractRepository
func NewGormContractRepository(db *gorm.DB) *GormContractRepository {
	return &GormContractRepository{db: db}
}

// FindByID finds a contract by its ID
func (r *GormContractRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Contract, error) {
	var model models.ContractModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveWithoutSchedule finds active contracts with no schedule rows, oldest first
func (r *GormContractRepository) FindActiveWithoutSchedule(ctx context.Context, limit int) ([]sales.Contract, error) {
	var contractModels []models.ContractModel
	query := r.db.WithContext(ctx).
		Where("status = ?", sales.ContractStatusActive).
		Where("NOT EXISTS (SELECT 1 FROM payment_schedules ps WHERE ps.contract_id = contracts.id)").
		Order("created_at ASC, contract_number ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&contractModels).Error; err != nil {
		return nil, err
	}
	contracts := make([]sales.Contract, len(contractModels))
	for i, model := range contractModels {
		contracts[i] = *model.ToDomain()
	}
	return contracts, nil
}

// LockContract holds SELECT ... FOR UPDATE on the contract row until the
// transaction ends
func (r *GormContractRepository) LockContract(ctx context.Context, id uuid.UUID) error {
	var ids []string
	return r.db.WithContext(ctx).
		Model(&models.ContractModel{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Pluck("id", &ids).Error
}

// Save inserts or replaces a contract. Contracts are owned by the sales
// module; the engine only writes them when seeding.
func (r *GormContractRepository) Save(ctx context.Context, contract *sales.Contract) error {
	return r.db.WithContext(ctx).Save(models.ContractModelFromDomain(contract)).Error
}

// GormLotRepository implements sales.LotRepository using GORM
type GormLotRepository struct {
	db *gorm.DB
}

// NewGormLotRepository creates a new GormLotRepository
func NewGormLotRepository(db *gorm.DB) *GormLotRepository {
	return &GormLotRepository{db: db}
}

// FindByID finds a lot by its ID
func (r *GormLotRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Lot, error) {
	var model models.LotModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormPricingRepository implements sales.PricingRepository using GORM
type GormPricingRepository struct {
	db *gorm.DB
}

// NewGormPricingRepository creates a new GormPricingRepository
func NewGormPricingRepository(db *gorm.DB) *GormPricingRepository {
	return &GormPricingRepository{db: db}
}

// FindTemplateByID finds a pricing template by its ID
func (r *GormPricingRepository) FindTemplateByID(ctx context.Context, id uuid.UUID) (*sales.FinancialTemplate, error) {
	var model models.FinancialTemplateModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindTemplateByLot returns the most recent template of a lot
func (r *GormPricingRepository) FindTemplateByLot(ctx context.Context, lotID uuid.UUID) (*sales.FinancialTemplate, error) {
	var model models.FinancialTemplateModel
	if err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRuleByZone finds the financing rule of a zone
func (r *GormPricingRepository) FindRuleByZone(ctx context.Context, zoneID uuid.UUID) (*sales.FinancingRule, error) {
	var model models.FinancingRuleModel
	if err := r.db.WithContext(ctx).First(&model, "zone_id = ?", zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure the repositories implement the sales ports
var (
	_ sales.ContractRepository = (*GormContractRepository)(nil)
	_ sales.LotRepository      = (*GormLotRepository)(nil)
	_ sales.PricingRepository  = (*GormPricingRepository)(nil)
)
