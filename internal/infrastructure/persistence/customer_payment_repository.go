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

// GormCustomerPaymentRepository implements CustomerPaymentRepository using GORM
type GormCustomerPaymentRepository struct {
	db *gorm.DB
}

// NewGormCustomerPaymentRepository creates a new GormCustomerPaymentRepository
func NewGormCustomerPaymentRepository(db *gorm.DB) *GormCustomerPaymentRepository {
	return &GormCustomerPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormCustomerPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.CustomerPayment, error) {
	return r.first(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a payment and locks its row until the transaction ends
func (r *GormCustomerPaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*finance.CustomerPayment, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormCustomerPaymentRepository) first(query *gorm.DB, id uuid.UUID) (*finance.CustomerPayment, error) {
	var model models.CustomerPaymentModel
	if err := query.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByContract finds the payments of a contract in payment order
func (r *GormCustomerPaymentRepository) FindByContract(ctx context.Context, contractID uuid.UUID) ([]finance.CustomerPayment, error) {
	var paymentModels []models.CustomerPaymentModel
	if err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("payment_date ASC, created_at ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]finance.CustomerPayment, len(paymentModels))
	for i, model := range paymentModels {
		payments[i] = *model.ToDomain()
	}
	return payments, nil
}

// CountPriorCommissionable counts commission-eligible payments made strictly
// before p in the same contract, or the same receivable when p has no contract
func (r *GormCustomerPaymentRepository) CountPriorCommissionable(ctx context.Context, p *finance.CustomerPayment) (int, error) {
	query := r.db.WithContext(ctx).
		Model(&models.CustomerPaymentModel{}).
		Where("id <> ? AND affects_commissions = ? AND payment_date < ?", p.ID, true, p.PaymentDate)
	if p.ContractID != nil {
		query = query.Where("contract_id = ?", *p.ContractID)
	} else {
		query = query.Where("receivable_id = ?", p.ReceivableID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Save inserts a new payment
func (r *GormCustomerPaymentRepository) Save(ctx context.Context, payment *finance.CustomerPayment) error {
	return r.db.WithContext(ctx).Create(models.CustomerPaymentModelFromDomain(payment)).Error
}

// Update writes every column of the payment. Callers hold the row lock.
func (r *GormCustomerPaymentRepository) Update(ctx context.Context, payment *finance.CustomerPayment) error {
	model := models.CustomerPaymentModelFromDomain(payment)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ?", payment.ID).
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

// Ensure GormCustomerPaymentRepository implements CustomerPaymentRepository
var _ finance.CustomerPaymentRepository = (*GormCustomerPaymentRepository)(nil)
