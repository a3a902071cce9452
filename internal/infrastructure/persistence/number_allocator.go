package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormNumberAllocator hands out document numbers from the sequences table.
// The counter row stays locked until the caller's transaction ends, so
// numbers are gap-free for committed work and never handed out twice.
type GormNumberAllocator struct {
	db *gorm.DB
}

// NewGormNumberAllocator creates a new GormNumberAllocator bound to db,
// which must be a transaction for the lock to be meaningful
func NewGormNumberAllocator(db *gorm.DB) *GormNumberAllocator {
	return &GormNumberAllocator{db: db}
}

// Next increments and returns the counter of sequence
func (a *GormNumberAllocator) Next(ctx context.Context, sequence string) (int64, error) {
	db := a.db.WithContext(ctx)

	seed := models.SequenceModel{Name: sequence, Value: 0, UpdatedAt: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, fmt.Errorf("failed to initialise sequence %s: %w", sequence, err)
	}

	var row models.SequenceModel
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "name = ?", sequence).Error; err != nil {
		return 0, fmt.Errorf("failed to lock sequence %s: %w", sequence, err)
	}

	next := row.Value + 1
	if err := db.Model(&models.SequenceModel{}).
		Where("name = ?", sequence).
		Updates(map[string]any{"value": next, "updated_at": time.Now().UTC()}).Error; err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", sequence, err)
	}
	return next, nil
}

// Ensure GormNumberAllocator implements NumberAllocator
var _ finance.NumberAllocator = (*GormNumberAllocator)(nil)
