package persistence

import (
	"context"
	"errors"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormJournalEntryRepository implements JournalEntryRepository using GORM
type GormJournalEntryRepository struct {
	db *gorm.DB
}

// NewGormJournalEntryRepository creates a new GormJournalEntryRepository
func NewGormJournalEntryRepository(db *gorm.DB) *GormJournalEntryRepository {
	return &GormJournalEntryRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC")
}

// Save inserts the entry header and its lines
func (r *GormJournalEntryRepository) Save(ctx context.Context, entry *finance.JournalEntry) error {
	return r.db.WithContext(ctx).Create(models.JournalEntryModelFromDomain(entry)).Error
}

// FindByID finds a journal entry with its lines
func (r *GormJournalEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.JournalEntry, error) {
	var model models.JournalEntryModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByReference finds the entries posted for a source document, in number order
func (r *GormJournalEntryRepository) FindByReference(ctx context.Context, refType finance.ReferenceType, refID uuid.UUID) ([]finance.JournalEntry, error) {
	var entryModels []models.JournalEntryModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("entry_number ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]finance.JournalEntry, len(entryModels))
	for i, model := range entryModels {
		entries[i] = *model.ToDomain()
	}
	return entries, nil
}

// FindReversalOf finds the entry that reverses entryID
func (r *GormJournalEntryRepository) FindReversalOf(ctx context.Context, entryID uuid.UUID) (*finance.JournalEntry, error) {
	var model models.JournalEntryModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		First(&model, "reverses_entry_id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormJournalEntryRepository implements JournalEntryRepository
var _ finance.JournalEntryRepository = (*GormJournalEntryRepository)(nil)
