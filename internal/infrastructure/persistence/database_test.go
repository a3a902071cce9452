package persistence

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()

	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Ping(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	// GORM may ping during Open, so expect it first
	mock.ExpectPing()
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	db := &Database{DB: gormDB}

	mock.ExpectPing()
	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Transaction(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sequences" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Exec(`UPDATE "sequences" SET value = value + 1 WHERE name = ?`, finance.SequenceJournalEntry).Error
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Transaction(func(tx *gorm.DB) error {
			return assert.AnError
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAccountReceivableRepository_FindByIDForUpdate_LocksRow(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "account_receivables" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "status", "original_amount", "outstanding_amount"}).
			AddRow(id.String(), 3, "PARTIAL", "1000.00", "600.00"))

	ar, err := NewGormAccountReceivableRepository(db.DB).FindByIDForUpdate(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, id, ar.ID)
	assert.Equal(t, 3, ar.Version)
	assert.Equal(t, finance.ReceivableStatusPartial, ar.Status)
	assert.True(t, ar.OutstandingAmount.Equal(decimal.NewFromInt(600)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormContractRepository_LockContract_LocksRow(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT "id" FROM "contracts" WHERE id = \$1.*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))

	err := NewGormContractRepository(db.DB).LockContract(context.Background(), id)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormAccountReceivableRepository_FindByID_NotFound(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "account_receivables"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewGormAccountReceivableRepository(db.DB).FindByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormAccountReceivableRepository_Update_VersionConflict(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	ar := &finance.AccountReceivable{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
			Version:    4,
		},
		Status: finance.ReceivableStatusPaid,
	}

	mock.ExpectExec(`UPDATE "account_receivables" SET .*version = `).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewGormAccountReceivableRepository(db.DB).Update(context.Background(), ar)

	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
