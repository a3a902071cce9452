package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedLot struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:50"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&tracedLot{}))
	return db
}

func setupTracerWithRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestNewDBTracingPlugin_FillsDefaults(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.Equal(t, "postgresql", p.config.DBSystem)
}

func TestRegisterOtelGorm_Disabled(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop()).RegisterOtelGorm(db))
	assert.Nil(t, db.Callback().Query().Get("realty_trace:after_query"))
}

func TestRegisterOtelGorm_Enabled(t *testing.T) {
	db := setupTestDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"

	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).RegisterOtelGorm(db))
	for _, name := range []string{"create", "query", "update", "delete", "row", "raw"} {
		assert.Contains(t, statementHooks(db), name)
	}
	assert.NotNil(t, db.Callback().Query().Get("realty_trace:after_query"))
	assert.NotNil(t, db.Callback().Create().Get("realty_trace:before_create"))

	require.NoError(t, db.Create(&tracedLot{Code: "MZ-A-01"}).Error)
	var lot tracedLot
	require.NoError(t, db.First(&lot).Error)
	assert.Equal(t, "MZ-A-01", lot.Code)
}

func TestRegisterOtelGorm_TwiceFails(t *testing.T) {
	db := setupTestDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true

	p := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, p.RegisterOtelGorm(db))
	assert.Error(t, p.RegisterOtelGorm(db), "otelgorm refuses a second registration")
}

func TestAnnotateSpan(t *testing.T) {
	db := setupTestDB(t)
	tp, sr := setupTracerWithRecorder(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: 50 * time.Millisecond}, zap.NewNop())

	t.Run("slow statement", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "slow")
		tx := db.WithContext(ctx)
		tx.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))
		tx.Statement.Table = "account_receivables"
		tx.Statement.RowsAffected = 3

		p.annotateSpan(tx)
		span.End()

		ended := sr.Ended()
		got := ended[len(ended)-1]
		attrs := spanAttrs(got)
		assert.Equal(t, "account_receivables", attrs["db.sql.table"].AsString())
		assert.Equal(t, int64(3), attrs["db.rows_affected"].AsInt64())
		assert.True(t, attrs["db.slow_query"].AsBool())
		assert.GreaterOrEqual(t, attrs["db.query_duration_ms"].AsInt64(), int64(1000))
		require.Len(t, got.Events(), 1)
		assert.Equal(t, "slow_query_warning", got.Events()[0].Name)
	})

	t.Run("fast statement with error", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "failed")
		tx := db.WithContext(ctx)
		tx.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
		_ = tx.AddError(errors.New("deadlock detected"))

		p.annotateSpan(tx)
		span.End()

		ended := sr.Ended()
		got := ended[len(ended)-1]
		assert.Equal(t, codes.Error, got.Status().Code)
		assert.NotContains(t, spanAttrs(got), attribute.Key("db.slow_query"))
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "not-found")
		tx := db.WithContext(ctx)
		_ = tx.AddError(gorm.ErrRecordNotFound)

		p.annotateSpan(tx)
		span.End()

		ended := sr.Ended()
		assert.Equal(t, codes.Unset, ended[len(ended)-1].Status().Code)
	})

	t.Run("non-recording span and nil context", func(t *testing.T) {
		tx := db.WithContext(context.Background())
		assert.NotPanics(t, func() { p.annotateSpan(tx) })
		tx.Statement.Context = nil
		assert.NotPanics(t, func() { p.annotateSpan(tx) })
	})
}

func TestMarkQueryStart(t *testing.T) {
	db := setupTestDB(t)
	tx := db.WithContext(context.Background())
	markQueryStart(tx)
	_, ok := tx.Statement.Context.Value(queryStartKey{}).(time.Time)
	assert.True(t, ok)
}
