package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "realty-engine-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestNewZapOTELCore_DisabledProviders(t *testing.T) {
	disabled, err := NewLoggerProvider(context.Background(), LogsConfig{}, zap.NewNop())
	require.NoError(t, err)

	for name, lp := range map[string]*LoggerProvider{"nil": nil, "disabled": disabled} {
		core := NewZapOTELCore(ZapBridgeConfig{ServiceName: "realty-engine", LoggerProvider: lp, Level: zapcore.InfoLevel})
		assert.False(t, core.Enabled(zapcore.ErrorLevel), name)
	}
}

func TestNewZapOTELCore_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "realty-engine-test",
		Insecure:          true,
	}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = lp.Shutdown(ctx) }()

	core := NewZapOTELCore(ZapBridgeConfig{ServiceName: "realty-engine", LoggerProvider: lp, Level: zapcore.WarnLevel})
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
	zap.New(core).Error("payment rejected", zap.String("receivable_id", "r-1"))
}

func TestLevelFilterCore(t *testing.T) {
	inner, recorded := observer.New(zapcore.DebugLevel)

	t.Run("debug level returns the inner core", func(t *testing.T) {
		assert.Same(t, inner, newLevelFilterCore(inner, zapcore.DebugLevel))
	})

	t.Run("drops entries below the minimum", func(t *testing.T) {
		log := zap.New(newLevelFilterCore(inner, zapcore.WarnLevel))
		log.Info("aging sweep finished")
		log.Warn("batch retried")
		log.Error("sweep failed")

		entries := recorded.TakeAll()
		require.Len(t, entries, 2)
		assert.Equal(t, "batch retried", entries[0].Message)
		assert.Equal(t, "sweep failed", entries[1].Message)
	})

	t.Run("With keeps the filter", func(t *testing.T) {
		log := zap.New(newLevelFilterCore(inner, zapcore.ErrorLevel)).With(zap.String("run_id", "aging-1"))
		log.Warn("dropped")
		log.Error("kept")

		entries := recorded.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "aging-1", entries[0].ContextMap()["run_id"])
	})
}
