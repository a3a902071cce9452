package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

// spanContext builds a context carrying a valid remote span without an SDK
func spanContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(context.Background(), sc), sc
}

func TestWithContext_RoundTrip(t *testing.T) {
	log, _ := observedLogger()
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
}

func TestFromContext_NotFoundReturnsNop(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	ctx := context.WithValue(context.Background(), LoggerKey, "not a logger")
	assert.NotNil(t, FromContext(ctx))
}

func TestCorrelationSetters(t *testing.T) {
	log, recorded := observedLogger()
	ctx := context.Background()

	ctx, _ = WithRunID(ctx, log, "bulk-1")
	ctx, _ = WithActorID(ctx, FromContext(ctx), "actor-7")
	ctx, enriched := WithContractID(ctx, FromContext(ctx), "contract-9")

	assert.Equal(t, "bulk-1", GetRunID(ctx))
	assert.Equal(t, "actor-7", GetActorID(ctx))
	assert.Equal(t, "contract-9", GetContractID(ctx))

	enriched.Info("schedule generated")
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "bulk-1", fields["run_id"])
	assert.Equal(t, "actor-7", fields["actor_id"])
	assert.Equal(t, "contract-9", fields["contract_id"])
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRunID(ctx))
	assert.Empty(t, GetActorID(ctx))
	assert.Empty(t, GetContractID(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
}

func TestTraceIDs_FromSpan(t *testing.T) {
	ctx, sc := spanContext(t)
	assert.Equal(t, sc.TraceID().String(), GetTraceID(ctx))
	assert.Equal(t, sc.SpanID().String(), GetSpanID(ctx))
}

func TestWithTraceContext(t *testing.T) {
	log, recorded := observedLogger()

	WithTraceContext(context.Background(), log).Info("no span")
	ctx, sc := spanContext(t)
	WithTraceContext(ctx, log).Info("with span")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.NotContains(t, logs[0].ContextMap(), "trace_id")
	assert.Equal(t, sc.TraceID().String(), logs[1].ContextMap()["trace_id"])
	assert.Equal(t, sc.SpanID().String(), logs[1].ContextMap()["span_id"])
}

func TestContextLogger_EnrichesEntries(t *testing.T) {
	log, recorded := observedLogger()
	ctx, sc := spanContext(t)
	ctx = WithContext(ctx, log)
	ctx = context.WithValue(ctx, RunIDKey, "aging-1")

	L(ctx).With(zap.Int("batch", 2)).Warn("batch retried")

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.Equal(t, "aging-1", fields["run_id"])
	assert.Equal(t, int64(2), fields["batch"])
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.NotContains(t, fields, "contract_id")
}

func TestContextLogger_Levels(t *testing.T) {
	log, recorded := observedLogger()
	cl := WithLogger(context.Background(), log)

	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e")
	cl.Zap().Info("z")

	levels := make([]zapcore.Level, 0, 5)
	for _, entry := range recorded.All() {
		levels = append(levels, entry.Level)
	}
	assert.Equal(t, []zapcore.Level{
		zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel, zapcore.InfoLevel,
	}, levels)
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Info("dropped")
		cl.With(zap.String("k", "v")).Error("dropped")
	})
}
