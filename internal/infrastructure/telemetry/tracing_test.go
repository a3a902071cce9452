package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/realty/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global provider
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "aging.sweep")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "aging.sweep", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	assert.Equal(t, telemetry.TracerName, spans[0].InstrumentationScope().Name)
}

func TestStartSpan_WithOptions(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "outbox.poll",
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, 100),
		telemetry.WithSpanKind(trace.SpanKindConsumer),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindConsumer, spans[0].SpanKind())
	assert.Equal(t, int64(100), attrMap(spans[0].Attributes())[telemetry.SpanAttrBatchSize].AsInt64())
}

func TestStartServiceSpan_Naming(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "schedule", "generate")
	span.End()

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, "schedule.generate", sr.Ended()[0].Name())
}

func TestSetAttributes_ConvertsValues(t *testing.T) {
	sr := setupTestTracer(t)
	contractID := uuid.New()

	_, span := telemetry.StartSpan(context.Background(), "payment.record")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrContractID, contractID,
		telemetry.SpanAttrAmount, decimal.RequireFromString("1250.50"),
		"installments", 24,
		"cash_only", false,
		"ratio", 0.9,
		42, "ignored non-string key",
		"dangling",
	)
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, contractID.String(), attrs[telemetry.SpanAttrContractID].AsString())
	assert.Equal(t, "1250.5", attrs[telemetry.SpanAttrAmount].AsString())
	assert.Equal(t, int64(24), attrs["installments"].AsInt64())
	assert.False(t, attrs["cash_only"].AsBool())
	assert.Equal(t, 0.9, attrs["ratio"].AsFloat64())
	assert.NotContains(t, attrs, "dangling")
	assert.Len(t, attrs, 5)
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "classification.run")
	telemetry.AddEvent(span, "commission_dispatched", telemetry.SpanAttrPosition, "FIRST")
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "commission_dispatched", events[0].Name)
	assert.Equal(t, "FIRST", attrMap(events[0].Attributes)[telemetry.SpanAttrPosition].AsString())
}

func TestFinish(t *testing.T) {
	sr := setupTestTracer(t)

	_, ok := telemetry.StartSpan(context.Background(), "ok")
	telemetry.Finish(ok, nil)
	_, failed := telemetry.StartSpan(context.Background(), "failed")
	telemetry.Finish(failed, errors.New("receivable locked"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "receivable locked", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}

func TestRecordError_NilInputs(t *testing.T) {
	setupTestTracer(t)
	assert.NotPanics(t, func() {
		telemetry.RecordError(nil, errors.New("x"))
		telemetry.SetOK(nil)
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.AddEvent(nil, "e")
		telemetry.Finish(nil, nil)
	})

	sr := setupTestTracer(t)
	_, span := telemetry.StartSpan(context.Background(), "noop")
	telemetry.RecordError(span, nil)
	span.End()
	assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))

	setupTestTracer(t)
	ctx, span := telemetry.StartSpan(context.Background(), "traced")
	defer span.End()
	assert.Equal(t, span.SpanContext().TraceID().String(), telemetry.GetTraceID(ctx))
}
