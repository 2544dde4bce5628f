//go:build unit

package opentelemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHandleSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := provider.Tracer("test").Start(context.Background(), "flow.issue")
	HandleSpanBusinessErrorEvent(&span, "counterparty_rejected", errors.New("amount must be positive"))
	HandleSpanError(&span, "notarization failed", errors.New("conflict"))
	HandleSpanError(&span, "ignored", nil)
	HandleSpanError(nil, "ignored", errors.New("x"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "notarization failed: conflict", ended[0].Status().Description)

	names := make([]string, 0)
	for _, event := range ended[0].Events() {
		names = append(names, event.Name)
	}

	assert.Contains(t, names, "counterparty_rejected")
	assert.Contains(t, names, "exception")
}

func TestQueueHeaderPropagation(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "send")
	defer span.End()

	headers := PrepareQueueHeaders(ctx, map[string]any{"kind": "PROPOSAL"})
	assert.Equal(t, "PROPOSAL", headers["kind"])
	assert.Contains(t, headers, "traceparent")

	restored := ExtractTraceContextFromQueueHeaders(context.Background(), headers)
	assert.Equal(t, GetTraceIDFromContext(ctx), GetTraceIDFromContext(restored))
	assert.NotEmpty(t, GetTraceIDFromContext(restored))

	assert.Empty(t, GetTraceIDFromContext(context.Background()))
	assert.Equal(t, context.Background(), ExtractTraceContextFromQueueHeaders(context.Background(), nil))
}

func TestFlowMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewFlowMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAttempt(ctx, "ISSUE", OutcomeFinalized)
	m.RecordAttempt(ctx, "ISSUE", OutcomeFinalized)
	m.RecordSession(ctx, "SIGNED")
	m.RecordNotarization(ctx, 20*time.Millisecond, OutcomeFinalized)
	m.RecordDelivery(ctx, true)

	var nilMetrics *FlowMetrics
	nilMetrics.RecordAttempt(ctx, "ISSUE", OutcomeFailed)

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &data))
	require.Len(t, data.ScopeMetrics, 1)

	byName := make(map[string]metricdata.Metrics)
	for _, metric := range data.ScopeMetrics[0].Metrics {
		byName[metric.Name] = metric
	}

	attempts, ok := byName["iou_flow_attempts_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, attempts.DataPoints, 1)
	assert.Equal(t, int64(2), attempts.DataPoints[0].Value)

	assert.Contains(t, byName, "iou_flow_sessions_total")
	assert.Contains(t, byName, "iou_notarization_duration_seconds")
	assert.Contains(t, byName, "iou_finality_deliveries_total")
}
