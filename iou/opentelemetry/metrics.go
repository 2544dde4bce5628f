package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the flow instruments.
const MeterName = "github.com/LerianStudio/lib-iou"

// Attempt outcomes recorded by FlowMetrics.
const (
	OutcomeFinalized = "finalized"
	OutcomeInvalid   = "invalid"
	OutcomeRejected  = "rejected"
	OutcomeTimedOut  = "timed_out"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

// FlowMetrics are the instruments recorded while driving transitions to finality.
type FlowMetrics struct {
	attempts      metric.Int64Counter
	sessions      metric.Int64Counter
	notarizations metric.Float64Histogram
	deliveries    metric.Int64Counter
}

// NewFlowMetrics creates the instruments on provider, or on the global meter
// provider when provider is nil.
func NewFlowMetrics(provider metric.MeterProvider) (*FlowMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter(MeterName)

	attempts, err := meter.Int64Counter("iou_flow_attempts_total",
		metric.WithDescription("Transition attempts by command and outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}

	sessions, err := meter.Int64Counter("iou_flow_sessions_total",
		metric.WithDescription("Counterparty signing sessions by final state"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create sessions counter: %w", err)
	}

	notarizations, err := meter.Float64Histogram("iou_notarization_duration_seconds",
		metric.WithDescription("Notarization round trip latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create notarization histogram: %w", err)
	}

	deliveries, err := meter.Int64Counter("iou_finality_deliveries_total",
		metric.WithDescription("Finalized transition deliveries to participants by result"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create deliveries counter: %w", err)
	}

	return &FlowMetrics{attempts: attempts, sessions: sessions, notarizations: notarizations, deliveries: deliveries}, nil
}

// RecordAttempt counts one finished attempt.
func (m *FlowMetrics) RecordAttempt(ctx context.Context, command, outcome string) {
	if m == nil {
		return
	}

	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

// RecordSession counts one counterparty session by its terminal state.
func (m *FlowMetrics) RecordSession(ctx context.Context, state string) {
	if m == nil {
		return
	}

	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordNotarization observes a notarization round trip.
func (m *FlowMetrics) RecordNotarization(ctx context.Context, elapsed time.Duration, outcome string) {
	if m == nil {
		return
	}

	m.notarizations.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDelivery counts one distribution of a finalized transition.
func (m *FlowMetrics) RecordDelivery(ctx context.Context, delivered bool) {
	if m == nil {
		return
	}

	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.Bool("delivered", delivered)))
}
