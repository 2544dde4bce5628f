package iou

import (
	"context"
	"strings"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTracerName names the tracer used when none was attached to context.
const DefaultTracerName = "lib-iou"

type customContextKey string

// CustomContextKey is the context key holding CustomContextKeyValue.
var CustomContextKey = customContextKey("iou_context")

// CustomContextKeyValue holds the tracking facilities attached to a context.
type CustomContextKeyValue struct {
	CorrelationID string
	Tracer        trace.Tracer
	Logger        log.Logger
}

func valuesFrom(ctx context.Context) *CustomContextKeyValue {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		return &CustomContextKeyValue{}
	}

	clone := *values

	return &clone
}

// ContextWithLogger returns a context carrying logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := valuesFrom(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithTracer returns a context carrying tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := valuesFrom(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithCorrelationID returns a context carrying the correlation id used
// to tie together the log lines of one transaction attempt.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	values := valuesFrom(ctx)
	values.CorrelationID = id

	return context.WithValue(ctx, CustomContextKey, values)
}

// NewLoggerFromContext returns the context logger or a NopLogger.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	return valuesFrom(ctx).logger()
}

// NewTrackingFromContext extracts the logger, tracer and correlation id from
// ctx. Missing components are replaced with working defaults so callers never
// nil-check: a NopLogger, the global otel tracer and a fresh UUID.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string) {
	values := valuesFrom(ctx)

	tracer := values.Tracer
	if tracer == nil {
		tracer = otel.Tracer(DefaultTracerName)
	}

	correlationID := strings.TrimSpace(values.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	return values.logger(), tracer, correlationID
}

func (v *CustomContextKeyValue) logger() log.Logger {
	if v.Logger == nil {
		return &log.NopLogger{}
	}

	return v.Logger
}
