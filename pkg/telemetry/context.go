package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified interface to all telemetry subsystems.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry system with all subsystems initialized.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry system to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry system from the context.
func FromTelemetryContext(ctx context.Context) (*Telemetry, bool) {
	t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t, ok
}

// Shutdown gracefully shuts down all telemetry subsystems.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error

	// Shutdown events first to flush pending events
	if err := t.Events.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("event publisher shutdown failed: %w", err)
	}

	// Shutdown tracer to flush pending spans
	if err := t.Tracer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("tracer shutdown failed: %w", err)
	}

	if err := t.Metrics.StopMetricsServer(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return firstErr
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext creates a context with telemetry and starts a span.
func (t *Telemetry) InstrumentedContext(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = t.WithContext(ctx)
	return t.Tracer.StartSpan(ctx, operationName, attrs...)
}

// StartOperation is a convenience method for starting a traced, logged operation.
func (t *Telemetry) StartOperation(ctx context.Context, operationName string) (context.Context, trace.Span, *Logger) {
	ctx, span := t.InstrumentedContext(ctx, operationName)
	logger := t.Logger.WithField("operation", operationName)
	return ctx, span, logger
}

// WithMutationContext enriches a context with mutation identifiers and
// returns a logger carrying the same fields.
func (t *Telemetry) WithMutationContext(ctx context.Context, token, connectionID, resourceType string) (context.Context, *Logger) {
	logger := t.Logger.
		WithToken(token).
		WithConnectionID(connectionID).
		WithResourceType(resourceType)
	ctx = logger.WithContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.SetAttributes(
			AttrToken.String(token),
			AttrConnectionID.String(connectionID),
			AttrResourceType.String(resourceType),
		)
	}

	return ctx, logger
}

// RecordMutationOutcome records a terminal mutation outcome across all
// telemetry subsystems.
func (t *Telemetry) RecordMutationOutcome(token, operation, resourceType, resourceID, status string, succeeded bool, duration time.Duration, err error) {
	t.Metrics.RecordCompletion(operation, resourceType, status, duration)

	logger := t.Logger.
		WithToken(token).
		WithOperation(operation).
		WithResourceType(resourceType)
	if resourceID != "" {
		logger = logger.WithResourceID(resourceID)
	}

	if succeeded {
		logger.WithField("duration", duration.String()).Infof("mutation completed: %s", status)
		t.Events.PublishMutationSucceeded(token, resourceID, duration)
		return
	}

	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Errorf("mutation failed: %s", status)
	reason := status
	if err != nil {
		reason = err.Error()
	}
	t.Events.PublishMutationFailed(token, resourceID, reason)
}
