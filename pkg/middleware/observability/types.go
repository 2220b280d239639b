// Package observability provides metrics, tracing and health checks for the
// ingestion pipeline, the research agent and the server surfaces.
//
// Library code depends only on the MetricsProvider and TracerProvider
// interfaces. The binary picks the backends: Prometheus for metrics, OTLP for
// traces, and the Noop providers when telemetry is disabled. The InMemory
// providers record everything for assertions in tests.
package observability

import (
	"context"
	"time"
)

// MetricsProvider records metrics.
//   - Counter: only goes up (chunks upserted, research runs)
//   - Gauge: goes up or down, Add semantics
//   - Histogram: distribution of values (latencies)
type MetricsProvider interface {
	Counter(ctx context.Context, name string, value int64, labels map[string]string)
	Gauge(ctx context.Context, name string, value float64, labels map[string]string)
	Histogram(ctx context.Context, name string, value float64, labels map[string]string)

	// RecordDuration observes the duration in seconds.
	RecordDuration(ctx context.Context, name string, duration time.Duration, labels map[string]string)
}

// TracerProvider starts spans.
//
// Example:
//
//	ctx, span := tracer.StartSpan(ctx, "ingest.process_document",
//	    observability.WithAttributes(map[string]any{"tenant_id": tenant}))
//	defer func() { span.End(err) }()
type TracerProvider interface {
	// StartSpan returns a context carrying the span so child operations nest
	// under it.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// Shutdown flushes pending spans.
	Shutdown(ctx context.Context) error
}

// Span is a single timed operation. End must be called exactly once.
type Span interface {
	// End finishes the span. A non-nil err marks it failed.
	End(err error)
	SetAttribute(key string, value any)
	AddEvent(name string, attrs map[string]any)
	SetStatus(code SpanStatus, description string)
	SpanContext() SpanContext
}

// SpanContext identifies a span for log correlation.
type SpanContext struct {
	TraceID string
	SpanID  string
}

// SpanStatus is the final status of a span.
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

// SpanKind describes the relationship between a span and its parent.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	// SpanKindServer covers inbound request handling.
	SpanKindServer
	// SpanKindClient covers calls to a model provider or vector store.
	SpanKindClient
)

// SpanOption configures span creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind       SpanKind
	attributes map[string]any
}

func newSpanConfig(opts []SpanOption) *spanConfig {
	cfg := &spanConfig{kind: SpanKindInternal, attributes: map[string]any{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(cfg *spanConfig) {
		cfg.kind = kind
	}
}

// WithAttributes sets initial span attributes. Repeated options merge.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(cfg *spanConfig) {
		for k, v := range attrs {
			cfg.attributes[k] = v
		}
	}
}
