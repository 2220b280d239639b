package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// Metric and span names emitted by the pipeline.
const (
	MetricSyncChunks       = "quill_sync_chunks_total"
	MetricSyncDuration     = "quill_sync_duration_seconds"
	MetricResearchRuns     = "quill_research_runs_total"
	MetricResearchDuration = "quill_research_duration_seconds"
	MetricHTTPRequests     = "quill_http_requests_total"
	MetricHTTPDuration     = "quill_http_request_duration_seconds"

	SpanProcessDocument = "ingest.process_document"
	SpanResearchRun     = "research.run"
)

// Telemetry bundles a metrics and a tracer provider behind the small set of
// domain events the services emit. A nil *Telemetry is valid and records
// nothing.
type Telemetry struct {
	Metrics MetricsProvider
	Tracer  TracerProvider
}

// NewTelemetry fills nil providers with the noop ones.
func NewTelemetry(metrics MetricsProvider, tracer TracerProvider) *Telemetry {
	if metrics == nil {
		metrics = NoopMetricsProvider{}
	}
	if tracer == nil {
		tracer = NoopTracerProvider{}
	}
	return &Telemetry{Metrics: metrics, Tracer: tracer}
}

// Start opens a span and puts its trace ID into ctx so log lines and
// *quill.Error values carry it.
func (t *Telemetry) Start(ctx context.Context, name string, attrs map[string]any) (context.Context, Span) {
	if t == nil {
		return ctx, noopSpan{}
	}
	ctx, span := t.Tracer.StartSpan(ctx, name, WithAttributes(attrs))
	if id := span.SpanContext().TraceID; id != "" && quill.TraceID(ctx) == "" {
		ctx = quill.WithTraceID(ctx, id)
	}
	return ctx, span
}

// SyncChunks counts chunks by operation: added, modified, deleted or failed.
func (t *Telemetry) SyncChunks(ctx context.Context, op string, n int) {
	if t == nil || n == 0 {
		return
	}
	t.Metrics.Counter(ctx, MetricSyncChunks, int64(n), map[string]string{"op": op})
}

// SyncDone records the duration of one ProcessDocument call.
func (t *Telemetry) SyncDone(ctx context.Context, d time.Duration, err error) {
	if t == nil {
		return
	}
	t.Metrics.RecordDuration(ctx, MetricSyncDuration, d, map[string]string{"outcome": outcome(err)})
}

// ResearchDone records one research run by detected mode.
func (t *Telemetry) ResearchDone(ctx context.Context, mode string, d time.Duration) {
	if t == nil {
		return
	}
	t.Metrics.Counter(ctx, MetricResearchRuns, 1, map[string]string{"mode": mode})
	t.Metrics.RecordDuration(ctx, MetricResearchDuration, d, map[string]string{"mode": mode})
}

// HTTPDone records one served request.
func (t *Telemetry) HTTPDone(ctx context.Context, route string, status int, d time.Duration) {
	if t == nil {
		return
	}
	t.Metrics.Counter(ctx, MetricHTTPRequests, 1, map[string]string{"route": route, "code": strconv.Itoa(status)})
	t.Metrics.RecordDuration(ctx, MetricHTTPDuration, d, map[string]string{"route": route})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
