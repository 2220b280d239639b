package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// NoopMetricsProvider discards everything.
type NoopMetricsProvider struct{}

func (NoopMetricsProvider) Counter(context.Context, string, int64, map[string]string) {}

func (NoopMetricsProvider) Gauge(context.Context, string, float64, map[string]string) {}

func (NoopMetricsProvider) Histogram(context.Context, string, float64, map[string]string) {}

func (NoopMetricsProvider) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

// NoopTracerProvider returns spans that record nothing.
type NoopTracerProvider struct{}

func (NoopTracerProvider) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracerProvider) Shutdown(context.Context) error { return nil }

type noopSpan struct{}

func (noopSpan) End(error)                       {}
func (noopSpan) SetAttribute(string, any)        {}
func (noopSpan) AddEvent(string, map[string]any) {}
func (noopSpan) SetStatus(SpanStatus, string)    {}
func (noopSpan) SpanContext() SpanContext        { return SpanContext{} }

// InMemoryMetricsProvider keeps metrics in maps so tests can assert on them.
//
//	metrics := observability.NewInMemoryMetricsProvider()
//	syncer := ingest.NewSyncer(..., ingest.WithTelemetry(observability.NewTelemetry(metrics, nil)))
//	...
//	if got := metrics.GetCounter(observability.MetricSyncChunks, map[string]string{"op": "added"}); got != 3 {
//	    t.Errorf("added = %d, want 3", got)
//	}
type InMemoryMetricsProvider struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryMetricsProvider creates an empty provider.
func NewInMemoryMetricsProvider() *InMemoryMetricsProvider {
	return &InMemoryMetricsProvider{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (p *InMemoryMetricsProvider) Counter(_ context.Context, name string, value int64, labels map[string]string) {
	key := metricKey(name, labels)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[key] += value
}

func (p *InMemoryMetricsProvider) Gauge(_ context.Context, name string, value float64, labels map[string]string) {
	key := metricKey(name, labels)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gauges[key] += value
}

func (p *InMemoryMetricsProvider) Histogram(_ context.Context, name string, value float64, labels map[string]string) {
	key := metricKey(name, labels)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.histograms[key] = append(p.histograms[key], value)
}

func (p *InMemoryMetricsProvider) RecordDuration(ctx context.Context, name string, duration time.Duration, labels map[string]string) {
	p.Histogram(ctx, name, duration.Seconds(), labels)
}

// GetCounter returns the counter value for the exact label set.
func (p *InMemoryMetricsProvider) GetCounter(name string, labels map[string]string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters[metricKey(name, labels)]
}

// GetGauge returns the gauge value for the exact label set.
func (p *InMemoryMetricsProvider) GetGauge(name string, labels map[string]string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gauges[metricKey(name, labels)]
}

// GetHistogram returns a copy of the observed values.
func (p *InMemoryMetricsProvider) GetHistogram(name string, labels map[string]string) []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	values := p.histograms[metricKey(name, labels)]
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Reset clears all metrics.
func (p *InMemoryMetricsProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters = make(map[string]int64)
	p.gauges = make(map[string]float64)
	p.histograms = make(map[string][]float64)
}

// metricKey is name followed by the labels in key order.
func metricKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

// InMemoryTracerProvider records finished spans.
type InMemoryTracerProvider struct {
	mu    sync.RWMutex
	spans []*RecordedSpan
	seq   atomic.Uint64
}

// RecordedSpan is a finished span.
type RecordedSpan struct {
	Name       string
	Kind       SpanKind
	StartTime  time.Time
	EndTime    time.Time
	Attributes map[string]any
	Events     []RecordedEvent
	Status     SpanStatus
	StatusDesc string
	Error      error
	TraceID    string
	SpanID     string
	ParentID   string
}

// RecordedEvent is a span event.
type RecordedEvent struct {
	Name       string
	Attributes map[string]any
	Time       time.Time
}

type inMemorySpanKey struct{}

// NewInMemoryTracerProvider creates an empty provider.
func NewInMemoryTracerProvider() *InMemoryTracerProvider {
	return &InMemoryTracerProvider{}
}

// StartSpan starts a span. A span started from a context holding another
// in-memory span shares its trace ID and records it as the parent.
func (p *InMemoryTracerProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	cfg := newSpanConfig(opts)

	span := &inMemorySpan{
		provider: p,
		rec: &RecordedSpan{
			Name:       name,
			Kind:       cfg.kind,
			StartTime:  time.Now(),
			Attributes: make(map[string]any, len(cfg.attributes)),
			SpanID:     fmt.Sprintf("%016x", p.seq.Add(1)),
		},
	}
	for k, v := range cfg.attributes {
		span.rec.Attributes[k] = v
	}

	if parent, ok := ctx.Value(inMemorySpanKey{}).(*inMemorySpan); ok {
		span.rec.TraceID = parent.rec.TraceID
		span.rec.ParentID = parent.rec.SpanID
	} else {
		span.rec.TraceID = fmt.Sprintf("%032x", p.seq.Add(1))
	}

	return context.WithValue(ctx, inMemorySpanKey{}, span), span
}

func (p *InMemoryTracerProvider) Shutdown(context.Context) error { return nil }

// GetSpans returns the finished spans in end order.
func (p *InMemoryTracerProvider) GetSpans() []*RecordedSpan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*RecordedSpan, len(p.spans))
	copy(out, p.spans)
	return out
}

// GetSpansByName returns finished spans with the given name.
func (p *InMemoryTracerProvider) GetSpansByName(name string) []*RecordedSpan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*RecordedSpan
	for _, s := range p.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops recorded spans.
func (p *InMemoryTracerProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spans = nil
}

type inMemorySpan struct {
	provider *InMemoryTracerProvider
	mu       sync.Mutex
	rec      *RecordedSpan
	ended    bool
}

func (s *inMemorySpan) End(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.rec.EndTime = time.Now()
	s.rec.Error = err
	if err != nil {
		s.rec.Status = SpanStatusError
		s.rec.StatusDesc = err.Error()
	}
	s.mu.Unlock()

	s.provider.mu.Lock()
	s.provider.spans = append(s.provider.spans, s.rec)
	s.provider.mu.Unlock()
}

func (s *inMemorySpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Attributes[key] = value
}

func (s *inMemorySpan) AddEvent(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Events = append(s.rec.Events, RecordedEvent{Name: name, Attributes: attrs, Time: time.Now()})
}

func (s *inMemorySpan) SetStatus(code SpanStatus, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Status = code
	s.rec.StatusDesc = description
}

func (s *inMemorySpan) SpanContext() SpanContext {
	return SpanContext{TraceID: s.rec.TraceID, SpanID: s.rec.SpanID}
}
