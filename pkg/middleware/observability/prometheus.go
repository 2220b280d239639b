package observability

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultDurationBuckets covers sub-millisecond store calls up to
// multi-minute research runs.
var DefaultDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// PrometheusProvider implements MetricsProvider on a private registry.
//
// Vectors are created on first use. The label names of a metric are fixed by
// its first observation, so callers must pass the same label keys every time.
//
// Scraped output looks like:
//
//	# TYPE quill_sync_chunks_total counter
//	quill_sync_chunks_total{op="added"} 42
//	quill_sync_chunks_total{op="deleted"} 3
type PrometheusProvider struct {
	mu         sync.RWMutex
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	help       map[string]string
	buckets    []float64
}

// PrometheusOption configures the Prometheus provider.
type PrometheusOption func(*PrometheusProvider)

// WithDurationBuckets sets histogram buckets.
func WithDurationBuckets(buckets []float64) PrometheusOption {
	return func(p *PrometheusProvider) {
		p.buckets = buckets
	}
}

// WithPrometheusRegistry uses an existing registry instead of a new one.
// Runtime collectors are not added to a caller-supplied registry.
func WithPrometheusRegistry(registry *prometheus.Registry) PrometheusOption {
	return func(p *PrometheusProvider) {
		p.registry = registry
	}
}

// WithHelp sets the HELP text for a metric name.
func WithHelp(name, help string) PrometheusOption {
	return func(p *PrometheusProvider) {
		p.help[name] = help
	}
}

// NewPrometheusProvider creates a provider with Go runtime and process
// collectors registered.
func NewPrometheusProvider(opts ...PrometheusOption) *PrometheusProvider {
	p := &PrometheusProvider{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		help:       make(map[string]string),
		buckets:    DefaultDurationBuckets,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Counter adds value to a counter.
func (p *PrometheusProvider) Counter(_ context.Context, name string, value int64, labels map[string]string) {
	vec := getOrCreate(p, p.counters, name, labels, func(names []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: p.helpFor(name, "Counter")}, names)
	})
	vec.With(labels).Add(float64(value))
}

// Gauge adds value to a gauge.
func (p *PrometheusProvider) Gauge(_ context.Context, name string, value float64, labels map[string]string) {
	vec := getOrCreate(p, p.gauges, name, labels, func(names []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: p.helpFor(name, "Gauge")}, names)
	})
	vec.With(labels).Add(value)
}

// Histogram observes value.
func (p *PrometheusProvider) Histogram(_ context.Context, name string, value float64, labels map[string]string) {
	vec := getOrCreate(p, p.histograms, name, labels, func(names []string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    p.helpFor(name, "Histogram"),
			Buckets: p.buckets,
		}, names)
	})
	vec.With(labels).Observe(value)
}

// RecordDuration observes duration in seconds.
func (p *PrometheusProvider) RecordDuration(ctx context.Context, name string, duration time.Duration, labels map[string]string) {
	p.Histogram(ctx, name, duration.Seconds(), labels)
}

// Handler serves the registry for scraping.
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (p *PrometheusProvider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusProvider) helpFor(name, kind string) string {
	if h, ok := p.help[name]; ok {
		return h
	}
	return kind + " for " + name
}

// getOrCreate returns the vector registered under name, creating and
// registering it on first use.
func getOrCreate[V prometheus.Collector](p *PrometheusProvider, vecs map[string]V, name string, labels map[string]string, build func([]string) V) V {
	p.mu.RLock()
	vec, ok := vecs[name]
	p.mu.RUnlock()
	if ok {
		return vec
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if vec, ok = vecs[name]; ok {
		return vec
	}
	vec = build(labelNames(labels))
	p.registry.MustRegister(vec)
	vecs[name] = vec
	return vec
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
