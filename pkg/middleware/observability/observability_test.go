package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quill-ai/go-quill/pkg/quill"
)

func TestInMemoryMetricsProvider(t *testing.T) {
	t.Parallel()

	p := NewInMemoryMetricsProvider()
	ctx := context.Background()

	p.Counter(ctx, "c", 2, map[string]string{"a": "1", "b": "2"})
	p.Counter(ctx, "c", 3, map[string]string{"b": "2", "a": "1"})
	p.Counter(ctx, "c", 7, map[string]string{"a": "other"})
	p.Gauge(ctx, "g", 1.5, nil)
	p.Gauge(ctx, "g", -0.5, nil)
	p.RecordDuration(ctx, "h", 250*time.Millisecond, nil)

	if got := p.GetCounter("c", map[string]string{"a": "1", "b": "2"}); got != 5 {
		t.Errorf("counter = %d, want 5", got)
	}
	if got := p.GetCounter("c", map[string]string{"a": "other"}); got != 7 {
		t.Errorf("counter(other) = %d, want 7", got)
	}
	if got := p.GetGauge("g", nil); got != 1.0 {
		t.Errorf("gauge = %v, want 1", got)
	}
	if got := p.GetHistogram("h", nil); len(got) != 1 || got[0] != 0.25 {
		t.Errorf("histogram = %v, want [0.25]", got)
	}

	p.Reset()
	if got := p.GetCounter("c", map[string]string{"a": "other"}); got != 0 {
		t.Errorf("counter after reset = %d", got)
	}
}

func TestInMemoryTracerProvider(t *testing.T) {
	t.Parallel()

	p := NewInMemoryTracerProvider()
	ctx, parent := p.StartSpan(context.Background(), "parent", WithAttributes(map[string]any{"tenant_id": "t1"}))
	_, child := p.StartSpan(ctx, "child", WithSpanKind(SpanKindClient))
	child.AddEvent("retry", map[string]any{"attempt": 2})
	child.End(errors.New("boom"))
	parent.SetAttribute("chunks", 3)
	parent.End(nil)
	parent.End(nil)

	spans := p.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}

	c := p.GetSpansByName("child")[0]
	pr := p.GetSpansByName("parent")[0]
	if c.TraceID != pr.TraceID {
		t.Errorf("child trace %q != parent trace %q", c.TraceID, pr.TraceID)
	}
	if c.ParentID != pr.SpanID {
		t.Errorf("child parent = %q, want %q", c.ParentID, pr.SpanID)
	}
	if c.Status != SpanStatusError || c.Kind != SpanKindClient || len(c.Events) != 1 {
		t.Errorf("child = %+v", c)
	}
	if pr.Attributes["tenant_id"] != "t1" || pr.Attributes["chunks"] != 3 {
		t.Errorf("parent attributes = %v", pr.Attributes)
	}
}

func TestNoopProviders(t *testing.T) {
	t.Parallel()

	var m MetricsProvider = NoopMetricsProvider{}
	m.Counter(context.Background(), "x", 1, nil)

	var tp TracerProvider = NoopTracerProvider{}
	ctx := context.Background()
	got, span := tp.StartSpan(ctx, "x")
	if got != ctx {
		t.Error("noop tracer should return the same context")
	}
	span.End(nil)
	if sc := span.SpanContext(); sc.TraceID != "" {
		t.Errorf("noop trace id = %q", sc.TraceID)
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Error(err)
	}
}

func TestPrometheusProvider(t *testing.T) {
	t.Parallel()

	p := NewPrometheusProvider(WithHelp(MetricSyncChunks, "Chunks touched by sync."))
	ctx := context.Background()
	p.Counter(ctx, MetricSyncChunks, 3, map[string]string{"op": "added"})
	p.Counter(ctx, MetricSyncChunks, 1, map[string]string{"op": "deleted"})
	p.RecordDuration(ctx, MetricSyncDuration, 120*time.Millisecond, map[string]string{"outcome": "ok"})
	p.Gauge(ctx, "quill_inflight", 2, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`quill_sync_chunks_total{op="added"} 3`,
		`quill_sync_chunks_total{op="deleted"} 1`,
		"# HELP quill_sync_chunks_total Chunks touched by sync.",
		`quill_sync_duration_seconds_count{outcome="ok"} 1`,
		"quill_inflight 2",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestHealthCheckRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []HealthChecker
		wantStatus HealthStatus
		wantCode   int
	}{
		{
			name:       "no checks",
			wantStatus: HealthStatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "all ok",
			checks: []HealthChecker{
				NewFuncHealthCheck("index", func(context.Context) error { return nil }),
				NewFuncHealthCheck("ledger", func(context.Context) error { return nil }),
			},
			wantStatus: HealthStatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "one failing",
			checks: []HealthChecker{
				NewFuncHealthCheck("index", func(context.Context) error { return errors.New("down") }),
				NewFuncHealthCheck("ledger", func(context.Context) error { return nil }),
			},
			wantStatus: HealthStatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "timeout",
			checks: []HealthChecker{
				&FuncHealthCheck{
					CheckName:    "slow",
					CheckTimeout: 10 * time.Millisecond,
					Fn: func(ctx context.Context) error {
						<-ctx.Done()
						return ctx.Err()
					},
				},
			},
			wantStatus: HealthStatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewHealthCheckRegistry(time.Second)
			for _, c := range tt.checks {
				r.Register(c)
			}

			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var report HealthReport
			if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
				t.Fatal(err)
			}
			if report.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", report.Status, tt.wantStatus)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("checks = %d, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestHealthCheckRegistry_Unregister(t *testing.T) {
	t.Parallel()

	r := NewHealthCheckRegistry(0)
	r.Register(NewFuncHealthCheck("index", func(context.Context) error { return errors.New("down") }))
	r.Unregister("index")
	if got := r.RunAll(context.Background()); got.Status != HealthStatusHealthy {
		t.Errorf("status = %s", got.Status)
	}
}

func TestTelemetry(t *testing.T) {
	t.Parallel()

	metrics := NewInMemoryMetricsProvider()
	tracer := NewInMemoryTracerProvider()
	tel := NewTelemetry(metrics, tracer)
	ctx := context.Background()

	spanCtx, span := tel.Start(ctx, SpanProcessDocument, map[string]any{"tenant_id": "t1"})
	if quill.TraceID(spanCtx) == "" {
		t.Error("trace id not propagated into context")
	}
	tel.SyncChunks(spanCtx, "added", 3)
	tel.SyncChunks(spanCtx, "deleted", 0)
	tel.SyncDone(spanCtx, time.Second, nil)
	tel.ResearchDone(spanCtx, "research", 2*time.Second)
	tel.HTTPDone(spanCtx, "/v1/chat", 200, time.Millisecond)
	span.End(nil)

	if got := metrics.GetCounter(MetricSyncChunks, map[string]string{"op": "added"}); got != 3 {
		t.Errorf("added = %d", got)
	}
	if got := metrics.GetCounter(MetricSyncChunks, map[string]string{"op": "deleted"}); got != 0 {
		t.Errorf("deleted = %d, zero counts should not be recorded", got)
	}
	if got := metrics.GetHistogram(MetricSyncDuration, map[string]string{"outcome": "ok"}); len(got) != 1 {
		t.Errorf("sync duration = %v", got)
	}
	if got := metrics.GetCounter(MetricResearchRuns, map[string]string{"mode": "research"}); got != 1 {
		t.Errorf("research runs = %d", got)
	}
	if got := metrics.GetCounter(MetricHTTPRequests, map[string]string{"route": "/v1/chat", "code": "200"}); got != 1 {
		t.Errorf("http requests = %d", got)
	}
	if got := tracer.GetSpansByName(SpanProcessDocument); len(got) != 1 || got[0].Attributes["tenant_id"] != "t1" {
		t.Errorf("spans = %+v", got)
	}
}

func TestTelemetry_Nil(t *testing.T) {
	t.Parallel()

	var tel *Telemetry
	ctx, span := tel.Start(context.Background(), "x", nil)
	span.End(nil)
	tel.SyncChunks(ctx, "added", 1)
	tel.SyncDone(ctx, time.Second, errors.New("x"))
	tel.ResearchDone(ctx, "normal", time.Second)
	tel.HTTPDone(ctx, "/", 200, time.Second)
}

func TestTrace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    quill.Handler
		wantErr    bool
		wantOutput string
	}{
		{
			name: "success",
			handler: quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
				var in string
				if err := quill.Read(req, &in); err != nil {
					return err
				}
				return quill.Write(res, strings.ToUpper(in))
			}),
			wantOutput: "HELLO",
		},
		{
			name: "error",
			handler: quill.HandlerFunc(func(*quill.Request, *quill.Response) error {
				return errors.New("model unavailable")
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracer := NewInMemoryTracerProvider()
			flow := quill.NewFlow().Use(Trace(tracer, "chains.chat", tt.handler))

			var out string
			err := flow.Run(context.Background(), "hello", &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && out != tt.wantOutput {
				t.Errorf("output = %q, want %q", out, tt.wantOutput)
			}

			spans := tracer.GetSpansByName("chains.chat")
			if len(spans) != 1 {
				t.Fatalf("spans = %d", len(spans))
			}
			wantStatus := SpanStatusOK
			if tt.wantErr {
				wantStatus = SpanStatusError
			}
			if spans[0].Status != wantStatus {
				t.Errorf("status = %v, want %v", spans[0].Status, wantStatus)
			}
			if !tt.wantErr && spans[0].Attributes["output_bytes"] != int64(5) {
				t.Errorf("output_bytes = %v", spans[0].Attributes["output_bytes"])
			}
		})
	}
}
