package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quill-ai/go-quill/pkg/chains"
	"github.com/quill-ai/go-quill/pkg/ingest"
	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/memory"
	"github.com/quill-ai/go-quill/pkg/middleware/observability"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
	"github.com/quill-ai/go-quill/pkg/research"
)

// scripted answers research prompts by role and everything else with
// "mock reply".
func scripted(prompt string, _ *ai.AgentOptions) (string, error) {
	switch {
	case strings.Contains(prompt, "Research Planner"):
		return `["Viking trade routes"]`, nil
	case strings.Contains(prompt, "Search Query Writer"):
		return "viking trade routes map", nil
	case strings.Contains(prompt, "Research Editor"):
		return "The Vikings traded along the Volga.", nil
	default:
		return "mock reply", nil
	}
}

type fixture struct {
	client  *ai.MockClient
	metrics *observability.PrometheusProvider
	conv    *memory.Conversation
	handler http.Handler
}

func newFixture(t *testing.T, client *ai.MockClient) *fixture {
	t.Helper()

	store := memory.NewInMemoryStore()
	t.Cleanup(func() { store.Close() })

	emb := retrieval.NewMockEmbedder(64)
	idx := retrieval.NewMemoryIndex()
	retriever := retrieval.NewRetriever(emb, idx)
	metrics := observability.NewPrometheusProvider()
	telemetry := observability.NewTelemetry(metrics, nil)
	conv := memory.NewConversation(store)

	health := observability.NewHealthCheckRegistry(time.Second)
	health.Register(observability.NewFuncHealthCheck("index", idx.Health))

	searcher := research.SearcherFunc(func(context.Context, string) (ai.SearchResponse, error) {
		return ai.SearchResponse{
			Content:   "Norse merchants reached Baghdad.",
			Citations: []string{"https://example.com/volga"},
		}, nil
	})

	services := Services{
		Syncer: ingest.NewSyncer(ingest.NewStoreLedger(store), emb, idx, ingest.WithTelemetry(telemetry)),
		Research: research.NewAgent(client, searcher,
			research.WithDetector(research.NewKeywordDetector()),
			research.WithMemory(conv),
		),
		Chat:       chains.NewChat(client, chains.WithConversation(conv)),
		Planner:    chains.NewPlanner(client),
		Feedback:   chains.NewFeedback(client, retriever),
		UserModify: chains.NewUserModify(client, retriever),
		AutoModify: chains.NewAutoModify(client, retriever),
		Retriever:  retriever,
		Telemetry:  telemetry,
		Health:     health,
		Metrics:    metrics.Handler(),
	}
	return &fixture{client: client, metrics: metrics, conv: conv, handler: New(services)}
}

func (f *fixture) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v\n%s", path, err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestDocumentSync(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClientFunc(scripted))
	body := `{"content": "The lighthouse keeper Mara counts ships every night.", "metadata": {"title": "Lamps"}}`

	rec, resp := f.post(t, "/v1/documents/book_1", body)
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	result, _ := resp.Result.(map[string]any)
	if result["added"] != float64(1) {
		t.Errorf("result = %v", resp.Result)
	}

	_, resp = f.post(t, "/v1/documents/book_1", body)
	result, _ = resp.Result.(map[string]any)
	if result["added"] != float64(0) || result["modified"] != float64(0) {
		t.Errorf("second sync = %v", resp.Result)
	}
}

func TestChainEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClientFunc(scripted))
	f.post(t, "/v1/documents/book_1", `{"content": "The lighthouse keeper Mara counts ships every night."}`)

	setting := `{"synopsis": {"genre": "mystery"}}`
	tests := []struct {
		path string
		body string
	}{
		{"/v1/chat", `{"user_setting": ` + setting + `, "user_input": "hello"}`},
		{"/v1/planner", `{"genre": "mystery", "logline": "a keeper vanishes", "prompt": "the coast", "section": "geography"}`},
		{"/v1/feedback", `{"user_setting": ` + setting + `, "tenant_id": "book_1", "query": "Mara counted."}`},
		{"/v1/modify/user", `{"user_setting": ` + setting + `, "tenant_id": "book_1", "query": "Mara counted.", "how_polish": "darker"}`},
		{"/v1/modify/auto", `{"user_setting": ` + setting + `, "tenant_id": "book_1", "query": "Mara counted."}`},
	}

	for _, tt := range tests {
		rec, resp := f.post(t, tt.path, tt.body)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, body = %s", tt.path, rec.Code, rec.Body.String())
			continue
		}
		if resp.Result != "mock reply" {
			t.Errorf("%s: result = %v", tt.path, resp.Result)
		}
	}

	prompts := f.client.Prompts()
	if !strings.Contains(prompts[0], "<genre>mystery</genre>") {
		t.Error("chat prompt is missing the rendered settings")
	}
	if !strings.Contains(prompts[2], "lighthouse keeper") {
		t.Error("feedback prompt is missing the retrieved passage")
	}
}

func TestResearchEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClientFunc(scripted))

	rec, resp := f.post(t, "/v1/research", `{"query": "Please find information about Viking trade routes", "session_id": "s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if resp.Mode != "research" || resp.Result != "The Vikings traded along the Volga." {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "https://example.com/volga" {
		t.Errorf("sources = %v", resp.Sources)
	}

	history, err := f.conv.History(context.Background(), "s1")
	if err != nil || len(history) != 1 {
		t.Errorf("history = %v, err = %v", history, err)
	}

	_, resp = f.post(t, "/v1/research", `{"query": "Write a short poem about autumn leaves"}`)
	if resp.Mode != "normal" || resp.Result != "mock reply" {
		t.Errorf("normal resp = %+v", resp)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClientFunc(scripted))

	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"malformed json", "/v1/chat", `{"user_input": `, http.StatusBadRequest, "invalid JSON body"},
		{"missing input", "/v1/chat", `{"user_input": " "}`, http.StatusBadRequest, "user_input is required"},
		{"unknown section", "/v1/planner", `{"prompt": "x", "section": "weather"}`, http.StatusBadRequest, "unknown section"},
		{"blank tenant", "/v1/feedback", `{"tenant_id": "", "query": "x"}`, http.StatusBadRequest, "tenant"},
		{"blank research query", "/v1/research", `{"query": ""}`, http.StatusBadRequest, "query is required"},
	}
	for _, tt := range tests {
		rec, resp := f.post(t, tt.path, tt.body)
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.status)
		}
		if resp.Status != "error" || !strings.Contains(resp.Error, tt.message) {
			t.Errorf("%s: resp = %+v", tt.name, resp)
		}
	}
	if f.client.Calls() != 0 {
		t.Errorf("model called %d times for rejected requests", f.client.Calls())
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClientWithError(errors.New("upstream key sk-123 rejected")))
	rec, resp := f.post(t, "/v1/chat", `{"user_input": "hello"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Error != quill.DefaultPublicMessage {
		t.Errorf("error = %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "sk-123") {
		t.Error("internal error leaked")
	}
}

func TestChatSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClient("line one\nline two"))

	rec, resp := f.post(t, "/v1/chat", `{"user_input": "hello", "session_id": "s1"}`)
	if rec.Code != http.StatusOK || resp.Result != "line one\nline two" {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	history, err := f.conv.History(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Input != "hello" || history[0].Output != "line one\nline two" {
		t.Errorf("history = %+v", history)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ai.NewMockClientFunc(scripted))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"user_input": "hi"}`))
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("request id = %q", got)
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "index") {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `quill_http_requests_total{code="200",route="/v1/chat"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", rec.Body.String())
	}
}

func TestUnconfiguredRoutes(t *testing.T) {
	t.Parallel()

	h := New(Services{})
	for _, path := range []string{"/v1/chat", "/v1/research", "/v1/documents/book_1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}
