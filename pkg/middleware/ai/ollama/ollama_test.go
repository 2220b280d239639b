package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		model     string
		opts      []Option
		wantModel string
		wantErr   bool
	}{
		{name: "default model", model: "", opts: []Option{WithConfig(&Config{Host: "http://localhost:11434"})}, wantModel: DefaultModel},
		{name: "custom model", model: "qwen2.5", opts: []Option{WithConfig(&Config{Host: "http://localhost:11434"})}, wantModel: "qwen2.5"},
		{name: "bad host", model: "m", opts: []Option{WithConfig(&Config{Host: "http://[::1"})}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, err := New(tt.model, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if err == nil && client.model != tt.wantModel {
				t.Errorf("model = %q", client.model)
			}
		})
	}
}

func TestBuildChatRequest(t *testing.T) {
	t.Parallel()

	client := &Client{model: "m", config: &Config{
		Temperature:       ai.Float32Ptr(0.3),
		MaxTokens:         ai.IntPtr(200),
		KeepAlive:         "10m",
		SystemInstruction: "default",
		Options:           map[string]any{"num_ctx": 4096},
	}}

	req, err := client.buildChatRequest("hello", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != "default" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Options["temperature"] != float32(0.3) || req.Options["num_predict"] != 200 || req.Options["num_ctx"] != 4096 {
		t.Errorf("options = %v", req.Options)
	}
	if req.KeepAlive == nil || req.KeepAlive.Duration != 10*time.Minute {
		t.Errorf("keep_alive = %v", req.KeepAlive)
	}
	if req.Format != nil {
		t.Errorf("format = %s", req.Format)
	}

	req, _ = client.buildChatRequest("hello", &ai.ResponseFormat{Type: "json_object"}, "override")
	if string(req.Format) != `"json"` || req.Messages[0].Content != "override" {
		t.Errorf("format = %s, system = %q", req.Format, req.Messages[0].Content)
	}

	req, _ = client.buildChatRequest("hello", &ai.ResponseFormat{Type: "json_schema", Schema: &jsonschema.Schema{Type: "object"}}, "")
	if !strings.Contains(string(req.Format), `"type":"object"`) {
		t.Errorf("format = %s", req.Format)
	}

	bad := &Client{model: "m", config: &Config{KeepAlive: "forever"}}
	if _, err := bad.buildChatRequest("x", nil, ""); err == nil {
		t.Error("expected keep_alive error")
	}
}

func TestCleanJSONResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: `{"a":1}`, want: `{"a":1}`},
		{in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{in: `{"a":1} Analysis: done`, want: `{"a":1}`},
		{in: `["x","y"]`, want: `["x","y"]`},
		{in: "  plain  ", want: "plain"},
	}
	for _, tt := range tests {
		if got := cleanJSONResponse(tt.in); got != tt.want {
			t.Errorf("cleanJSONResponse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeOllama serves /api/chat as NDJSON chunks and /api/embed.
func fakeOllama(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			w.Header().Set("Content-Type", "application/x-ndjson")
			for _, c := range chunks {
				fmt.Fprintf(w, "{\"model\":\"m\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", c)
			}
			_, _ = io.WriteString(w, "{\"model\":\"m\",\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true}\n")
		case "/api/embed":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"model":"m","embeddings":[[0.25,0.5,0.75]]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChat(t *testing.T) {
	t.Parallel()

	srv := fakeOllama(t, []string{"hello ", "from ", "llama"})
	client, err := New("m", WithConfig(&Config{Host: srv.URL}))
	if err != nil {
		t.Fatal(err)
	}

	out, err := ai.Complete(context.Background(), client, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello from llama" {
		t.Errorf("out = %q", out)
	}
}

func TestChatStructured(t *testing.T) {
	t.Parallel()

	srv := fakeOllama(t, []string{"```json\n{\"mode\":", "\"research\"}\n```", " hope this helps"})
	client, err := New("m", WithConfig(&Config{Host: srv.URL}))
	if err != nil {
		t.Fatal(err)
	}

	out, err := ai.Complete(context.Background(), client, "decide", ai.WithJSON())
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"mode":"research"}` {
		t.Errorf("out = %q", out)
	}
}

func TestEmbedder(t *testing.T) {
	t.Parallel()

	srv := fakeOllama(t, nil)
	client, err := New("m", WithConfig(&Config{Host: srv.URL}))
	if err != nil {
		t.Fatal(err)
	}
	var emb retrieval.Embedder = client.Embedder("nomic-embed-text")

	v, err := emb.Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 || v[2] != 0.75 {
		t.Errorf("v = %v", v)
	}
}

func TestClientInterfaceCompliance(_ *testing.T) {
	var _ ai.Client = (*Client)(nil)
}
