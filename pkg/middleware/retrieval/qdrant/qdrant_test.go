package qdrant

import (
	"errors"
	"strings"
	"testing"

	qd "github.com/qdrant/go-client/qdrant"

	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
)

func TestNewIndexConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   *Config
		wantErr  string
		wantHost string
		wantPort int
	}{
		{name: "missing URL", config: &Config{Dimension: 8}, wantErr: "qdrant URL is required"},
		{name: "missing dimension", config: &Config{URL: "localhost:6334"}, wantErr: "dimension is required"},
		{name: "bad port", config: &Config{URL: "http://localhost:abc", Dimension: 8}, wantErr: "invalid qdrant"},
		{name: "default port", config: &Config{URL: "http://qdrant.internal", Dimension: 8}, wantHost: "qdrant.internal", wantPort: 6334},
		{name: "no scheme", config: &Config{URL: "localhost:7000", Dimension: 8}, wantHost: "localhost", wantPort: 7000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			idx, err := newIndex(tt.config)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer idx.Close()
			if idx.host != tt.wantHost || idx.port != tt.wantPort {
				t.Errorf("host:port = %s:%d", idx.host, idx.port)
			}
			if idx.prefix != "tenant_" {
				t.Errorf("prefix = %q", idx.prefix)
			}
		})
	}
}

func TestCollectionName(t *testing.T) {
	t.Parallel()

	idx := &Index{prefix: "tenant_"}
	if got := idx.CollectionName("acme.io"); got != "tenant_acme_io" {
		t.Errorf("CollectionName = %q", got)
	}
}

func TestPointID(t *testing.T) {
	t.Parallel()

	a := PointID("acme", "acme_0").GetUuid()
	if a == "" || a != PointID("acme", "acme_0").GetUuid() {
		t.Errorf("point id not deterministic: %q", a)
	}
	if a == PointID("acme", "acme_1").GetUuid() {
		t.Error("distinct chunks share a point id")
	}
	if PointID("book-1", "c0").GetUuid() == PointID("book_1", "c0").GetUuid() {
		t.Error("tenants sharing a collection share a point id")
	}
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	payload := buildPayload("acme", retrieval.Record{
		ID:      "acme_2",
		Content: "body",
		Metadata: map[string]any{
			retrieval.MetaTenantID:   "acme",
			retrieval.MetaChunkIndex: float64(2),
			"score":                  0.5,
			"draft":                  true,
			"content":                "shadowed",
		},
	})

	if got := payload[payloadContent].GetStringValue(); got != "body" {
		t.Errorf("content = %q", got)
	}
	if got := payload[payloadChunkID].GetStringValue(); got != "acme_2" {
		t.Errorf("chunk_id = %q", got)
	}
	if got := payload[retrieval.MetaChunkIndex].GetIntegerValue(); got != 2 {
		t.Errorf("chunk_index = %v", payload[retrieval.MetaChunkIndex])
	}
	if got := payload["score"].GetDoubleValue(); got != 0.5 {
		t.Errorf("score = %v", got)
	}
	if !payload["draft"].GetBoolValue() {
		t.Error("draft lost")
	}
}

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	f := buildFilter("acme", map[string]any{
		retrieval.MetaTenantID:   "acme",
		retrieval.MetaChunkIndex: 1,
		"draft":                  false,
	})
	if len(f.GetMust()) != 3 {
		t.Fatalf("must = %d", len(f.GetMust()))
	}
	for _, c := range f.GetMust() {
		field := c.GetField()
		switch field.GetKey() {
		case retrieval.MetaTenantID:
			if field.GetMatch().GetKeyword() != "acme" {
				t.Errorf("tenant match = %v", field.GetMatch())
			}
		case retrieval.MetaChunkIndex:
			if field.GetMatch().GetInteger() != 1 {
				t.Errorf("chunk_index match = %v", field.GetMatch())
			}
		case "draft":
			if _, ok := field.GetMatch().GetMatchValue().(*qd.Match_Boolean); !ok {
				t.Errorf("draft match = %v", field.GetMatch())
			}
		default:
			t.Errorf("unexpected key %q", field.GetKey())
		}
	}
}

func TestBuildFilter_TenantScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tenant string
		filter map[string]any
		must   int
	}{
		{"no filter", "book_1", nil, 1},
		{"other keys", "book_1", map[string]any{"draft": true}, 2},
		{"conflicting tenant", "book_1", map[string]any{retrieval.MetaTenantID: "book-1"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := buildFilter(tt.tenant, tt.filter)
			if len(f.GetMust()) != tt.must {
				t.Fatalf("must = %d, want %d", len(f.GetMust()), tt.must)
			}
			var tenants []string
			for _, c := range f.GetMust() {
				if field := c.GetField(); field.GetKey() == retrieval.MetaTenantID {
					tenants = append(tenants, field.GetMatch().GetKeyword())
				}
			}
			if len(tenants) != 1 || tenants[0] != tt.tenant {
				t.Errorf("tenant matches = %v, want [%s]", tenants, tt.tenant)
			}
		})
	}
}

func TestBuildPayload_TenantOverride(t *testing.T) {
	t.Parallel()

	payload := buildPayload("book_1", retrieval.Record{
		ID:       "c0",
		Metadata: map[string]any{retrieval.MetaTenantID: "book-1"},
	})
	if got := payload[retrieval.MetaTenantID].GetStringValue(); got != "book_1" {
		t.Errorf("tenant_id = %q", got)
	}
}

func TestConvertPoint(t *testing.T) {
	t.Parallel()

	hit := convertPoint(&qd.ScoredPoint{
		Id:    PointID("acme", "acme_0"),
		Score: 0.75,
		Payload: map[string]*qd.Value{
			payloadContent:           qd.NewValueString("hello"),
			payloadChunkID:           qd.NewValueString("acme_0"),
			retrieval.MetaTenantID:   qd.NewValueString("acme"),
			retrieval.MetaChunkIndex: qd.NewValueInt(0),
			"nothing":                qd.NewValueNull(),
		},
	})

	if hit.ID != "acme_0" || hit.Content != "hello" || hit.Score != 0.75 {
		t.Errorf("hit = %+v", hit)
	}
	if hit.Metadata[retrieval.MetaTenantID] != "acme" || hit.Metadata[retrieval.MetaChunkIndex] != int64(0) {
		t.Errorf("metadata = %v", hit.Metadata)
	}
	if _, ok := hit.Metadata["nothing"]; ok {
		t.Error("null value kept")
	}
	if !retrieval.MatchFilter(hit.Metadata, map[string]any{retrieval.MetaChunkIndex: 0}) {
		t.Error("converted metadata should satisfy its own filter")
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	idx, err := newIndex(&Config{URL: "localhost:6334", Dimension: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	ctx := t.Context()
	if err := idx.EnsureTenant(ctx, ""); !errors.Is(err, retrieval.ErrInvalidTenant) {
		t.Errorf("EnsureTenant err = %v", err)
	}
	if err := idx.Upsert(ctx, "acme", nil); err != nil {
		t.Errorf("empty upsert err = %v", err)
	}
	if err := idx.Delete(ctx, "acme", nil); err != nil {
		t.Errorf("empty delete err = %v", err)
	}
	if _, err := idx.Search(ctx, "acme", retrieval.Query{}); err == nil {
		t.Error("expected error for empty vector")
	}
}
