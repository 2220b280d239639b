// Package weaviate stores tenant chunks in Weaviate, one class per tenant.
package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
)

// Property names of a tenant class.
const (
	propText       = "text"
	propTenantID   = "tenant_id"
	propChunkID    = "chunk_id"
	propChunkIndex = "chunk_index"
	propMetadata   = "metadata"
)

// Index implements retrieval.Index on Weaviate.
//
// Each tenant gets the class <ClassPrefix><SafeName(tenant)> with the
// vectorizer disabled; vectors always come from the caller's embedder.
// Object IDs are UUIDv5 of the chunk ID so upserts replace in place.
type Index struct {
	client      *wv.Client
	url         string
	apiKey      string
	classPrefix string
}

// Config holds Weaviate connection settings.
type Config struct {
	// URL of the instance, e.g. "http://localhost:8080". A missing scheme
	// means http.
	URL    string
	APIKey string
	// ClassPrefix defaults to "Tenant_". Weaviate requires class names to
	// start with a capital letter.
	ClassPrefix string
}

// New connects to Weaviate and checks that it is ready.
func New(ctx context.Context, config *Config) (*Index, error) {
	idx, err := newIndex(config)
	if err != nil {
		return nil, err
	}
	if err := idx.Health(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func newIndex(config *Config) (*Index, error) {
	if config.URL == "" {
		return nil, errors.New("weaviate URL is required")
	}
	prefix := config.ClassPrefix
	if prefix == "" {
		prefix = "Tenant_"
	}

	raw := config.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid weaviate URL: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL: %q has no host", config.URL)
	}

	cfg := wv.Config{Host: parsed.Host, Scheme: parsed.Scheme}
	if config.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: config.APIKey}
	}
	client, err := wv.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &Index{
		client:      client,
		url:         config.URL,
		apiKey:      config.APIKey,
		classPrefix: prefix,
	}, nil
}

// ClassName returns the class holding tenant's chunks.
func (x *Index) ClassName(tenant string) string {
	return x.classPrefix + retrieval.SafeName(tenant)
}

// EnsureTenant creates the tenant class if it does not exist.
func (x *Index) EnsureTenant(ctx context.Context, tenant string) error {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return err
	}
	class := x.ClassName(tenant)

	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class %s: %w", class, err)
	}
	if exists {
		return nil
	}

	err = x.client.Schema().ClassCreator().WithClass(classSchema(class)).Do(ctx)
	if err != nil {
		// A concurrent creator may have won the race.
		if again, cerr := x.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx); cerr == nil && again {
			return nil
		}
		return fmt.Errorf("failed to create class %s: %w", class, err)
	}
	return nil
}

func classSchema(class string) *models.Class {
	return &models.Class{
		Class:      class,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: propText, DataType: []string{"text"}},
			{Name: propTenantID, DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
			{Name: propChunkID, DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
			{Name: propChunkIndex, DataType: []string{"int"}},
			{Name: propMetadata, DataType: []string{"text"}},
		},
	}
}

// Upsert writes records in one batch. Per-object failures are joined into
// the returned error.
func (x *Index) Upsert(ctx context.Context, tenant string, records []retrieval.Record) error {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	class := x.ClassName(tenant)

	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		obj, err := toObject(class, tenant, r)
		if err != nil {
			return err
		}
		objects = append(objects, obj)
	}

	resp, err := x.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert %d objects into %s: %w", len(objects), class, err)
	}
	return batchErrors(resp)
}

func toObject(class, tenant string, r retrieval.Record) (*models.Object, error) {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata for %s: %w", r.ID, err)
	}
	props := map[string]any{
		propText:     r.Content,
		propTenantID: tenant,
		propChunkID:  r.ID,
		propMetadata: string(meta),
	}
	if idx, ok := r.Metadata[retrieval.MetaChunkIndex]; ok {
		props[propChunkIndex] = idx
	}
	return &models.Object{
		Class:      class,
		ID:         ObjectID(tenant, r.ID),
		Properties: props,
		Vector:     models.C11yVector(r.Vector),
	}, nil
}

func batchErrors(resp []models.ObjectsGetResponse) error {
	var errs []error
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			errs = append(errs, fmt.Errorf("object %s: %s", item.ID, e.Message))
		}
	}
	return errors.Join(errs...)
}

// ObjectID derives the Weaviate object UUID from the tenant and chunk ID.
// Tenants whose class names collide still get distinct objects.
func ObjectID(tenant, chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceDNS, []byte(tenant+"\x00"+chunkID)).String())
}

// Delete removes the chunks with the given IDs.
func (x *Index) Delete(ctx context.Context, tenant string, ids []string) error {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	class := x.ClassName(tenant)

	_, err := x.client.Batch().ObjectsBatchDeleter().
		WithClassName(class).
		WithWhere(deleteWhere(tenant, ids)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %d objects from %s: %w", len(ids), class, err)
	}
	return nil
}

// Search runs a nearVector query on the tenant class. The tenant_id
// constraint is pushed down as a where filter; other filter keys are
// matched against the decoded metadata.
func (x *Index) Search(ctx context.Context, tenant string, q retrieval.Query) ([]retrieval.Hit, error) {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("query vector is required for weaviate search")
	}
	class := x.ClassName(tenant)
	limit := q.EffectiveLimit()

	get := x.client.GraphQL().Get().
		WithClassName(class).
		WithFields(
			graphql.Field{Name: propText},
			graphql.Field{Name: propChunkID},
			graphql.Field{Name: propMetadata},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		WithNearVector(x.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)).
		WithWhere(buildWhere(tenant)).
		WithLimit(limit * overfetch(q.Filter))

	resp, err := get.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search failed: %s", resp.Errors[0].Message)
	}

	hits := make([]retrieval.Hit, 0, limit)
	for _, obj := range objectsOf(resp.Data, class) {
		hit := parseObject(obj)
		if !retrieval.MatchFilter(hit.Metadata, q.Filter) {
			continue
		}
		hits = append(hits, hit)
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// deleteWhere selects the tenant's chunks among ids.
func deleteWhere(tenant string, ids []string) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			buildWhere(tenant),
			filters.Where().
				WithPath([]string{propChunkID}).
				WithOperator(filters.ContainsAny).
				WithValueText(ids...),
		})
}

func buildWhere(tenant string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{propTenantID}).
		WithOperator(filters.Equal).
		WithValueText(tenant)
}

// overfetch widens the candidate set when filtering happens client side.
func overfetch(filter map[string]any) int {
	for k := range filter {
		if k != retrieval.MetaTenantID {
			return 4
		}
	}
	return 1
}

func objectsOf(data map[string]models.JSONObject, class string) []map[string]any {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	items, ok := get[class].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// parseObject converts one GraphQL result object into a hit. The score is
// 1 - cosine distance.
func parseObject(obj map[string]any) retrieval.Hit {
	var hit retrieval.Hit
	hit.Content, _ = obj[propText].(string)
	hit.ID, _ = obj[propChunkID].(string)

	if raw, ok := obj[propMetadata].(string); ok && raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			hit.Metadata = meta
		}
	}

	if add, ok := obj["_additional"].(map[string]any); ok {
		switch d := add["distance"].(type) {
		case float64:
			hit.Score = 1 - d
		case json.Number:
			if f, err := d.Float64(); err == nil {
				hit.Score = 1 - f
			}
		}
	}
	return hit
}

// Health reports whether the instance answers its readiness probe.
func (x *Index) Health(ctx context.Context) error {
	ready, err := x.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate health check failed: %w", err)
	}
	if !ready {
		return errors.New("weaviate is not ready")
	}
	return nil
}

// Close is a no-op; the client holds no persistent connections.
func (x *Index) Close() error { return nil }
