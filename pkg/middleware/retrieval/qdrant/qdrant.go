// Package qdrant stores tenant chunks in Qdrant, one collection per tenant.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"

	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
)

const (
	payloadContent = "content"
	payloadChunkID = "chunk_id"
	defaultPort    = 6334
	batchSize      = 100
)

// Index implements retrieval.Index on Qdrant.
//
// Point IDs are UUIDv5 of the chunk ID and the chunk ID itself is kept in
// the payload. Metadata keys are stored flat next to the content so filters
// are evaluated by Qdrant.
type Index struct {
	client    *qd.Client
	host      string
	port      int
	apiKey    string
	prefix    string
	dimension uint64
}

// Config holds Qdrant connection settings.
type Config struct {
	// URL of the gRPC endpoint, e.g. "http://localhost:6334". An https
	// scheme enables TLS.
	URL    string
	APIKey string
	// CollectionPrefix defaults to "tenant_".
	CollectionPrefix string
	// Dimension of the stored vectors. Required to create collections.
	Dimension int
}

// New creates a Qdrant index and checks the server is reachable.
func New(ctx context.Context, config *Config) (*Index, error) {
	idx, err := newIndex(config)
	if err != nil {
		return nil, err
	}
	if err := idx.Health(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(config *Config) (*Index, error) {
	if config.URL == "" {
		return nil, errors.New("qdrant URL is required")
	}
	if config.Dimension <= 0 {
		return nil, errors.New("qdrant vector dimension is required")
	}
	prefix := config.CollectionPrefix
	if prefix == "" {
		prefix = "tenant_"
	}

	raw := config.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid qdrant URL: %q has no host", config.URL)
	}
	port := defaultPort
	if p := parsed.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
		port = n
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   host,
		Port:   port,
		APIKey: config.APIKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Index{
		client:    client,
		host:      host,
		port:      port,
		apiKey:    config.APIKey,
		prefix:    prefix,
		dimension: uint64(config.Dimension),
	}, nil
}

// CollectionName returns the collection holding tenant's chunks. Tenants
// whose names only differ in punctuation share a collection, so every point
// also carries its tenant_id and every search matches on it.
func (x *Index) CollectionName(tenant string) string {
	return x.prefix + retrieval.SafeName(tenant)
}

// PointID derives the point UUID from the tenant and chunk ID.
func PointID(tenant, chunkID string) *qd.PointId {
	return qd.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceDNS, []byte(tenant+"\x00"+chunkID)).String())
}

// EnsureTenant creates the tenant collection with cosine distance and a
// keyword index on tenant_id.
func (x *Index) EnsureTenant(ctx context.Context, tenant string) error {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return err
	}
	name := x.CollectionName(tenant)

	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = x.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: name,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     x.dimension,
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		if again, cerr := x.client.CollectionExists(ctx, name); cerr == nil && again {
			return nil
		}
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	wait := true
	_, err = x.client.CreateFieldIndex(ctx, &qd.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      retrieval.MetaTenantID,
		FieldType:      qd.FieldType_FieldTypeKeyword.Enum(),
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("failed to index tenant_id on %s: %w", name, err)
	}
	return nil
}

// Upsert writes records in batches of 100 points.
func (x *Index) Upsert(ctx context.Context, tenant string, records []retrieval.Record) error {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return err
	}
	name := x.CollectionName(tenant)

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		points := make([]*qd.PointStruct, 0, end-start)
		for _, r := range records[start:end] {
			points = append(points, &qd.PointStruct{
				Id:      PointID(tenant, r.ID),
				Vectors: qd.NewVectors(r.Vector...),
				Payload: buildPayload(tenant, r),
			})
		}

		wait := true
		_, err := x.client.Upsert(ctx, &qd.UpsertPoints{
			CollectionName: name,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points %d-%d into %s: %w", start, end-1, name, err)
		}
	}
	return nil
}

// Delete removes points by chunk ID. A missing collection means there is
// nothing to delete.
func (x *Index) Delete(ctx context.Context, tenant string, ids []string) error {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	name := x.CollectionName(tenant)

	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = PointID(tenant, id)
	}

	wait := true
	_, err := x.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: name,
		Points:         qd.NewPointsSelector(pointIDs...),
		Wait:           &wait,
	})
	if err != nil {
		if exists, cerr := x.client.CollectionExists(ctx, name); cerr == nil && !exists {
			return nil
		}
		return fmt.Errorf("failed to delete %d points from %s: %w", len(ids), name, err)
	}
	return nil
}

// Search runs a filtered query on the tenant collection. A tenant with no
// collection yet has no hits.
func (x *Index) Search(ctx context.Context, tenant string, q retrieval.Query) ([]retrieval.Hit, error) {
	if err := retrieval.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("query vector is required for qdrant search")
	}
	name := x.CollectionName(tenant)
	limit := uint64(q.EffectiveLimit())

	points, err := x.client.Query(ctx, &qd.QueryPoints{
		CollectionName: name,
		Query:          qd.NewQuery(q.Vector...),
		Filter:         buildFilter(tenant, q.Filter),
		Limit:          &limit,
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		if exists, cerr := x.client.CollectionExists(ctx, name); cerr == nil && !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, convertPoint(p))
	}
	return hits, nil
}

// buildPayload flattens content, chunk ID and metadata into one payload.
// Whole-number floats are stored as integers so a JSON round trip does not
// change how a key filters. tenant_id always names the owning tenant.
func buildPayload(tenant string, r retrieval.Record) map[string]*qd.Value {
	payload := make(map[string]*qd.Value, len(r.Metadata)+3)
	for key, value := range r.Metadata {
		payload[key] = toValue(value)
	}
	payload[retrieval.MetaTenantID] = qd.NewValueString(tenant)
	payload[payloadContent] = qd.NewValueString(r.Content)
	payload[payloadChunkID] = qd.NewValueString(r.ID)
	return payload
}

func toValue(value any) *qd.Value {
	switch v := value.(type) {
	case nil:
		return qd.NewValueNull()
	case string:
		return qd.NewValueString(v)
	case bool:
		return qd.NewValueBool(v)
	case int:
		return qd.NewValueInt(int64(v))
	case int64:
		return qd.NewValueInt(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return qd.NewValueInt(int64(v))
		}
		return qd.NewValueDouble(v)
	default:
		return qd.NewValueString(fmt.Sprint(v))
	}
}

// buildFilter turns exact-match constraints into must conditions. The
// tenant match is always present and a tenant_id in filter cannot replace it.
func buildFilter(tenant string, filter map[string]any) *qd.Filter {
	conditions := make([]*qd.Condition, 0, len(filter)+1)
	conditions = append(conditions, qd.NewMatch(retrieval.MetaTenantID, tenant))
	for key, value := range filter {
		if key == retrieval.MetaTenantID {
			continue
		}
		switch v := toValue(value).GetKind().(type) {
		case *qd.Value_IntegerValue:
			conditions = append(conditions, qd.NewMatchInt(key, v.IntegerValue))
		case *qd.Value_BoolValue:
			conditions = append(conditions, qd.NewMatchBool(key, v.BoolValue))
		default:
			conditions = append(conditions, qd.NewMatch(key, fmt.Sprint(value)))
		}
	}
	return &qd.Filter{Must: conditions}
}

func convertPoint(p *qd.ScoredPoint) retrieval.Hit {
	hit := retrieval.Hit{
		Score:    float64(p.GetScore()),
		Metadata: make(map[string]any),
	}
	for key, value := range p.GetPayload() {
		switch key {
		case payloadContent:
			hit.Content = value.GetStringValue()
		case payloadChunkID:
			hit.ID = value.GetStringValue()
		default:
			if v, ok := fromValue(value); ok {
				hit.Metadata[key] = v
			}
		}
	}
	return hit
}

func fromValue(value *qd.Value) (any, bool) {
	switch v := value.GetKind().(type) {
	case *qd.Value_StringValue:
		return v.StringValue, true
	case *qd.Value_IntegerValue:
		return v.IntegerValue, true
	case *qd.Value_DoubleValue:
		return v.DoubleValue, true
	case *qd.Value_BoolValue:
		return v.BoolValue, true
	default:
		return nil, false
	}
}

// Health calls the server health endpoint.
func (x *Index) Health(ctx context.Context) error {
	if _, err := x.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (x *Index) Close() error {
	if err := x.client.Close(); err != nil {
		return fmt.Errorf("close qdrant: %w", err)
	}
	return nil
}
