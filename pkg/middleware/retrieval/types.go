// Package retrieval holds the tenant-scoped vector index abstraction, the
// embedding gateway and the retriever that turns a question into prompt
// context.
//
// Every Index operation takes the tenant explicitly. Implementations keep
// tenants isolated: a search for one tenant never returns another tenant's
// records, whatever the backend layout.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Metadata keys every record carries.
const (
	MetaTenantID   = "tenant_id"
	MetaChunkIndex = "chunk_index"
)

// ErrInvalidTenant is returned for an empty tenant ID.
var ErrInvalidTenant = errors.New("retrieval: invalid tenant id")

// Vector is an embedding.
type Vector []float32

// Record is one stored chunk.
type Record struct {
	// ID is the chunk ID, unique within a tenant.
	ID       string         `json:"id"`
	Vector   Vector         `json:"-"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Query is a similarity search.
type Query struct {
	Vector Vector
	// Limit defaults to DefaultLimit when zero.
	Limit int
	// Filter holds exact-match constraints on metadata keys.
	Filter map[string]any
}

// DefaultLimit is the number of hits returned when Query.Limit is zero.
const DefaultLimit = 3

// Hit is a search result. Score is the cosine similarity, higher is closer.
type Hit struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Index is a per-tenant vector store.
type Index interface {
	// EnsureTenant creates whatever the backend needs for tenant. It is
	// idempotent.
	EnsureTenant(ctx context.Context, tenant string) error
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, tenant string, records []Record) error
	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, tenant string, ids []string) error
	// Search returns up to q.Limit hits ordered by descending score.
	Search(ctx context.Context, tenant string, q Query) ([]Hit, error)
	Health(ctx context.Context) error
	Close() error
}

// ValidateTenant rejects blank tenant IDs.
func ValidateTenant(tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return ErrInvalidTenant
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SafeName maps a tenant ID to an identifier usable as a class, collection or
// table suffix.
func SafeName(tenant string) string {
	return unsafeName.ReplaceAllString(tenant, "_")
}

// MatchFilter reports whether metadata satisfies every constraint in filter.
// Values are compared by their printed form so JSON round trips (int vs
// float64) still match.
func MatchFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// EffectiveLimit returns q.Limit or DefaultLimit when unset.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
