package retrieval

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryIndex is an Index kept in process memory. It serves tests and local
// development; nothing survives a restart.
type MemoryIndex struct {
	mu      sync.RWMutex
	tenants map[string]map[string]Record
	ops     []Op
}

// Op is one recorded mutation, used by tests to check call order.
type Op struct {
	Kind   string // "ensure", "upsert" or "delete"
	Tenant string
	IDs    []string
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{tenants: make(map[string]map[string]Record)}
}

// EnsureTenant implements Index.
func (m *MemoryIndex) EnsureTenant(ctx context.Context, tenant string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[tenant]; !ok {
		m.tenants[tenant] = make(map[string]Record)
	}
	m.ops = append(m.ops, Op{Kind: "ensure", Tenant: tenant})
	return nil
}

// Upsert implements Index.
func (m *MemoryIndex) Upsert(ctx context.Context, tenant string, records []Record) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.tenants[tenant]
	if !ok {
		bucket = make(map[string]Record)
		m.tenants[tenant] = bucket
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		r.Vector = append(Vector(nil), r.Vector...)
		r.Metadata = maps.Clone(r.Metadata)
		bucket[r.ID] = r
		ids = append(ids, r.ID)
	}
	m.ops = append(m.ops, Op{Kind: "upsert", Tenant: tenant, IDs: ids})
	return nil
}

// Delete implements Index.
func (m *MemoryIndex) Delete(ctx context.Context, tenant string, ids []string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.tenants[tenant], id)
	}
	m.ops = append(m.ops, Op{Kind: "delete", Tenant: tenant, IDs: append([]string(nil), ids...)})
	return nil
}

// Search implements Index with a linear cosine scan.
func (m *MemoryIndex) Search(ctx context.Context, tenant string, q Query) ([]Hit, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.tenants[tenant]))
	for _, r := range m.tenants[tenant] {
		if !MatchFilter(r.Metadata, q.Filter) {
			continue
		}
		hits = append(hits, Hit{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: maps.Clone(r.Metadata),
			Score:    CosineSimilarity(q.Vector, r.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit := q.EffectiveLimit(); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Health implements Index.
func (m *MemoryIndex) Health(context.Context) error { return nil }

// Close implements Index.
func (m *MemoryIndex) Close() error { return nil }

// Records returns a copy of the tenant's records sorted by ID.
func (m *MemoryIndex) Records(tenant string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.tenants[tenant]))
	for _, r := range m.tenants[tenant] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ops returns the recorded mutations in order.
func (m *MemoryIndex) Ops() []Op {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Op(nil), m.ops...)
}

// ResetOps clears the mutation log.
func (m *MemoryIndex) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}
