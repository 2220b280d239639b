// Package indextest checks that a retrieval.Index honours the contract the
// ingest and retrieval layers rely on. Backend packages run it against a real
// server in their integration tests.
package indextest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
)

// Dimension of the vectors the suite writes.
const Dimension = 32

// Run exercises idx. Tenants are prefixed with prefix so runs against a
// shared server do not collide.
func Run(t *testing.T, idx retrieval.Index, prefix string) {
	t.Helper()

	alice, bob := prefix+"alice", prefix+"bob"
	emb := retrieval.NewMockEmbedder(Dimension)

	t.Run("EnsureTenantIdempotent", func(t *testing.T) {
		ctx := context.Background()
		for range 2 {
			if err := idx.EnsureTenant(ctx, alice); err != nil {
				t.Fatal(err)
			}
		}
		if err := idx.EnsureTenant(ctx, bob); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("InvalidTenant", func(t *testing.T) {
		ctx := context.Background()
		if err := idx.EnsureTenant(ctx, " "); !errors.Is(err, retrieval.ErrInvalidTenant) {
			t.Errorf("EnsureTenant err = %v", err)
		}
		if _, err := idx.Search(ctx, "", retrieval.Query{Vector: make(retrieval.Vector, Dimension)}); !errors.Is(err, retrieval.ErrInvalidTenant) {
			t.Errorf("Search err = %v", err)
		}
	})

	t.Run("UpsertSearchIsolation", func(t *testing.T) {
		ctx := context.Background()
		write(t, idx, emb, alice, "dragons hoard gold", "knights polish armor", "bakers knead bread")
		write(t, idx, emb, bob, "dragons dragons dragons")

		q, _ := emb.Embed(ctx, "dragons gold")
		hits, err := idx.Search(ctx, alice, retrieval.Query{Vector: q, Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) == 0 || hits[0].Content != "dragons hoard gold" {
			t.Fatalf("hits = %+v", hits)
		}
		if len(hits) > 2 {
			t.Errorf("limit ignored: %d hits", len(hits))
		}
		for _, h := range hits {
			if fmt.Sprint(h.Metadata[retrieval.MetaTenantID]) != alice {
				t.Errorf("hit from another tenant: %+v", h)
			}
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		ctx := context.Background()
		write(t, idx, emb, alice, "dragons hoard silver")

		q, _ := emb.Embed(ctx, "dragons hoard silver")
		hits, err := idx.Search(ctx, alice, retrieval.Query{Vector: q, Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for _, h := range hits {
			if h.ID == alice+"_0" {
				n++
				if h.Content != "dragons hoard silver" {
					t.Errorf("content = %q", h.Content)
				}
			}
		}
		if n != 1 {
			t.Errorf("chunk %s_0 appears %d times", alice, n)
		}
	})

	t.Run("FilterByChunkIndex", func(t *testing.T) {
		ctx := context.Background()
		q, _ := emb.Embed(ctx, "knights polish armor")
		hits, err := idx.Search(ctx, alice, retrieval.Query{
			Vector: q,
			Limit:  10,
			Filter: map[string]any{retrieval.MetaTenantID: alice, retrieval.MetaChunkIndex: 1},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].ID != alice+"_1" {
			t.Errorf("hits = %+v", hits)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		if err := idx.Delete(ctx, alice, []string{alice + "_1", alice + "_missing"}); err != nil {
			t.Fatal(err)
		}
		q, _ := emb.Embed(ctx, "knights polish armor")
		hits, err := idx.Search(ctx, alice, retrieval.Query{Vector: q, Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		for _, h := range hits {
			if h.ID == alice+"_1" {
				t.Errorf("deleted chunk still returned")
			}
		}
		if err := idx.Delete(ctx, alice, nil); err != nil {
			t.Errorf("empty delete err = %v", err)
		}
	})

	t.Run("SafeNameCollision", func(t *testing.T) {
		ctx := context.Background()
		dash, under := prefix+"book-1", prefix+"book_1"
		if retrieval.SafeName(dash) != retrieval.SafeName(under) {
			t.Fatalf("tenants %q and %q should share a safe name", dash, under)
		}

		texts := map[string]string{dash: "lighthouse keepers count ships", under: "lighthouse lamps burn oil"}
		for _, tenant := range []string{dash, under} {
			if err := idx.EnsureTenant(ctx, tenant); err != nil {
				t.Fatal(err)
			}
			v, err := emb.Embed(ctx, texts[tenant])
			if err != nil {
				t.Fatal(err)
			}
			err = idx.Upsert(ctx, tenant, []retrieval.Record{{
				ID:       "shared_0",
				Vector:   v,
				Content:  texts[tenant],
				Metadata: map[string]any{retrieval.MetaTenantID: tenant, retrieval.MetaChunkIndex: 0},
			}})
			if err != nil {
				t.Fatal(err)
			}
		}

		q, _ := emb.Embed(ctx, "lighthouse")
		for _, tenant := range []string{dash, under} {
			hits, err := idx.Search(ctx, tenant, retrieval.Query{Vector: q, Limit: 10})
			if err != nil {
				t.Fatal(err)
			}
			if len(hits) != 1 || hits[0].Content != texts[tenant] {
				t.Errorf("%s hits = %+v", tenant, hits)
			}
		}

		if err := idx.Delete(ctx, dash, []string{"shared_0"}); err != nil {
			t.Fatal(err)
		}
		hits, err := idx.Search(ctx, under, retrieval.Query{Vector: q, Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].Content != texts[under] {
			t.Errorf("delete in %s reached %s: %+v", dash, under, hits)
		}
	})

	t.Run("Health", func(t *testing.T) {
		if err := idx.Health(context.Background()); err != nil {
			t.Fatal(err)
		}
	})
}

func write(t *testing.T, idx retrieval.Index, emb retrieval.Embedder, tenant string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	records := make([]retrieval.Record, len(texts))
	for i, text := range texts {
		v, err := emb.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		records[i] = retrieval.Record{
			ID:      fmt.Sprintf("%s_%d", tenant, i),
			Vector:  v,
			Content: text,
			Metadata: map[string]any{
				retrieval.MetaTenantID:   tenant,
				retrieval.MetaChunkIndex: i,
			},
		}
	}
	if err := idx.Upsert(ctx, tenant, records); err != nil {
		t.Fatal(err)
	}
}
