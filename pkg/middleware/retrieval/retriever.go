package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// Retriever embeds a question and searches one tenant's index for the
// passages to put in front of the model.
type Retriever struct {
	embedder Embedder
	index    Index
	k        int
	context  ContextConfig
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithK sets how many hits are fetched.
func WithK(k int) RetrieverOption {
	return func(r *Retriever) {
		r.k = k
	}
}

// WithContextConfig sets how hits are joined.
func WithContextConfig(cfg ContextConfig) RetrieverOption {
	return func(r *Retriever) {
		r.context = cfg
	}
}

// NewRetriever creates a retriever returning DefaultLimit hits.
func NewRetriever(embedder Embedder, index Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		k:        DefaultLimit,
		context:  DefaultContextConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the top hits for query, restricted to tenant.
func (r *Retriever) Retrieve(ctx context.Context, tenant, query string) ([]Hit, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, quill.WrapErr(ctx, err, "embed query").Tag(slog.String("tenant_id", tenant))
	}

	hits, err := r.index.Search(ctx, tenant, Query{
		Vector: vec,
		Limit:  r.k,
		Filter: map[string]any{MetaTenantID: tenant},
	})
	if err != nil {
		return nil, quill.WrapErr(ctx, err, "search index").Tag(slog.String("tenant_id", tenant))
	}

	quill.LogDebug(ctx, "retrieved context", "tenant_id", tenant, "hits", len(hits))
	return hits, nil
}

// Context returns the assembled context text for query.
func (r *Retriever) Context(ctx context.Context, tenant, query string) (string, error) {
	hits, err := r.Retrieve(ctx, tenant, query)
	if err != nil {
		return "", err
	}
	return BuildContext(hits, r.context)
}

// Handler reads a question and writes the tenant's context for it.
//
// Input: question text
// Output: context text
// Behavior: BUFFERED
func (r *Retriever) Handler(tenant string) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		var query string
		if err := quill.Read(req, &query); err != nil {
			return err
		}
		out, err := r.Context(req.Context, tenant, strings.TrimSpace(query))
		if err != nil {
			return err
		}
		return quill.Write(res, out)
	})
}
