package retrieval

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/quill-ai/go-quill/pkg/helpers"
	"github.com/quill-ai/go-quill/pkg/middleware/memory"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// Embedder turns text into a vector. Calls may fail and are retried by the
// caller, not the embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) (Vector, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, text string) (Vector, error) {
	return f(ctx, text)
}

// CachedEmbedder memoizes vectors in a memory.Store keyed by the MD5 of the
// text, so re-ingesting unchanged content or repeating a query costs no
// provider call. With a BadgerStore the cache survives restarts.
type CachedEmbedder struct {
	inner  Embedder
	store  memory.Store
	ttl    time.Duration
	prefix string
}

// CacheOption configures a CachedEmbedder.
type CacheOption func(*CachedEmbedder)

// WithCacheNamespace separates caches of different models sharing a store.
func WithCacheNamespace(ns string) CacheOption {
	return func(c *CachedEmbedder) {
		c.prefix = "embedding:" + ns + ":"
	}
}

// NewCachedEmbedder wraps inner. A zero ttl keeps entries forever.
func NewCachedEmbedder(inner Embedder, store memory.Store, ttl time.Duration, opts ...CacheOption) *CachedEmbedder {
	c := &CachedEmbedder{inner: inner, store: store, ttl: ttl, prefix: "embedding:"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the cached vector or computes and stores it. Cache read and
// write failures are logged and never fail the call.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	key := c.prefix + helpers.MD5Hex(text)

	if data, err := c.store.Get(ctx, key); err != nil {
		quill.LogWarn(ctx, "embedding cache read failed", "error", err)
	} else if data != nil {
		var v Vector
		if err := json.Unmarshal(data, &v); err == nil && len(v) > 0 {
			return v, nil
		}
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			quill.LogWarn(ctx, "embedding cache write failed", "error", err)
		}
	}
	return v, nil
}

// MockEmbedder hashes words into a fixed number of buckets and normalizes
// the result. Texts sharing words get similar vectors, which is enough for
// retrieval tests without a model.
type MockEmbedder struct {
	Dimension int

	mu     sync.Mutex
	calls  int
	texts  []string
	failOn func(text string) error
}

// NewMockEmbedder creates a mock producing vectors of dim entries.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &MockEmbedder{Dimension: dim}
}

// FailWhen makes Embed return the error fn reports for a text.
func (m *MockEmbedder) FailWhen(fn func(text string) error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = fn
	return m
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, text)
	failOn := m.failOn
	m.mu.Unlock()

	if failOn != nil {
		if err := failOn(text); err != nil {
			return nil, err
		}
	}

	v := make(Vector, m.Dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[int(h.Sum32()%uint32(m.Dimension))]++
	}
	return normalize(v), nil
}

// Calls reports how many times Embed was called.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Texts returns the embedded texts in call order.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when their lengths differ or either is zero.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
