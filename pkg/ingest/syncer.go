package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quill-ai/go-quill/pkg/middleware/observability"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// ErrInvalidTenant is returned for a blank tenant ID.
var ErrInvalidTenant = retrieval.ErrInvalidTenant

// SyncResult counts what one ProcessDocument call changed. Failed chunks are
// also included in Added or Modified; they are retried on the next call.
type SyncResult struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
	Failed   int `json:"failed"`
}

// Syncer applies the minimal set of index mutations that brings a tenant's
// vector index in line with a new document revision.
type Syncer struct {
	chunker   *Chunker
	ledger    Ledger
	embedder  retrieval.Embedder
	index     retrieval.Index
	locks     *TenantLocks
	telemetry *observability.Telemetry
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithChunker replaces the default 1000/200 chunker.
func WithChunker(c *Chunker) SyncerOption {
	return func(s *Syncer) {
		if c != nil {
			s.chunker = c
		}
	}
}

// WithTelemetry records sync metrics and spans.
func WithTelemetry(t *observability.Telemetry) SyncerOption {
	return func(s *Syncer) {
		s.telemetry = t
	}
}

// WithLocks shares a lock table with other components writing the same
// tenants.
func WithLocks(l *TenantLocks) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.locks = l
		}
	}
}

// NewSyncer builds a Syncer.
func NewSyncer(ledger Ledger, embedder retrieval.Embedder, index retrieval.Index, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		chunker:  DefaultChunker(),
		ledger:   ledger,
		embedder: embedder,
		index:    index,
		locks:    NewTenantLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessDocument re-indexes content for tenantID.
//
// Stale vectors (deleted and modified chunks) are removed first, then every
// new or changed chunk is embedded and upserted one at a time. A chunk whose
// embedding fails is logged, counted in Failed and left out of the ledger so
// the next call retries it. Index failures abort the call before the ledger
// is written. Calls for the same tenant run one at a time.
func (s *Syncer) ProcessDocument(ctx context.Context, tenantID, content string, metadata map[string]string) (result SyncResult, err error) {
	if strings.TrimSpace(tenantID) == "" {
		return SyncResult{}, ErrInvalidTenant
	}

	start := time.Now()
	ctx = quill.WithTenant(ctx, tenantID)
	ctx, span := s.telemetry.Start(ctx, observability.SpanProcessDocument, map[string]any{"tenant_id": tenantID})
	defer func() {
		span.End(err)
		s.telemetry.SyncDone(ctx, time.Since(start), err)
	}()

	unlock, err := s.locks.Lock(ctx, tenantID)
	if err != nil {
		return SyncResult{}, err
	}
	defer unlock()

	current := s.chunker.BuildChunks(tenantID, content, metadata)
	stored, err := s.ledger.Get(ctx, tenantID)
	if err != nil {
		return SyncResult{}, err
	}

	diff := Compute(stored, current)
	result = SyncResult{
		Added:    len(diff.Added),
		Modified: len(diff.Modified),
		Deleted:  len(diff.Deleted),
	}
	quill.LogDebug(ctx, "computed chunk diff",
		"chunks", len(current), "added", result.Added, "modified", result.Modified, "deleted", result.Deleted)

	if err := s.index.EnsureTenant(ctx, tenantID); err != nil {
		return SyncResult{}, quill.WrapErr(ctx, err, "prepare tenant index").Tag(slog.String("tenant_id", tenantID))
	}

	stale := make([]string, 0, len(diff.Deleted)+len(diff.Modified))
	stale = append(stale, diff.Deleted...)
	for _, c := range diff.Modified {
		stale = append(stale, c.ID)
	}
	if len(stale) > 0 {
		if err := s.index.Delete(ctx, tenantID, stale); err != nil {
			return SyncResult{}, quill.WrapErr(ctx, err, "delete stale chunks").Tag(slog.Int("chunks", len(stale)))
		}
	}

	failed := make(map[string]struct{})
	for _, group := range [][]Chunk{diff.Added, diff.Modified} {
		for _, c := range group {
			if err := ctx.Err(); err != nil {
				return SyncResult{}, err
			}
			vec, err := s.embedder.Embed(ctx, c.Content)
			if err != nil {
				quill.LogError(ctx, "skipping chunk after embedding failure", err, "chunk_id", c.ID)
				failed[c.ID] = struct{}{}
				continue
			}
			if err := s.index.Upsert(ctx, tenantID, []retrieval.Record{c.Record(vec)}); err != nil {
				return SyncResult{}, quill.WrapErr(ctx, err, "upsert chunk").Tag(slog.String("chunk_id", c.ID))
			}
		}
	}
	result.Failed = len(failed)

	if err := ctx.Err(); err != nil {
		return SyncResult{}, err
	}
	if !diff.Empty() {
		if err := s.ledger.Put(ctx, tenantID, committed(current, failed)); err != nil {
			return SyncResult{}, err
		}
	}

	s.telemetry.SyncChunks(ctx, "added", result.Added)
	s.telemetry.SyncChunks(ctx, "modified", result.Modified)
	s.telemetry.SyncChunks(ctx, "deleted", result.Deleted)
	s.telemetry.SyncChunks(ctx, "failed", result.Failed)
	quill.LogInfo(ctx, "document synced",
		"added", result.Added, "modified", result.Modified, "deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}

// Chunks returns the tenant's chunks as of the last successful sync.
func (s *Syncer) Chunks(ctx context.Context, tenantID string) ([]Chunk, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrInvalidTenant
	}
	return s.ledger.Get(ctx, tenantID)
}

// committed drops the chunks whose index state is unknown.
func committed(current []Chunk, failed map[string]struct{}) []Chunk {
	if len(failed) == 0 {
		return current
	}
	out := make([]Chunk, 0, len(current)-len(failed))
	for _, c := range current {
		if _, ok := failed[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}
