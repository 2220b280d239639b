package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quill-ai/go-quill/pkg/middleware/memory"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// Ledger remembers the chunk set of each tenant's last successful sync.
type Ledger interface {
	// Get returns the stored chunks, or an empty slice for an unknown tenant.
	Get(ctx context.Context, tenantID string) ([]Chunk, error)
	// Put replaces the tenant's chunk set in one write.
	Put(ctx context.Context, tenantID string, chunks []Chunk) error
}

// StoreLedger keeps the ledger as one JSON document per tenant in a
// memory.Store.
type StoreLedger struct {
	store memory.Store
}

// NewStoreLedger wraps store.
func NewStoreLedger(store memory.Store) *StoreLedger {
	return &StoreLedger{store: store}
}

// LedgerKey is the store key holding tenantID's chunks.
func LedgerKey(tenantID string) string {
	return "chunks:" + tenantID + ":data"
}

// Get implements Ledger. Bytes that do not decode are logged and treated as
// an empty ledger, which forces a full re-index.
func (l *StoreLedger) Get(ctx context.Context, tenantID string) ([]Chunk, error) {
	data, err := l.store.Get(ctx, LedgerKey(tenantID))
	if err != nil {
		return nil, quill.WrapErr(ctx, err, "read chunk ledger").Tag(slog.String("tenant_id", tenantID))
	}
	if len(data) == 0 {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		quill.LogWarn(ctx, "discarding unreadable chunk ledger", "tenant_id", tenantID, "error", err)
		return []Chunk{}, nil
	}
	return chunks, nil
}

// Put implements Ledger.
func (l *StoreLedger) Put(ctx context.Context, tenantID string, chunks []Chunk) error {
	if chunks == nil {
		chunks = []Chunk{}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return quill.WrapErr(ctx, err, "encode chunk ledger")
	}
	if err := l.store.Set(ctx, LedgerKey(tenantID), data, 0); err != nil {
		return quill.WrapErr(ctx, err, "write chunk ledger").Tag(slog.String("tenant_id", tenantID))
	}
	return nil
}
