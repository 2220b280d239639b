// Package ingest keeps a tenant's vector index in step with the latest
// revision of its document. Only chunks whose content changed since the last
// sync are embedded again.
package ingest

import (
	"fmt"
	"maps"

	"github.com/quill-ai/go-quill/pkg/helpers"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
)

// Chunk is one positional slice of a tenant's document.
type Chunk struct {
	ID       string         `json:"chunk_id"`
	Content  string         `json:"content"`
	Hash     string         `json:"hash"`
	Metadata map[string]any `json:"metadata"`
	Offset   int            `json:"-"`
}

// Index returns the chunk's position, read from its metadata.
func (c Chunk) Index() int {
	switch v := c.Metadata[retrieval.MetaChunkIndex].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return -1
}

// Fingerprint returns the MD5 hex digest used to detect changed content.
func Fingerprint(content string) string {
	return helpers.MD5Hex(content)
}

// ChunkID names the chunk at index for tenant.
func ChunkID(tenantID string, index int) string {
	return fmt.Sprintf("%s_%d", tenantID, index)
}

// BuildChunks splits text and stamps every piece with its ID, fingerprint and
// metadata. tenant_id and chunk_index override caller keys of the same name.
func (c *Chunker) BuildChunks(tenantID, text string, metadata map[string]string) []Chunk {
	pieces := c.Split(text)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		meta := make(map[string]any, len(metadata)+2)
		for k, v := range metadata {
			meta[k] = v
		}
		meta[retrieval.MetaTenantID] = tenantID
		meta[retrieval.MetaChunkIndex] = i

		chunks[i] = Chunk{
			ID:       ChunkID(tenantID, i),
			Content:  p.Content,
			Hash:     Fingerprint(p.Content),
			Metadata: meta,
			Offset:   p.Offset,
		}
	}
	return chunks
}

// Record converts c into the form stored in the vector index.
func (c Chunk) Record(vec retrieval.Vector) retrieval.Record {
	return retrieval.Record{
		ID:       c.ID,
		Vector:   vec,
		Content:  c.Content,
		Metadata: maps.Clone(c.Metadata),
	}
}
