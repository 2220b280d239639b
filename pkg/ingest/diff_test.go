package ingest

import (
	"slices"
	"testing"
)

func chunk(id, content string) Chunk {
	return Chunk{ID: id, Content: content, Hash: Fingerprint(content)}
}

func ids(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func TestCompute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                     string
		stored, current          []Chunk
		added, modified, deleted []string
	}{
		{
			name:    "first ingest",
			current: []Chunk{chunk("t_0", "a"), chunk("t_1", "b")},
			added:   []string{"t_0", "t_1"},
		},
		{
			name:    "everything removed",
			stored:  []Chunk{chunk("t_0", "a"), chunk("t_1", "b")},
			deleted: []string{"t_0", "t_1"},
		},
		{
			name:    "unchanged",
			stored:  []Chunk{chunk("t_0", "a"), chunk("t_1", "b")},
			current: []Chunk{chunk("t_0", "a"), chunk("t_1", "b")},
		},
		{
			name:     "one edit",
			stored:   []Chunk{chunk("t_0", "a"), chunk("t_1", "b"), chunk("t_2", "c")},
			current:  []Chunk{chunk("t_0", "a"), chunk("t_1", "B"), chunk("t_2", "c")},
			modified: []string{"t_1"},
		},
		{
			name:    "grow",
			stored:  []Chunk{chunk("t_0", "a")},
			current: []Chunk{chunk("t_0", "a"), chunk("t_1", "b")},
			added:   []string{"t_1"},
		},
		{
			name:    "shrink",
			stored:  []Chunk{chunk("t_0", "a"), chunk("t_1", "b"), chunk("t_2", "c")},
			current: []Chunk{chunk("t_0", "a")},
			deleted: []string{"t_1", "t_2"},
		},
		{
			// Positional IDs: a prefix insert shifts every later chunk.
			name:     "prefix insert",
			stored:   []Chunk{chunk("t_0", "a"), chunk("t_1", "b")},
			current:  []Chunk{chunk("t_0", "new"), chunk("t_1", "a"), chunk("t_2", "b")},
			added:    []string{"t_2"},
			modified: []string{"t_0", "t_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Compute(tt.stored, tt.current)
			if got := ids(d.Added); !slices.Equal(got, tt.added) && len(got)+len(tt.added) > 0 {
				t.Errorf("added = %v, want %v", got, tt.added)
			}
			if got := ids(d.Modified); !slices.Equal(got, tt.modified) && len(got)+len(tt.modified) > 0 {
				t.Errorf("modified = %v, want %v", got, tt.modified)
			}
			if !slices.Equal(d.Deleted, tt.deleted) && len(d.Deleted)+len(tt.deleted) > 0 {
				t.Errorf("deleted = %v, want %v", d.Deleted, tt.deleted)
			}
			if d.Empty() != (len(tt.added)+len(tt.modified)+len(tt.deleted) == 0) {
				t.Errorf("Empty() = %v", d.Empty())
			}

			// Partition bound.
			total := len(d.Added) + len(d.Modified) + len(d.Deleted)
			if limit := 2 * max(len(tt.stored), len(tt.current)); total > limit {
				t.Errorf("%d changes exceed bound %d", total, limit)
			}
		})
	}
}
