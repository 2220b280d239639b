package ingest

// Diff partitions the chunk IDs of a stored and a current chunk set.
// Unchanged chunks appear in none of the lists.
type Diff struct {
	Added    []Chunk
	Modified []Chunk
	Deleted  []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Compute compares stored against current by chunk ID and hash.
//
// Chunks are keyed by position, so content that merely moved shows up as a
// deletion plus an addition. Added and Modified follow current's order;
// Deleted follows stored's order.
func Compute(stored, current []Chunk) Diff {
	prior := make(map[string]string, len(stored))
	for _, c := range stored {
		prior[c.ID] = c.Hash
	}

	var d Diff
	seen := make(map[string]struct{}, len(current))
	for _, c := range current {
		seen[c.ID] = struct{}{}
		hash, ok := prior[c.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, c)
		case hash != c.Hash:
			d.Modified = append(d.Modified, c)
		}
	}
	for _, c := range stored {
		if _, ok := seen[c.ID]; !ok {
			d.Deleted = append(d.Deleted, c.ID)
		}
	}
	return d
}
