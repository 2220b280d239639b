package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many runes neighbouring chunks may share.
	DefaultChunkOverlap = 200

	// LegacyChunkSize and LegacyChunkOverlap reproduce the older, finer
	// profile some tenants were indexed with.
	LegacyChunkSize    = 400
	LegacyChunkOverlap = 50
)

// ErrInvalidChunkConfig is returned for a size or overlap the splitter cannot
// honour.
var ErrInvalidChunkConfig = errors.New("ingest: invalid chunk config")

// DefaultSeparators are tried in order: paragraphs, lines, sentences, words
// and finally single runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Piece is one chunk of text and the rune offset it starts at.
type Piece struct {
	Content string
	Offset  int
}

// Chunker is a recursive character splitter. It cuts on the largest
// separator present, merges the pieces back up to Size runes and carries up
// to Overlap runes from the end of one chunk into the next. Output depends
// only on the text and the configuration.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewChunker validates size and overlap and returns a chunker using
// DefaultSeparators.
func NewChunker(size, overlap int) (*Chunker, error) {
	switch {
	case size <= 0:
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidChunkConfig, size)
	case overlap < 0:
		return nil, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidChunkConfig, overlap)
	case overlap >= size:
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkConfig, overlap, size)
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// DefaultChunker returns a 1000/200 chunker.
func DefaultChunker() *Chunker {
	c, _ := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	return c
}

// Split cuts text into chunks. Blank text yields none.
func (c *Chunker) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seps := c.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}

	contents := c.split(text, seps)
	pieces := make([]Piece, 0, len(contents))
	from := 0
	for _, content := range contents {
		start := from
		if i := strings.Index(text[from:], content); i >= 0 {
			start = from + i
			from = start + 1
		}
		pieces = append(pieces, Piece{
			Content: content,
			Offset:  utf8.RuneCountInString(text[:start]),
		})
	}
	return pieces
}

func (c *Chunker) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, s := range seps {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var final, good []string
	for _, s := range splitKeep(text, sep) {
		if utf8.RuneCountInString(s) < c.Size {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, s)
		} else {
			final = append(final, c.split(s, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}
	return final
}

// merge joins splits greedily up to Size runes. When a chunk is emitted,
// splits are dropped from the front until at most Overlap runes remain to
// seed the next one.
func (c *Chunker) merge(splits []string) []string {
	var (
		docs    []string
		current []string
		lengths []int
		total   int
	)
	for _, s := range splits {
		n := utf8.RuneCountInString(s)
		if total+n > c.Size {
			if len(current) > 0 {
				if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
					docs = append(docs, doc)
				}
				for total > c.Overlap || (total+n > c.Size && total > 0) {
					total -= lengths[0]
					current, lengths = current[1:], lengths[1:]
				}
			}
		}
		current = append(current, s)
		lengths = append(lengths, n)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep splits text on sep and keeps the separator at the start of
// every piece after the first. Empty pieces are dropped.
func splitKeep(text, sep string) []string {
	if sep == "" {
		return strings.Split(text, "")
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
