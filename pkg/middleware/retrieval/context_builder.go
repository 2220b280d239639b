package retrieval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// ContextStrategy decides which hits make it into the prompt and in which
// order.
type ContextStrategy string

const (
	// StrategyRelevant orders by descending score.
	StrategyRelevant ContextStrategy = "relevant"
	// StrategyDiverse orders by score and drops near-duplicates.
	StrategyDiverse ContextStrategy = "diverse"
	// StrategyDocument restores source order using chunk_index.
	StrategyDocument ContextStrategy = "document"
)

// ContextConfig configures context assembly.
type ContextConfig struct {
	Strategy ContextStrategy
	// MaxTokens caps the estimated size. Zero means no cap.
	MaxTokens int
	// Separator goes between hits. Defaults to a blank line.
	Separator string
	// DuplicateThreshold is the Sorensen-Dice word similarity above which
	// StrategyDiverse treats two hits as the same passage.
	DuplicateThreshold float32
}

// DefaultContextConfig joins the top hits, most relevant first, and drops
// passages that are 90% the same words.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		Strategy:           StrategyDiverse,
		Separator:          "\n\n",
		DuplicateThreshold: 0.9,
	}
}

// ContextBuilder reads a JSON array of hits and writes the assembled
// context.
//
// Input: JSON []Hit
// Output: context text
// Behavior: BUFFERED
func ContextBuilder(cfg ContextConfig) quill.Handler {
	return quill.HandlerFunc(func(r *quill.Request, w *quill.Response) error {
		var input []byte
		if err := quill.Read(r, &input); err != nil {
			return err
		}
		var hits []Hit
		if err := json.Unmarshal(input, &hits); err != nil {
			return quill.WrapErr(r.Context, err, "decode hits")
		}
		out, err := BuildContext(hits, cfg)
		if err != nil {
			return err
		}
		return quill.Write(w, out)
	})
}

// BuildContext joins hit contents according to cfg.
func BuildContext(hits []Hit, cfg ContextConfig) (string, error) {
	if len(hits) == 0 {
		return "", nil
	}
	selected, err := applyStrategy(hits, cfg)
	if err != nil {
		return "", err
	}

	sep := cfg.Separator
	if sep == "" {
		sep = "\n\n"
	}

	parts := make([]string, 0, len(selected))
	tokens := 0
	for _, h := range selected {
		n := estimateTokens(h.Content)
		if cfg.MaxTokens > 0 && tokens+n > cfg.MaxTokens && len(parts) > 0 {
			break
		}
		parts = append(parts, h.Content)
		tokens += n
	}
	return strings.Join(parts, sep), nil
}

func applyStrategy(hits []Hit, cfg ContextConfig) ([]Hit, error) {
	out := make([]Hit, len(hits))
	copy(out, hits)

	byScore := func() {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}

	switch cfg.Strategy {
	case StrategyRelevant, "":
		byScore()
	case StrategyDiverse:
		byScore()
		out = dropNearDuplicates(out, cfg.DuplicateThreshold)
	case StrategyDocument:
		sort.SliceStable(out, func(i, j int) bool {
			return chunkIndex(out[i]) < chunkIndex(out[j])
		})
	default:
		return nil, fmt.Errorf("unknown context strategy: %s", cfg.Strategy)
	}
	return out, nil
}

func dropNearDuplicates(hits []Hit, threshold float32) []Hit {
	if threshold <= 0 {
		threshold = 0.9
	}
	selected := make([]Hit, 0, len(hits))
	for _, h := range hits {
		dup := false
		for _, s := range selected {
			if similar(h.Content, s.Content, threshold) {
				dup = true
				break
			}
		}
		if !dup {
			selected = append(selected, h)
		}
	}
	return selected
}

// similar compares bigram sets. Texts too short for a bigram only match
// when equal.
func similar(a, b string, threshold float32) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	return edlib.SorensenDiceCoefficient(a, b, 2) >= threshold
}

func chunkIndex(h Hit) int {
	switch v := h.Metadata[MetaChunkIndex].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// estimateTokens approximates tokens as 4/3 of the word count.
func estimateTokens(text string) int {
	return len(strings.Fields(text)) * 4 / 3
}
