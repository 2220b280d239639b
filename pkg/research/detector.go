package research

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"

	"github.com/quill-ai/go-quill/pkg/helpers"
	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/prompt"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// ModeDetector classifies a request. It never fails; doubtful cases are
// ModeNormal.
type ModeDetector interface {
	DetectMode(ctx context.Context, s State) (Mode, string)
}

// LLMDetector asks a model for a {mode, reason} JSON object.
type LLMDetector struct {
	Client ai.Client
}

type modeDecision struct {
	Mode   string `json:"mode" jsonschema:"enum=verification,enum=research,enum=normal"`
	Reason string `json:"reason"`
}

// DetectMode implements ModeDetector.
func (d LLMDetector) DetectMode(ctx context.Context, s State) (Mode, string) {
	content := helpers.Truncate(s.OriginalContent, 1000)
	if helpers.IsEmpty(content) {
		content = "(no manuscript provided)"
	}
	text, err := prompt.Render(modePrompt, map[string]any{
		"UserSetting":     s.UserSetting,
		"OriginalContent": content,
		"UserInput":       s.UserInput,
	})
	if err != nil {
		quill.LogError(ctx, "render mode prompt", err)
		return ModeNormal, "mode detection failed"
	}

	reply, err := ai.Complete(ctx, d.Client, text, ai.WithSchema(&modeDecision{}))
	if err != nil {
		quill.LogWarn(ctx, "mode detection failed, answering directly", "error", err)
		return ModeNormal, "mode detection failed"
	}

	var decision modeDecision
	if err := json.Unmarshal([]byte(ai.StripCodeFence(reply)), &decision); err != nil {
		quill.LogWarn(ctx, "unreadable mode decision", "error", err, "reply", helpers.Truncate(reply, 200))
		return ModeNormal, "mode detection failed"
	}
	mode := ParseMode(decision.Mode)
	if string(mode) != strings.ToLower(strings.TrimSpace(decision.Mode)) {
		quill.LogWarn(ctx, "unknown mode, answering directly", "mode", decision.Mode)
	}
	return mode, decision.Reason
}

// Default keyword lists for KeywordDetector.
var (
	VerificationKeywords = []string{"verify", "check", "accurate", "accuracy", "fact", "factual", "plausible", "realistic", "correct", "authentic"}
	ResearchKeywords     = []string{"research", "investigate", "search", "find", "information", "background", "reference", "references", "sources", "history", "historical"}
)

// KeywordDetector classifies requests without a model. A word counts as a
// keyword when its Jaro-Winkler similarity to one reaches Threshold, so minor
// typos still match. Verification keywords are checked first.
type KeywordDetector struct {
	Verification []string
	Research     []string
	// Threshold defaults to 0.9.
	Threshold float32
}

// NewKeywordDetector uses the default keyword lists.
func NewKeywordDetector() KeywordDetector {
	return KeywordDetector{
		Verification: VerificationKeywords,
		Research:     ResearchKeywords,
		Threshold:    0.9,
	}
}

// DetectMode implements ModeDetector.
func (d KeywordDetector) DetectMode(_ context.Context, s State) (Mode, string) {
	words := strings.FieldsFunc(strings.ToLower(s.UserInput), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if kw, ok := d.match(words, d.Verification); ok {
		return ModeVerification, "matched keyword " + kw
	}
	if kw, ok := d.match(words, d.Research); ok {
		return ModeResearch, "matched keyword " + kw
	}
	return ModeNormal, "no research keywords"
}

func (d KeywordDetector) match(words, keywords []string) (string, bool) {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = 0.9
	}
	for _, w := range words {
		for _, kw := range keywords {
			if edlib.JaroWinklerSimilarity(w, kw) >= threshold {
				return kw, true
			}
		}
	}
	return "", false
}
