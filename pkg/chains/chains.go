// Package chains holds the single-shot writing assistants: chat, the
// planner, feedback and the two rewriting modes. Each one is a flow of a
// prompt template into a model and can either return the whole answer or
// stream it to a writer.
//
// Example:
//
//	fb := chains.NewFeedback(client, retriever)
//	out, err := fb.Run(ctx, chains.EditInput{
//	    UserSetting: settings.XML(),
//	    TenantID:    "book_1",
//	    Query:       paragraph,
//	})
package chains

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"

	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/memory"
	"github.com/quill-ai/go-quill/pkg/middleware/prompt"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// ErrInvalidInput is returned before any model call when a required field is
// missing or out of range.
var ErrInvalidInput = errors.New("chains: invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// collect runs stream into a buffer and returns the trimmed text.
func collect(stream func(io.Writer) error) (string, error) {
	var sb strings.Builder
	if err := stream(&sb); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

func complete(ctx context.Context, client ai.Client, tmpl *template.Template, data map[string]any, input string, w io.Writer) error {
	return quill.NewFlow().
		Use(prompt.FromTemplate(tmpl, data)).
		Use(ai.Agent(client)).
		Run(ctx, input, w)
}

// ChatInput is one chat turn.
type ChatInput struct {
	UserSetting string
	// Query is the passage the writer has selected, if any.
	Query     string
	UserInput string
	// Session enables conversation memory when the Chat has one.
	Session string
}

// Chat is the general writing assistant. With a Conversation it remembers
// the last few exchanges of each session.
type Chat struct {
	client ai.Client
	memory *memory.Conversation
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithConversation enables per-session history.
func WithConversation(c *memory.Conversation) ChatOption {
	return func(ch *Chat) {
		ch.memory = c
	}
}

// NewChat creates a chat assistant.
func NewChat(client ai.Client, opts ...ChatOption) *Chat {
	c := &Chat{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run answers one turn.
func (c *Chat) Run(ctx context.Context, in ChatInput) (string, error) {
	return collect(func(w io.Writer) error { return c.Stream(ctx, in, w) })
}

// Stream writes the answer to w as it is generated. The exchange is saved
// once the stream completes.
func (c *Chat) Stream(ctx context.Context, in ChatInput, w io.Writer) error {
	if strings.TrimSpace(in.UserInput) == "" {
		return invalid("user_input is required")
	}

	data := map[string]any{
		"UserSetting": in.UserSetting,
		"Query":       in.Query,
	}
	remember := c.memory != nil && in.Session != ""
	if remember {
		history, err := c.memory.Render(ctx, in.Session)
		if err != nil {
			return err
		}
		data["History"] = history
	}

	flow := quill.NewFlow().
		Use(prompt.FromTemplate(chatPrompt, data)).
		Use(ai.Agent(c.client))
	if remember {
		flow.Use(c.memory.Output(in.Session, in.UserInput))
	}
	return flow.Run(ctx, in.UserInput, w)
}

type sectionGroup struct {
	Name     string
	Sections []string
}

var sectionGroups = []sectionGroup{
	{Name: "exampleSentence", Sections: []string{"example"}},
	{Name: "worldbuilding", Sections: []string{
		"geography", "history", "politics", "society", "religion", "economy", "technology",
		"lifestyle", "language", "culture", "species", "occupation", "conflict", "custom_field",
	}},
	{Name: "characterInfo", Sections: []string{"character"}},
	{Name: "plot", Sections: []string{"exposition", "complication", "climax", "resolution"}},
}

// Sections lists every section the planner can write.
func Sections() []string {
	var out []string
	for _, g := range sectionGroups {
		out = append(out, g.Sections...)
	}
	return out
}

// ValidSection reports whether the planner knows section.
func ValidSection(section string) bool {
	for _, g := range sectionGroups {
		if slices.Contains(g.Sections, section) {
			return true
		}
	}
	return false
}

// PlannerInput asks for one section of a story plan.
type PlannerInput struct {
	Genre   string
	Logline string
	Prompt  string
	Section string
}

// Planner drafts planning material such as world-building, a cast list or a
// plot beat.
type Planner struct {
	client ai.Client
}

// NewPlanner creates a planner.
func NewPlanner(client ai.Client) *Planner {
	return &Planner{client: client}
}

// Run drafts the section.
func (p *Planner) Run(ctx context.Context, in PlannerInput) (string, error) {
	return collect(func(w io.Writer) error { return p.Stream(ctx, in, w) })
}

// Stream drafts the section into w.
func (p *Planner) Stream(ctx context.Context, in PlannerInput, w io.Writer) error {
	if !ValidSection(in.Section) {
		return invalid("unknown section %q", in.Section)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return invalid("prompt is required")
	}
	return complete(ctx, p.client, plannerPrompt, map[string]any{
		"Genre":   in.Genre,
		"Logline": in.Logline,
		"Section": in.Section,
		"Groups":  sectionGroups,
	}, in.Prompt, w)
}

// EditInput is a passage of the manuscript to review or rewrite.
type EditInput struct {
	UserSetting string
	TenantID    string
	Query       string
	// HowPolish is the writer's instruction. Only UserModify uses it.
	HowPolish string
}

// grounded puts the passages of the tenant's manuscript closest to the query
// in front of the model.
type grounded struct {
	client    ai.Client
	retriever *retrieval.Retriever
	tmpl      *template.Template
}

func (g grounded) stream(ctx context.Context, in EditInput, w io.Writer) error {
	if strings.TrimSpace(in.Query) == "" {
		return invalid("query is required")
	}
	passages, err := g.retriever.Context(ctx, in.TenantID, in.Query)
	if err != nil {
		return err
	}
	return complete(ctx, g.client, g.tmpl, map[string]any{
		"UserSetting": in.UserSetting,
		"Context":     passages,
		"HowPolish":   in.HowPolish,
	}, in.Query, w)
}

// Feedback reviews a passage for consistency with the story and for style,
// and explains each change.
type Feedback struct {
	grounded
}

// NewFeedback creates a reviewer.
func NewFeedback(client ai.Client, retriever *retrieval.Retriever) *Feedback {
	return &Feedback{grounded{client: client, retriever: retriever, tmpl: feedbackPrompt}}
}

// Run reviews the passage.
func (f *Feedback) Run(ctx context.Context, in EditInput) (string, error) {
	return collect(func(w io.Writer) error { return f.Stream(ctx, in, w) })
}

// Stream reviews the passage into w.
func (f *Feedback) Stream(ctx context.Context, in EditInput, w io.Writer) error {
	return f.stream(ctx, in, w)
}

// UserModify rewrites a passage following the writer's instruction.
type UserModify struct {
	grounded
}

// NewUserModify creates a guided rewriter.
func NewUserModify(client ai.Client, retriever *retrieval.Retriever) *UserModify {
	return &UserModify{grounded{client: client, retriever: retriever, tmpl: userModifyPrompt}}
}

// Run rewrites the passage.
func (m *UserModify) Run(ctx context.Context, in EditInput) (string, error) {
	return collect(func(w io.Writer) error { return m.Stream(ctx, in, w) })
}

// Stream rewrites the passage into w.
func (m *UserModify) Stream(ctx context.Context, in EditInput, w io.Writer) error {
	if strings.TrimSpace(in.HowPolish) == "" {
		return invalid("how_polish is required")
	}
	return m.stream(ctx, in, w)
}

// AutoModify rewrites a passage so it agrees with the story settings and
// draws on them.
type AutoModify struct {
	grounded
}

// NewAutoModify creates an automatic rewriter.
func NewAutoModify(client ai.Client, retriever *retrieval.Retriever) *AutoModify {
	return &AutoModify{grounded{client: client, retriever: retriever, tmpl: autoModifyPrompt}}
}

// Run rewrites the passage.
func (m *AutoModify) Run(ctx context.Context, in EditInput) (string, error) {
	return collect(func(w io.Writer) error { return m.Stream(ctx, in, w) })
}

// Stream rewrites the passage into w.
func (m *AutoModify) Stream(ctx context.Context, in EditInput, w io.Writer) error {
	return m.stream(ctx, in, w)
}
