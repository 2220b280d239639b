// Package research runs the multi-step research agent: classify the request,
// plan up to three search steps, run them one by one and synthesize a final
// answer with its sources.
//
// The agent is a small state machine. Every node is a function from State to
// State and the driver loop in Run decides which node runs next.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quill-ai/go-quill/pkg/helpers"
	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/memory"
	"github.com/quill-ai/go-quill/pkg/middleware/observability"
	"github.com/quill-ai/go-quill/pkg/middleware/prompt"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// DefaultMaxSteps caps the research plan.
const DefaultMaxSteps = 3

var (
	urlPattern = regexp.MustCompile(`https?://[^\s\])]+`)
	xmlDecl    = regexp.MustCompile(`(?s)<\?xml.*?\?>`)
)

// Searcher is a web-grounded model.
type Searcher interface {
	Search(ctx context.Context, prompt string) (ai.SearchResponse, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, prompt string) (ai.SearchResponse, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, prompt string) (ai.SearchResponse, error) {
	return f(ctx, prompt)
}

// Agent answers writer requests, researching them first when needed.
type Agent struct {
	planner     ai.Client
	synthesizer ai.Client
	searcher    Searcher
	detector    ModeDetector
	memory      *memory.Conversation
	telemetry   *observability.Telemetry
	maxSteps    int
}

// Option configures an Agent.
type Option func(*Agent)

// WithSynthesizer uses a separate, usually stronger, model for the final
// answer. The planner is used otherwise.
func WithSynthesizer(c ai.Client) Option {
	return func(a *Agent) {
		a.synthesizer = c
	}
}

// WithDetector replaces the model-based mode detection.
func WithDetector(d ModeDetector) Option {
	return func(a *Agent) {
		a.detector = d
	}
}

// WithMemory records every RunSession exchange.
func WithMemory(c *memory.Conversation) Option {
	return func(a *Agent) {
		a.memory = c
	}
}

// WithTelemetry records run metrics and spans.
func WithTelemetry(t *observability.Telemetry) Option {
	return func(a *Agent) {
		a.telemetry = t
	}
}

// WithMaxSteps caps the plan length.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// NewAgent builds an agent that plans with planner and searches with
// searcher.
func NewAgent(planner ai.Client, searcher Searcher, opts ...Option) *Agent {
	a := &Agent{
		planner:  planner,
		searcher: searcher,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.synthesizer == nil {
		a.synthesizer = planner
	}
	if a.detector == nil {
		a.detector = LLMDetector{Client: planner}
	}
	return a
}

// Run answers userInput. Model and search failures are absorbed into the
// answer; an error is returned only when ctx ends first.
func (a *Agent) Run(ctx context.Context, userSetting, originalContent, userInput string) (Answer, error) {
	start := time.Now()
	ctx, span := a.telemetry.Start(ctx, observability.SpanResearchRun, nil)

	s := a.run(ctx, State{
		UserSetting:     userSetting,
		OriginalContent: originalContent,
		UserInput:       userInput,
	})
	answer := a.synthesize(ctx, s)

	err := ctx.Err()
	span.SetAttribute("mode", string(s.Mode))
	span.SetAttribute("steps", len(s.Results))
	span.End(err)
	a.telemetry.ResearchDone(ctx, string(s.Mode), time.Since(start))
	if err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// RunSession is Run followed by saving the exchange under session. A failed
// save is logged and does not fail the run.
func (a *Agent) RunSession(ctx context.Context, session, userSetting, originalContent, userInput string) (Answer, error) {
	answer, err := a.Run(ctx, userSetting, originalContent, userInput)
	if err != nil {
		return answer, err
	}
	if a.memory != nil && session != "" {
		if err := a.memory.Save(ctx, session, userInput, answer.Output); err != nil {
			quill.LogError(ctx, "save research exchange", err, "session", session)
		}
	}
	return answer, nil
}

// run drives the state machine up to synthesis. The loop is bounded by the
// plan length plus one whatever the nodes return.
func (a *Agent) run(ctx context.Context, s State) State {
	s = a.detectMode(ctx, s)
	if s.Mode == ModeNormal {
		return s
	}

	s = a.decompose(ctx, s)
	for i := 0; i <= len(s.Steps) && shouldContinue(s); i++ {
		s = a.executeStep(ctx, s)
		s = accumulate(s)
	}
	return s
}

func (a *Agent) detectMode(ctx context.Context, s State) State {
	s = reset(s)
	s.Mode, s.Reason = a.detector.DetectMode(ctx, s)
	quill.LogDebug(ctx, "research mode detected", "mode", s.Mode, "reason", s.Reason)
	return s
}

func (a *Agent) decompose(ctx context.Context, s State) State {
	if s.Mode == ModeNormal || s.Err != "" {
		return s
	}

	text, err := prompt.Render(decomposePrompt, a.promptData(s, map[string]any{"MaxSteps": a.maxSteps}))
	if err != nil {
		s.Err = "decompose: " + err.Error()
		return s
	}
	reply, err := ai.Complete(ctx, a.planner, text)
	if err != nil {
		quill.LogWarn(ctx, "decomposition failed", "error", err)
		s.Err = "decompose: " + err.Error()
		return s
	}

	steps, err := parseSteps(reply)
	if err != nil {
		quill.LogWarn(ctx, "unusable research plan", "error", err, "reply", helpers.Truncate(reply, 200))
		s.Err = "decompose: " + err.Error()
		return s
	}
	if len(steps) > a.maxSteps {
		steps = steps[:a.maxSteps]
	}
	s.Steps = steps
	return s
}

func (a *Agent) executeStep(ctx context.Context, s State) State {
	if s.Err != "" || s.StepIndex >= len(s.Steps) {
		return s
	}
	step := s.Steps[s.StepIndex]

	fail := func(err error) State {
		quill.LogWarn(ctx, "research step failed", "step", s.StepIndex+1, "error", err)
		s.Err = fmt.Sprintf("step %d: %v", s.StepIndex+1, err)
		s.Pending = nil
		return s
	}

	text, err := prompt.Render(queryPrompt, a.promptData(s, map[string]any{
		"Steps":           s.Steps,
		"CurrentStep":     step,
		"PreviousResults": previousResults(s.Results),
	}))
	if err != nil {
		return fail(err)
	}
	query, err := ai.Complete(ctx, a.planner, text)
	if err != nil {
		return fail(fmt.Errorf("generate query: %w", err))
	}

	text, err = prompt.Render(searchPrompt, map[string]any{"Query": query, "UserInput": s.UserInput})
	if err != nil {
		return fail(err)
	}
	resp, err := a.searcher.Search(ctx, text)
	if err != nil {
		return fail(fmt.Errorf("search: %w", err))
	}

	s.Pending = &StepResult{
		Step:    step,
		Query:   query,
		Result:  helpers.StripTags(resp.Content),
		Sources: extractSources(resp),
	}
	quill.LogDebug(ctx, "research step done", "step", s.StepIndex+1, "sources", len(s.Pending.Sources))
	return s
}

func (a *Agent) synthesize(ctx context.Context, s State) Answer {
	answer := Answer{Mode: s.Mode, Sources: []string{}}

	if s.Err != "" && len(s.Results) == 0 {
		quill.LogWarn(ctx, "research produced nothing", "error", s.Err)
		answer.Output = Apology
		return answer
	}

	tmpl, data := normalPrompt, a.promptData(s, nil)
	if s.Mode != ModeNormal {
		tmpl = synthesisPrompt
		data["Mode"] = string(s.Mode)
		data["Findings"] = findings(s.Results)
	}

	text, err := prompt.Render(tmpl, data)
	if err == nil {
		var reply string
		reply, err = ai.Complete(ctx, a.synthesizer, text)
		if err == nil {
			answer.Output = helpers.StripTags(xmlDecl.ReplaceAllString(reply, ""))
		}
	}
	if err != nil || answer.Output == "" {
		if err == nil {
			err = errors.New("empty answer after cleanup")
		}
		quill.LogError(ctx, "synthesis failed", err, "mode", s.Mode)
		answer.Output = Fallback
		return answer
	}

	if s.Mode != ModeNormal {
		var all []string
		for _, r := range s.Results {
			all = append(all, r.Sources...)
		}
		answer.Sources = helpers.Dedupe(all)
	}
	return answer
}

func (a *Agent) promptData(s State, extra map[string]any) map[string]any {
	data := map[string]any{
		"UserSetting":     s.UserSetting,
		"OriginalContent": summary(s.OriginalContent),
		"UserInput":       s.UserInput,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// parseSteps accepts a JSON array of strings, optionally fenced, or an
// object with a "steps" array.
func parseSteps(reply string) ([]string, error) {
	body := []byte(ai.StripCodeFence(reply))

	var steps []string
	if err := json.Unmarshal(body, &steps); err != nil {
		var wrapped struct {
			Steps []string `json:"steps"`
		}
		if json.Unmarshal(body, &wrapped) != nil {
			return nil, fmt.Errorf("expected a JSON list of strings: %w", err)
		}
		steps = wrapped.Steps
	}
	if steps == nil {
		return nil, errors.New("expected a JSON list of strings")
	}

	out := make([]string, 0, len(steps))
	for _, st := range steps {
		if st = strings.TrimSpace(st); st != "" {
			out = append(out, st)
		}
	}
	return out, nil
}

// extractSources prefers the citations and falls back to URLs in the text.
func extractSources(resp ai.SearchResponse) []string {
	sources := resp.Citations
	if len(helpers.Dedupe(sources)) == 0 {
		sources = urlPattern.FindAllString(resp.Content, -1)
	}
	return helpers.Dedupe(sources)
}

func previousResults(results []StepResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("- step '%s': %s...", r.Step, helpers.Truncate(r.Result, 100))
	}
	return strings.Join(lines, "\n")
}

func findings(results []StepResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("**Finding %d**\n%s", i+1, r.Result)
	}
	return strings.Join(parts, "\n\n")
}

func summary(content string) string {
	if short := helpers.Truncate(content, 500); short != content {
		return short + "..."
	}
	return content
}
