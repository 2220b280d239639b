package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// ErrEmptyResponse is returned by Complete when the model produced no text.
var ErrEmptyResponse = errors.New("ai: empty response")

// Agent wraps client as a flow handler.
//
// Input: prompt text
// Output: model completion
// Behavior: STREAMING when the provider streams
//
// Example:
//
//	flow := quill.NewFlow().
//	    Use(prompt.Template(plannerPrompt)).
//	    Use(ai.Agent(client))
func Agent(client Client, opts ...AgentOption) quill.Handler {
	agentOpts := Options(opts...)
	return quill.HandlerFunc(func(r *quill.Request, w *quill.Response) error {
		return client.Chat(r, w, agentOpts)
	})
}

// Complete sends prompt to client and returns the whole completion with
// surrounding whitespace trimmed.
func Complete(ctx context.Context, client Client, prompt string, opts ...AgentOption) (string, error) {
	var sb strings.Builder
	req := quill.NewRequest(ctx, strings.NewReader(prompt))
	if err := client.Chat(req, quill.NewResponse(&sb), Options(opts...)); err != nil {
		return "", err
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// StripCodeFence removes a surrounding markdown code fence such as
// ```json ... ``` from a model reply.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
