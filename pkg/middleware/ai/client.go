// Package ai connects flows to chat models.
//
// A Client streams a completion for the text it reads from the request into
// the response writer. Agent wraps a client as a flow handler and Complete
// runs a single prompt for code that needs the answer as a string.
// Provider implementations live in the gemini, openai and ollama
// subpackages.
package ai

import (
	"github.com/invopop/jsonschema"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// Client is a chat model provider.
type Client interface {
	// Chat reads the prompt from r and streams the completion into w.
	// opts may be nil.
	Chat(r *quill.Request, w *quill.Response, opts *AgentOptions) error
}

// ResponseFormat requests structured output.
type ResponseFormat struct {
	// Type is "json_object" or "json_schema".
	Type   string             `json:"type"`
	Schema *jsonschema.Schema `json:"schema,omitempty"`
}

// SearchResponse is the answer of a web-grounded model together with the
// URLs it cites.
type SearchResponse struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
}

// Float32Ptr returns a pointer to f.
func Float32Ptr(f float32) *float32 { return &f }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
