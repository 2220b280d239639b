package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// MockClient is a scripted Client for tests.
//
// Responses are returned in order. Once they run out the last one repeats.
// A responder function, when set, takes precedence and can route on the
// prompt. Every prompt is recorded.
//
// Example:
//
//	client := ai.NewMockClientWithResponses(`{"mode":"research"}`, `["a","b"]`)
//	agent := research.NewAgent(client, searcher)
type MockClient struct {
	mu          sync.Mutex
	responses   []string
	responder   func(prompt string, opts *AgentOptions) (string, error)
	err         error
	streamDelay time.Duration
	calls       int
	prompts     []string
	options     []*AgentOptions
	jsonMode    bool
}

// NewMockClient always answers response.
func NewMockClient(response string) *MockClient {
	return &MockClient{responses: []string{response}}
}

// NewMockClientWithResponses answers responses in order.
func NewMockClientWithResponses(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// NewMockClientWithError fails every call with err.
func NewMockClientWithError(err error) *MockClient {
	return &MockClient{err: err}
}

// NewMockClientFunc answers with fn.
func NewMockClientFunc(fn func(prompt string, opts *AgentOptions) (string, error)) *MockClient {
	return &MockClient{responder: fn}
}

// WithStreamDelay pauses between streamed words.
func (m *MockClient) WithStreamDelay(delay time.Duration) *MockClient {
	m.streamDelay = delay
	return m
}

// WithJSONMode makes calls that request a schema answer with JSON generated
// from the schema instead of the scripted responses.
func (m *MockClient) WithJSONMode(enabled bool) *MockClient {
	m.jsonMode = enabled
	return m
}

// Chat implements Client.
func (m *MockClient) Chat(req *quill.Request, res *quill.Response, opts *AgentOptions) error {
	var prompt string
	if err := quill.Read(req, &prompt); err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}

	response, err := m.next(prompt, opts)
	if err != nil {
		return err
	}
	return m.stream(req, res, response)
}

// Calls reports how many times Chat was called.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received so far.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Options returns the options of every call in order.
func (m *MockClient) Options() []*AgentOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AgentOptions(nil), m.options...)
}

// LastOptions returns the options of the most recent call.
func (m *MockClient) LastOptions() *AgentOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.options) == 0 {
		return nil
	}
	return m.options[len(m.options)-1]
}

// Reset clears the call history and rewinds the responses.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.prompts = nil
	m.options = nil
}

func (m *MockClient) next(prompt string, opts *AgentOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, opts)

	switch {
	case m.err != nil:
		return "", fmt.Errorf("mock error: %w", m.err)
	case m.responder != nil:
		return m.responder(prompt, opts)
	case m.jsonMode && GetSchema(opts) != nil:
		return mockJSON(GetSchema(opts), prompt)
	case len(m.responses) == 0:
		return "Mock response to: " + strings.TrimSpace(prompt), nil
	case idx >= len(m.responses):
		return m.responses[len(m.responses)-1], nil
	default:
		return m.responses[idx], nil
	}
}

// stream writes response a word at a time, keeping the separators.
func (m *MockClient) stream(req *quill.Request, res *quill.Response, response string) error {
	words := strings.SplitAfter(response, " ")
	for i, word := range words {
		if err := req.Context.Err(); err != nil {
			return err
		}
		if _, err := res.Data.Write([]byte(word)); err != nil {
			return err
		}
		if m.streamDelay > 0 && i < len(words)-1 {
			time.Sleep(m.streamDelay)
		}
	}
	return nil
}

func mockJSON(format *ResponseFormat, prompt string) (string, error) {
	out := map[string]any{}
	if format.Schema != nil {
		fillFromSchema(out, format.Schema)
	}
	if len(out) == 0 {
		out["message"] = "Mock JSON response to: " + strings.TrimSpace(prompt)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func fillFromSchema(out map[string]any, schema *jsonschema.Schema) {
	if schema.Properties == nil {
		return
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		if len(prop.Enum) > 0 {
			out[pair.Key] = prop.Enum[0]
			continue
		}
		switch prop.Type {
		case "integer", "number":
			out[pair.Key] = 42
		case "boolean":
			out[pair.Key] = true
		case "array":
			out[pair.Key] = []any{"mock_item_1", "mock_item_2"}
		case "object":
			out[pair.Key] = map[string]any{}
		default:
			out[pair.Key] = "mock_" + pair.Key
		}
	}
}
