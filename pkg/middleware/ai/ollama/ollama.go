// Package ollama provides a chat client and embedder for local Ollama
// models.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// DefaultModel is used when New is given an empty model name.
const DefaultModel = "llama3.2"

// Client implements ai.Client on the Ollama chat API.
type Client struct {
	client *api.Client
	model  string
	config *Config
}

// Config holds Ollama settings.
type Config struct {
	// Host defaults to OLLAMA_HOST or http://localhost:11434.
	Host string

	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string

	// KeepAlive is how long the model stays loaded, e.g. "5m".
	KeepAlive string

	SystemInstruction string
	ResponseFormat    *ai.ResponseFormat

	// Options are passed through as model options.
	Options map[string]any
}

// Option configures a Client.
type Option interface {
	Apply(*Config)
}

type configOption struct{ config *Config }

func (o configOption) Apply(opts *Config) { *opts = *o.config }

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return configOption{config: config}
}

// DefaultConfig uses the environment host, temperature 0.7 and a five
// minute keep-alive.
func DefaultConfig() *Config {
	return &Config{
		Temperature: ai.Float32Ptr(0.7),
		KeepAlive:   "5m",
	}
}

// New creates a client for model.
func New(model string, opts ...Option) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt.Apply(config)
	}

	var client *api.Client
	if config.Host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create client from environment: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(config.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid host URL: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}

	return &Client{client: client, model: model, config: config}, nil
}

// Chat implements ai.Client. Plain text streams through; structured output
// is buffered and cleaned of code fences and trailing prose first.
func (o *Client) Chat(r *quill.Request, w *quill.Response, opts *ai.AgentOptions) error {
	var prompt string
	if err := quill.Read(r, &prompt); err != nil {
		return err
	}

	req, err := o.buildChatRequest(prompt, ai.GetSchema(opts), ai.GetSystem(opts))
	if err != nil {
		return err
	}
	buffer := req.Format != nil

	var full strings.Builder
	err = o.client.Chat(r.Context, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		if buffer {
			full.WriteString(resp.Message.Content)
			return nil
		}
		_, err := w.Data.Write([]byte(resp.Message.Content))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to chat with ollama: %w", err)
	}

	if buffer {
		_, err := w.Data.Write([]byte(cleanJSONResponse(full.String())))
		return err
	}
	return nil
}

func (o *Client) buildChatRequest(prompt string, schema *ai.ResponseFormat, system string) (*api.ChatRequest, error) {
	if system == "" {
		system = o.config.SystemInstruction
	}
	messages := make([]api.Message, 0, 2)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Options:  make(map[string]any),
	}

	if o.config.Temperature != nil {
		req.Options["temperature"] = *o.config.Temperature
	}
	if o.config.TopP != nil {
		req.Options["top_p"] = *o.config.TopP
	}
	if o.config.MaxTokens != nil {
		req.Options["num_predict"] = *o.config.MaxTokens
	}
	if len(o.config.Stop) > 0 {
		req.Options["stop"] = o.config.Stop
	}
	for key, value := range o.config.Options {
		req.Options[key] = value
	}
	if o.config.KeepAlive != "" {
		d, err := time.ParseDuration(o.config.KeepAlive)
		if err != nil {
			return nil, fmt.Errorf("invalid keep_alive %q: %w", o.config.KeepAlive, err)
		}
		req.KeepAlive = &api.Duration{Duration: d}
	}

	format := schema
	if format == nil {
		format = o.config.ResponseFormat
	}
	if format != nil {
		req.Format = formatFor(format)
	}
	return req, nil
}

// formatFor maps a response format to Ollama's format field: the string
// "json" or a JSON schema.
func formatFor(format *ai.ResponseFormat) json.RawMessage {
	if format.Type == "json_schema" && format.Schema != nil {
		if data, err := json.Marshal(format.Schema); err == nil {
			return data
		}
	}
	return json.RawMessage(`"json"`)
}

// cleanJSONResponse strips code fences and, for objects, anything after the
// last closing brace, which small local models tend to add.
func cleanJSONResponse(content string) string {
	content = ai.StripCodeFence(content)
	if !strings.HasPrefix(content, "{") {
		return content
	}
	if i := strings.LastIndex(content, "}"); i != -1 {
		content = content[:i+1]
	}
	return strings.TrimSpace(content)
}

// Embedder implements retrieval.Embedder with Ollama embedding models.
type Embedder struct {
	client *api.Client
	model  string
}

// Embedder returns an embedder sharing the client's connection, e.g. for
// "nomic-embed-text".
func (o *Client) Embedder(model string) *Embedder {
	return &Embedder{client: o.client, model: model}
}

// Embed implements retrieval.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (retrieval.Vector, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama embed: no embedding returned")
	}
	return retrieval.Vector(resp.Embeddings[0]), nil
}
