// Package gemini provides the Google GenAI chat client and embedder.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
)

const applicationJSON = "application/json"

// Client implements ai.Client on the Gemini API.
type Client struct {
	client *genai.Client
	model  string
	config *Config
}

// Config holds Gemini generation settings.
type Config struct {
	// APIKey defaults to GOOGLE_API_KEY.
	APIKey string

	Temperature *float32
	TopP        *float32
	TopK        *float32
	MaxTokens   *int
	Stop        []string
	Seed        *int32

	// SystemInstruction applies to every call that does not set its own.
	SystemInstruction string

	// ResponseFormat applies to every call that does not request a schema.
	ResponseFormat *ai.ResponseFormat

	SafetySettings []*genai.SafetySetting
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

// DefaultConfig reads the API key from the environment and sets temperature
// 0.7.
func DefaultConfig() *Config {
	return &Config{
		APIKey:      os.Getenv("GOOGLE_API_KEY"),
		Temperature: ai.Float32Ptr(0.7),
	}
}

// New creates a client for model.
//
// Example:
//
//	client, err := gemini.New("gemini-2.0-flash")
func New(model string, opts ...Option) (*Client, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt.Apply(config)
	}
	if config.APIKey == "" {
		return nil, errors.New("GOOGLE_API_KEY environment variable not set or provided in config")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{client: client, model: model, config: config}, nil
}

// Chat implements ai.Client. Text chunks are written as they stream in.
func (g *Client) Chat(r *quill.Request, w *quill.Response, opts *ai.AgentOptions) error {
	var prompt string
	if err := quill.Read(r, &prompt); err != nil {
		return err
	}

	config := g.buildGenerateConfig(ai.GetSchema(opts), ai.GetSystem(opts))
	chat, err := g.client.Chats.Create(r.Context, g.model, config, nil)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	for result, err := range chat.SendMessageStream(r.Context, genai.Part{Text: prompt}) {
		if err != nil {
			return fmt.Errorf("failed to get response: %w", err)
		}
		if text := result.Text(); text != "" {
			if _, err := w.Data.Write([]byte(text)); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildGenerateConfig merges the client config with per-call overrides.
func (g *Client) buildGenerateConfig(schema *ai.ResponseFormat, system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if g.config.Temperature != nil {
		config.Temperature = genai.Ptr(*g.config.Temperature)
	}
	if g.config.TopP != nil {
		config.TopP = genai.Ptr(*g.config.TopP)
	}
	if g.config.TopK != nil {
		config.TopK = genai.Ptr(*g.config.TopK)
	}
	if g.config.MaxTokens != nil {
		config.MaxOutputTokens = int32(*g.config.MaxTokens)
	}
	if len(g.config.Stop) > 0 {
		config.StopSequences = g.config.Stop
	}
	if g.config.Seed != nil {
		config.Seed = genai.Ptr(*g.config.Seed)
	}
	if len(g.config.SafetySettings) > 0 {
		config.SafetySettings = g.config.SafetySettings
	}

	if system == "" {
		system = g.config.SystemInstruction
	}
	if system != "" {
		config.SystemInstruction = genai.Text(system)[0]
	}

	format := schema
	if format == nil {
		format = g.config.ResponseFormat
	}
	if format != nil {
		switch format.Type {
		case "json_object":
			config.ResponseMIMEType = applicationJSON
		case "json_schema":
			config.ResponseMIMEType = applicationJSON
			if format.Schema != nil {
				config.ResponseJsonSchema = format.Schema
			}
		}
	}

	return config
}

// Embedder implements retrieval.Embedder with Gemini embedding models.
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int32
	taskType  string
}

// Embedder returns an embedder sharing the client's connection. A positive
// dimension truncates the output vectors.
func (g *Client) Embedder(model string, dimension int) *Embedder {
	return &Embedder{
		client:    g.client,
		model:     model,
		dimension: int32(dimension),
		taskType:  "RETRIEVAL_DOCUMENT",
	}
}

// Embed implements retrieval.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (retrieval.Vector, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), e.embedConfig())
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini embed: no embedding returned")
	}
	return retrieval.Vector(resp.Embeddings[0].Values), nil
}

func (e *Embedder) embedConfig() *genai.EmbedContentConfig {
	config := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimension > 0 {
		config.OutputDimensionality = genai.Ptr(e.dimension)
	}
	return config
}
