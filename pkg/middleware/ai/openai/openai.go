// Package openai provides the OpenAI chat client, embedder and an
// OpenAI-compatible web search client for Perplexity.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/openai/openai-go/v2/shared/constant"

	"github.com/quill-ai/go-quill/pkg/middleware/ai"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
)

// Client implements ai.Client on the OpenAI chat completions API.
type Client struct {
	client *openai.Client
	model  shared.ChatModel
	config *Config
}

// Config holds OpenAI settings.
type Config struct {
	// APIKey defaults to OPENAI_API_KEY.
	APIKey string
	// BaseURL points the client at an OpenAI-compatible endpoint.
	BaseURL string

	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
	Seed        *int
	User        string

	// SystemInstruction applies to every call that does not set its own.
	SystemInstruction string

	ResponseFormat *ai.ResponseFormat

	// Stream defaults to true.
	Stream *bool
}

// Option configures a Client.
type Option interface {
	Apply(*Config)
}

type configOption struct{ config *Config }

// Apply copies the non-zero fields of the option's config.
func (o configOption) Apply(c *Config) {
	src := o.config
	if src.APIKey != "" {
		c.APIKey = src.APIKey
	}
	if src.BaseURL != "" {
		c.BaseURL = src.BaseURL
	}
	if src.Temperature != nil {
		c.Temperature = src.Temperature
	}
	if src.TopP != nil {
		c.TopP = src.TopP
	}
	if src.MaxTokens != nil {
		c.MaxTokens = src.MaxTokens
	}
	if len(src.Stop) > 0 {
		c.Stop = src.Stop
	}
	if src.Seed != nil {
		c.Seed = src.Seed
	}
	if src.User != "" {
		c.User = src.User
	}
	if src.SystemInstruction != "" {
		c.SystemInstruction = src.SystemInstruction
	}
	if src.ResponseFormat != nil {
		c.ResponseFormat = src.ResponseFormat
	}
	if src.Stream != nil {
		c.Stream = src.Stream
	}
}

// WithConfig merges cfg over the defaults. Zero fields keep the default.
func WithConfig(cfg *Config) Option {
	return configOption{config: cfg}
}

// DefaultConfig reads OPENAI_API_KEY and enables streaming at temperature
// 0.7.
func DefaultConfig() *Config {
	return &Config{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		Temperature: ai.Float32Ptr(0.7),
		Stream:      ai.BoolPtr(true),
	}
}

// New creates a client for model.
func New(model string, opts ...Option) (*Client, error) {
	return newClient(model, DefaultConfig(), "OPENAI_API_KEY", opts...)
}

func newClient(model string, config *Config, keyEnv string, opts ...Option) (*Client, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}
	for _, opt := range opts {
		opt.Apply(config)
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s environment variable not set or provided in config", keyEnv)
	}

	clientOptions := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(clientOptions...)

	return &Client{
		client: &client,
		model:  shared.ChatModel(model),
		config: config,
	}, nil
}

// Chat implements ai.Client.
func (c *Client) Chat(r *quill.Request, w *quill.Response, opts *ai.AgentOptions) error {
	var prompt string
	if err := quill.Read(r, &prompt); err != nil {
		return err
	}
	params := c.buildChatParams(prompt, ai.GetSchema(opts), ai.GetSystem(opts))

	if c.config.Stream == nil || *c.config.Stream {
		return c.executeStreamingRequest(r.Context, params, w)
	}
	return c.executeNonStreamingRequest(r.Context, params, w)
}

func (c *Client) buildChatParams(prompt string, schema *ai.ResponseFormat, system string) openai.ChatCompletionNewParams {
	if system == "" {
		system = c.config.SystemInstruction
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	c.applyChatConfig(&params, schema)
	return params
}

func (c *Client) applyChatConfig(params *openai.ChatCompletionNewParams, schema *ai.ResponseFormat) {
	if c.config.Temperature != nil {
		params.Temperature = openai.Float(float64(*c.config.Temperature))
	}
	if c.config.TopP != nil {
		params.TopP = openai.Float(float64(*c.config.TopP))
	}
	if c.config.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*c.config.MaxTokens))
	}
	if len(c.config.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: c.config.Stop}
	}
	if c.config.Seed != nil {
		params.Seed = openai.Int(int64(*c.config.Seed))
	}
	if c.config.User != "" {
		params.User = openai.String(c.config.User)
	}

	format := schema
	if format == nil {
		format = c.config.ResponseFormat
	}
	if format != nil {
		setResponseFormat(params, format)
	}
}

func setResponseFormat(params *openai.ChatCompletionNewParams, format *ai.ResponseFormat) {
	jsonObject := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: constant.JSONObject("").Default()},
	}

	switch format.Type {
	case "json_object":
		params.ResponseFormat = jsonObject
	case "json_schema":
		schema, err := json.Marshal(format.Schema)
		if format.Schema == nil || err != nil {
			params.ResponseFormat = jsonObject
			return
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				Type: constant.JSONSchema("").Default(),
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response_schema",
					Schema: json.RawMessage(schema),
					Strict: openai.Bool(true),
				},
			},
		}
	}
}

func (c *Client) executeStreamingRequest(ctx context.Context, params openai.ChatCompletionNewParams, w *quill.Response) (err error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() {
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close stream: %w", closeErr)
		}
	}()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if _, err := w.Data.Write([]byte(content)); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("streaming error: %w", err)
	}
	return nil
}

func (c *Client) executeNonStreamingRequest(ctx context.Context, params openai.ChatCompletionNewParams, w *quill.Response) error {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("no response choices returned")
	}
	_, err = w.Data.Write([]byte(resp.Choices[0].Message.Content))
	return err
}

// Embedder implements retrieval.Embedder with OpenAI embedding models.
type Embedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// Embedder returns an embedder sharing the client's connection. A positive
// dimension asks the model for shortened vectors.
func (c *Client) Embedder(model string, dimension int) *Embedder {
	return &Embedder{client: c.client, model: model, dimension: dimension}
}

// Embed implements retrieval.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (retrieval.Vector, error) {
	resp, err := e.client.Embeddings.New(ctx, e.params(text))
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embed: no embedding returned")
	}
	values := resp.Data[0].Embedding
	v := make(retrieval.Vector, len(values))
	for i, x := range values {
		v[i] = float32(x)
	}
	return v, nil
}

func (e *Embedder) params(text string) openai.EmbeddingNewParams {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}
	return params
}
