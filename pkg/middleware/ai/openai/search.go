package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/quill-ai/go-quill/pkg/helpers"
	"github.com/quill-ai/go-quill/pkg/middleware/ai"
)

// PerplexityBaseURL is the OpenAI-compatible Perplexity endpoint.
const PerplexityBaseURL = "https://api.perplexity.ai"

// Searcher asks a web-grounded model and returns its answer with the URLs
// it cites.
type Searcher struct {
	client *Client
}

// DefaultSearchConfig targets Perplexity with PERPLEXITY_API_KEY and a low
// temperature. Streaming is off so citations arrive with the answer.
func DefaultSearchConfig() *Config {
	return &Config{
		APIKey:      os.Getenv("PERPLEXITY_API_KEY"),
		BaseURL:     PerplexityBaseURL,
		Temperature: ai.Float32Ptr(0.2),
		Stream:      ai.BoolPtr(false),
	}
}

// NewSearcher creates a searcher for model, e.g. "sonar".
func NewSearcher(model string, opts ...Option) (*Searcher, error) {
	client, err := newClient(model, DefaultSearchConfig(), "PERPLEXITY_API_KEY", opts...)
	if err != nil {
		return nil, err
	}
	return &Searcher{client: client}, nil
}

// Search sends query as a single user message.
func (s *Searcher) Search(ctx context.Context, query string) (ai.SearchResponse, error) {
	params := s.client.buildChatParams(query, nil, "")
	resp, err := s.client.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ai.SearchResponse{}, fmt.Errorf("search completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ai.SearchResponse{}, errors.New("search completion: no choices returned")
	}
	return ai.SearchResponse{
		Content:   resp.Choices[0].Message.Content,
		Citations: parseCitations(resp.RawJSON()),
	}, nil
}

// parseCitations reads the Perplexity extensions of a chat completion:
// a top-level "citations" list, or "search_results" entries with a url.
func parseCitations(raw string) []string {
	var body struct {
		Citations     []string `json:"citations"`
		SearchResults []struct {
			URL string `json:"url"`
		} `json:"search_results"`
	}
	if raw == "" || json.Unmarshal([]byte(raw), &body) != nil {
		return nil
	}
	urls := body.Citations
	if len(urls) == 0 {
		for _, r := range body.SearchResults {
			if r.URL != "" {
				urls = append(urls, r.URL)
			}
		}
	}
	return helpers.Dedupe(urls)
}
