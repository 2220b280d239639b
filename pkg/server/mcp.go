package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quill-ai/go-quill/pkg/ingest"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/research"
)

// SyncDocumentInput is the input of the sync_document tool.
type SyncDocumentInput struct {
	TenantID string            `json:"tenant_id" jsonschema:"the manuscript (tenant) to update"`
	Content  string            `json:"content" jsonschema:"the full current text of the manuscript"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"extra metadata stored with every chunk"`
}

// ResearchInput is the input of the research tool.
type ResearchInput struct {
	UserSetting     string `json:"user_setting,omitempty" jsonschema:"story settings rendered as XML"`
	OriginalContent string `json:"original_content,omitempty" jsonschema:"the passage the writer is working on"`
	Query           string `json:"query" jsonschema:"the writer's question or request"`
}

// SearchContextInput is the input of the search_context tool.
type SearchContextInput struct {
	TenantID string `json:"tenant_id" jsonschema:"the manuscript (tenant) to search"`
	Query    string `json:"query" jsonschema:"what to look for"`
}

// SearchContextOutput lists the passages found.
type SearchContextOutput struct {
	Hits  []retrieval.Hit `json:"hits"`
	Count int             `json:"count"`
}

// NewMCPServer registers a tool for every configured service: sync_document,
// research and search_context.
func NewMCPServer(services Services) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "quill", Version: Version}, nil)

	if services.Syncer != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        "sync_document",
			Description: "Index a new revision of a manuscript, re-embedding only the chunks that changed",
		}, syncDocumentTool(services.Syncer))
	}
	if services.Research != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        "research",
			Description: "Answer a writer's question, researching it on the web first when needed",
		}, researchTool(services.Research))
	}
	if services.Retriever != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        "search_context",
			Description: "Find the passages of a manuscript closest to a query",
		}, searchContextTool(services.Retriever))
	}
	return srv
}

func syncDocumentTool(syncer *ingest.Syncer) mcp.ToolHandlerFor[SyncDocumentInput, ingest.SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SyncDocumentInput) (*mcp.CallToolResult, ingest.SyncResult, error) {
		result, err := syncer.ProcessDocument(ctx, in.TenantID, in.Content, in.Metadata)
		if err != nil {
			return nil, ingest.SyncResult{}, err
		}
		return nil, result, nil
	}
}

func researchTool(agent *research.Agent) mcp.ToolHandlerFor[ResearchInput, research.Answer] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ResearchInput) (*mcp.CallToolResult, research.Answer, error) {
		answer, err := agent.Run(ctx, in.UserSetting, in.OriginalContent, in.Query)
		if err != nil {
			return nil, research.Answer{}, err
		}
		if answer.Sources == nil {
			answer.Sources = []string{}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: answer.Output}},
		}, answer, nil
	}
}

func searchContextTool(r *retrieval.Retriever) mcp.ToolHandlerFor[SearchContextInput, SearchContextOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SearchContextInput) (*mcp.CallToolResult, SearchContextOutput, error) {
		hits, err := r.Retrieve(ctx, in.TenantID, in.Query)
		if err != nil {
			return nil, SearchContextOutput{}, err
		}
		if hits == nil {
			hits = []retrieval.Hit{}
		}
		return nil, SearchContextOutput{Hits: hits, Count: len(hits)}, nil
	}
}
