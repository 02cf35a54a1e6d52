package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/civic-assistant/internal/index"
	"github.com/bull/civic-assistant/internal/rag"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

// makeAskHandler creates the ask_constitution tool handler. Failures are
// already rendered into the answer text, so the tool itself never errors.
func makeAskHandler(a Assistant) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		return nil, AskOutput{Answer: a.Answer(ctx, input.Question)}, nil
	}
}

// makeSearchHandler creates the search_constitution tool handler.
// Results below MinScore are dropped; ranking order is preserved.
func makeSearchHandler(a Assistant) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		maxResults = min(maxResults, maxMaxResults)

		hits, err := a.Search(ctx, input.Query, maxResults)
		switch {
		case errors.Is(err, index.ErrIndexNotFound):
			return nil, SearchOutput{Results: []SearchResult{}, Message: rag.NotInitializedMessage}, nil
		case errors.Is(err, rag.ErrEmptyQuery):
			return nil, SearchOutput{}, fmt.Errorf("query is required")
		case err != nil:
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			if h.Score < input.MinScore {
				continue
			}
			results = append(results, SearchResult{
				Text:    h.Text,
				Score:   h.Score,
				Source:  h.Metadata.Source,
				Page:    h.Metadata.Page,
				Section: h.Metadata.Section,
			})
		}

		if len(results) == 0 {
			return nil, SearchOutput{
				Results: []SearchResult{},
				Message: "No matching passages found. Try broader search terms.",
			}, nil
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(a Assistant) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		m, err := a.Status(ctx)
		if errors.Is(err, index.ErrIndexNotFound) {
			return nil, StatusOutput{Message: rag.NotInitializedMessage}, nil
		}
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("index_error: %w", err)
		}

		out := StatusOutput{
			Initialized: true,
			Provider:    m.Provider,
			Dimension:   m.Dimension,
			TotalChunks: m.Entries,
		}
		if !m.BuiltAt.IsZero() {
			out.BuiltAt = m.BuiltAt.Format(time.RFC3339)
		}
		return nil, out, nil
	}
}
