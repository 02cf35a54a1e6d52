package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/civic-assistant/internal/index"
)

// Assistant is the question-answering surface the tools call into.
type Assistant interface {
	Answer(ctx context.Context, query string) string
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
	Status(ctx context.Context) (index.Manifest, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server    *mcp.Server
	assistant Assistant
}

// Config holds server dependencies.
type Config struct {
	Assistant Assistant
	Version   string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "civic-assistant",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_constitution",
		Description: "Answer a question about the Constitution of India using only the ingested text.",
	}, makeAskHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_constitution",
		Description: "Search the ingested Constitution text semantically. Returns matching passages with page and section.",
	}, makeSearchHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the status of the Constitution index: provider, dimension, chunk count and build time.",
	}, makeStatusHandler(cfg.Assistant))

	return &Server{
		server:    server,
		assistant: cfg.Assistant,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
