// Package mcp exposes the civic assistant as Model Context Protocol tools.
package mcp

// AskInput defines the input parameters for the ask_constitution tool.
type AskInput struct {
	// Question is answered from the ingested document only.
	Question string `json:"question" jsonschema:"the question to answer from the ingested document"`
}

// AskOutput contains the generated answer or a displayable failure message.
type AskOutput struct {
	Answer string `json:"answer"`
}

// SearchInput defines the input parameters for the search_constitution tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"the semantic search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of chunks to return (1-20, default 5)"`
	// MinScore is the minimum cosine similarity to keep.
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score between 0 and 1"`
}

// SearchOutput contains the matching chunks.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching passages found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single chunk match.
type SearchResult struct {
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
	Page    int     `json:"page,omitempty"`
	Section string  `json:"section,omitempty"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the served index.
type StatusOutput struct {
	Initialized bool   `json:"initialized"`
	Provider    string `json:"provider,omitempty"`
	Dimension   int    `json:"dimension,omitempty"`
	TotalChunks int    `json:"total_chunks"`
	BuiltAt     string `json:"built_at,omitempty"`
	Message     string `json:"message,omitempty"`
}
