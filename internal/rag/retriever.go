// Package rag answers questions over the persisted index: retrieve the most
// similar chunks, then generate an answer from them.
package rag

import (
	"context"
	"fmt"

	"github.com/bull/civic-assistant/internal/embedding"
	"github.com/bull/civic-assistant/internal/index"
)

// Searcher is a vector index that can be queried.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]index.Result, error)
}

// Retriever embeds a query and searches an index with it.
type Retriever struct {
	embedder embedding.Provider
}

// NewRetriever creates a retriever using embedder for queries.
func NewRetriever(embedder embedding.Provider) *Retriever {
	return &Retriever{embedder: embedder}
}

// Retrieve returns up to k results for query, best first.
func (r *Retriever) Retrieve(ctx context.Context, s Searcher, query string, k int) ([]index.Result, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}
