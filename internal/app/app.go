// Package app wires configured components for the command-line entry
// points. Ingestion and serving share these constructors so both sides
// agree on the provider and index location.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/embedding"
	ghclient "github.com/bull/civic-assistant/internal/github"
	"github.com/bull/civic-assistant/internal/generation"
	"github.com/bull/civic-assistant/internal/indexer"
	"github.com/bull/civic-assistant/internal/loader"
	"github.com/bull/civic-assistant/internal/rag"
	"github.com/bull/civic-assistant/internal/storage"
)

// Ingester is a ready-to-run ingestion pipeline.
type Ingester struct {
	Pipeline *indexer.Pipeline
	closeFn  func() error
}

// Close releases the backend connection, if any.
func (i *Ingester) Close() error {
	if i.closeFn == nil {
		return nil
	}
	return i.closeFn()
}

// NewIngester builds the loader, embedder and index sink selected by cfg.
func NewIngester(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Ingester, error) {
	embedder, err := embedding.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	gh, err := ghclient.NewClient(ctx, cfg.Credentials.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	docs := loader.New(ghclient.NewFetcher(gh), logger)

	var (
		sink    indexer.Sink
		closeFn func() error
	)
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		store, err := storage.NewQdrantStore(ctx, cfg.Index.Qdrant, logger)
		if err != nil {
			return nil, err
		}
		sink, closeFn = store, store.Close
	default:
		sink = indexer.LocalSink{Dir: cfg.Index.Dir}
	}

	p := indexer.NewPipeline(docs, embedder, sink, indexer.Options{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Workers:      cfg.Embedding.Workers,
	}, logger)
	return &Ingester{Pipeline: p, closeFn: closeFn}, nil
}

// Assistant is a ready-to-serve orchestrator.
type Assistant struct {
	*rag.Orchestrator
	closeFn func() error
}

// Close releases the backend connection, if any.
func (a *Assistant) Close() error {
	if a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}

// NewAssistant builds the query embedder, generator and index source
// selected by cfg. It does not require an index to exist yet.
func NewAssistant(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Assistant, error) {
	embedder, err := embedding.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	generator, err := generation.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	var (
		source  rag.IndexSource
		closeFn func() error
	)
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		store, err := storage.NewQdrantStore(ctx, cfg.Index.Qdrant, logger)
		if err != nil {
			return nil, err
		}
		source, closeFn = rag.NewRemoteSource(store, embedder), store.Close
	default:
		source = rag.NewLocalSource(cfg.Index.Dir, embedder, logger)
	}

	o := rag.NewOrchestrator(source, embedder, generator, rag.Options{
		TopK:    cfg.TopK,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})
	return &Assistant{Orchestrator: o, closeFn: closeFn}, nil
}
