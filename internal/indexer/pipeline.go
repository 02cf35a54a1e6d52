// Package indexer runs offline ingestion: load, chunk, embed, then replace
// the persisted index in one step.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/civic-assistant/internal/chunking"
	"github.com/bull/civic-assistant/internal/embedding"
	"github.com/bull/civic-assistant/internal/index"
	"github.com/bull/civic-assistant/internal/loader"
)

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	Source      string
	Segments    int
	TotalChunks int
	Dimension   int
	Provider    string
	Duration    time.Duration
}

// DocumentLoader reads a source document into segments.
type DocumentLoader interface {
	Load(ctx context.Context, uri string) ([]loader.Segment, error)
}

// Sink receives the complete set of entries and replaces the stored index.
type Sink interface {
	Replace(ctx context.Context, entries []index.Entry, provider string) error
}

// LocalSink persists entries as an index directory on disk.
type LocalSink struct {
	Dir string
}

// Replace builds an index and saves it over Dir.
func (s LocalSink) Replace(_ context.Context, entries []index.Entry, provider string) error {
	idx, err := index.Build(entries)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := idx.Save(s.Dir, provider); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Options tunes chunking and the embedding pool.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

// Pipeline orchestrates the full indexing process from loading to storage.
type Pipeline struct {
	loader   DocumentLoader
	embedder embedding.Provider
	sink     Sink
	opts     Options
	logger   *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(
	docs DocumentLoader,
	embedder embedding.Provider,
	sink Sink,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		loader:   docs,
		embedder: embedder,
		sink:     sink,
		opts:     opts,
		logger:   logger,
	}
}

// Run ingests the document at uri. Any failure aborts the run before the
// sink is touched, so the previous index stays in place.
func (p *Pipeline) Run(ctx context.Context, uri string) (*IndexResult, error) {
	start := time.Now()
	p.logger.Info("Starting indexing", "source", uri, "provider", p.embedder.Name())

	segments, err := p.loader.Load(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	chunks, err := chunking.Split(segments, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	p.logger.Info("Chunked document", "segments", len(segments), "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedding.EmbedDocuments(ctx, p.embedder, texts, p.opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	entries := make([]index.Entry, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		c := chunks[i]
		entries[i] = index.Entry{
			Position: c.Index,
			Text:     c.Text,
			Metadata: index.Metadata{Source: c.Source, Page: c.Page, Section: c.Section},
			Vector:   c.Embedding,
		}
	}

	if err := p.sink.Replace(ctx, entries, p.embedder.Name()); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	result := &IndexResult{
		Source:      uri,
		Segments:    len(segments),
		TotalChunks: len(chunks),
		Provider:    p.embedder.Name(),
		Duration:    time.Since(start),
	}
	if len(vectors) > 0 {
		result.Dimension = len(vectors[0])
	}

	p.logger.Info("Indexing complete",
		"chunks", result.TotalChunks,
		"dimension", result.Dimension,
		"duration", result.Duration,
	)
	return result, nil
}
