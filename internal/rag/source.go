package rag

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bull/civic-assistant/internal/index"
)

// IndexSource hands out the current index. Open and Manifest fail with
// index.ErrIndexNotFound when nothing has been ingested yet.
type IndexSource interface {
	Open(ctx context.Context) (Searcher, error)
	Manifest(ctx context.Context) (index.Manifest, error)
}

// LocalSource serves the on-disk index in Dir. The loaded index is cached
// and shared by all requests; it is reloaded when the manifest changes,
// which happens when ingestion replaces the directory.
type LocalSource struct {
	dir      string
	provider index.DimensionReporter
	logger   *slog.Logger

	mu     sync.RWMutex
	cached *index.Index
}

// NewLocalSource creates a source for the index directory dir.
func NewLocalSource(dir string, provider index.DimensionReporter, logger *slog.Logger) *LocalSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalSource{dir: dir, provider: provider, logger: logger}
}

// Open returns the cached index, loading or reloading it if needed.
func (s *LocalSource) Open(ctx context.Context) (Searcher, error) {
	manifest, err := index.ReadManifest(s.dir)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil && cached.Manifest().Equal(manifest) {
		return localSearcher{cached}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.cached.Manifest().Equal(manifest) {
		return localSearcher{s.cached}, nil
	}

	idx, err := index.LoadFor(s.dir, s.provider)
	if err != nil {
		return nil, err
	}
	s.cached = idx
	s.logger.Info("index loaded", "dir", s.dir, "entries", idx.Len(), "dimension", idx.Dimension(),
		"built_at", idx.Manifest().BuiltAt)
	return localSearcher{idx}, nil
}

// Manifest reads the on-disk manifest without loading vectors.
func (s *LocalSource) Manifest(context.Context) (index.Manifest, error) {
	return index.ReadManifest(s.dir)
}

// localSearcher adapts the in-memory index to Searcher.
type localSearcher struct {
	idx *index.Index
}

func (l localSearcher) Search(ctx context.Context, query []float32, k int) ([]index.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.idx.Search(query, k)
}

// RemoteStore is a vector store that reports its build manifest.
type RemoteStore interface {
	Searcher
	Manifest(ctx context.Context) (index.Manifest, error)
}

// RemoteSource serves a remote store after checking that it was built with
// vectors the query provider can match.
type RemoteSource struct {
	store    RemoteStore
	provider index.DimensionReporter
}

// NewRemoteSource wraps store.
func NewRemoteSource(store RemoteStore, provider index.DimensionReporter) *RemoteSource {
	return &RemoteSource{store: store, provider: provider}
}

func (s *RemoteSource) Manifest(ctx context.Context) (index.Manifest, error) {
	return s.store.Manifest(ctx)
}

func (s *RemoteSource) Open(ctx context.Context) (Searcher, error) {
	m, err := s.store.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	if err := index.CheckDimension(m.Dimension, s.provider); err != nil {
		return nil, err
	}
	return s.store, nil
}
