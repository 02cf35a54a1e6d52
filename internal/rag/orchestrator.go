package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/embedding"
	"github.com/bull/civic-assistant/internal/generation"
	"github.com/bull/civic-assistant/internal/index"
)

// NotInitializedMessage is the reply while no index has been ingested.
const NotInitializedMessage = "System not initialized. Please run ingestion first."

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("empty query")

// Options configures an Orchestrator.
type Options struct {
	TopK    int           // chunks per answer, default config.DefaultTopK
	Timeout time.Duration // per-question deadline, zero for none
	Logger  *slog.Logger
}

// Orchestrator runs retrieve-then-generate for each question.
type Orchestrator struct {
	source    IndexSource
	retriever *Retriever
	generator generation.Generator
	topK      int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewOrchestrator wires an index source, a query embedder and a generator.
func NewOrchestrator(source IndexSource, embedder embedding.Provider, generator generation.Generator, opts Options) *Orchestrator {
	if opts.TopK < 1 {
		opts.TopK = config.DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		source:    source,
		retriever: NewRetriever(embedder),
		generator: generator,
		topK:      opts.TopK,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// Ask answers query. It returns index.ErrIndexNotFound before ingestion has
// run, and wrapped provider errors otherwise.
func (o *Orchestrator) Ask(ctx context.Context, query string) (string, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	results, err := o.search(ctx, query, o.topK)
	if err != nil {
		return "", err
	}

	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.Text
	}

	answer, err := o.generator.Generate(ctx, query, chunks)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return answer, nil
}

// Search returns the k chunks most relevant to query without generating an
// answer.
func (o *Orchestrator) Search(ctx context.Context, query string, k int) ([]index.Result, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	return o.search(ctx, query, k)
}

// Status describes the index currently served.
func (o *Orchestrator) Status(ctx context.Context) (index.Manifest, error) {
	return o.source.Manifest(ctx)
}

func (o *Orchestrator) search(ctx context.Context, query string, k int) ([]index.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	searcher, err := o.source.Open(ctx)
	if err != nil {
		return nil, err
	}
	return o.retriever.Retrieve(ctx, searcher, query, k)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// Answer is Ask for display: it never fails. A missing index yields
// NotInitializedMessage and any other failure, including a panic, yields
// "Error: <description>".
func (o *Orchestrator) Answer(ctx context.Context, query string) (reply string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while answering", "panic", r)
			reply = fmt.Sprintf("Error: internal error: %v", r)
		}
	}()

	answer, err := o.Ask(ctx, query)
	switch {
	case err == nil:
		o.logger.Info("answered", "query_chars", len(query), "duration", time.Since(start))
		return answer
	case errors.Is(err, index.ErrIndexNotFound):
		o.logger.Warn("index not initialized")
		return NotInitializedMessage
	default:
		o.logger.Error("answer failed", "error", err, "duration", time.Since(start))
		return "Error: " + err.Error()
	}
}
