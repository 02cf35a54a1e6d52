// Package embedding maps text to fixed-length vectors. Documents and queries
// go through separate entry points because retrieval models may encode the
// two sides asymmetrically.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/civic-assistant/internal/config"
)

// ErrEmbedding marks a failed embedding call: network, quota, or a
// malformed response. A failed call never yields a zero vector.
var ErrEmbedding = errors.New("embedding provider error")

// Task types understood by asymmetric embedding models.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Provider embeds corpus text and queries into the same vector space.
type Provider interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length of every vector the provider returns.
	Dimension() int
	// Name identifies the provider and model, e.g. "gemini/text-embedding-004".
	Name() string
}

// New returns the provider selected by cfg.Embedding, wrapped so that every
// call is bounded by cfg.RequestTimeout and every vector is checked.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Embedding.Provider {
	case config.ProviderGemini:
		p, err = NewGemini(ctx, cfg.Credentials.GoogleAPIKey, cfg.Embedding.Model)
	case config.ProviderOpenAI:
		p = NewOpenAI(cfg.Credentials.OpenAIAPIKey, cfg.Embedding.Model)
	case config.ProviderHashing:
		p = NewHashing(cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrConfig, cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(p, cfg.RequestTimeout), nil
}

// guarded bounds each call with a timeout and rejects vectors that would
// corrupt the index.
type guarded struct {
	Provider
	timeout time.Duration
}

// WithTimeout wraps p so each call runs under its own deadline and returns
// ErrEmbedding for empty, zero, or wrongly sized vectors. A non-positive
// timeout disables the deadline.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	return &guarded{Provider: p, timeout: timeout}
}

func (g *guarded) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.call(ctx, text, g.Provider.EmbedDocument)
}

func (g *guarded) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.call(ctx, text, g.Provider.EmbedQuery)
}

func (g *guarded) call(ctx context.Context, text string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	vec, err := fn(ctx, text)
	if err != nil {
		if errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbedding, g.Name(), err)
	}
	if err := checkVector(vec, g.Dimension()); err != nil {
		return nil, fmt.Errorf("%s: %w", g.Name(), err)
	}
	return vec, nil
}

func checkVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbedding, len(vec), dim)
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: zero vector", ErrEmbedding)
}

// EmbedDocuments embeds texts with at most workers concurrent calls and
// returns vectors in input order. The first error cancels outstanding calls.
func EmbedDocuments(ctx context.Context, p Provider, texts []string, workers int) ([][]float32, error) {
	if workers < 1 {
		workers = config.DefaultEmbedWorkers
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, text := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := p.EmbedDocument(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
