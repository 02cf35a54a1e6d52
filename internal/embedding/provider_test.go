package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/civic-assistant/internal/config"
)

// stubProvider returns a canned vector or error.
type stubProvider struct {
	vec   []float32
	err   error
	dim   int
	delay time.Duration
	calls atomic.Int32
}

func (s *stubProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx)
}

func (s *stubProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx)
}

func (s *stubProvider) embed(ctx context.Context) ([]float32, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vec, s.err
}

func (s *stubProvider) Dimension() int { return s.dim }
func (s *stubProvider) Name() string   { return "stub" }

func TestWithTimeout_RejectsBadVectors(t *testing.T) {
	tests := []struct {
		name string
		stub *stubProvider
	}{
		{"backend error", &stubProvider{err: errors.New("quota exceeded"), dim: 3}},
		{"empty vector", &stubProvider{vec: []float32{}, dim: 3}},
		{"zero vector", &stubProvider{vec: []float32{0, 0, 0}, dim: 3}},
		{"wrong dimension", &stubProvider{vec: []float32{1, 2}, dim: 3}},
		{"timeout", &stubProvider{vec: []float32{1, 2, 3}, dim: 3, delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := WithTimeout(tt.stub, 20*time.Millisecond)

			vec, err := p.EmbedQuery(context.Background(), "article 21")
			assert.Nil(t, vec)
			assert.ErrorIs(t, err, ErrEmbedding)

			_, err = p.EmbedDocument(context.Background(), "article 21")
			assert.ErrorIs(t, err, ErrEmbedding)
		})
	}
}

func TestWithTimeout_PassesGoodVectors(t *testing.T) {
	p := WithTimeout(&stubProvider{vec: []float32{0, 1, 0}, dim: 3}, time.Second)

	vec, err := p.EmbedDocument(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Equal(t, 3, p.Dimension())
	assert.Equal(t, "stub", p.Name())
}

func TestEmbedDocuments_PreservesOrder(t *testing.T) {
	p := NewHashing(32)
	texts := make([]string, 50)
	for i := range texts {
		texts[i] = fmt.Sprintf("article %d of the constitution", i)
	}

	vectors, err := EmbedDocuments(context.Background(), p, texts, 4)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		want, err := p.EmbedDocument(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, vectors[i], "vector %d out of order", i)
	}
}

func TestEmbedDocuments_FailsOnFirstError(t *testing.T) {
	stub := &stubProvider{err: fmt.Errorf("%w: boom", ErrEmbedding)}
	texts := make([]string, 100)

	vectors, err := EmbedDocuments(context.Background(), stub, texts, 2)
	assert.Nil(t, vectors)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Less(t, int(stub.calls.Load()), len(texts), "remaining work should be cancelled")
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = config.ProviderHashing
	cfg.Embedding.Dimension = 16

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 16, p.Dimension())
	assert.Equal(t, "hashing/16", p.Name())

	cfg.Embedding.Provider = "word2vec"
	_, err = New(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestHashing(t *testing.T) {
	p := NewHashing(64)
	ctx := context.Background()

	a, err := p.EmbedDocument(ctx, "Protection of life and personal liberty")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "protection of LIFE and personal liberty!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "case and punctuation are ignored")

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	blank, err := p.EmbedDocument(ctx, "  \n ")
	require.NoError(t, err)
	assert.NoError(t, checkVector(blank, 64), "blank text must still embed to a non-zero vector")

	_, err = NewHashing(0).EmbedDocument(ctx, "x")
	assert.ErrorIs(t, err, ErrEmbedding)
}
