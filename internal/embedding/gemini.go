package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"
)

const (
	// GeminiModel is the default Gemini embedding model.
	GeminiModel = "text-embedding-004"

	// GeminiDimension is the vector dimension for text-embedding-004.
	GeminiDimension = 768
)

// Gemini embeds text with the Gemini API, tagging each call with the
// retrieval task type so documents and queries are encoded for their side of
// the search.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGemini creates a Gemini provider. An empty model selects GeminiModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewGeminiWithClient(client, model), nil
}

// NewGeminiWithClient wraps an existing client, which may also be shared
// with the answer generator.
func NewGeminiWithClient(client *genai.Client, model string) *Gemini {
	if model == "" {
		model = GeminiModel
	}
	dim := 0
	if model == GeminiModel {
		dim = GeminiDimension
	}
	return &Gemini{client: client, model: model, dim: dim}
}

func (g *Gemini) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, TaskRetrievalDocument)
}

func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, TaskRetrievalQuery)
}

// Dimension returns 0 for models whose size is not known up front.
func (g *Gemini) Dimension() int { return g.dim }

func (g *Gemini) Name() string { return "gemini/" + g.model }

// embed retries with exponential backoff while the API reports
// RESOURCE_EXHAUSTED (HTTP 429). Other errors fail immediately.
func (g *Gemini) embed(ctx context.Context, text, task string) ([]float32, error) {
	var embedding []float32

	operation := func() error {
		resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
			TaskType: task,
		})
		if err != nil {
			if isGeminiRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if resp == nil || len(resp.Embeddings) != 1 || resp.Embeddings[0] == nil {
			return backoff.Permanent(fmt.Errorf("%w: malformed embedding response", ErrEmbedding))
		}
		embedding = resp.Embeddings[0].Values
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(newRetryBackOff(), ctx)); err != nil {
		return nil, err
	}
	return embedding, nil
}

// isGeminiRateLimitError checks if the error is a quota error (HTTP 429).
func isGeminiRateLimitError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}
