package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// OpenAIModel is the default OpenAI embedding model.
	OpenAIModel = "text-embedding-3-small"

	// OpenAIDimension is the vector dimension for text-embedding-3-small.
	OpenAIDimension = 1536
)

// OpenAI embeds text with the OpenAI embeddings API and retries with
// exponential backoff on rate limit errors. The API has no task types, so
// documents and queries are embedded the same way.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAI creates an OpenAI provider. An empty model selects OpenAIModel.
// Extra request options (base URL, HTTP client) are mostly for tests.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = OpenAIModel
	}
	// Retries are owned by embedWithRetry.
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := openai.NewClient(opts...)

	dim := 0
	if model == OpenAIModel {
		dim = OpenAIDimension
	}
	return &OpenAI{client: &client, model: model, dim: dim}
}

// Client returns the underlying OpenAI client so the answer generator can
// share its connection pool.
func (o *OpenAI) Client() *openai.Client {
	return o.client
}

func (o *OpenAI) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return o.embedWithRetry(ctx, text)
}

func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return o.embedWithRetry(ctx, text)
}

// Dimension returns 0 for models whose size is not known up front.
func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) Name() string { return "openai/" + o.model }

// embedWithRetry retries with exponential backoff on rate limit errors
// (HTTP 429). Other errors are treated as permanent and fail immediately.
func (o *OpenAI) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: []string{text},
			},
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != 1 {
			return backoff.Permanent(fmt.Errorf("%w: expected 1 embedding, got %d", ErrEmbedding, len(resp.Data)))
		}
		embedding = toFloat32(resp.Data[0].Embedding)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(newRetryBackOff(), ctx)); err != nil {
		return nil, err
	}
	return embedding, nil
}

// newRetryBackOff is the rate-limit schedule shared by the remote providers.
func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
