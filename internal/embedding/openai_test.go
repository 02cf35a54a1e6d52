package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI("sk-test", "", option.WithBaseURL(srv.URL+"/"))
}

func writeEmbedding(w http.ResponseWriter, vec []float64) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  OpenAIModel,
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	})
}

func TestOpenAI_Embed(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		writeEmbedding(w, []float64{0.25, 0.5, 0.75})
	})

	vec, err := p.EmbedQuery(context.Background(), "what is article 21")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vec)
	assert.Equal(t, "openai/"+OpenAIModel, p.Name())
	assert.Equal(t, OpenAIDimension, p.Dimension())
}

func TestOpenAI_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"requests","code":"rate_limit_exceeded"}}`)
			return
		}
		writeEmbedding(w, []float64{1, 0})
	})

	vec, err := p.EmbedDocument(context.Background(), "chunk")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_PermanentError(t *testing.T) {
	var calls atomic.Int32
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	})

	_, err := WithTimeout(p, 0).EmbedDocument(context.Background(), "chunk")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, int32(1), calls.Load(), "non-429 errors are not retried")
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1.5, -2}, toFloat32([]float64{1.5, -2}))
}
