package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithHashingProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", ProviderHashing)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultSourceDocument, cfg.SourceDocument)
	assert.Equal(t, BackendLocal, cfg.Index.Backend)
	assert.Equal(t, DefaultIndexDir, cfg.Index.Dir)
	assert.Equal(t, DefaultChunkSize, cfg.Chunking.Size)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunking.Overlap)
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
source_document: docs/constitution.md
index:
  dir: from_file
embedding:
  provider: hashing
  dimension: 64
chunking:
  size: 500
  overlap: 50
request_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("INDEX_DIR", "from_env")
	t.Setenv("TOP_K", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "docs/constitution.md", cfg.SourceDocument)
	assert.Equal(t, "from_env", cfg.Index.Dir)
	assert.Equal(t, 64, cfg.Embedding.Dimension)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "overlap equal to size",
			env:  map[string]string{"EMBEDDING_PROVIDER": ProviderHashing, "CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"},
		},
		{
			name: "non-numeric chunk size",
			env:  map[string]string{"EMBEDDING_PROVIDER": ProviderHashing, "CHUNK_SIZE": "big"},
		},
		{
			name: "unknown embedding provider",
			env:  map[string]string{"EMBEDDING_PROVIDER": "word2vec"},
		},
		{
			name: "missing google key",
			env:  map[string]string{"EMBEDDING_PROVIDER": ProviderGemini, "GOOGLE_API_KEY": ""},
		},
		{
			name: "unknown backend",
			env:  map[string]string{"EMBEDDING_PROVIDER": ProviderHashing, "INDEX_BACKEND": "faiss"},
		},
		{
			name: "bad timeout",
			env:  map[string]string{"EMBEDDING_PROVIDER": ProviderHashing, "REQUEST_TIMEOUT": "soon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestRequireGeneration(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", ProviderHashing)
	t.Setenv("GENERATION_PROVIDER", ProviderOpenAI)
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err, "ingestion-only config must load without generation credentials")
	assert.ErrorIs(t, cfg.RequireGeneration(), ErrConfig)

	cfg.Credentials.OpenAIAPIKey = "sk-test"
	assert.NoError(t, cfg.RequireGeneration())
}

func TestValidateChunking(t *testing.T) {
	assert.NoError(t, ValidateChunking(1000, 200))
	assert.NoError(t, ValidateChunking(2, 0))
	assert.ErrorIs(t, ValidateChunking(0, 0), ErrConfig)
	assert.ErrorIs(t, ValidateChunking(10, -1), ErrConfig)
	assert.ErrorIs(t, ValidateChunking(10, 11), ErrConfig)
}
