// Package config builds the process configuration once at startup from an
// optional YAML file and the environment, and validates it before any
// component is constructed.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks invalid chunking parameters, unknown providers or missing
// credentials. It is fatal at startup.
var ErrConfig = errors.New("invalid configuration")

// Backend and provider identifiers.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"

	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// Defaults shared by ingestion and serving. Both sides must agree on the
// index location, so it lives here rather than in either command.
const (
	DefaultSourceDocument = "constitution.pdf"
	DefaultIndexDir       = "faiss_index"
	DefaultCollection     = "constitution"
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultTopK           = 3
	DefaultEmbedWorkers   = 4
	DefaultHashDimension  = 512
	DefaultMaxContext     = 16000
	DefaultRequestTimeout = 30 * time.Second
)

// QdrantConfig contains connection details for the remote index backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// IndexConfig selects where the vector index is persisted.
type IndexConfig struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	Workers   int    `yaml:"workers"`
}

// GenerationConfig selects and configures the answer model.
type GenerationConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	MaxContextChars int    `yaml:"max_context_chars"`
}

// ChunkingConfig configures the sliding-window chunker.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// ServerConfig configures the HTTP/MCP server.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Credentials are read from the environment only, never from the YAML file.
type Credentials struct {
	GoogleAPIKey string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
	GitHubToken  string `yaml:"-"`
}

// Config is the root configuration passed to component constructors.
type Config struct {
	SourceDocument string           `yaml:"source_document"`
	Index          IndexConfig      `yaml:"index"`
	Embedding      EmbeddingConfig  `yaml:"embedding"`
	Generation     GenerationConfig `yaml:"generation"`
	Chunking       ChunkingConfig   `yaml:"chunking"`
	Server         ServerConfig     `yaml:"server"`
	TopK           int              `yaml:"top_k"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	LogLevel       string           `yaml:"log_level"`
	Credentials    Credentials      `yaml:"-"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		SourceDocument: DefaultSourceDocument,
		Index: IndexConfig{
			Backend: BackendLocal,
			Dir:     DefaultIndexDir,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: DefaultCollection,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderGemini,
			Dimension: DefaultHashDimension,
			Workers:   DefaultEmbedWorkers,
		},
		Generation: GenerationConfig{
			Provider:        ProviderGemini,
			MaxContextChars: DefaultMaxContext,
		},
		Chunking: ChunkingConfig{
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
		Server: ServerConfig{
			Port: "8080",
			Mode: "http",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:3000",
				"http://localhost:5174",
			},
		},
		TopK:           DefaultTopK,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.SourceDocument, "SOURCE_DOCUMENT")
	setString(&cfg.Index.Backend, "INDEX_BACKEND")
	setString(&cfg.Index.Dir, "INDEX_DIR")
	setString(&cfg.Index.Qdrant.Host, "QDRANT_HOST")
	setString(&cfg.Index.Qdrant.APIKey, "QDRANT_API_KEY")
	setString(&cfg.Index.Qdrant.Collection, "QDRANT_COLLECTION")
	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.Generation.Provider, "GENERATION_PROVIDER")
	setString(&cfg.Generation.Model, "GENERATION_MODEL")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Mode, "SERVER_MODE")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	ints := []struct {
		dst *int
		key string
	}{
		{&cfg.Index.Qdrant.Port, "QDRANT_PORT"},
		{&cfg.Embedding.Dimension, "EMBEDDING_DIMENSION"},
		{&cfg.Embedding.Workers, "EMBED_WORKERS"},
		{&cfg.Generation.MaxContextChars, "MAX_CONTEXT_CHARS"},
		{&cfg.Chunking.Size, "CHUNK_SIZE"},
		{&cfg.Chunking.Overlap, "CHUNK_OVERLAP"},
		{&cfg.TopK, "TOP_K"},
	}
	for _, v := range ints {
		if err := setInt(v.dst, v.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("QDRANT_USE_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: QDRANT_USE_TLS=%q", ErrConfig, v)
		}
		cfg.Index.Qdrant.UseTLS = b
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: REQUEST_TIMEOUT=%q", ErrConfig, v)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}

	cfg.Credentials = Credentials{
		GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrConfig, key, v)
	}
	*dst = i
	return nil
}

// Validate checks chunking parameters, provider names and the embedding
// credentials.
func (c *Config) Validate() error {
	if err := ValidateChunking(c.Chunking.Size, c.Chunking.Overlap); err != nil {
		return err
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrConfig, c.TopK)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive", ErrConfig)
	}

	switch c.Index.Backend {
	case BackendLocal:
		if c.Index.Dir == "" {
			return fmt.Errorf("%w: index dir is empty", ErrConfig)
		}
	case BackendQdrant:
		if c.Index.Qdrant.Collection == "" {
			return fmt.Errorf("%w: qdrant collection is empty", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown index backend %q", ErrConfig, c.Index.Backend)
	}

	switch c.Embedding.Provider {
	case ProviderGemini, ProviderOpenAI:
		if err := c.requireKey(c.Embedding.Provider); err != nil {
			return err
		}
	case ProviderHashing:
		if c.Embedding.Dimension < 1 {
			return fmt.Errorf("%w: hashing dimension must be >= 1", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrConfig, c.Embedding.Provider)
	}

	switch c.Generation.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown generation provider %q", ErrConfig, c.Generation.Provider)
	}
	return nil
}

// RequireGeneration checks the answer model credentials. Ingestion never
// calls the generative model, so only serving commands need this.
func (c *Config) RequireGeneration() error {
	return c.requireKey(c.Generation.Provider)
}

// ValidateChunking enforces size > 0, overlap >= 0 and overlap < size.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be > 0, got %d", ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk overlap must be >= 0 and < size (size=%d, overlap=%d)",
			ErrConfig, size, overlap)
	}
	return nil
}

func (c *Config) requireKey(provider string) error {
	switch provider {
	case ProviderGemini:
		if c.Credentials.GoogleAPIKey == "" {
			return fmt.Errorf("%w: GOOGLE_API_KEY not set", ErrConfig)
		}
	case ProviderOpenAI:
		if c.Credentials.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set", ErrConfig)
		}
	}
	return nil
}

// Logger returns a text slog.Logger writing to stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
