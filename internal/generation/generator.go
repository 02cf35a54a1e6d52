// Package generation turns a question and its retrieved context into an
// answer with a generative model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/civic-assistant/internal/config"
)

// ErrGeneration marks a failed model call: network, quota, or an empty or
// malformed reply.
var ErrGeneration = errors.New("generation error")

// Generator answers a question from context chunks.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []string) (string, error)
	Name() string
}

const preamble = "You are a helpful Civic Assistant. Use the following context from the Indian Constitution " +
	"to answer the user's question. Answer only from the given context; if the context does not " +
	"contain the answer, say that you do not know."

// ContextSeparator separates chunks inside the prompt.
const ContextSeparator = "\n\n"

// PromptBuilder renders the single prompt sent to the model.
type PromptBuilder struct {
	// MaxContextChars caps the context section, in runes. Zero means
	// config.DefaultMaxContext.
	MaxContextChars int
	Logger          *slog.Logger
}

// Build joins chunks in retrieved order, truncates the result to the
// context budget and wraps it with the preamble and question.
func (b PromptBuilder) Build(query string, chunks []string) string {
	contextText := b.truncate(strings.Join(chunks, ContextSeparator))
	return fmt.Sprintf("%s\n\nContext:\n%s\n\nQuestion: %s\n\nAnswer:", preamble, contextText, query)
}

// truncate cuts text to MaxContextChars runes.
// Rough estimate: 1 token ≈ 4 characters.
func (b PromptBuilder) truncate(text string) string {
	maxChars := b.MaxContextChars
	if maxChars <= 0 {
		maxChars = config.DefaultMaxContext
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("truncating prompt context",
		"from_chars", len(runes), "to_chars", maxChars, "estimated_tokens", maxChars/4)

	return string(runes[:maxChars])
}

// New returns the generator selected by cfg.Generation. It requires the
// provider's credentials.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Generator, error) {
	if err := cfg.RequireGeneration(); err != nil {
		return nil, err
	}
	prompt := PromptBuilder{MaxContextChars: cfg.Generation.MaxContextChars, Logger: logger}

	switch cfg.Generation.Provider {
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.Credentials.GoogleAPIKey, cfg.Generation.Model, prompt)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.Credentials.OpenAIAPIKey, cfg.Generation.Model, prompt), nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", config.ErrConfig, cfg.Generation.Provider)
	}
}

// reply validates model output.
func reply(name, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned an empty reply", ErrGeneration, name)
	}
	return text, nil
}
