package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiModel is the default Gemini answer model.
const GeminiModel = "gemini-2.5-flash"

// Gemini answers with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	prompt PromptBuilder
}

// NewGemini creates a Gemini generator. An empty model selects GeminiModel.
func NewGemini(ctx context.Context, apiKey, model string, prompt PromptBuilder) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewGeminiWithClient(client, model, prompt), nil
}

// NewGeminiWithClient wraps an existing client.
func NewGeminiWithClient(client *genai.Client, model string, prompt PromptBuilder) *Gemini {
	if model == "" {
		model = GeminiModel
	}
	return &Gemini{client: client, model: model, prompt: prompt}
}

func (g *Gemini) Name() string { return "gemini/" + g.model }

func (g *Gemini) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(g.prompt.Build(query, chunks)), nil)
	if err != nil {
		return "", fmt.Errorf("%w: generate content failed: %w", ErrGeneration, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: %s returned no response", ErrGeneration, g.Name())
	}
	return reply(g.Name(), resp.Text())
}
