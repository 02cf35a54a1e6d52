package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModel is the default chat model.
const OpenAIModel = "gpt-4o-mini"

// OpenAI answers with the Chat Completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	prompt PromptBuilder
}

// NewOpenAI creates an OpenAI generator. An empty model selects OpenAIModel.
func NewOpenAI(apiKey, model string, prompt PromptBuilder, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return NewOpenAIWithClient(&client, model, prompt)
}

// NewOpenAIWithClient wraps an existing client.
func NewOpenAIWithClient(client *openai.Client, model string, prompt PromptBuilder) *OpenAI {
	if model == "" {
		model = OpenAIModel
	}
	return &OpenAI{client: client, model: model, prompt: prompt}
}

func (o *OpenAI) Name() string { return "openai/" + o.model }

// Generate sends the prompt as a single user message.
func (o *OpenAI) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(o.prompt.Build(query, chunks)),
		},
		Model: openai.ChatModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion failed: %w", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ErrGeneration, o.Name())
	}
	return reply(o.Name(), resp.Choices[0].Message.Content)
}
