package generation

import (
	"context"
	"fmt"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const defaultOpenAIModel = "gpt-4o"

type openaiProvider struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func newOpenAIProvider(cfg *models.GenerationConfig, maxTokens int) *openaiProvider {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &openaiProvider{
		client:    openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (p *openaiProvider) Name() models.GenerationProvider {
	return models.ProviderOpenAI
}

func (p *openaiProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(p.maxTokens),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned an empty response")
	}

	return resp.Choices[0].Message.Content, nil
}
