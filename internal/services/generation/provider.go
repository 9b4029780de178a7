package generation

import (
	"context"
	"fmt"

	"github.com/appforge-ai/appforge-backend/internal/models"
)

const defaultMaxTokens = 8192

// Provider is one LLM backend capable of rendering a component from a prompt
type Provider interface {
	Name() models.GenerationProvider
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// NewProvider builds the configured LLM backend
func NewProvider(ctx context.Context, cfg *models.GenerationConfig) (Provider, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("generation API key not configured")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	switch cfg.Provider {
	case models.ProviderGemini, "":
		return newGeminiProvider(ctx, cfg, maxTokens)
	case models.ProviderOpenAI:
		return newOpenAIProvider(cfg, maxTokens), nil
	case models.ProviderAnthropic:
		return newAnthropicProvider(cfg, maxTokens), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}
