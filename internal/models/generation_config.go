package models

// GenerationProvider identifies which LLM backend renders components
type GenerationProvider string

const (
	ProviderGemini    GenerationProvider = "gemini"
	ProviderOpenAI    GenerationProvider = "openai"
	ProviderAnthropic GenerationProvider = "anthropic"
)

// GenerationConfig holds configuration for the code generation engine
type GenerationConfig struct {
	Provider       GenerationProvider `json:"provider" yaml:"provider"`
	Model          string             `json:"model,omitzero" yaml:"model"`
	APIKey         string             `json:"api_key" yaml:"api_key"`
	TimeoutSeconds int                `json:"timeout_seconds,omitzero" yaml:"timeout_seconds"`
	MaxTokens      int                `json:"max_tokens,omitzero" yaml:"max_tokens"`

	PromptCache *PromptCacheConfig `json:"prompt_cache,omitempty" yaml:"prompt_cache,omitempty"`
}
