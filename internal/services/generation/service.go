package generation

import (
	"context"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/cache"
)

const defaultTimeout = 120 * time.Second

// Service turns user prompts into React components via the configured LLM
// backend, with an optional semantic cache in front of fresh-project prompts.
type Service struct {
	provider Provider
	cache    *cache.ComponentCache
	timeout  time.Duration
}

// NewService builds the generation engine from configuration
func NewService(ctx context.Context, cfg *models.GenerationConfig) (*Service, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var componentCache *cache.ComponentCache
	if cfg.PromptCache != nil {
		componentCache, err = cache.NewComponentCache(cfg.PromptCache)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize component cache: %w", err)
		}
	}

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &Service{
		provider: provider,
		cache:    componentCache,
		timeout:  timeout,
	}, nil
}

// NewServiceWith wires a service from explicit parts, used by tests and
// callers that manage the provider themselves
func NewServiceWith(provider Provider, componentCache *cache.ComponentCache, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{provider: provider, cache: componentCache, timeout: timeout}
}

// Provider reports which backend renders components
func (s *Service) Provider() models.GenerationProvider {
	return s.provider.Name()
}

// Generate renders a component for the given prompt. Fresh-project prompts
// consult the semantic cache first; edit prompts never do, since they depend
// on file state that does not repeat across requests.
func (s *Service) Generate(ctx context.Context, params models.GenerateParams) (*models.GenerateOutput, error) {
	if params.IsNewProject && s.cache != nil {
		if hit, ok := s.cache.Get(ctx, params.Prompt); ok {
			fiberlog.Infof("serving component from semantic cache (provider %s idle)", s.provider.Name())
			return hit, nil
		}
	}

	system := BuildSystemPrompt(params)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.Generate(ctx, system, "User Request: "+params.Prompt)
	if err != nil {
		return nil, err
	}
	fiberlog.Debugf("%s generated %d chars in %v", s.provider.Name(), len(raw), time.Since(start))

	out := ParseResponse(raw, params.CurrentFilePath)
	if out.Code == "" {
		return nil, fmt.Errorf("generation produced no usable code")
	}

	if params.IsNewProject && s.cache != nil {
		s.cache.Set(ctx, params.Prompt, out)
	}

	return out, nil
}

// Close releases the component cache backend
func (s *Service) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
