package cache

import (
	"context"
	"fmt"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/botirk38/semanticcache"
	"github.com/botirk38/semanticcache/options"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultSemanticThreshold = 0.97

// ComponentCache provides semantic caching for generated components. Two
// users asking for "a pricing page with three tiers" in slightly different
// words can share one generation. Only fresh-project prompts are cached;
// edits depend on file context that never repeats.
type ComponentCache struct {
	semanticCache *semanticcache.SemanticCache[string, models.GenerateOutput]
	threshold     float32
}

// NewComponentCache creates a component cache from configuration. A nil or
// disabled config returns a nil cache, which every method treats as a miss.
func NewComponentCache(config *models.PromptCacheConfig) (*ComponentCache, error) {
	if config == nil || !config.Enabled {
		fiberlog.Info("ComponentCache: semantic cache disabled")
		return nil, nil
	}
	if config.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai_api_key is required for the semantic component cache")
	}

	threshold := config.SemanticThreshold
	if threshold <= 0 || threshold > 1 {
		fiberlog.Warnf("ComponentCache: invalid threshold %.2f, using default %.2f", threshold, defaultSemanticThreshold)
		threshold = defaultSemanticThreshold
	}

	embedModel := config.EmbeddingModel
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}

	backend := config.Backend
	if backend == "" {
		backend = models.CacheBackendMemory
	}

	var (
		sc  *semanticcache.SemanticCache[string, models.GenerateOutput]
		err error
	)

	switch backend {
	case models.CacheBackendMemory:
		capacity := config.Capacity
		if capacity <= 0 {
			capacity = 1000
		}
		sc, err = semanticcache.New(
			options.WithOpenAIProvider[string, models.GenerateOutput](config.OpenAIAPIKey, embedModel),
			options.WithLRUBackend[string, models.GenerateOutput](capacity),
		)

	case models.CacheBackendRedis:
		if config.RedisURL == "" {
			return nil, fmt.Errorf("redis URL not set for redis backend")
		}
		sc, err = semanticcache.New(
			options.WithOpenAIProvider[string, models.GenerateOutput](config.OpenAIAPIKey, embedModel),
			options.WithRedisBackend[string, models.GenerateOutput](config.RedisURL, 0),
		)

	default:
		return nil, fmt.Errorf("unsupported cache backend: %s (supported: redis, memory)", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create semantic cache: %w", err)
	}

	fiberlog.Infof("ComponentCache: semantic cache initialized (backend=%s, threshold=%.2f)", backend, threshold)
	return &ComponentCache{semanticCache: sc, threshold: float32(threshold)}, nil
}

// Get returns a cached component for a semantically similar prompt
func (c *ComponentCache) Get(ctx context.Context, prompt string) (*models.GenerateOutput, bool) {
	if c == nil || c.semanticCache == nil {
		return nil, false
	}

	if hit, found, err := c.semanticCache.Get(ctx, prompt); found && err == nil {
		fiberlog.Debug("ComponentCache: exact hit")
		return &hit, true
	} else if err != nil {
		fiberlog.Errorf("ComponentCache: exact lookup failed: %v", err)
	}

	if match, err := c.semanticCache.Lookup(ctx, prompt, c.threshold); err == nil && match != nil {
		fiberlog.Debug("ComponentCache: semantic hit")
		return &match.Value, true
	} else if err != nil {
		fiberlog.Errorf("ComponentCache: semantic lookup failed: %v", err)
	}

	return nil, false
}

// Set stores a generated component under its prompt
func (c *ComponentCache) Set(ctx context.Context, prompt string, output *models.GenerateOutput) {
	if c == nil || c.semanticCache == nil || output == nil {
		return
	}

	if err := c.semanticCache.Set(ctx, prompt, prompt, *output); err != nil {
		fiberlog.Errorf("ComponentCache: failed to store component: %v", err)
	}
}

// Flush clears all cached components
func (c *ComponentCache) Flush(ctx context.Context) error {
	if c == nil || c.semanticCache == nil {
		return nil
	}
	return c.semanticCache.Flush(ctx)
}

// Close releases the cache backend
func (c *ComponentCache) Close() error {
	if c == nil || c.semanticCache == nil {
		return nil
	}
	return c.semanticCache.Close()
}
