package models

// CacheBackendType represents the type of cache backend to use
type CacheBackendType string

const (
	CacheBackendRedis  CacheBackendType = "redis"
	CacheBackendMemory CacheBackendType = "memory"
)

// CreditCacheConfig holds configuration for the fast-path credit balance
// cache. The TTL bounds how stale a cached balance may be before the next
// read rehydrates it from the durable store.
type CreditCacheConfig struct {
	RedisURL   string `json:"redis_url,omitzero" yaml:"redis_url"`
	TTLSeconds int    `json:"ttl_seconds,omitzero" yaml:"ttl_seconds"`
	KeyPrefix  string `json:"key_prefix,omitzero" yaml:"key_prefix"`
}

// PromptCacheConfig holds configuration for semantic caching of generated
// components (optional)
type PromptCacheConfig struct {
	Backend  CacheBackendType `json:"backend,omitzero" yaml:"backend"`     // "redis" or "memory"
	RedisURL string           `json:"redis_url,omitzero" yaml:"redis_url"` // Required if backend is "redis"
	Capacity int              `json:"capacity,omitzero" yaml:"capacity"`   // Required if backend is "memory" (LRU cache size)

	Enabled           bool    `json:"enabled,omitzero" yaml:"enabled"`
	SemanticThreshold float64 `json:"semantic_threshold,omitzero" yaml:"semantic_threshold"`
	OpenAIAPIKey      string  `json:"openai_api_key,omitzero" yaml:"openai_api_key"`
	EmbeddingModel    string  `json:"embedding_model,omitzero" yaml:"embedding_model"`
}
