package app

import (
	"github.com/appforge-ai/appforge-backend/internal/config"
	"github.com/appforge-ai/appforge-backend/internal/models"
)

// Builder provides a fluent interface for building server configurations
// programmatically, as an alternative to loading a YAML file.
type Builder struct {
	cfg *config.Config
}

// NewBuilder creates a configuration builder with minimal defaults
func NewBuilder() *Builder {
	return &Builder{
		cfg: &config.Config{
			Server: models.ServerConfig{
				Port:           "8080",
				AllowedOrigins: "*",
				Environment:    "development",
				LogLevel:       "info",
				BaseURL:        "http://localhost:8080",
				ClientURL:      "http://localhost:5173",
			},
		},
	}
}

// Port sets the server port.
func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = port
	return b
}

// AllowedOrigins sets CORS allowed origins.
func (b *Builder) AllowedOrigins(origins string) *Builder {
	b.cfg.Server.AllowedOrigins = origins
	return b
}

// Environment sets the environment (development/production).
func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = env
	return b
}

// LogLevel sets the logging level (trace, debug, info, warn, error).
func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = level
	return b
}

// BaseURL sets the public URL deployment links are built from.
func (b *Builder) BaseURL(url string) *Builder {
	b.cfg.Server.BaseURL = url
	return b
}

// ClientURL sets the frontend URL used for checkout redirects.
func (b *Builder) ClientURL(url string) *Builder {
	b.cfg.Server.ClientURL = url
	return b
}

// WithDatabase sets the durable store configuration.
func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

// WithCreditCache sets the Redis balance cache configuration.
func (b *Builder) WithCreditCache(cfg models.CreditCacheConfig) *Builder {
	b.cfg.CreditCache = &cfg
	return b
}

// WithJWTAuth enables the built-in cookie session flow.
func (b *Builder) WithJWTAuth(cfg models.JWTAuthConfig) *Builder {
	if b.cfg.Auth == nil {
		b.cfg.Auth = &models.AuthConfig{}
	}
	b.cfg.Auth.Provider = "jwt"
	b.cfg.Auth.JWTConfig = &cfg
	return b
}

// WithClerkAuth enables Clerk token validation and webhook provisioning.
func (b *Builder) WithClerkAuth(cfg models.ClerkAuthConfig) *Builder {
	if b.cfg.Auth == nil {
		b.cfg.Auth = &models.AuthConfig{}
	}
	b.cfg.Auth.ClerkConfig = &cfg
	return b
}

// WithBilling enables Stripe subscriptions.
func (b *Builder) WithBilling(cfg models.BillingConfig) *Builder {
	b.cfg.Billing = &cfg
	return b
}

// WithGeneration sets the LLM backend configuration.
func (b *Builder) WithGeneration(cfg models.GenerationConfig) *Builder {
	if cfg.PromptCache != nil && cfg.PromptCache.SemanticThreshold == 0 {
		cfg.PromptCache.SemanticThreshold = 0.97
	}
	b.cfg.Generation = &cfg
	return b
}

// WithDeploy sets where published bundles are written.
func (b *Builder) WithDeploy(outputDir string) *Builder {
	b.cfg.Deploy = &config.DeployConfig{OutputDir: outputDir}
	return b
}

// Build returns the assembled configuration.
func (b *Builder) Build() *config.Config {
	return b.cfg
}

// NewServerWithBuilder creates a Server from a configuration builder.
func NewServerWithBuilder(b *Builder) *Server {
	return NewServer(b.Build())
}
