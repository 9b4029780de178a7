package middleware

import (
	"strings"

	"github.com/appforge-ai/appforge-backend/internal/services/auth"
	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware authenticates requests with the session cookie or a bearer
// token. JWT sessions are tried first; Clerk tokens are accepted when a
// Clerk provider is configured.
type AuthMiddleware struct {
	jwtService *auth.JWTService
	clerk      *auth.ClerkAuthProvider
	config     *AuthMiddlewareConfig
}

type AuthMiddlewareConfig struct {
	Enabled     bool
	HeaderNames []string
	SkipPaths   []string
}

func DefaultAuthMiddlewareConfig() *AuthMiddlewareConfig {
	return &AuthMiddlewareConfig{
		Enabled:     true,
		HeaderNames: []string{"Authorization"},
		SkipPaths: []string{
			"/health",
			"/webhooks",
			"/deploys",
		},
	}
}

func NewAuthMiddleware(jwtService *auth.JWTService, clerk *auth.ClerkAuthProvider, config *AuthMiddlewareConfig) *AuthMiddleware {
	if config == nil {
		config = DefaultAuthMiddlewareConfig()
	}
	if len(config.HeaderNames) == 0 {
		config.HeaderNames = []string{"Authorization"}
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		clerk:      clerk,
		config:     config,
	}
}

// RequireAuth rejects requests that carry no valid identity
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled || m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		token := m.extractToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if m.jwtService != nil {
			if userID, err := m.jwtService.ValidateToken(token); err == nil {
				auth.SetAuthContext(c, &auth.AuthContext{UserID: userID, Type: auth.AuthTypeJWT})
				return c.Next()
			}
		}

		if m.clerk != nil {
			if claims, err := m.clerk.ValidateToken(c.Context(), token); err == nil {
				auth.SetAuthContext(c, &auth.AuthContext{UserID: claims.Subject, Type: auth.AuthTypeClerk})
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}
}

// extractToken looks in the session cookie first, then the configured headers
func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	if m.jwtService != nil {
		if cookie := c.Cookies(m.jwtService.CookieName()); cookie != "" {
			return cookie
		}
	}

	for _, headerName := range m.config.HeaderNames {
		if header := c.Get(headerName); header != "" {
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				return after
			}
			return strings.TrimSpace(header)
		}
	}

	return ""
}

func (m *AuthMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
