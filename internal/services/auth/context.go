package auth

import "github.com/gofiber/fiber/v2"

type AuthType string

const (
	AuthTypeJWT   AuthType = "jwt"
	AuthTypeClerk AuthType = "clerk"
)

// AuthContext identifies the authenticated user for the rest of the request
type AuthContext struct {
	UserID string
	Type   AuthType
}

const authContextKey = "auth_context"

func SetAuthContext(c *fiber.Ctx, authCtx *AuthContext) {
	c.Locals(authContextKey, authCtx)
}

func GetAuthContext(c *fiber.Ctx) *AuthContext {
	if authCtx, ok := c.Locals(authContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}
