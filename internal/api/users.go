package api

import (
	"time"

	"github.com/appforge-ai/appforge-backend/internal/services/auth"
	"github.com/appforge-ai/appforge-backend/internal/services/users"
	"github.com/gofiber/fiber/v2"
)

// UserHandler serves account signup, login and profile endpoints. Sessions
// are carried in an HTTP-only cookie.
type UserHandler struct {
	users        *users.Service
	jwt          *auth.JWTService
	secureCookie bool
}

func NewUserHandler(users *users.Service, jwt *auth.JWTService, secureCookie bool) *UserHandler {
	return &UserHandler{users: users, jwt: jwt, secureCookie: secureCookie}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.users.Register(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.setSessionCookie(c, user.ID); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.users.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.setSessionCookie(c, user.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

// Logout handles POST /api/v1/auth/logout by expiring the session cookie
func (h *UserHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     h.jwt.CookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Profile handles GET /api/v1/auth/me
func (h *UserHandler) Profile(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.users.Get(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *UserHandler) setSessionCookie(c *fiber.Ctx, userID string) error {
	token, expiresAt, err := h.jwt.IssueToken(userID)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.jwt.CookieName(),
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	return nil
}
