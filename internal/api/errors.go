package api

import (
	"errors"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/auth"
	"github.com/appforge-ai/appforge-backend/internal/services/billing"
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/appforge-ai/appforge-backend/internal/services/deploy"
	"github.com/appforge-ai/appforge-backend/internal/services/projects"
	"github.com/appforge-ai/appforge-backend/internal/services/users"
	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors onto HTTP responses. Unrecognized errors
// are logged and sanitized to a 500.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		sanitized := models.SanitizeError(appErr)
		return c.Status(sanitized.GetStatusCode()).JSON(fiber.Map{"error": sanitized})
	}

	switch {
	case errors.Is(err, credits.ErrInsufficientCredits):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error": "No credits left. Please purchase credits.",
			"code":  "INSUFFICIENT_CREDITS",
		})
	case errors.Is(err, credits.ErrAccountNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Credit account not found"})
	case errors.Is(err, credits.ErrLedgerWriteFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to record credit usage"})
	case errors.Is(err, credits.ErrStoreUnavailable), errors.Is(err, credits.ErrCacheUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Credit service temporarily unavailable"})

	case errors.Is(err, projects.ErrProjectNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
	case errors.Is(err, projects.ErrNotProjectOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Unauthorized"})
	case errors.Is(err, projects.ErrNodeExists):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File or folder already exists"})
	case errors.Is(err, projects.ErrFileNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "File not found"})

	case errors.Is(err, users.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already registered"})
	case errors.Is(err, users.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	case errors.Is(err, users.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})

	case errors.Is(err, billing.ErrUnknownPlan):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown subscription plan"})
	case errors.Is(err, billing.ErrNoSubscription):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No active subscription"})

	case errors.Is(err, deploy.ErrDeploymentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Deployment not found"})
	}

	fiberlog.Errorf("unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}

// currentUserID returns the authenticated user, or ok=false when the
// middleware left no identity on the request
func currentUserID(c *fiber.Ctx) (string, bool) {
	authCtx := auth.GetAuthContext(c)
	if authCtx == nil || authCtx.UserID == "" {
		return "", false
	}
	return authCtx.UserID, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
}
