package api

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/appforge-ai/appforge-backend/internal/services/billing"
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/appforge-ai/appforge-backend/internal/services/deploy"
	"github.com/appforge-ai/appforge-backend/internal/services/projects"
	"github.com/appforge-ai/appforge-backend/internal/services/users"
	"github.com/gofiber/fiber/v2"
)

func TestRespondError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient credits", credits.ErrInsufficientCredits, fiber.StatusPaymentRequired},
		{"wrapped insufficient credits", errors.Join(errors.New("settle"), credits.ErrInsufficientCredits), fiber.StatusPaymentRequired},
		{"account not found", credits.ErrAccountNotFound, fiber.StatusNotFound},
		{"store unavailable", credits.ErrStoreUnavailable, fiber.StatusServiceUnavailable},
		{"cache unavailable", credits.ErrCacheUnavailable, fiber.StatusServiceUnavailable},
		{"ledger write failed", credits.ErrLedgerWriteFailed, fiber.StatusBadGateway},
		{"ledger write over store outage", errors.Join(credits.ErrLedgerWriteFailed, credits.ErrStoreUnavailable), fiber.StatusBadGateway},
		{"project not found", projects.ErrProjectNotFound, fiber.StatusNotFound},
		{"not project owner", projects.ErrNotProjectOwner, fiber.StatusForbidden},
		{"node exists", projects.ErrNodeExists, fiber.StatusBadRequest},
		{"email taken", users.ErrEmailTaken, fiber.StatusConflict},
		{"invalid credentials", users.ErrInvalidCredentials, fiber.StatusUnauthorized},
		{"unknown plan", billing.ErrUnknownPlan, fiber.StatusBadRequest},
		{"deployment not found", deploy.ErrDeploymentNotFound, fiber.StatusNotFound},
		{"unrecognized error", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondError(c, tc.err)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}
