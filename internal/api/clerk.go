package api

import (
	"encoding/json"
	"fmt"

	"github.com/appforge-ai/appforge-backend/internal/services/users"
	"github.com/gofiber/fiber/v2"
	svix "github.com/svix/svix-webhooks/go"
)

// ClerkWebhookHandler provisions accounts for identities managed by Clerk
type ClerkWebhookHandler struct {
	webhookSecret string
	users         *users.Service
}

func NewClerkWebhookHandler(webhookSecret string, userService *users.Service) *ClerkWebhookHandler {
	return &ClerkWebhookHandler{
		webhookSecret: webhookSecret,
		users:         userService,
	}
}

type ClerkWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ClerkUserData struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// HandleWebhook handles POST /webhooks/clerk. Deliveries are signed with
// svix; unsigned payloads are rejected before any parsing.
func (h *ClerkWebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	headers := make(map[string][]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = []string{string(value)}
	})

	wh, err := svix.NewWebhook(h.webhookSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to initialize webhook verifier",
		})
	}

	if err := wh.Verify(payload, headers); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var event ClerkWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON payload",
		})
	}

	switch event.Type {
	case "user.created":
		if err := h.handleUserCreated(c, event.Data); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("Failed to process user.created event: %v", err),
			})
		}
	}

	return c.JSON(fiber.Map{"received": true})
}

func (h *ClerkWebhookHandler) handleUserCreated(c *fiber.Ctx, data json.RawMessage) error {
	var userData ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if userData.ID == "" {
		return fmt.Errorf("user.created event has no user id")
	}

	email := ""
	if len(userData.EmailAddresses) > 0 {
		email = userData.EmailAddresses[0].EmailAddress
	}

	name := userData.FirstName
	if userData.LastName != "" {
		if name != "" {
			name += " "
		}
		name += userData.LastName
	}
	if name == "" {
		name = email
	}

	if _, err := h.users.EnsureProvisioned(c.Context(), userData.ID, email, name); err != nil {
		return fmt.Errorf("failed to provision user: %w", err)
	}
	return nil
}
