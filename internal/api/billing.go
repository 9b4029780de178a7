package api

import (
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/billing"
	"github.com/appforge-ai/appforge-backend/internal/services/users"
	"github.com/gofiber/fiber/v2"
)

// BillingHandler serves plan listings, checkout and the Stripe webhook
type BillingHandler struct {
	billing *billing.Service
	users   *users.Service
}

func NewBillingHandler(billingService *billing.Service, userService *users.Service) *BillingHandler {
	return &BillingHandler{billing: billingService, users: userService}
}

// Plans handles GET /api/v1/billing/plans
func (h *BillingHandler) Plans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": billing.Plans()})
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckoutSession handles POST /api/v1/billing/checkout
func (h *BillingHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.users.Get(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	sess, err := h.billing.CreateCheckoutSession(c.Context(), user, models.SubscriptionPlanID(req.Plan))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"checkout_url": sess.URL, "session_id": sess.ID})
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

// VerifySession handles POST /api/v1/billing/verify, letting the client confirm
// a checkout before the webhook lands
func (h *BillingHandler) VerifySession(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}

	user, err := h.users.Get(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	activated, err := h.billing.VerifyCheckoutSession(c.Context(), user, req.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"activated": activated})
}

// Subscription handles GET /api/v1/billing/subscription
func (h *BillingHandler) Subscription(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.users.Get(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"plan":                 user.Plan,
		"is_premium":           user.IsPremium,
		"cancel_at_period_end": user.CancelAtPeriodEnd,
		"current_period_start": user.CurrentPeriodStart,
		"current_period_end":   user.CurrentPeriodEnd,
	})
}

// CancelSubscription handles POST /api/v1/billing/cancel
func (h *BillingHandler) CancelSubscription(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.users.Get(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.billing.CancelSubscription(c.Context(), user); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Subscription will end at the current period boundary"})
}

// StripeWebhook handles POST /webhooks/stripe. Stripe retries on any non-2xx,
// so processing errors surface as 400s to trigger redelivery.
func (h *BillingHandler) StripeWebhook(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing Stripe-Signature header"})
	}

	if err := h.billing.HandleWebhook(c.Context(), c.Body(), signature); err != nil {
		fiberlog.Errorf("stripe webhook processing failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Webhook processing failed"})
	}

	return c.JSON(fiber.Map{"received": true})
}
