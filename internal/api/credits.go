package api

import (
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/gofiber/fiber/v2"
)

// CreditsHandler exposes the credit balance and ledger history
type CreditsHandler struct {
	coordinator *credits.Coordinator
	ledger      *credits.LedgerStore
}

func NewCreditsHandler(coordinator *credits.Coordinator, ledger *credits.LedgerStore) *CreditsHandler {
	return &CreditsHandler{coordinator: coordinator, ledger: ledger}
}

// GetBalance handles GET /api/v1/credits/balance
func (h *CreditsHandler) GetBalance(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	balance, err := h.coordinator.GetBalance(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"credits":   balance,
		"unlimited": credits.Unlimited(balance),
	})
}

// History handles GET /api/v1/credits/transactions
func (h *CreditsHandler) History(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	history, err := h.ledger.TransactionHistory(c.Context(), userID, limit, offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"transactions": history})
}
