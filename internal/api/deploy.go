package api

import (
	"github.com/appforge-ai/appforge-backend/internal/services/deploy"
	"github.com/gofiber/fiber/v2"
)

// DeployHandler publishes projects and serves their bundles
type DeployHandler struct {
	deploy *deploy.Service
}

func NewDeployHandler(deployService *deploy.Service) *DeployHandler {
	return &DeployHandler{deploy: deployService}
}

type publishRequest struct {
	ProjectID string `json:"project_id"`
	Code      string `json:"code"`
}

// Publish handles POST /api/v1/deploy
func (h *DeployHandler) Publish(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ProjectID == "" || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "project_id and code are required"})
	}

	result, err := h.deploy.Publish(c.Context(), userID, req.ProjectID, req.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Serve handles GET /deploys/:slug, returning the published page
func (h *DeployHandler) Serve(c *fiber.Ctx) error {
	page, err := h.deploy.Bundle(c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(page)
}
