package api

import (
	"context"
	"time"

	"github.com/appforge-ai/appforge-backend/internal/services/database"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	redisClient *redis.Client
	db          *database.DB
	provider    string
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(redisClient *redis.Client, db *database.DB, provider string) *HealthHandler {
	return &HealthHandler{redisClient: redisClient, db: db, provider: provider}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	redisStatus := h.checkRedis()
	databaseStatus := h.checkDatabase()

	overallStatus := "healthy"
	statusCode := fiber.StatusOK

	if redisStatus != "healthy" || databaseStatus != "healthy" {
		overallStatus = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	// No live probe against the generation backend; a health check should
	// not spend tokens
	providerStatus := "unknown"
	if h.provider != "" {
		providerStatus = "configured"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"redis":    redisStatus,
			"database": databaseStatus,
			"provider": providerStatus,
		},
	})
}

// checkRedis verifies Redis connectivity
func (h *HealthHandler) checkRedis() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// checkDatabase verifies database connectivity
func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return "unknown"
	}
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
