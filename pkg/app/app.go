package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/appforge-ai/appforge-backend/internal/api"
	"github.com/appforge-ai/appforge-backend/internal/config"
	"github.com/appforge-ai/appforge-backend/internal/services/auth"
	"github.com/appforge-ai/appforge-backend/internal/services/billing"
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/appforge-ai/appforge-backend/internal/services/database"
	"github.com/appforge-ai/appforge-backend/internal/services/deploy"
	"github.com/appforge-ai/appforge-backend/internal/services/generation"
	"github.com/appforge-ai/appforge-backend/internal/services/middleware"
	"github.com/appforge-ai/appforge-backend/internal/services/projects"
	"github.com/appforge-ai/appforge-backend/internal/services/users"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Server is a configured application instance
type Server struct {
	config *config.Config
	app    *fiber.App
	redis  *redis.Client
	db     *database.DB
}

type appServices struct {
	ledger      *credits.LedgerStore
	coordinator *credits.Coordinator
	users       *users.Service
	projects    *projects.Service
	generation  *generation.Service
	billing     *billing.Service
	deploy      *deploy.Service
	jwt         *auth.JWTService
	clerk       *auth.ClerkAuthProvider
}

// NewServer creates a Server from a loaded configuration. The cfg parameter
// is required and must not be nil.
func NewServer(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}
	return &Server{config: cfg}
}

// Run starts the server and blocks until shutdown
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	s.app = createFiberApp(s.config)

	// === Infrastructure Setup ===
	redisClient, err := createRedisClient(s.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	s.redis = redisClient
	defer func() {
		if err := s.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
	}()

	db, err := database.New(*s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	s.db = db
	defer func() {
		if err := s.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()
	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	// === Services Initialization ===
	services, err := initializeServices(context.Background(), s.config, s.db, s.redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.generation.Close(); err != nil {
			fiberlog.Errorf("Failed to close generation service: %v", err)
		}
	}()

	if err := runDatabaseMigrations(services); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	fiberlog.Info("Database migrations completed successfully")

	// === Middleware Setup ===
	setupMiddleware(s.app, s.config)

	// === Routes Setup ===
	setupRoutes(s.app, s.config, s.redis, s.db, services)

	s.app.Get("/", welcomeHandler())

	fmt.Printf("AppForge backend starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Provider: %s\n", services.generation.Provider())
	fmt.Printf("   Go version: %s\n", runtime.Version())

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "AppForge Backend v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       3 * time.Minute,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		BodyLimit:         4 * 1024 * 1024,
		CaseSensitive:     true,
		ServerHeader:      "AppForge",
	})
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		if logLevel != "" {
			fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
		}
	}
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:               300,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		},
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	redisURL := ""
	if cfg.CreditCache != nil {
		redisURL = cfg.CreditCache.RedisURL
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
		fiberlog.Warnf("credit_cache.redis_url not configured, defaulting to %s", redisURL)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	return testRedisConnectionWithRetry(client)
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * baseDelay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func initializeServices(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client) (*appServices, error) {
	ledger := credits.NewLedgerStore(db.DB)
	balanceCache := credits.NewBalanceCache(redisClient, cfg.CreditCache)
	coordinator := credits.NewCoordinator(ledger, balanceCache)

	userSvc := users.NewService(db.DB, ledger)
	projectSvc := projects.NewService(db.DB)

	generationSvc, err := generation.NewService(ctx, cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation service: %w", err)
	}

	var billingSvc *billing.Service
	if cfg.Billing != nil && cfg.Billing.SecretKey != "" {
		billingSvc = billing.NewService(cfg.Billing, db.DB, ledger, coordinator, cfg.Server.ClientURL)
	}

	outputDir := ""
	if cfg.Deploy != nil {
		outputDir = cfg.Deploy.OutputDir
	}
	deploySvc := deploy.NewService(projectSvc, outputDir, cfg.Server.BaseURL)

	var jwtSvc *auth.JWTService
	if cfg.Auth.JWTConfig != nil {
		jwtSvc = auth.NewJWTService(cfg.Auth.JWTConfig)
	}

	var clerkProvider *auth.ClerkAuthProvider
	if cfg.Auth.ClerkConfig != nil && cfg.Auth.ClerkConfig.SecretKey != "" {
		clerkProvider = auth.NewClerkAuthProvider(cfg.Auth.ClerkConfig.SecretKey)
	}

	return &appServices{
		ledger:      ledger,
		coordinator: coordinator,
		users:       userSvc,
		projects:    projectSvc,
		generation:  generationSvc,
		billing:     billingSvc,
		deploy:      deploySvc,
		jwt:         jwtSvc,
		clerk:       clerkProvider,
	}, nil
}

func runDatabaseMigrations(services *appServices) error {
	if err := services.ledger.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate credit tables: %w", err)
	}
	if err := services.users.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate user tables: %w", err)
	}
	if err := services.projects.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate project tables: %w", err)
	}
	return nil
}

func setupRoutes(app *fiber.App, cfg *config.Config, redisClient *redis.Client, db *database.DB, services *appServices) {
	healthHandler := api.NewHealthHandler(redisClient, db, string(services.generation.Provider()))
	app.Get("/health", healthHandler.HealthCheck)

	// Published bundles are public by design
	deployHandler := api.NewDeployHandler(services.deploy)
	app.Get("/deploys/:slug", deployHandler.Serve)

	if services.billing != nil {
		billingHandler := api.NewBillingHandler(services.billing, services.users)
		app.Post("/webhooks/stripe", billingHandler.StripeWebhook)
	}
	if cfg.Auth.ClerkConfig != nil && cfg.Auth.ClerkConfig.WebhookSecret != "" {
		clerkWebhookHandler := api.NewClerkWebhookHandler(cfg.Auth.ClerkConfig.WebhookSecret, services.users)
		app.Post("/webhooks/clerk", clerkWebhookHandler.HandleWebhook)
	}

	authMiddleware := middleware.NewAuthMiddleware(services.jwt, services.clerk, &middleware.AuthMiddlewareConfig{
		Enabled:     true,
		HeaderNames: []string{"Authorization"},
		SkipPaths: []string{
			"/health",
			"/webhooks",
			"/deploys",
			"/api/v1/auth/register",
			"/api/v1/auth/login",
			"/api/v1/billing/plans",
		},
	})

	apiGroup := app.Group("/api/v1", authMiddleware.RequireAuth())

	userHandler := api.NewUserHandler(services.users, services.jwt, cfg.IsProduction())
	authGroup := apiGroup.Group("/auth")
	if services.jwt != nil {
		// Cookie sessions only exist with the built-in JWT flow; under
		// Clerk the frontend holds the session
		authGroup.Post("/register", userHandler.Register)
		authGroup.Post("/login", userHandler.Login)
		authGroup.Post("/logout", userHandler.Logout)
	}
	authGroup.Get("/me", userHandler.Profile)

	creditsHandler := api.NewCreditsHandler(services.coordinator, services.ledger)
	apiGroup.Get("/credits/balance", creditsHandler.GetBalance)
	apiGroup.Get("/credits/transactions", creditsHandler.History)

	projectHandler := api.NewProjectHandler(services.projects, services.generation, services.coordinator)
	apiGroup.Post("/generate", projectHandler.Generate)
	projectsGroup := apiGroup.Group("/projects")
	projectsGroup.Get("/", projectHandler.List)
	projectsGroup.Get("/:id", projectHandler.Get)
	projectsGroup.Delete("/:id", projectHandler.Delete)
	projectsGroup.Put("/:id/files", projectHandler.SaveFile)
	projectsGroup.Post("/:id/files", projectHandler.CreateNode)
	projectsGroup.Delete("/:id/files", projectHandler.DeleteNode)

	apiGroup.Post("/deploy", deployHandler.Publish)

	if services.billing != nil {
		billingHandler := api.NewBillingHandler(services.billing, services.users)
		billingGroup := apiGroup.Group("/billing")
		billingGroup.Get("/plans", billingHandler.Plans)
		billingGroup.Get("/subscription", billingHandler.Subscription)
		billingGroup.Post("/checkout", billingHandler.CreateCheckoutSession)
		billingGroup.Post("/verify", billingHandler.VerifySession)
		billingGroup.Post("/cancel", billingHandler.CancelSubscription)
	}
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Welcome to AppForge!",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"generate": "/api/generate",
				"projects": "/api/projects",
				"credits":  "/api/credits",
				"billing":  "/api/billing/plans",
				"health":   "/health",
			},
		})
	}
}
