package main

import (
	"flag"
	"log"

	"github.com/appforge-ai/appforge-backend/internal/config"
	"github.com/appforge-ai/appforge-backend/pkg/app"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load environment files explicitly
	config.LoadEnvFiles([]string{".env.local", ".env.development", ".env"})

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	server := app.NewServer(cfg)

	log.Println("Starting AppForge backend...")
	if err := server.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
