package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tadaa_concierge/internal/config"
	"tadaa_concierge/internal/logger"
)

func configPath() string {
	if path := os.Getenv("TADAA_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("No .env file loaded")
	}

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.InitLogger(cfg.Log); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApplication(ctx, *cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
	logger.Info().Msg("Shutdown complete")
}
