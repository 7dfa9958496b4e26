package main

import (
	"context"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/database"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	writeClient, err := database.NewWriteClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer writeClient.Close()

	logger.Info().Msg("Creating helpdesk tables...")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := database.CreateTables(ctx, writeClient); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create tables")
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("Successfully created helpdesk tables")
}
