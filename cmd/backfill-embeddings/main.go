package main

import (
	"context"
	"flag"
	"os"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/database"
	"helpdesk/internal/embeddings"
	"helpdesk/internal/openai"
)

func main() {
	batchSize := flag.Int("batch", 50, "Notes embedded per provider call")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger()

	logger.Info().Msg("Starting note embedding backfill")

	writeClient, err := database.NewWriteClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database with write access")
	}
	defer writeClient.Close()

	llmClient, err := openai.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenAI client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = llmClient.TestConnection(ctx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("provider", llmClient.GetProviderName()).Msg("Embedding provider is unreachable")
	}

	start := time.Now()
	backfiller := embeddings.NewBackfiller(database.NewNoteStore(writeClient), llmClient, *batchSize, logger)
	updated, err := backfiller.Run(context.Background())
	if err != nil {
		logger.Error().Err(err).Int("updated", updated).Msg("Backfill stopped early")
		writeClient.Close()
		os.Exit(1)
	}

	logger.Info().Int("updated", updated).Dur("duration", time.Since(start)).Msg("Successfully backfilled note embeddings")
}
