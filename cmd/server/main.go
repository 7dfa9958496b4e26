package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"helpdesk/internal/analytics"
	"helpdesk/internal/approval"
	"helpdesk/internal/auth"
	"helpdesk/internal/config"
	"helpdesk/internal/database"
	"helpdesk/internal/email"
	"helpdesk/internal/embeddings"
	"helpdesk/internal/grader"
	"helpdesk/internal/locks"
	"helpdesk/internal/openai"
	"helpdesk/internal/pipeline"
	"helpdesk/internal/responder"
	"helpdesk/internal/retrieval"
	"helpdesk/internal/server"
	"helpdesk/internal/summarizer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Msg("Database connection established successfully")
	writeClient := database.NewWriteClientFromDB(db)

	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.CreateTables(ctx, writeClient)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create tables")
		}
		logger.Info().Msg("Database schema is up to date")
	}

	analyticsService, err := analytics.NewService(writeClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize analytics")
	}

	llmClient, err := openai.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenAI client")
	}
	llmClient.SetUsageRecorder(analyticsService)
	logger.Info().
		Str("provider", llmClient.GetProviderName()).
		Bool("azure", llmClient.IsUsingAzure()).
		Str("gpt_model", llmClient.GetGPTModel()).
		Str("embedding_model", llmClient.GetEmbeddingModel()).
		Msg("OpenAI client ready")

	threads := database.NewThreadStore(writeClient)
	tickets := database.NewTicketStore(writeClient)
	drafts := database.NewDraftStore(writeClient)
	notes := database.NewNoteStore(writeClient)
	settings := database.NewSettingsStore(writeClient, time.Duration(cfg.SettingsCacheTTL)*time.Second)

	gateway := embeddings.NewGateway(llmClient)
	retriever := retrieval.NewRetriever(notes, gateway, retrieval.Options{
		Threshold: cfg.ContextSimilarityThreshold,
		Limit:     cfg.ContextResultLimit,
	}, logger)

	locker := newLocker(cfg, logger)
	grade := grader.New(llmClient, threads, settings, retriever, logger)
	drafter := responder.New(llmClient, grade, settings, retriever, drafts, logger)
	summaries := summarizer.New(llmClient, gateway, notes, locker, logger)

	mailer := email.NewMailer(cfg.SendGridAPIKey, cfg.SupportEmail, cfg.SupportName)
	workflow := approval.NewWorkflow(drafts, analyticsService, logger)
	dispatcher := approval.NewDispatcher(workflow, threads, mailer, summaries, analyticsService, logger)

	processor := pipeline.New(pipeline.Deps{
		Resolver:   database.NewResolver(writeClient),
		Embedder:   gateway,
		Threads:    threads,
		Drafts:     drafter,
		Summaries:  summaries,
		Priorities: summaries,
		Tickets:    tickets,
		Tracker:    analyticsService,
	}, cfg.TaskTimeout(), logger)

	agents := cfg.Agents()
	if len(agents) == 0 {
		logger.Warn().Msg("No agent accounts configured; draft review endpoints will reject every login")
	}

	srv := server.New(cfg, db, server.Services{
		Processor: processor,
		Drafts:    drafts,
		Sender:    dispatcher,
		Rejecter:  workflow,
		Grader:    grade,
		Tickets:   tickets,
		Summaries: notes,
		Context:   retriever,
		Analytics: analyticsService,
		Auth:      auth.NewManager(agents),
	}, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	// Background drafting and summary refreshes finish before the pool closes
	processor.Wait()
	dispatcher.Wait()

	if err := writeClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database connection")
	}
	logger.Info().Str("llm_breaker", llmClient.BreakerState()).Msg("Server stopped")
}

// newLocker picks the Redis lock when REDIS_URL is set so that replicas
// share per-ticket summary locks; otherwise the lock is per process.
func newLocker(cfg *config.Config, logger zerolog.Logger) locks.Locker {
	if cfg.RedisURL == "" {
		return locks.NewKeyedMutex()
	}
	client, err := locks.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-process summary lock")
		return locks.NewKeyedMutex()
	}
	logger.Info().Msg("Using Redis summary lock")
	return locks.NewRedisLocker(client, cfg.TaskTimeout(), 0)
}
