package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"helpdesk/internal/analytics"
	"helpdesk/internal/config"
	"helpdesk/internal/database"
	"helpdesk/internal/embeddings"
	"helpdesk/internal/emails"
	"helpdesk/internal/grader"
	"helpdesk/internal/locks"
	"helpdesk/internal/models"
	"helpdesk/internal/openai"
	"helpdesk/internal/pipeline"
	"helpdesk/internal/responder"
	"helpdesk/internal/retrieval"
	"helpdesk/internal/summarizer"
)

func main() {
	orgID := flag.String("org", "", "Organization ID the imported mail belongs to")
	emlPath := flag.String("eml", "", "Path to EML file or directory containing EML files")
	mboxPath := flag.String("mbox", "", "Path to MBOX file")
	batchSize := flag.Int("batch", 50, "MBOX messages per batch")
	withDrafts := flag.Bool("drafts", false, "Generate reply drafts for imported mail")
	flag.Parse()

	if *orgID == "" || (*emlPath == "" && *mboxPath == "") {
		fmt.Println("Usage:")
		fmt.Println("  Import EML files:  import-emails -org ORG -eml /path/to/file.eml")
		fmt.Println("  Import directory:  import-emails -org ORG -eml /path/to/directory")
		fmt.Println("  Import MBOX:       import-emails -org ORG -mbox /path/to/file.mbox")
		fmt.Println("  Draft replies too: import-emails -org ORG -eml /path -drafts")
		os.Exit(1)
	}

	cfg := config.Load()
	logger := cfg.SetupLogger()

	writeClient, err := database.NewWriteClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create database client")
	}
	defer writeClient.Close()

	analyticsService, err := analytics.NewService(writeClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize analytics")
	}

	llmClient, err := openai.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenAI client")
	}
	llmClient.SetUsageRecorder(analyticsService)

	threads := database.NewThreadStore(writeClient)
	notes := database.NewNoteStore(writeClient)
	gateway := embeddings.NewGateway(llmClient)
	summaries := summarizer.New(llmClient, gateway, notes, locks.NewKeyedMutex(), logger)

	deps := pipeline.Deps{
		Resolver:   database.NewResolver(writeClient),
		Embedder:   gateway,
		Threads:    threads,
		Summaries:  summaries,
		Priorities: summaries,
		Tickets:    database.NewTicketStore(writeClient),
		Tracker:    analyticsService,
	}
	if *withDrafts {
		settings := database.NewSettingsStore(writeClient, time.Duration(cfg.SettingsCacheTTL)*time.Second)
		retriever := retrieval.NewRetriever(notes, gateway, retrieval.Options{
			Threshold: cfg.ContextSimilarityThreshold,
			Limit:     cfg.ContextResultLimit,
		}, logger)
		grade := grader.New(llmClient, threads, settings, retriever, logger)
		deps.Drafts = responder.New(llmClient, grade, settings, retriever, database.NewDraftStore(writeClient), logger)
	}
	processor := pipeline.New(deps, cfg.TaskTimeout(), logger)

	parser := emails.NewParser(logger)
	imported, failed := 0, 0
	ingest := func(batch []*models.InboundEmail) {
		for _, in := range batch {
			// Each message is resolved before the next one so replies find their thread
			if _, err := processor.Process(context.Background(), *orgID, in); err != nil {
				logger.Warn().Err(err).Str("message_id", in.MessageID).Msg("Failed to import email")
				failed++
				continue
			}
			imported++
		}
	}

	start := time.Now()
	switch {
	case *emlPath != "":
		info, err := os.Stat(*emlPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to access path")
		}
		if info.IsDir() {
			parsed, err := parser.ParseDirectory(*emlPath)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to parse emails")
			}
			ingest(parsed)
		} else if strings.HasSuffix(strings.ToLower(*emlPath), ".eml") {
			in, err := parser.ParseEMLFile(*emlPath)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to parse EML file")
			}
			ingest([]*models.InboundEmail{in})
		} else {
			logger.Fatal().Str("path", *emlPath).Msg("Invalid file type. Expected .eml file or directory")
		}
	case *mboxPath != "":
		err := parser.ParseMBOXFileStreaming(*mboxPath, *batchSize, func(batch []*models.InboundEmail, progress emails.MBOXProgress) error {
			ingest(batch)
			logger.Info().
				Int("emails_processed", progress.EmailsProcessed).
				Float64("percent", progress.PercentComplete).
				Msg("MBOX import progress")
			return nil
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse MBOX file")
		}
	}

	logger.Info().Msg("Waiting for background summaries to finish")
	processor.Wait()

	logger.Info().
		Int("imported", imported).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Email import complete")
}
