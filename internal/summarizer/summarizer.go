// Package summarizer classifies ticket priority and maintains the managed
// summary note of each ticket.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"helpdesk/internal/embeddings"
	"helpdesk/internal/llm"
	"helpdesk/internal/locks"
	"helpdesk/internal/models"
	"helpdesk/internal/prompts"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 800
	priorityMaxTokens  = 5
)

// ErrEmptySummary is returned when the model produced no summary text
var ErrEmptySummary = errors.New("model returned an empty summary")

// TextEmbedder embeds one text per call
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NoteWriter stores the managed summary note
type NoteWriter interface {
	UpsertManagedNote(ctx context.Context, note *models.Note, embedding string) (*models.Note, error)
	UpdateNote(ctx context.Context, id, content string, metadata models.NoteMetadata, embedding string) (*models.Note, error)
}

// SummaryInput identifies the ticket to summarize. ExistingNote, when set,
// is updated in place instead of upserting by ticket.
type SummaryInput struct {
	OrganizationID string
	TicketID       string
	Thread         *models.EmailThread
	ExistingNote   *models.Note
}

// Summarizer runs the priority and summary model calls
type Summarizer struct {
	completer llm.Completer
	embedder  TextEmbedder
	notes     NoteWriter
	locker    locks.Locker
	logger    zerolog.Logger
}

// New creates a summarizer. A nil locker falls back to an in-process keyed mutex.
func New(completer llm.Completer, embedder TextEmbedder, notes NoteWriter, locker locks.Locker, logger zerolog.Logger) *Summarizer {
	if locker == nil {
		locker = locks.NewKeyedMutex()
	}
	return &Summarizer{
		completer: completer,
		embedder:  embedder,
		notes:     notes,
		locker:    locker,
		logger:    logger.With().Str("component", "summarizer").Logger(),
	}
}

// ClassifyPriority maps one message onto a priority. Output outside the
// priority enum degrades to normal with a warning.
func (s *Summarizer) ClassifyPriority(ctx context.Context, content string) (models.Priority, error) {
	if strings.TrimSpace(content) == "" {
		s.logger.Warn().Msg("Empty content for priority classification, using normal")
		return models.PriorityNormal, nil
	}

	prompt := prompts.Priority(content)
	raw, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Operation:   llm.OperationPriority,
		System:      prompt.System,
		Prompt:      prompt.User,
		Temperature: 0,
		MaxTokens:   priorityMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to classify priority: %w", err)
	}

	priority, ok := models.ParsePriority(raw)
	if !ok {
		s.logger.Warn().Str("output", raw).Msg("Unrecognized priority from model, using normal")
	}
	return priority, nil
}

// UpdateTicketSummary regenerates the ticket's summary note from the whole
// thread. It is a no-op for an empty thread and is serialized per ticket.
func (s *Summarizer) UpdateTicketSummary(ctx context.Context, in SummaryInput) (*models.Note, error) {
	if in.Thread == nil || len(in.Thread.Messages) == 0 {
		return nil, nil
	}

	ticketID := in.TicketID
	if ticketID == "" {
		ticketID = in.Thread.TicketID
	}
	orgID := in.OrganizationID
	if orgID == "" {
		orgID = in.Thread.OrganizationID
	}

	unlock, err := s.locker.Lock(ctx, "summary:"+ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock summary of ticket %s: %w", ticketID, err)
	}
	defer unlock()

	prompt := prompts.Summary(in.Thread)
	raw, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Operation:   llm.OperationSummary,
		System:      prompt.System,
		Prompt:      prompt.User,
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ticket %s: %w", ticketID, err)
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return nil, ErrEmptySummary
	}

	vector, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("failed to embed summary: %w", err)
	}
	embedding := embeddings.Serialize(vector)

	metadata := models.NoteMetadata{
		"type":          models.NoteTypeTicketSummary,
		"thread_id":     in.Thread.ID,
		"message_count": len(in.Thread.Messages),
	}

	var note *models.Note
	if in.ExistingNote != nil {
		note, err = s.notes.UpdateNote(ctx, in.ExistingNote.ID, summary, metadata, embedding)
	} else {
		note, err = s.notes.UpsertManagedNote(ctx, &models.Note{
			OrganizationID: orgID,
			EntityType:     models.EntityTicket,
			EntityID:       ticketID,
			Content:        summary,
			Managed:        true,
			Metadata:       metadata,
		}, embedding)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store summary of ticket %s: %w", ticketID, err)
	}

	s.logger.Info().
		Str("ticket_id", ticketID).
		Str("note_id", note.ID).
		Int("message_count", len(in.Thread.Messages)).
		Msg("Ticket summary updated")

	return note, nil
}
