// Package responder drafts replies to customer email threads.
package responder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"helpdesk/internal/grader"
	"helpdesk/internal/llm"
	"helpdesk/internal/models"
	"helpdesk/internal/prompts"
	"helpdesk/internal/retrieval"
)

const (
	// Temperature allows some natural variation while staying mostly deterministic
	Temperature = 0.5
	maxTokens   = 1000
)

var (
	// ErrThreadEmpty is returned when the thread is missing or has no messages
	ErrThreadEmpty = models.ErrThreadEmpty
	// ErrEmptyDraft is returned when the model produced no text
	ErrEmptyDraft = errors.New("model returned an empty draft")
)

// SettingsSource loads organization auto-response settings
type SettingsSource interface {
	GetAutoResponseSettings(ctx context.Context, organizationID string) (models.AutoResponseSettings, error)
}

// ContextSource retrieves notes for a thread
type ContextSource interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// ResponseGrader grades a generated draft
type ResponseGrader interface {
	GradeResponse(ctx context.Context, in grader.Input) (*models.Grade, error)
}

// DraftStore persists drafts
type DraftStore interface {
	CreateDraft(ctx context.Context, draft *models.ResponseDraft) (*models.ResponseDraft, error)
}

// Input is one drafting request. Context and Settings are optional and
// loaded when nil.
type Input struct {
	OrganizationID string
	TicketID       string
	Thread         *models.EmailThread
	Context        *retrieval.Result
	Settings       *models.AutoResponseSettings
}

// Responder generates, grades and stores reply drafts
type Responder struct {
	completer llm.Completer
	grader    ResponseGrader
	settings  SettingsSource
	retriever ContextSource
	drafts    DraftStore
	logger    zerolog.Logger
}

// New creates a responder
func New(completer llm.Completer, grader ResponseGrader, settings SettingsSource, retriever ContextSource, drafts DraftStore, logger zerolog.Logger) *Responder {
	return &Responder{
		completer: completer,
		grader:    grader,
		settings:  settings,
		retriever: retriever,
		drafts:    drafts,
		logger:    logger.With().Str("component", "responder").Logger(),
	}
}

// GenerateDraft drafts a reply to the latest message of the thread and stores
// it as a pending draft. It returns nil, nil when auto-response is disabled
// for the organization.
func (r *Responder) GenerateDraft(ctx context.Context, in Input) (*models.ResponseDraft, error) {
	thread := in.Thread
	if thread == nil || len(thread.Messages) == 0 {
		return nil, ErrThreadEmpty
	}

	orgID := in.OrganizationID
	if orgID == "" {
		orgID = thread.OrganizationID
	}
	ticketID := in.TicketID
	if ticketID == "" {
		ticketID = thread.TicketID
	}

	var settings models.AutoResponseSettings
	if in.Settings != nil {
		settings = *in.Settings
	} else {
		loaded, err := r.settings.GetAutoResponseSettings(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings for organization %s: %w", orgID, err)
		}
		settings = loaded
	}

	if !settings.Enabled {
		r.logger.Debug().
			Str("organization_id", orgID).
			Str("thread_id", thread.ID).
			Msg("Auto-response disabled, skipping draft")
		return nil, nil
	}

	notes := in.Context
	if notes == nil {
		result, err := r.retriever.Retrieve(ctx, retrieval.Query{
			OrganizationID: orgID,
			TicketID:       ticketID,
			Thread:         thread,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve context: %w", err)
		}
		notes = result
	}

	prompt := prompts.Draft(settings, notes.Notes, thread)
	raw, err := r.completer.Complete(ctx, llm.CompletionRequest{
		Operation:   llm.OperationDraft,
		System:      prompt.System,
		Prompt:      prompt.User,
		Temperature: Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate draft: %w", err)
	}
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, ErrEmptyDraft
	}

	grade, err := r.grader.GradeResponse(ctx, grader.Input{
		OrganizationID: orgID,
		ThreadID:       thread.ID,
		Thread:         thread,
		Response:       content,
		Context:        notes,
		Settings:       &settings,
	})
	if err != nil {
		return nil, err
	}

	draft, err := r.drafts.CreateDraft(ctx, &models.ResponseDraft{
		OrganizationID: orgID,
		ThreadID:       thread.ID,
		TicketID:       ticketID,
		Content:        content,
		Grade:          *grade,
		Status:         models.DraftStatusPending,
		Metadata: models.DraftMetadata{
			HasNotes:      notes.HasNotes(),
			NoteCount:     len(notes.Notes),
			MessageCount:  len(thread.Messages),
			Placeholders:  Placeholders(content),
			RetrievalMode: notes.Mode,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store draft: %w", err)
	}

	r.logger.Info().
		Str("draft_id", draft.ID).
		Str("ticket_id", ticketID).
		Int("quality_score", grade.QualityScore).
		Int("accuracy_score", grade.AccuracyScore).
		Int("placeholders", len(draft.Metadata.Placeholders)).
		Msg("Draft generated")

	return draft, nil
}

var bracketPattern = regexp.MustCompile(`\[([^\[\]\n]+)\]`)

// Placeholders returns the distinct square-bracket tokens in text, in order
// of first appearance. Markdown links such as [docs](https://...) are skipped.
func Placeholders(text string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, loc := range bracketPattern.FindAllStringSubmatchIndex(text, -1) {
		end := loc[1]
		if end < len(text) && text[end] == '(' {
			continue
		}
		token := strings.TrimSpace(text[loc[2]:loc[3]])
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		found = append(found, token)
	}
	return found
}
