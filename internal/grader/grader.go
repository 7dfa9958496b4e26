// Package grader scores candidate replies for quality and accuracy.
package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"helpdesk/internal/llm"
	"helpdesk/internal/models"
	"helpdesk/internal/prompts"
	"helpdesk/internal/retrieval"
)

const (
	// Temperature is kept below drafting so scores are reproducible
	Temperature = 0.2
	maxTokens   = 500

	MinScore = 1
	MaxScore = 5
)

var (
	// ErrInvalidGrade is returned when model output does not match the grade schema
	ErrInvalidGrade = errors.New("invalid grade")
	// ErrEmptyResponse is returned when there is no candidate text to grade
	ErrEmptyResponse = errors.New("response is empty")
)

// ThreadSource loads a thread with its messages
type ThreadSource interface {
	GetThread(ctx context.Context, id string) (*models.EmailThread, error)
}

// SettingsSource loads organization auto-response settings
type SettingsSource interface {
	GetAutoResponseSettings(ctx context.Context, organizationID string) (models.AutoResponseSettings, error)
}

// ContextSource retrieves notes for a thread
type ContextSource interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// Input identifies the reply to grade. Thread, Context and Settings are
// optional and loaded when nil.
type Input struct {
	OrganizationID string
	ThreadID       string
	Thread         *models.EmailThread
	Response       string
	Context        *retrieval.Result
	Settings       *models.AutoResponseSettings
}

// Grader renders the grading prompt and validates the model's JSON
type Grader struct {
	completer llm.Completer
	threads   ThreadSource
	settings  SettingsSource
	retriever ContextSource
	logger    zerolog.Logger
}

// New creates a grader
func New(completer llm.Completer, threads ThreadSource, settings SettingsSource, retriever ContextSource, logger zerolog.Logger) *Grader {
	return &Grader{
		completer: completer,
		threads:   threads,
		settings:  settings,
		retriever: retriever,
		logger:    logger.With().Str("component", "grader").Logger(),
	}
}

// GradeResponse asks the model to grade a reply against the thread and notes
func (g *Grader) GradeResponse(ctx context.Context, in Input) (*models.Grade, error) {
	if strings.TrimSpace(in.Response) == "" {
		return nil, fmt.Errorf("failed to grade response: %w", ErrEmptyResponse)
	}

	thread := in.Thread
	if thread == nil {
		if in.ThreadID == "" || g.threads == nil {
			return nil, fmt.Errorf("failed to grade response: %w", models.ErrThreadEmpty)
		}
		loaded, err := g.threads.GetThread(ctx, in.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("failed to load thread %s: %w", in.ThreadID, err)
		}
		thread = loaded
	}
	if len(thread.Messages) == 0 {
		return nil, fmt.Errorf("failed to grade response: %w", models.ErrThreadEmpty)
	}

	orgID := in.OrganizationID
	if orgID == "" {
		orgID = thread.OrganizationID
	}

	settings := models.DefaultAutoResponseSettings()
	if in.Settings != nil {
		settings = *in.Settings
	} else if g.settings != nil {
		loaded, err := g.settings.GetAutoResponseSettings(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings for organization %s: %w", orgID, err)
		}
		settings = loaded
	}

	var notes []models.Note
	if in.Context != nil {
		notes = in.Context.Notes
	} else if g.retriever != nil {
		result, err := g.retriever.Retrieve(ctx, retrieval.Query{
			OrganizationID: orgID,
			TicketID:       thread.TicketID,
			Thread:         thread,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve context: %w", err)
		}
		notes = result.Notes
	}

	prompt := prompts.Grade(settings, notes, thread, in.Response)
	raw, err := g.completer.Complete(ctx, llm.CompletionRequest{
		Operation:   llm.OperationGrade,
		System:      prompt.System,
		Prompt:      prompt.User,
		Temperature: Temperature,
		MaxTokens:   maxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grade response: %w", err)
	}

	grade, err := ParseGrade(raw)
	if err != nil {
		g.logger.Warn().Err(err).Str("thread_id", thread.ID).Msg("Model returned an invalid grade")
		return nil, fmt.Errorf("failed to grade response: %w", err)
	}

	if len(grade.Concerns) > 0 && grade.AccuracyScore > 3 {
		g.logger.Debug().
			Str("thread_id", thread.ID).
			Int("accuracy_score", grade.AccuracyScore).
			Int("concerns", len(grade.Concerns)).
			Msg("Grade lists concerns despite high accuracy")
	}

	return grade, nil
}

// rawGrade keeps scores raw so that strings and fractions can be rejected
type rawGrade struct {
	QualityScore  json.RawMessage `json:"quality_score"`
	AccuracyScore json.RawMessage `json:"accuracy_score"`
	Summary       *string         `json:"summary"`
	Concerns      *[]string       `json:"concerns"`
}

// ParseGrade strictly validates model output against the grade schema.
// A surrounding markdown code fence is tolerated.
func ParseGrade(raw string) (*models.Grade, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidGrade)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var parsed rawGrade
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrade, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidGrade)
	}

	quality, err := parseScore("quality_score", parsed.QualityScore)
	if err != nil {
		return nil, err
	}
	accuracy, err := parseScore("accuracy_score", parsed.AccuracyScore)
	if err != nil {
		return nil, err
	}
	if parsed.Summary == nil || strings.TrimSpace(*parsed.Summary) == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidGrade)
	}
	if parsed.Concerns == nil {
		return nil, fmt.Errorf("%w: concerns must be an array", ErrInvalidGrade)
	}

	return &models.Grade{
		QualityScore:  quality,
		AccuracyScore: accuracy,
		Summary:       strings.TrimSpace(*parsed.Summary),
		Concerns:      *parsed.Concerns,
	}, nil
}

func parseScore(field string, raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidGrade, field)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidGrade, field, err)
	}

	number, ok := value.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidGrade, field)
	}
	score, err := number.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %s", ErrInvalidGrade, field, number)
	}
	if score < MinScore || score > MaxScore {
		return 0, fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrInvalidGrade, field, MinScore, MaxScore, score)
	}
	return int(score), nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
