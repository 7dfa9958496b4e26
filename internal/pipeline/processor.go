// Package pipeline runs inbound email through resolution and the background
// drafting, summarizing and priority tasks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"helpdesk/internal/emails"
	"helpdesk/internal/embeddings"
	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
	"helpdesk/internal/responder"
	"helpdesk/internal/summarizer"
)

// Background task names
const (
	TaskDraft    = "draft"
	TaskSummary  = "summary"
	TaskPriority = "priority"
)

// Task outcomes
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

const defaultTaskTimeout = 3 * time.Minute

// Resolver links an inbound email to its contact, thread and ticket
type Resolver interface {
	Resolve(ctx context.Context, input *models.ResolverInput) (*models.EmailProcessingResult, error)
}

// TextEmbedder embeds inbound message text
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ThreadLoader loads a thread with its messages
type ThreadLoader interface {
	GetThread(ctx context.Context, id string) (*models.EmailThread, error)
}

// DraftGenerator drafts a reply
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, in responder.Input) (*models.ResponseDraft, error)
}

// SummaryUpdater refreshes the ticket summary note
type SummaryUpdater interface {
	UpdateTicketSummary(ctx context.Context, in summarizer.SummaryInput) (*models.Note, error)
}

// PriorityClassifier classifies the first message of a ticket
type PriorityClassifier interface {
	ClassifyPriority(ctx context.Context, content string) (models.Priority, error)
}

// PriorityWriter stores a ticket priority
type PriorityWriter interface {
	UpdatePriority(ctx context.Context, id string, priority models.Priority) error
}

// EventTracker records analytics events
type EventTracker interface {
	TrackEvent(eventType, organizationID string, count int, metadata map[string]interface{}) error
}

// Deps are the collaborators of a Processor. Tracker may be nil. A nil
// Drafts, Summaries or Priorities disables that background task.
type Deps struct {
	Resolver   Resolver
	Embedder   TextEmbedder
	Threads    ThreadLoader
	Drafts     DraftGenerator
	Summaries  SummaryUpdater
	Priorities PriorityClassifier
	Tickets    PriorityWriter
	Tracker    EventTracker
}

// Processor handles inbound email. Process returns as soon as the email is
// resolved; the draft, summary and priority tasks then run in the background,
// each isolated from the others' failures.
type Processor struct {
	deps        Deps
	taskTimeout time.Duration
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// New creates a processor; a non-positive taskTimeout uses the default
func New(deps Deps, taskTimeout time.Duration, logger zerolog.Logger) *Processor {
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	return &Processor{
		deps:        deps,
		taskTimeout: taskTimeout,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Process validates, normalizes, embeds and resolves one inbound email, then
// starts the background tasks without waiting for them
func (p *Processor) Process(ctx context.Context, organizationID string, in *models.InboundEmail) (*models.EmailProcessingResult, error) {
	if in == nil {
		metrics.RecordInboundEmail("invalid")
		return nil, &models.ValidationError{Fields: []string{"payload is required"}}
	}
	if err := in.Validate(); err != nil {
		metrics.RecordInboundEmail("invalid")
		return nil, err
	}

	input, err := emails.Normalize(organizationID, in)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPayload) {
			metrics.RecordInboundEmail("invalid")
		} else {
			metrics.RecordInboundEmail("failed")
		}
		return nil, err
	}

	content := emails.EmbeddingText(input.Subject, input.TextBody)
	if content != "" {
		vector, err := p.deps.Embedder.Embed(ctx, content)
		if err != nil {
			// The message is stored without a vector rather than lost
			p.logger.Warn().Err(err).Str("message_id", input.MessageID).Msg("Failed to embed inbound email")
		} else {
			input.Embedding = embeddings.Serialize(vector)
		}
	}

	result, err := p.deps.Resolver.Resolve(ctx, input)
	if err != nil {
		metrics.RecordInboundEmail("failed")
		return nil, err
	}
	metrics.RecordInboundEmail("processed")

	newTicket := result.Thread.IsNewTicket()
	p.track(models.EventEmailIngested, organizationID, map[string]interface{}{
		"ticket_id":   result.Ticket.ID,
		"thread_id":   result.Thread.ID,
		"message_id":  result.Message.ID,
		"new_ticket":  newTicket,
		"attachments": len(result.Attachments),
	})

	p.logger.Info().
		Str("organization_id", organizationID).
		Str("ticket_id", result.Ticket.ID).
		Str("thread_id", result.Thread.ID).
		Bool("new_ticket", newTicket).
		Msg("Inbound email processed")

	p.startBackground(organizationID, result, content)
	return result, nil
}

// Wait blocks until all background tasks have finished
func (p *Processor) Wait() {
	p.wg.Wait()
}

type taskRun struct {
	name     string
	ticketID string
	threadID string
	run      func(ctx context.Context) (outcome, event string, metadata map[string]interface{}, err error)
}

func (p *Processor) startBackground(orgID string, result *models.EmailProcessingResult, content string) {
	ticketID := result.Ticket.ID
	threadID := result.Thread.ID
	newTicket := result.Thread.IsNewTicket()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		var tasks []taskRun
		if newTicket && p.deps.Priorities != nil && p.deps.Tickets != nil {
			tasks = append(tasks, taskRun{
				name:     TaskPriority,
				ticketID: ticketID,
				threadID: threadID,
				run:      p.priorityTask(ticketID, content),
			})
		}

		if p.deps.Drafts != nil || p.deps.Summaries != nil {
			thread, loadErr := p.loadThread(threadID)
			if p.deps.Drafts != nil {
				tasks = append(tasks, taskRun{
					name:     TaskDraft,
					ticketID: ticketID,
					threadID: threadID,
					run:      p.draftTask(orgID, ticketID, thread, loadErr),
				})
			}
			if p.deps.Summaries != nil {
				tasks = append(tasks, taskRun{
					name:     TaskSummary,
					ticketID: ticketID,
					threadID: threadID,
					run:      p.summaryTask(orgID, ticketID, thread, loadErr),
				})
			}
		}

		var wg sync.WaitGroup
		for _, task := range tasks {
			wg.Add(1)
			go func(task taskRun) {
				defer wg.Done()
				p.runTask(orgID, task)
			}(task)
		}
		wg.Wait()
	}()
}

func (p *Processor) loadThread(threadID string) (*models.EmailThread, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	thread, err := p.deps.Threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	return thread, nil
}

// runTask runs one background task with its own timeout and records the outcome
func (p *Processor) runTask(orgID string, task taskRun) {
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	start := time.Now()
	outcome, event, metadata, err := p.safeRun(ctx, task)
	if err != nil {
		outcome = OutcomeFailed
	}
	metrics.RecordBackgroundTask(task.name, outcome)

	logEvent := p.logger.Info()
	if err != nil {
		logEvent = p.logger.Error().Err(err)
	}
	logEvent.
		Str("task", task.name).
		Str("outcome", outcome).
		Str("ticket_id", task.ticketID).
		Str("thread_id", task.threadID).
		Dur("duration", time.Since(start)).
		Msg("Background task finished")

	if err != nil {
		p.track(models.EventTaskFailed, orgID, map[string]interface{}{
			"task":      task.name,
			"error":     err.Error(),
			"ticket_id": task.ticketID,
			"thread_id": task.threadID,
		})
		return
	}
	if event != "" {
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		metadata["ticket_id"] = task.ticketID
		metadata["thread_id"] = task.threadID
		p.track(event, orgID, metadata)
	}
}

func (p *Processor) safeRun(ctx context.Context, task taskRun) (outcome, event string, metadata map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.name, r)
		}
	}()
	return task.run(ctx)
}

func (p *Processor) draftTask(orgID, ticketID string, thread *models.EmailThread, loadErr error) func(context.Context) (string, string, map[string]interface{}, error) {
	return func(ctx context.Context) (string, string, map[string]interface{}, error) {
		if loadErr != nil {
			return "", "", nil, loadErr
		}
		draft, err := p.deps.Drafts.GenerateDraft(ctx, responder.Input{
			OrganizationID: orgID,
			TicketID:       ticketID,
			Thread:         thread,
		})
		if err != nil {
			return "", "", nil, err
		}
		if draft == nil {
			return OutcomeSkipped, models.EventDraftSkipped, map[string]interface{}{"reason": "auto_response_disabled"}, nil
		}
		return OutcomeSuccess, models.EventDraftGenerated, map[string]interface{}{
			"draft_id":       draft.ID,
			"quality_score":  draft.Grade.QualityScore,
			"accuracy_score": draft.Grade.AccuracyScore,
			"placeholders":   len(draft.Metadata.Placeholders),
		}, nil
	}
}

func (p *Processor) summaryTask(orgID, ticketID string, thread *models.EmailThread, loadErr error) func(context.Context) (string, string, map[string]interface{}, error) {
	return func(ctx context.Context) (string, string, map[string]interface{}, error) {
		if loadErr != nil {
			return "", "", nil, loadErr
		}
		note, err := p.deps.Summaries.UpdateTicketSummary(ctx, summarizer.SummaryInput{
			OrganizationID: orgID,
			TicketID:       ticketID,
			Thread:         thread,
		})
		if err != nil {
			return "", "", nil, err
		}
		if note == nil {
			return OutcomeSkipped, "", nil, nil
		}
		return OutcomeSuccess, models.EventSummaryUpdated, map[string]interface{}{"note_id": note.ID}, nil
	}
}

func (p *Processor) priorityTask(ticketID, content string) func(context.Context) (string, string, map[string]interface{}, error) {
	return func(ctx context.Context) (string, string, map[string]interface{}, error) {
		priority, err := p.deps.Priorities.ClassifyPriority(ctx, content)
		if err != nil {
			return "", "", nil, err
		}
		if err := p.deps.Tickets.UpdatePriority(ctx, ticketID, priority); err != nil {
			return "", "", nil, fmt.Errorf("failed to update priority of ticket %s: %w", ticketID, err)
		}
		return OutcomeSuccess, models.EventPriorityClassified, map[string]interface{}{"priority": string(priority)}, nil
	}
}

func (p *Processor) track(event, orgID string, metadata map[string]interface{}) {
	if p.deps.Tracker == nil {
		return
	}
	if err := p.deps.Tracker.TrackEvent(event, orgID, 1, metadata); err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("Failed to track event")
	}
}
