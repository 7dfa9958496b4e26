// Package approval moves drafts out of pending and delivers approved replies.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"helpdesk/internal/database"
	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
)

var (
	ErrInvalidTransition = errors.New("draft is no longer pending")
	ErrDraftNotFound     = errors.New("draft not found")
	ErrActorRequired     = errors.New("an authenticated actor is required")
	ErrFeedbackRequired  = errors.New("feedback is required to reject a draft")
	ErrContentRequired   = errors.New("content is required to modify a draft")
)

// DraftStore reads drafts and applies conditional transitions
type DraftStore interface {
	GetDraft(ctx context.Context, id string) (*models.ResponseDraft, error)
	TransitionDraft(ctx context.Context, t database.DraftTransition) (*models.ResponseDraft, error)
}

// EventTracker records analytics events
type EventTracker interface {
	TrackEvent(eventType, organizationID string, count int, metadata map[string]interface{}) error
}

// Workflow is the pending -> approved | modified | rejected state machine.
// Every transition leaves pending for good; re-transition is an error.
type Workflow struct {
	drafts  DraftStore
	tracker EventTracker
	logger  zerolog.Logger
}

// NewWorkflow creates a workflow; tracker may be nil
func NewWorkflow(drafts DraftStore, tracker EventTracker, logger zerolog.Logger) *Workflow {
	return &Workflow{
		drafts:  drafts,
		tracker: tracker,
		logger:  logger.With().Str("component", "approval").Logger(),
	}
}

// Approve accepts the draft as written
func (w *Workflow) Approve(ctx context.Context, draftID, actorID string) (*models.ResponseDraft, error) {
	return w.transition(ctx, database.DraftTransition{
		ID:      draftID,
		To:      models.DraftStatusApproved,
		ActorID: actorID,
	})
}

// Modify accepts the draft with agent-edited content. It does not send anything.
func (w *Workflow) Modify(ctx context.Context, draftID, actorID, content string) (*models.ResponseDraft, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentRequired
	}
	return w.transition(ctx, database.DraftTransition{
		ID:              draftID,
		To:              models.DraftStatusModified,
		ActorID:         actorID,
		ModifiedContent: &content,
	})
}

// Reject discards the draft, keeping it with the agent's feedback
func (w *Workflow) Reject(ctx context.Context, draftID, actorID, feedback string) (*models.ResponseDraft, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, ErrFeedbackRequired
	}
	return w.transition(ctx, database.DraftTransition{
		ID:       draftID,
		To:       models.DraftStatusRejected,
		ActorID:  actorID,
		Feedback: &feedback,
	})
}

func (w *Workflow) transition(ctx context.Context, t database.DraftTransition) (*models.ResponseDraft, error) {
	if strings.TrimSpace(t.ActorID) == "" {
		return nil, ErrActorRequired
	}

	draft, err := w.drafts.TransitionDraft(ctx, t)
	if errors.Is(err, database.ErrNotFound) {
		return nil, w.explainMiss(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordDraftTransition(string(t.To))
	w.track(draft, t.ActorID)

	w.logger.Info().
		Str("draft_id", draft.ID).
		Str("status", string(draft.Status)).
		Str("actor_id", t.ActorID).
		Msg("Draft transitioned")

	return draft, nil
}

// explainMiss tells a missing draft apart from one that already left pending
func (w *Workflow) explainMiss(ctx context.Context, t database.DraftTransition) error {
	current, err := w.drafts.GetDraft(ctx, t.ID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrDraftNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load draft %s: %w", t.ID, err)
	}
	if !current.Status.Terminal() {
		return fmt.Errorf("failed to transition draft %s: still %s after update", t.ID, current.Status)
	}
	return fmt.Errorf("%w: draft %s is %s, cannot move to %s", ErrInvalidTransition, t.ID, current.Status, t.To)
}

func (w *Workflow) track(draft *models.ResponseDraft, actorID string) {
	if w.tracker == nil {
		return
	}

	var event string
	switch draft.Status {
	case models.DraftStatusApproved:
		event = models.EventDraftApproved
	case models.DraftStatusModified:
		event = models.EventDraftModified
	case models.DraftStatusRejected:
		event = models.EventDraftRejected
	default:
		return
	}

	metadata := map[string]interface{}{
		"draft_id":       draft.ID,
		"ticket_id":      draft.TicketID,
		"actor_id":       actorID,
		"quality_score":  draft.Grade.QualityScore,
		"accuracy_score": draft.Grade.AccuracyScore,
	}
	if err := w.tracker.TrackEvent(event, draft.OrganizationID, 1, metadata); err != nil {
		w.logger.Warn().Err(err).Str("draft_id", draft.ID).Msg("Failed to track draft transition")
	}
}
