package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"helpdesk/internal/models"
)

const draftColumns = `id, organization_id, thread_id, ticket_id, content, grade, status, modified_content, feedback, approved_by, approved_at, metadata, created_at`

// DraftTransition describes a status change out of pending
type DraftTransition struct {
	ID              string
	To              models.DraftStatus
	ActorID         string
	ModifiedContent *string
	Feedback        *string
}

// DraftStore persists response drafts. Drafts are never deleted.
type DraftStore struct {
	writeClient *WriteClient
}

// NewDraftStore creates a new draft store
func NewDraftStore(writeClient *WriteClient) *DraftStore {
	return &DraftStore{writeClient: writeClient}
}

// CreateDraft inserts a new draft. A UUID is assigned when the draft has no id.
func (s *DraftStore) CreateDraft(ctx context.Context, draft *models.ResponseDraft) (*models.ResponseDraft, error) {
	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := draft.Status
	if status == "" {
		status = models.DraftStatusPending
	}

	query := `
		INSERT INTO response_drafts (id, organization_id, thread_id, ticket_id, content, grade, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING ` + draftColumns

	var saved models.ResponseDraft
	err := s.writeClient.GetContext(ctx, &saved, query,
		id, draft.OrganizationID, draft.ThreadID, draft.TicketID, draft.Content, draft.Grade, status, draft.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return &saved, nil
}

// GetDraft loads a draft or returns ErrNotFound
func (s *DraftStore) GetDraft(ctx context.Context, id string) (*models.ResponseDraft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var draft models.ResponseDraft
	query := `SELECT ` + draftColumns + ` FROM response_drafts WHERE id = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &draft, query, id); err != nil {
		return nil, err
	}
	return &draft, nil
}

// TransitionDraft moves a pending draft to a new status and stamps the actor.
// It returns ErrNotFound when no pending draft with that id exists; callers
// decide whether the draft is missing or already left pending.
func (s *DraftStore) TransitionDraft(ctx context.Context, t DraftTransition) (*models.ResponseDraft, error) {
	if _, err := uuid.Parse(t.ID); err != nil {
		return nil, ErrNotFound
	}

	query := `
		UPDATE response_drafts
		SET status = $2,
			approved_by = $3,
			approved_at = now(),
			modified_content = COALESCE($4, modified_content),
			feedback = COALESCE($5, feedback)
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + draftColumns

	var saved models.ResponseDraft
	if err := s.writeClient.GetContext(ctx, &saved, query, t.ID, t.To, t.ActorID, t.ModifiedContent, t.Feedback); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to transition draft: %w", err)
	}
	return &saved, nil
}

// ListDraftsForTicket returns every draft of a ticket, newest first
func (s *DraftStore) ListDraftsForTicket(ctx context.Context, ticketID string) ([]models.ResponseDraft, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT ` + draftColumns + ` FROM response_drafts WHERE ticket_id = $1 ORDER BY created_at DESC`

	var drafts []models.ResponseDraft
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &drafts, query, ticketID); err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return drafts, nil
}
