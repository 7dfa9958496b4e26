package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"helpdesk/internal/models"
)

const (
	threadColumns  = `id, organization_id, ticket_id, subject, provider_message_ids, last_message_at, created_at, updated_at`
	messageColumns = `id, thread_id, message_id, in_reply_to, reference_ids, from_email, from_name, to_email, subject, text_body, html_body, direction, created_at`
)

// ThreadStore loads email threads and appends outbound replies
type ThreadStore struct {
	writeClient *WriteClient
}

// NewThreadStore creates a new thread store
func NewThreadStore(writeClient *WriteClient) *ThreadStore {
	return &ThreadStore{writeClient: writeClient}
}

// GetThread loads a thread with its messages, oldest first
func (s *ThreadStore) GetThread(ctx context.Context, id string) (*models.EmailThread, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var thread models.EmailThread
	query := `SELECT ` + threadColumns + ` FROM email_threads WHERE id = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &thread, query, id); err != nil {
		return nil, err
	}

	messages, err := s.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	thread.Messages = messages
	return &thread, nil
}

// GetMessages returns the messages of a thread, oldest first
func (s *ThreadStore) GetMessages(ctx context.Context, threadID string) ([]models.EmailMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages WHERE thread_id = $1 ORDER BY created_at, id`

	var messages []models.EmailMessage
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &messages, query, threadID); err != nil {
		return nil, fmt.Errorf("failed to load thread messages: %w", err)
	}
	return messages, nil
}

// AppendOutboundMessage records a sent reply and adds its id to the thread
func (s *ThreadStore) AppendOutboundMessage(ctx context.Context, msg *models.EmailMessage) (*models.EmailMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := s.writeClient.GetDB().BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO email_messages (thread_id, message_id, in_reply_to, reference_ids, from_email, from_name, to_email, subject, text_body, direction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'outbound', now())
		RETURNING ` + messageColumns

	var saved models.EmailMessage
	err = tx.GetContext(ctx, &saved, insert,
		msg.ThreadID, msg.MessageID, msg.InReplyTo, msg.ReferenceIDs, msg.FromEmail, msg.FromName, msg.ToEmail, msg.Subject, msg.TextBody)
	if err != nil {
		return nil, fmt.Errorf("failed to insert outbound message: %w", err)
	}

	update := `
		UPDATE email_threads
		SET provider_message_ids = array_append(provider_message_ids, $2),
			last_message_at = now(),
			updated_at = now()
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, update, msg.ThreadID, msg.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to update thread: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outbound message: %w", err)
	}
	return &saved, nil
}
