package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"helpdesk/internal/models"
)

const ticketColumns = `id, organization_id, contact_id, assignee_id, team_id, subject, status, priority, created_at, resolved_at`

// TicketStore reads tickets and applies automatic priority
type TicketStore struct {
	writeClient *WriteClient
}

// NewTicketStore creates a new ticket store
func NewTicketStore(writeClient *WriteClient) *TicketStore {
	return &TicketStore{writeClient: writeClient}
}

// GetTicket loads a ticket or returns ErrNotFound
func (s *TicketStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var ticket models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &ticket, query, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdatePriority sets the priority of a ticket
func (s *TicketStore) UpdatePriority(ctx context.Context, id string, priority models.Priority) error {
	result, err := s.writeClient.ExecContext(ctx, `UPDATE tickets SET priority = $2 WHERE id = $1`, id, string(priority))
	if err != nil {
		return fmt.Errorf("failed to update ticket priority: %w", err)
	}
	return requireAffected(result)
}
