package database

import (
	"context"
	"encoding/json"
	"fmt"

	"helpdesk/internal/models"
)

// Resolver calls the process_inbound_email procedure, which finds or creates the
// contact, thread and ticket and appends the message in one transaction
type Resolver struct {
	writeClient *WriteClient
}

// NewResolver creates a new resolver
func NewResolver(writeClient *WriteClient) *Resolver {
	return &Resolver{writeClient: writeClient}
}

// Resolve links an inbound email to its thread and ticket
func (r *Resolver) Resolve(ctx context.Context, input *models.ResolverInput) (*models.EmailProcessingResult, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resolver input: %w", err)
	}

	var raw []byte
	if err := r.writeClient.GetContext(ctx, &raw, `SELECT process_inbound_email($1::jsonb)`, string(payload)); err != nil {
		return nil, fmt.Errorf("failed to resolve inbound email: %w", err)
	}

	var result models.EmailProcessingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode resolver result: %w", err)
	}
	if result.Thread.ID == "" || result.Ticket.ID == "" || result.Message.ID == "" {
		return nil, fmt.Errorf("resolver result is missing thread, ticket or message")
	}
	return &result, nil
}
