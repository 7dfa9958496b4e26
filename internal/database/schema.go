package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EmbeddingDimensions is the width of every vector column; it must match the embedding model
const EmbeddingDimensions = 1536

// RequiredTables are the tables drafting and review read from
var RequiredTables = []string{"organizations", "contacts", "tickets", "email_threads", "email_messages", "notes", "response_drafts"}

// schemaStatements creates the helpdesk tables. The process_inbound_email
// procedure is provisioned with the database and is not created here.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		settings JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		organization_id UUID NOT NULL REFERENCES organizations(id),
		email TEXT NOT NULL,
		name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (organization_id, email)
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		organization_id UUID NOT NULL REFERENCES organizations(id),
		contact_id UUID REFERENCES contacts(id),
		assignee_id TEXT,
		team_id TEXT,
		subject TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'pending', 'resolved', 'closed')),
		priority TEXT NOT NULL DEFAULT 'normal' CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_org_created ON tickets(organization_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS email_threads (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		organization_id UUID NOT NULL REFERENCES organizations(id),
		ticket_id UUID NOT NULL REFERENCES tickets(id),
		subject TEXT NOT NULL DEFAULT '',
		provider_message_ids TEXT[] NOT NULL DEFAULT '{}',
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_threads_ticket ON email_threads(ticket_id)`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS email_messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		thread_id UUID NOT NULL REFERENCES email_threads(id),
		message_id TEXT NOT NULL UNIQUE,
		in_reply_to TEXT,
		reference_ids TEXT[] NOT NULL DEFAULT '{}',
		from_email TEXT NOT NULL,
		from_name TEXT,
		to_email TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		text_body TEXT,
		html_body TEXT,
		direction TEXT NOT NULL CHECK (direction IN ('inbound', 'outbound')),
		embedding vector(%d),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, EmbeddingDimensions),
	`CREATE INDEX IF NOT EXISTS idx_email_messages_thread ON email_messages(thread_id, created_at)`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS notes (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		organization_id UUID NOT NULL REFERENCES organizations(id),
		entity_type TEXT NOT NULL CHECK (entity_type IN ('ticket', 'contact')),
		entity_id UUID NOT NULL,
		content TEXT NOT NULL,
		managed BOOLEAN NOT NULL DEFAULT FALSE,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		embedding vector(%d),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, EmbeddingDimensions),
	`CREATE INDEX IF NOT EXISTS idx_notes_entity_created ON notes(entity_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS notes_one_managed_per_entity ON notes(entity_id) WHERE managed`,
	`CREATE INDEX IF NOT EXISTS idx_notes_embedding_hnsw ON notes USING hnsw (embedding vector_cosine_ops)`,
	`CREATE TABLE IF NOT EXISTS response_drafts (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id),
		thread_id UUID NOT NULL REFERENCES email_threads(id),
		ticket_id UUID NOT NULL REFERENCES tickets(id),
		content TEXT NOT NULL,
		grade JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'modified', 'rejected')),
		modified_content TEXT,
		feedback TEXT,
		approved_by TEXT,
		approved_at TIMESTAMPTZ,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_response_drafts_ticket ON response_drafts(ticket_id, created_at DESC)`,
}

// CreateTables creates the helpdesk schema. Statements are idempotent.
func CreateTables(ctx context.Context, wc *WriteClient) error {
	for _, stmt := range schemaStatements {
		if _, err := wc.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// MissingTables returns the required tables absent from the current schema
func MissingTables(ctx context.Context, db *sqlx.DB) ([]string, error) {
	query := `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ANY($1)
	`
	var present []string
	if err := ExecuteReadOnlyQuery(ctx, db, &present, query, pq.Array(RequiredTables)); err != nil {
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}

	found := make(map[string]bool, len(present))
	for _, name := range present {
		found[name] = true
	}
	var missing []string
	for _, name := range RequiredTables {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
