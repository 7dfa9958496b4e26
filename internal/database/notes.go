package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"helpdesk/internal/models"
)

const noteColumns = `id, organization_id, entity_type, entity_id, content, managed, metadata, created_at, updated_at`

// NoteStore reads and writes notes, including the managed ticket summary
type NoteStore struct {
	writeClient *WriteClient
}

// NewNoteStore creates a new note store
func NewNoteStore(writeClient *WriteClient) *NoteStore {
	return &NoteStore{writeClient: writeClient}
}

// RecentNotes returns notes attached to any of entityIDs, newest first
func (s *NoteStore) RecentNotes(ctx context.Context, entityIDs []string, limit int) ([]models.Note, error) {
	if len(entityIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE entity_id = ANY($1::uuid[])
		ORDER BY created_at DESC
		LIMIT $2
	`
	var notes []models.Note
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &notes, query, pq.Array(entityIDs), limit); err != nil {
		return nil, fmt.Errorf("failed to load recent notes: %w", err)
	}
	return notes, nil
}

// SearchSimilarNotes runs a cosine-similarity search over embedded notes of one organization.
// Results are ordered by similarity, highest first.
func (s *NoteStore) SearchSimilarNotes(ctx context.Context, organizationID, queryVector string, threshold float64, limit int) ([]models.Note, error) {
	query := `
		SELECT ` + noteColumns + `, 1 - (embedding <=> $2::vector) AS similarity
		FROM notes
		WHERE organization_id = $1
			AND embedding IS NOT NULL
			AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4
	`
	var notes []models.Note
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &notes, query, organizationID, queryVector, threshold, limit); err != nil {
		return nil, fmt.Errorf("failed to search similar notes: %w", err)
	}
	return notes, nil
}

// GetManagedNote returns the managed note of an entity or ErrNotFound
func (s *NoteStore) GetManagedNote(ctx context.Context, entityID string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE entity_id = $1 AND managed`

	var note models.Note
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &note, query, entityID); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpsertManagedNote inserts the managed note of an entity or replaces its content.
// The partial unique index on (entity_id) WHERE managed makes this atomic.
func (s *NoteStore) UpsertManagedNote(ctx context.Context, note *models.Note, embedding string) (*models.Note, error) {
	query := `
		INSERT INTO notes (organization_id, entity_type, entity_id, content, managed, metadata, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6::vector, now(), now())
		ON CONFLICT (entity_id) WHERE managed DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()
		RETURNING ` + noteColumns

	var saved models.Note
	err := s.writeClient.GetContext(ctx, &saved, query,
		note.OrganizationID, note.EntityType, note.EntityID, note.Content, note.Metadata, nullableVector(embedding))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert managed note: %w", err)
	}
	return &saved, nil
}

// UpdateNote replaces the content, metadata and embedding of an existing note
func (s *NoteStore) UpdateNote(ctx context.Context, id, content string, metadata models.NoteMetadata, embedding string) (*models.Note, error) {
	query := `
		UPDATE notes
		SET content = $2, metadata = $3, embedding = $4::vector, updated_at = now()
		WHERE id = $1
		RETURNING ` + noteColumns

	var saved models.Note
	if err := s.writeClient.GetContext(ctx, &saved, query, id, content, metadata, nullableVector(embedding)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return &saved, nil
}

// NotesMissingEmbeddings returns notes that semantic search cannot see yet
func (s *NoteStore) NotesMissingEmbeddings(ctx context.Context, limit int) ([]models.Note, error) {
	query := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE embedding IS NULL AND content <> ''
		ORDER BY created_at
		LIMIT $1
	`
	var notes []models.Note
	if err := ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &notes, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load notes without embeddings: %w", err)
	}
	return notes, nil
}

// UpdateNoteEmbedding stores the embedding of a note
func (s *NoteStore) UpdateNoteEmbedding(ctx context.Context, id, embedding string) error {
	result, err := s.writeClient.ExecContext(ctx, `UPDATE notes SET embedding = $2::vector WHERE id = $1`, id, embedding)
	if err != nil {
		return fmt.Errorf("failed to update note embedding: %w", err)
	}
	return requireAffected(result)
}

// nullableVector maps an empty serialized vector to NULL
func nullableVector(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
