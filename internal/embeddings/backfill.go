package embeddings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"helpdesk/internal/llm"
	"helpdesk/internal/models"
)

// NoteEmbeddingStore lists notes without embeddings and stores new ones
type NoteEmbeddingStore interface {
	NotesMissingEmbeddings(ctx context.Context, limit int) ([]models.Note, error)
	UpdateNoteEmbedding(ctx context.Context, id, embedding string) error
}

// Backfiller embeds notes that were written without an embedding
type Backfiller struct {
	store     NoteEmbeddingStore
	embedder  llm.Embedder
	batchSize int
	logger    zerolog.Logger
}

// NewBackfiller creates a backfiller that embeds batchSize notes per provider call
func NewBackfiller(store NoteEmbeddingStore, embedder llm.Embedder, batchSize int, logger zerolog.Logger) *Backfiller {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Backfiller{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "embedding_backfill").Logger(),
	}
}

// Run processes batches until no note is left without an embedding.
// It returns the number of notes updated.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	total := 0
	batchNum := 0
	for {
		notes, err := b.store.NotesMissingEmbeddings(ctx, b.batchSize)
		if err != nil {
			return total, err
		}
		if len(notes) == 0 {
			b.logger.Info().Int("updated", total).Msg("backfill complete")
			return total, nil
		}

		batchNum++
		b.logger.Info().Int("batch", batchNum).Int("notes", len(notes)).Msg("processing batch")

		updated, err := b.processBatch(ctx, notes)
		total += updated
		if err != nil {
			return total, fmt.Errorf("batch %d failed: %w", batchNum, err)
		}
		if updated == 0 {
			// Every note in the batch failed to store; stop instead of looping on them
			return total, fmt.Errorf("batch %d stored no embeddings", batchNum)
		}
	}
}

func (b *Backfiller) processBatch(ctx context.Context, notes []models.Note) (int, error) {
	texts := make([]string, len(notes))
	for i, n := range notes {
		texts[i] = n.Content
	}

	vectors, err := b.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(notes) {
		return 0, fmt.Errorf("got %d embeddings for %d notes", len(vectors), len(notes))
	}

	updated := 0
	for i, n := range notes {
		if err := b.store.UpdateNoteEmbedding(ctx, n.ID, Serialize(vectors[i])); err != nil {
			b.logger.Error().Err(err).Str("note_id", n.ID).Msg("failed to store embedding")
			continue
		}
		updated++
	}
	return updated, nil
}
