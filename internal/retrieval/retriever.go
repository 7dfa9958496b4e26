package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"helpdesk/internal/embeddings"
	"helpdesk/internal/models"
)

// Retrieval modes
const (
	ModeRecency  = "recency"
	ModeSemantic = "semantic"
)

const (
	// RecentNoteLimit caps recency-mode results
	RecentNoteLimit = 5
	// SemanticMessageWindow is how many trailing messages form the semantic query
	SemanticMessageWindow = 3

	DefaultThreshold = 0.6
	DefaultLimit     = 5
)

// NoteSource is the storage the retriever reads notes from
type NoteSource interface {
	RecentNotes(ctx context.Context, entityIDs []string, limit int) ([]models.Note, error)
	SearchSimilarNotes(ctx context.Context, organizationID, queryVector string, threshold float64, limit int) ([]models.Note, error)
}

// TextEmbedder embeds one text per call
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Query identifies what to gather context for. Thread selects semantic mode.
type Query struct {
	OrganizationID string
	TicketID       string
	ContactID      string
	Thread         *models.EmailThread
}

// Result holds notes in mode order: similarity-descending or newest first
type Result struct {
	Mode  string
	Notes []models.Note
}

// HasNotes reports whether any note was found
func (r *Result) HasNotes() bool {
	return r != nil && len(r.Notes) > 0
}

// Options tunes semantic search
type Options struct {
	Threshold float64
	Limit     int
}

// Retriever gathers notes that ground drafting, grading and summarization
type Retriever struct {
	notes     NoteSource
	embedder  TextEmbedder
	threshold float64
	limit     int
	logger    zerolog.Logger
}

// NewRetriever creates a retriever; zero options fall back to defaults
func NewRetriever(notes NoteSource, embedder TextEmbedder, opts Options, logger zerolog.Logger) *Retriever {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Retriever{
		notes:     notes,
		embedder:  embedder,
		threshold: opts.Threshold,
		limit:     opts.Limit,
		logger:    logger.With().Str("component", "retrieval").Logger(),
	}
}

// Retrieve returns context notes. Without a thread it returns the newest notes of
// the ticket and contact; with a thread it searches notes similar to the latest messages.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Result, error) {
	if q.Thread == nil {
		return r.recent(ctx, q)
	}
	return r.semantic(ctx, q)
}

func (r *Retriever) recent(ctx context.Context, q Query) (*Result, error) {
	var ids []string
	if q.TicketID != "" {
		ids = append(ids, q.TicketID)
	}
	if q.ContactID != "" {
		ids = append(ids, q.ContactID)
	}

	notes, err := r.notes.RecentNotes(ctx, ids, RecentNoteLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve recent notes: %w", err)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	if len(notes) > RecentNoteLimit {
		notes = notes[:RecentNoteLimit]
	}

	return &Result{Mode: ModeRecency, Notes: notes}, nil
}

func (r *Retriever) semantic(ctx context.Context, q Query) (*Result, error) {
	text := SemanticQueryText(q.Thread)
	if text == "" {
		r.logger.Debug().Str("thread_id", q.Thread.ID).Msg("no message text, skipping semantic search")
		return &Result{Mode: ModeSemantic}, nil
	}

	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed context query: %w", err)
	}

	orgID := q.OrganizationID
	if orgID == "" {
		orgID = q.Thread.OrganizationID
	}

	notes, err := r.notes.SearchSimilarNotes(ctx, orgID, embeddings.Serialize(vector), r.threshold, r.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar notes: %w", err)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Similarity > notes[j].Similarity
	})
	if len(notes) > r.limit {
		notes = notes[:r.limit]
	}

	return &Result{Mode: ModeSemantic, Notes: notes}, nil
}

// SemanticQueryText joins the non-blank text bodies of the last messages of a thread
func SemanticQueryText(thread *models.EmailThread) string {
	if thread == nil {
		return ""
	}
	var parts []string
	for _, m := range thread.LastMessages(SemanticMessageWindow) {
		if body := strings.TrimSpace(m.Text()); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}
