package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/models"
)

type fakeNotes struct {
	recent       []models.Note
	similar      []models.Note
	recentIDs    []string
	recentLimit  int
	searchCalls  int
	searchVector string
	searchOrg    string
	threshold    float64
	limit        int
	err          error
}

func (f *fakeNotes) RecentNotes(_ context.Context, ids []string, limit int) ([]models.Note, error) {
	f.recentIDs = ids
	f.recentLimit = limit
	return f.recent, f.err
}

func (f *fakeNotes) SearchSimilarNotes(_ context.Context, orgID, vector string, threshold float64, limit int) ([]models.Note, error) {
	f.searchCalls++
	f.searchOrg = orgID
	f.searchVector = vector
	f.threshold = threshold
	f.limit = limit
	return f.similar, f.err
}

type countingEmbedder struct {
	calls int
	texts []string
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	c.texts = append(c.texts, text)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{0.25, 0.5}, nil
}

func body(s string) *string { return &s }

func threadWith(bodies ...*string) *models.EmailThread {
	th := &models.EmailThread{ID: "thread-1", OrganizationID: "org-1"}
	for i, b := range bodies {
		th.Messages = append(th.Messages, models.EmailMessage{
			ID:        string(rune('a' + i)),
			TextBody:  b,
			CreatedAt: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
		})
	}
	return th
}

func TestRetrieve_RecencyMode(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	notes := &fakeNotes{recent: []models.Note{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "mid", CreatedAt: base.Add(time.Hour)},
	}}
	embedder := &countingEmbedder{}
	r := NewRetriever(notes, embedder, Options{}, zerolog.Nop())

	res, err := r.Retrieve(context.Background(), Query{TicketID: "t1", ContactID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, ModeRecency, res.Mode)
	assert.Equal(t, []string{"t1", "c1"}, notes.recentIDs)
	assert.Equal(t, RecentNoteLimit, notes.recentLimit)
	require.Len(t, res.Notes, 3)
	assert.Equal(t, "new", res.Notes[0].ID)
	assert.Equal(t, "mid", res.Notes[1].ID)
	assert.Equal(t, "old", res.Notes[2].ID)
	assert.Zero(t, embedder.calls)
	assert.Zero(t, notes.searchCalls)
}

func TestRetrieve_RecencyModeWithoutContact(t *testing.T) {
	notes := &fakeNotes{}
	r := NewRetriever(notes, &countingEmbedder{}, Options{}, zerolog.Nop())

	res, err := r.Retrieve(context.Background(), Query{TicketID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, notes.recentIDs)
	assert.False(t, res.HasNotes())
}

func TestRetrieve_RecencyModeCapsResults(t *testing.T) {
	base := time.Now()
	var many []models.Note
	for i := 0; i < 8; i++ {
		many = append(many, models.Note{ID: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	r := NewRetriever(&fakeNotes{recent: many}, &countingEmbedder{}, Options{}, zerolog.Nop())

	res, err := r.Retrieve(context.Background(), Query{TicketID: "t1"})
	require.NoError(t, err)
	assert.Len(t, res.Notes, RecentNoteLimit)
	assert.Equal(t, "h", res.Notes[0].ID)
}

func TestRetrieve_SemanticMode_AllBodiesEmpty(t *testing.T) {
	notes := &fakeNotes{}
	embedder := &countingEmbedder{}
	r := NewRetriever(notes, embedder, Options{}, zerolog.Nop())

	thread := threadWith(body("older message with text"), nil, body("   "), body(""))
	res, err := r.Retrieve(context.Background(), Query{Thread: thread})
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, res.Mode)
	assert.Empty(t, res.Notes)
	assert.Zero(t, embedder.calls, "no embedding call for empty query text")
	assert.Zero(t, notes.searchCalls)
}

func TestRetrieve_SemanticMode(t *testing.T) {
	notes := &fakeNotes{similar: []models.Note{
		{ID: "low", Similarity: 0.61},
		{ID: "high", Similarity: 0.95},
		{ID: "mid", Similarity: 0.8},
	}}
	embedder := &countingEmbedder{}
	r := NewRetriever(notes, embedder, Options{Threshold: 0.6, Limit: 5}, zerolog.Nop())

	thread := threadWith(body("first, outside window"), body("second"), body(""), body("fourth"))
	res, err := r.Retrieve(context.Background(), Query{Thread: thread})
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls, "exactly one embedding call")
	assert.Equal(t, "second\n\nfourth", embedder.texts[0])
	assert.Equal(t, 1, notes.searchCalls)
	assert.Equal(t, "org-1", notes.searchOrg)
	assert.Equal(t, "[0.25,0.5]", notes.searchVector)
	assert.Equal(t, 0.6, notes.threshold)
	assert.Equal(t, 5, notes.limit)

	require.Len(t, res.Notes, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{res.Notes[0].ID, res.Notes[1].ID, res.Notes[2].ID})
}

func TestRetrieve_SemanticModeUsesQueryOrganization(t *testing.T) {
	notes := &fakeNotes{}
	r := NewRetriever(notes, &countingEmbedder{}, Options{}, zerolog.Nop())

	_, err := r.Retrieve(context.Background(), Query{OrganizationID: "org-override", Thread: threadWith(body("hi"))})
	require.NoError(t, err)
	assert.Equal(t, "org-override", notes.searchOrg)
	assert.Equal(t, DefaultThreshold, notes.threshold)
	assert.Equal(t, DefaultLimit, notes.limit)
}

func TestRetrieve_Errors(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		r := NewRetriever(&fakeNotes{}, &countingEmbedder{err: errors.New("down")}, Options{}, zerolog.Nop())
		_, err := r.Retrieve(context.Background(), Query{Thread: threadWith(body("hi"))})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to embed context query")
	})

	t.Run("search failure", func(t *testing.T) {
		r := NewRetriever(&fakeNotes{err: errors.New("db")}, &countingEmbedder{}, Options{}, zerolog.Nop())
		_, err := r.Retrieve(context.Background(), Query{Thread: threadWith(body("hi"))})
		assert.Error(t, err)
	})

	t.Run("recent failure", func(t *testing.T) {
		r := NewRetriever(&fakeNotes{err: errors.New("db")}, &countingEmbedder{}, Options{}, zerolog.Nop())
		_, err := r.Retrieve(context.Background(), Query{TicketID: "t"})
		assert.Error(t, err)
	})
}

func TestSemanticQueryText(t *testing.T) {
	assert.Equal(t, "", SemanticQueryText(nil))
	assert.Equal(t, "", SemanticQueryText(&models.EmailThread{}))
	assert.Equal(t, "a\n\nb", SemanticQueryText(threadWith(body(" a "), body("b"))))
}
