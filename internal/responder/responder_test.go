package responder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/grader"
	"helpdesk/internal/llm"
	"helpdesk/internal/models"
	"helpdesk/internal/retrieval"
)

type fakeCompleter struct {
	response string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

type fakeGrader struct {
	grade  *models.Grade
	err    error
	inputs []grader.Input
}

func (f *fakeGrader) GradeResponse(_ context.Context, in grader.Input) (*models.Grade, error) {
	f.inputs = append(f.inputs, in)
	return f.grade, f.err
}

type fakeSettings struct {
	settings models.AutoResponseSettings
	calls    int
}

func (f *fakeSettings) GetAutoResponseSettings(_ context.Context, _ string) (models.AutoResponseSettings, error) {
	f.calls++
	return f.settings, nil
}

type fakeRetriever struct {
	result  *retrieval.Result
	queries []retrieval.Query
}

func (f *fakeRetriever) Retrieve(_ context.Context, q retrieval.Query) (*retrieval.Result, error) {
	f.queries = append(f.queries, q)
	return f.result, nil
}

type fakeDrafts struct {
	created []*models.ResponseDraft
	err     error
}

func (f *fakeDrafts) CreateDraft(_ context.Context, d *models.ResponseDraft) (*models.ResponseDraft, error) {
	if f.err != nil {
		return nil, f.err
	}
	stored := *d
	stored.ID = "draft-1"
	f.created = append(f.created, &stored)
	return &stored, nil
}

func strPtr(s string) *string { return &s }

func testThread(messages int) *models.EmailThread {
	thread := &models.EmailThread{ID: "thread-1", OrganizationID: "org-1", TicketID: "ticket-1"}
	for i := 0; i < messages; i++ {
		thread.Messages = append(thread.Messages, models.EmailMessage{
			FromEmail: "jane@customer.com",
			TextBody:  strPtr("Where is my invoice?"),
			Direction: models.DirectionInbound,
			CreatedAt: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
		})
	}
	return thread
}

type fixture struct {
	completer *fakeCompleter
	grader    *fakeGrader
	settings  *fakeSettings
	retriever *fakeRetriever
	drafts    *fakeDrafts
	responder *Responder
}

func newFixture() *fixture {
	f := &fixture{
		completer: &fakeCompleter{response: "  Your invoice is at [billing portal link].  "},
		grader:    &fakeGrader{grade: &models.Grade{QualityScore: 4, AccuracyScore: 4, Summary: "ok", Concerns: []string{}}},
		settings:  &fakeSettings{settings: models.DefaultAutoResponseSettings()},
		retriever: &fakeRetriever{result: &retrieval.Result{
			Mode:  retrieval.ModeSemantic,
			Notes: []models.Note{{Content: "Invoices are emailed monthly"}, {Content: "Customer on annual plan"}},
		}},
		drafts: &fakeDrafts{},
	}
	f.responder = New(f.completer, f.grader, f.settings, f.retriever, f.drafts, zerolog.Nop())
	return f
}

func TestGenerateDraft(t *testing.T) {
	f := newFixture()

	draft, err := f.responder.GenerateDraft(context.Background(), Input{Thread: testThread(2)})

	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "Your invoice is at [billing portal link].", draft.Content)
	assert.Equal(t, models.DraftStatusPending, draft.Status)
	assert.Equal(t, "org-1", draft.OrganizationID)
	assert.Equal(t, "ticket-1", draft.TicketID)
	assert.Equal(t, 4, draft.Grade.QualityScore)
	assert.Equal(t, models.DraftMetadata{
		HasNotes:      true,
		NoteCount:     2,
		MessageCount:  2,
		Placeholders:  []string{"billing portal link"},
		RetrievalMode: retrieval.ModeSemantic,
	}, draft.Metadata)

	require.Len(t, f.completer.requests, 1)
	req := f.completer.requests[0]
	assert.Equal(t, llm.OperationDraft, req.Operation)
	assert.InDelta(t, 0.5, req.Temperature, 1e-6)
	assert.False(t, req.JSON)
	assert.Contains(t, req.Prompt, "Invoices are emailed monthly")

	require.Len(t, f.retriever.queries, 1)
	assert.NotNil(t, f.retriever.queries[0].Thread)

	// The grader reuses the thread, context and settings already loaded
	require.Len(t, f.grader.inputs, 1)
	in := f.grader.inputs[0]
	assert.Same(t, f.retriever.result, in.Context)
	assert.NotNil(t, in.Thread)
	require.NotNil(t, in.Settings)
	assert.Equal(t, draft.Content, in.Response)
}

func TestGenerateDraft_DisabledIsNoop(t *testing.T) {
	f := newFixture()
	f.settings.settings.Enabled = false

	draft, err := f.responder.GenerateDraft(context.Background(), Input{Thread: testThread(2)})

	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.Empty(t, f.drafts.created)
	assert.Empty(t, f.completer.requests)
	assert.Empty(t, f.grader.inputs)
}

func TestGenerateDraft_UsesSuppliedSettingsAndContext(t *testing.T) {
	f := newFixture()
	settings := models.AutoResponseSettings{Enabled: true, Tone: "warm", Language: "auto"}
	supplied := &retrieval.Result{Mode: retrieval.ModeRecency}

	draft, err := f.responder.GenerateDraft(context.Background(), Input{
		Thread:   testThread(1),
		TicketID: "ticket-9",
		Context:  supplied,
		Settings: &settings,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, f.settings.calls)
	assert.Empty(t, f.retriever.queries)
	assert.Equal(t, "ticket-9", draft.TicketID)
	assert.False(t, draft.Metadata.HasNotes)
	assert.Equal(t, retrieval.ModeRecency, draft.Metadata.RetrievalMode)
	assert.Contains(t, f.completer.requests[0].Prompt, "Tone: warm")
}

func TestGenerateDraft_Errors(t *testing.T) {
	t.Run("empty thread", func(t *testing.T) {
		f := newFixture()
		_, err := f.responder.GenerateDraft(context.Background(), Input{Thread: testThread(0)})
		assert.ErrorIs(t, err, ErrThreadEmpty)
		assert.EqualError(t, err, "thread not found or empty")
	})

	t.Run("nil thread", func(t *testing.T) {
		f := newFixture()
		_, err := f.responder.GenerateDraft(context.Background(), Input{})
		assert.ErrorIs(t, err, ErrThreadEmpty)
	})

	t.Run("blank completion", func(t *testing.T) {
		f := newFixture()
		f.completer.response = "   "
		_, err := f.responder.GenerateDraft(context.Background(), Input{Thread: testThread(1)})
		assert.ErrorIs(t, err, ErrEmptyDraft)
		assert.Empty(t, f.drafts.created)
	})

	t.Run("grading failure stores nothing", func(t *testing.T) {
		f := newFixture()
		f.grader.err = grader.ErrInvalidGrade
		_, err := f.responder.GenerateDraft(context.Background(), Input{Thread: testThread(1)})
		assert.ErrorIs(t, err, grader.ErrInvalidGrade)
		assert.Empty(t, f.drafts.created)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture()
		f.drafts.err = errors.New("db down")
		_, err := f.responder.GenerateDraft(context.Background(), Input{Thread: testThread(1)})
		assert.ErrorContains(t, err, "failed to store draft")
	})
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"none", "Thanks for reaching out.", nil},
		{"single", "See [api documentation link].", []string{"api documentation link"}},
		{"ordered and unique", "[a] then [b] then [a]", []string{"a", "b"}},
		{"markdown link skipped", "Read [the docs](https://example.com) and [order number].", []string{"order number"}},
		{"blank skipped", "[ ] done", nil},
		{"nested keeps inner", "[[inner]]", []string{"inner"}},
		{"no newline inside", "[first\nsecond]", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Placeholders(tt.text))
		})
	}
}

func TestProperty_Placeholders(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	word := gen.AlphaString().SuchThat(func(s string) bool { return s != "" })

	properties.Property("every inserted placeholder is found", prop.ForAll(
		func(a, b, filler string) bool {
			text := filler + " [" + a + "] " + filler + " [" + b + "]"
			found := Placeholders(text)
			return contains(found, a) && contains(found, b)
		},
		word, word, gen.AlphaString(),
	))

	properties.Property("markdown links are never placeholders", prop.ForAll(
		func(label, path string) bool {
			return len(Placeholders("["+label+"](https://example.com/"+path+")")) == 0
		},
		word, gen.AlphaString(),
	))

	properties.Property("results are distinct", prop.ForAll(
		func(words []string) bool {
			var b strings.Builder
			for _, w := range words {
				b.WriteString("[" + w + "] [" + w + "] ")
			}
			found := Placeholders(b.String())
			seen := map[string]bool{}
			for _, p := range found {
				if seen[p] {
					return false
				}
				seen[p] = true
			}
			return true
		},
		gen.SliceOf(word),
	))

	properties.TestingRun(t)
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
