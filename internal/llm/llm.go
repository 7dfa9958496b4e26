// Package llm defines the model-facing interfaces shared by the drafting,
// grading and summarization components.
package llm

import "context"

// Operation names label model calls in logs, metrics and analytics
const (
	OperationDraft    = "draft"
	OperationGrade    = "grade"
	OperationSummary  = "summary"
	OperationPriority = "priority"
	OperationEmbed    = "embed"
)

// CompletionRequest is a single-turn prompt completion
type CompletionRequest struct {
	Operation   string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSON        bool // ask the model for a JSON object
}

// Completer issues one prompt completion per call and keeps no conversation state
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder converts texts to vectors, one vector per input, in input order
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// UsageRecorder receives token usage of completed model calls
type UsageRecorder interface {
	TrackOpenAICall(operation, model string, tokens int) error
}
