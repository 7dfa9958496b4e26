package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"helpdesk/internal/llm"
)

// ErrEmptyText is returned when asked to embed blank text
var ErrEmptyText = errors.New("cannot embed empty text")

// Gateway converts text to vectors with a fixed embedding model.
// Provider failures are returned to the caller unchanged in kind.
type Gateway struct {
	embedder llm.Embedder
}

// NewGateway creates a gateway over an embedder
func NewGateway(embedder llm.Embedder) *Gateway {
	return &Gateway{embedder: embedder}
}

// Embed returns the vector of text using exactly one provider call
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vectors, err := g.embedder.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("failed to embed text: provider returned %d vectors", len(vectors))
	}
	return vectors[0], nil
}
