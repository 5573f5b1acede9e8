package memory

import (
	"context"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
)

// FactStore persists durable facts keyed by (owner, subject, attribute).
type FactStore interface {
	Put(ctx context.Context, f *fact.Fact) error
	GetAll(ctx context.Context, owner string) ([]fact.Fact, error)
	Remove(ctx context.Context, owner string, factKeys ...string) error
	Purge(ctx context.Context, owner string) error
}

// AssistIndex is the owner-scoped recall-assist vector index.
type AssistIndex interface {
	Index(ctx context.Context, owner, id, text string, vector []float32) error
	Search(ctx context.Context, owner string, vector []float32, topK int) ([]fact.Snippet, error)
	Purge(ctx context.Context, owner string) error
}

// Embedder vectorizes snippet and query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// FactExtractor pulls candidate facts out of a finished turn.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, conversation string) ([]fact.Extracted, error)
}
