package retrieval

import (
	"context"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// Repository defines the storage contract for evidence search.
// Both searches apply the access-tier filter before ranking.
type Repository interface {
	SearchDense(ctx context.Context, domainName string, vector []float32, tier, topK int) ([]evidence.Item, error)
	SearchSparse(ctx context.Context, domainName, query string, tier, topK int) ([]evidence.Item, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Reranker orders passages by relevance, best first.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]int, error)
}
