package ingest

import (
	"context"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// Store is the evidence write surface this service needs (ISP).
type Store interface {
	Upsert(ctx context.Context, item *evidence.Item, vector []float32) (bool, error)
	Supersede(ctx context.Context, domainName, sourceID string) error
	Delete(ctx context.Context, domainName, sourceID string) error
}

// Embedder vectorizes evidence content for the dense index.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
