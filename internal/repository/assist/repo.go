// Package assist indexes fact snippets per owner for recall-assist vector search.
package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oriane-labs/wayfind/internal/db"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
	"github.com/oriane-labs/wayfind/internal/domain/search/filter"
)

// store is the consumer interface for recall-assist operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo keeps a single shared FT index with an owner tag per entry.
type Repo struct {
	store  store
	prefix string
}

// New creates a recall-assist repository. keyPrefix namespaces all keys.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// EnsureIndex creates the shared recall-assist index if missing.
func (r *Repo) EnsureIndex(ctx context.Context, vectorDim int) error {
	idxName := r.indexName()

	exists, err := r.store.IndexExists(ctx, idxName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", idxName, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(idxName).
		Prefix(r.entryPrefix()).
		Tag("owner").
		VectorHNSW("vector", vectorDim, db.DistanceCosine, 16, 200).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", idxName, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", idxName, err)
	}
	return nil
}

// Index stores an owner-scoped snippet with its embedding.
// The id must be stable per snippet so re-indexing overwrites.
func (r *Repo) Index(ctx context.Context, owner, id, text string, vector []float32) error {
	key := r.entryKey(owner, id)
	fields := map[string]string{
		"owner":     owner,
		"__content": text,
		"vector":    vectorToBytes(vector),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Purge removes every indexed snippet of an owner.
func (r *Repo) Purge(ctx context.Context, owner string) error {
	keys, err := r.store.Scan(ctx, r.entryKey(owner, "*"))
	if err != nil {
		return fmt.Errorf("scan owner %s: %w", owner, err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("del %s: %w", key, err)
		}
	}
	return nil
}

// Search returns the owner's closest snippets by vector similarity.
func (r *Repo) Search(ctx context.Context, owner string, vector []float32, topK int) ([]fact.Snippet, error) {
	ownerCond, err := filter.NewMatch("owner", owner)
	if err != nil {
		return nil, fmt.Errorf("owner filter: %w", err)
	}
	expr, err := filter.NewExpression([]filter.Condition{ownerCond}, nil)
	if err != nil {
		return nil, fmt.Errorf("owner filter: %w", err)
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Filters:      expr,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__content", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search assist: %w", err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	hits := make([]fact.Snippet, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		text := strings.TrimSpace(entry.Fields["__content"])
		if text == "" {
			continue
		}
		hits = append(hits, fact.Snippet{Text: text, Score: entry.Score})
	}
	return hits, nil
}

func (r *Repo) indexName() string {
	return r.prefix + "assist:idx"
}

func (r *Repo) entryPrefix() string {
	return r.prefix + "assist:"
}

func (r *Repo) entryKey(owner, id string) string {
	return fmt.Sprintf("%s%s:%s", r.entryPrefix(), owner, id)
}
