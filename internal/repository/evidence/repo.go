// Package evidence stores and searches domain evidence over FT indexes.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oriane-labs/wayfind/internal/db"
	"github.com/oriane-labs/wayfind/internal/domain"
	domev "github.com/oriane-labs/wayfind/internal/domain/evidence"
	"github.com/oriane-labs/wayfind/internal/domain/search/filter"
)

// store is the consumer interface for evidence operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Repo keeps one FT index per knowledge domain, with documents stored as hashes.
type Repo struct {
	store  store
	prefix string
}

// New creates an evidence repository. keyPrefix namespaces all keys and indexes.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// SupportsTextSearch proxies the capability check from the store.
func (r *Repo) SupportsTextSearch(ctx context.Context) bool {
	return r.store.SupportsTextSearch(ctx)
}

// EnsureIndex creates the per-domain FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, domainName string, vectorDim int) error {
	idxName := r.indexName(domainName)

	exists, err := r.store.IndexExists(ctx, idxName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", idxName, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(idxName).
		Prefix(r.docPrefix(domainName)).
		Tag(fieldDomain).
		Tag(fieldSuperseded).
		Numeric(fieldMinLevel).
		Text(fieldContent).
		VectorHNSW(fieldVector, vectorDim, db.DistanceCosine, 16, 200).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", idxName, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", idxName, err)
	}
	return nil
}

// Upsert stores or replaces an evidence document. Returns true if created.
func (r *Repo) Upsert(ctx context.Context, item *domev.Item, vector []float32) (bool, error) {
	key := r.docKey(item.Domain(), item.SourceID())

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	if err := r.store.HSet(ctx, key, buildHashFields(item, vector)); err != nil {
		return false, fmt.Errorf("hset %s: %w", key, err)
	}
	return !exists, nil
}

// Supersede tombstones a document so searches stop returning it.
func (r *Repo) Supersede(ctx context.Context, domainName, sourceID string) error {
	key := r.docKey(domainName, sourceID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrEvidenceNotFound
	}

	if err := r.store.HSet(ctx, key, map[string]string{fieldSuperseded: "1"}); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Delete removes a document entirely.
func (r *Repo) Delete(ctx context.Context, domainName, sourceID string) error {
	key := r.docKey(domainName, sourceID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrEvidenceNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// SearchDense runs a tier-filtered KNN search and returns items scored by vector similarity.
func (r *Repo) SearchDense(
	ctx context.Context, domainName string, vector []float32, tier, topK int,
) ([]domev.Item, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(domainName),
		Filters:      accessFilter(tier),
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{fieldContent, fieldTitle, fieldLocator, fieldMinLevel, "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search dense %s: %w", domainName, err)
	}

	return r.parseEntries(sr, domainName, true)
}

// SearchSparse runs a tier-filtered BM25 search and returns items scored by lexical relevance.
func (r *Repo) SearchSparse(
	ctx context.Context, domainName, query string, tier, topK int,
) ([]domev.Item, error) {
	q := &db.TextQuery{
		IndexName:    r.indexName(domainName),
		Query:        query,
		Filters:      accessFilter(tier),
		TopK:         topK,
		ReturnFields: []string{fieldContent, fieldTitle, fieldLocator, fieldMinLevel},
	}

	sr, err := r.store.SearchBM25(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search sparse %s: %w", domainName, err)
	}

	return r.parseEntries(sr, domainName, false)
}

// accessFilter builds the pre-ranking filter: the requester tier must clear
// the document's min_level, and tombstoned documents never match.
func accessFilter(tier int) filter.Expression {
	lte := float64(tier)
	levelCond, _ := filter.NewRange(fieldMinLevel, filter.Range{LTE: &lte})
	tombCond, _ := filter.NewMatch(fieldSuperseded, "1")

	expr, _ := filter.NewExpression([]filter.Condition{levelCond}, []filter.Condition{tombCond})
	return expr
}

func (r *Repo) parseEntries(sr *db.SearchResult, domainName string, dense bool) ([]domev.Item, error) {
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := r.docPrefix(domainName)
	items := make([]domev.Item, 0, len(sr.Entries))

	for _, entry := range sr.Entries {
		sourceID := strings.TrimPrefix(entry.Key, prefix)

		minLevel := 0
		if v, err := strconv.Atoi(entry.Fields[fieldMinLevel]); err == nil {
			minLevel = v
		}

		denseScore, sparseScore := 0.0, 0.0
		if dense {
			denseScore = entry.Score
		} else {
			sparseScore = entry.Score
		}

		item, err := domev.New(
			sourceID, domainName,
			entry.Fields[fieldContent], entry.Fields[fieldTitle], entry.Fields[fieldLocator],
			denseScore, sparseScore, 0, minLevel,
		)
		if err != nil {
			continue // malformed hash, skip
		}
		items = append(items, item)
	}

	return items, nil
}

func (r *Repo) indexName(domainName string) string {
	return fmt.Sprintf("%sev:%s:idx", r.prefix, domainName)
}

func (r *Repo) docPrefix(domainName string) string {
	return fmt.Sprintf("%sev:%s:", r.prefix, domainName)
}

func (r *Repo) docKey(domainName, sourceID string) string {
	return r.docPrefix(domainName) + sourceID
}
