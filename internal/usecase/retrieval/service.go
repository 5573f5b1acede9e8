// Package retrieval implements hybrid dense/sparse evidence retrieval
// with weighted fusion and selective reranking.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oriane-labs/wayfind/internal/config"
	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

// Config holds the retrieval tuning knobs.
type Config struct {
	DenseWeight   float64
	SparseWeight  float64
	TopK          int
	PathTimeout   time.Duration
	MinResults    int
	MinScore      float64
	RerankEnabled bool
	RerankEpsilon float64
}

// ConfigFrom converts the file configuration.
func ConfigFrom(cfg config.RetrievalConfig) Config {
	return Config{
		DenseWeight:   cfg.DenseWeight,
		SparseWeight:  cfg.SparseWeight,
		TopK:          cfg.TopK,
		PathTimeout:   time.Duration(cfg.PathTimeoutMS) * time.Millisecond,
		MinResults:    cfg.MinResults,
		MinScore:      cfg.MinScore,
		RerankEnabled: cfg.RerankEnabled,
		RerankEpsilon: cfg.RerankEpsilon,
	}
}

// Service is the hybrid retrieval engine.
type Service struct {
	repo     Repository
	embed    Embedder
	reranker Reranker
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval service. reranker can be nil to disable reranking.
func New(repo Repository, embed Embedder, reranker Reranker, cfg Config, logger *zap.Logger) *Service {
	return &Service{repo: repo, embed: embed, reranker: reranker, cfg: cfg, logger: logger}
}

// Retrieve runs both retrieval paths for one domain and fuses the results.
// Each path gets its own timeout so one slow path cannot stall the other.
// A failed dense path degrades to sparse-only (and vice versa); both failing
// returns ErrRetrievalUnavailable, never a silently empty result.
func (s *Service) Retrieve(
	ctx context.Context, domainName, query string, tier int,
) ([]evidence.Item, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.WithLabelValues(domainName).Observe(time.Since(start).Seconds())
	}()

	var (
		denseItems, sparseItems []evidence.Item
		denseErr, sparseErr     error
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.PathTimeout)
		defer cancel()
		denseItems, denseErr = s.searchDense(pctx, domainName, query, tier)
		s.recordPath(domainName, "dense", denseErr)
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.PathTimeout)
		defer cancel()
		sparseItems, sparseErr = s.searchSparse(pctx, domainName, query, tier)
		s.recordPath(domainName, "sparse", sparseErr)
		return nil
	})
	_ = g.Wait()

	if denseErr != nil && sparseErr != nil {
		return nil, fmt.Errorf("dense: %v; sparse: %v: %w",
			denseErr, sparseErr, domain.ErrRetrievalUnavailable)
	}

	items := fuse(denseItems, sparseItems, s.cfg.DenseWeight, s.cfg.SparseWeight)

	if s.cfg.MinScore > 0 {
		kept := items[:0]
		for _, it := range items {
			if it.Score() >= s.cfg.MinScore {
				kept = append(kept, it)
			}
		}
		items = kept
	}

	items = s.maybeRerank(ctx, query, items)

	if len(items) > s.cfg.TopK {
		items = items[:s.cfg.TopK]
	}
	return items, nil
}

// RetrieveChain walks the routing chain until a domain yields enough results.
// Returns the serving domain alongside the items. An exhausted chain with some
// evidence returns the best attempt; no evidence at all returns an empty set.
func (s *Service) RetrieveChain(
	ctx context.Context, chain []string, query string, tier int,
) (string, []evidence.Item, error) {
	bestDomain := ""
	var best []evidence.Item

	for _, domainName := range chain {
		items, err := s.Retrieve(ctx, domainName, query, tier)
		if err != nil {
			return "", nil, err
		}
		if len(items) >= s.cfg.MinResults {
			return domainName, items, nil
		}
		if len(items) > len(best) {
			bestDomain, best = domainName, items
		}
		s.logger.Debug("Domain yielded too few results, trying fallback",
			zap.String("domain", domainName), zap.Int("results", len(items)))
	}

	if bestDomain == "" && len(chain) > 0 {
		bestDomain = chain[0]
	}
	return bestDomain, best, nil
}

func (s *Service) searchDense(ctx context.Context, domainName, query string, tier int) ([]evidence.Item, error) {
	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	items, err := s.repo.SearchDense(ctx, domainName, emb.Embedding, tier, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("search dense: %w", err)
	}
	return items, nil
}

func (s *Service) searchSparse(ctx context.Context, domainName, query string, tier int) ([]evidence.Item, error) {
	if !s.repo.SupportsTextSearch(ctx) {
		return nil, errors.New("text search not supported by backend")
	}
	items, err := s.repo.SearchSparse(ctx, domainName, query, tier, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("search sparse: %w", err)
	}
	return items, nil
}

func (s *Service) recordPath(domainName, path string, err error) {
	status := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	metrics.RetrievalPathTotal.WithLabelValues(path, status).Inc()
	if err != nil {
		s.logger.Warn("Retrieval path failed",
			zap.String("domain", domainName),
			zap.String("path", path),
			zap.Error(err))
	}
}

// fuse min-max normalizes each path's scores, then combines them with the
// configured weights. Items found by both paths merge into one entry.
func fuse(dense, sparse []evidence.Item, denseWeight, sparseWeight float64) []evidence.Item {
	denseNorm := normalizeScores(dense, func(i *evidence.Item) float64 { return i.DenseScore() })
	sparseNorm := normalizeScores(sparse, func(i *evidence.Item) float64 { return i.SparseScore() })

	byID := make(map[string]evidence.Item, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))
	for _, it := range dense {
		byID[it.SourceID()] = it
		order = append(order, it.SourceID())
	}
	for _, it := range sparse {
		if prev, ok := byID[it.SourceID()]; ok {
			// Merge path scores into one item; dense carries the fields.
			merged, err := evidence.New(
				prev.SourceID(), prev.Domain(), prev.Content(), prev.Title(), prev.Locator(),
				prev.DenseScore(), it.SparseScore(), 0, prev.MinLevel(),
			)
			if err == nil {
				byID[it.SourceID()] = merged
			}
			continue
		}
		byID[it.SourceID()] = it
		order = append(order, it.SourceID())
	}

	items := make([]evidence.Item, 0, len(order))
	for _, id := range order {
		it := byID[id]
		combined := denseWeight*denseNorm[id] + sparseWeight*sparseNorm[id]
		items = append(items, it.Rescored(combined))
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score() != items[j].Score() {
			return items[i].Score() > items[j].Score()
		}
		return items[i].SourceID() < items[j].SourceID()
	})
	return items
}

// normalizeScores maps each item's path score into [0,1] by min-max.
// A single candidate (or identical scores) normalizes to 1.
func normalizeScores(items []evidence.Item, score func(*evidence.Item) float64) map[string]float64 {
	norm := make(map[string]float64, len(items))
	if len(items) == 0 {
		return norm
	}

	minS, maxS := score(&items[0]), score(&items[0])
	for i := range items[1:] {
		s := score(&items[i+1])
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}

	for i := range items {
		if maxS == minS {
			norm[items[i].SourceID()] = 1
			continue
		}
		norm[items[i].SourceID()] = (score(&items[i]) - minS) / (maxS - minS)
	}
	return norm
}

// maybeRerank invokes the listwise reranker only when the top-K combined
// scores are closely clustered, so the added latency stays bounded to
// genuinely ambiguous orderings. Rerank failures keep the fused order.
func (s *Service) maybeRerank(ctx context.Context, query string, items []evidence.Item) []evidence.Item {
	if !s.cfg.RerankEnabled || s.reranker == nil || len(items) < 2 {
		return items
	}

	top := len(items)
	if top > s.cfg.TopK {
		top = s.cfg.TopK
	}
	spread := items[0].Score() - items[top-1].Score()
	if spread >= s.cfg.RerankEpsilon {
		metrics.RerankTotal.WithLabelValues("skipped").Inc()
		return items
	}

	passages := make([]string, top)
	for i := 0; i < top; i++ {
		passages[i] = items[i].Content()
	}

	order, err := s.reranker.Rerank(ctx, query, passages)
	if err != nil {
		metrics.RerankTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Rerank failed, keeping fused order", zap.Error(err))
		return items
	}

	reranked := make([]evidence.Item, 0, len(items))
	used := make(map[int]bool, top)
	for _, idx := range order {
		if idx >= 0 && idx < top && !used[idx] {
			used[idx] = true
			reranked = append(reranked, items[idx])
		}
	}
	for i := 0; i < top; i++ {
		if !used[i] {
			reranked = append(reranked, items[i])
		}
	}
	reranked = append(reranked, items[top:]...)

	metrics.RerankTotal.WithLabelValues("applied").Inc()
	return reranked
}
