// Package memory is the single entry point over the three memory stores:
// durable facts, domain knowledge (via retrieval) and recall-assist.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain/fact"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

// Config holds memory tuning knobs.
type Config struct {
	MaxFactsPerOwner int
	AssistTopK       int
}

// Service is the memory orchestrator facade. Domain knowledge questions are
// answered only through the retrieval engine; recall-assist is consulted only
// for override-routed (identity/team) queries, and its results are candidate
// context, never an authoritative answer. No component may reach the
// recall-assist store except through this facade.
type Service struct {
	facts     FactStore
	assist    AssistIndex
	embed     Embedder
	extractor FactExtractor
	cfg       Config
	logger    *zap.Logger
}

// New creates the memory orchestrator.
func New(
	facts FactStore, assist AssistIndex, embed Embedder, extractor FactExtractor,
	cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		facts:     facts,
		assist:    assist,
		embed:     embed,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// RecallFacts returns the owner's facts, highest confidence first.
func (s *Service) RecallFacts(ctx context.Context, owner string) ([]fact.Fact, error) {
	all, err := s.facts.GetAll(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("recall facts: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Confidence() != all[j].Confidence() {
			return all[i].Confidence() > all[j].Confidence()
		}
		return all[i].CreatedAt() > all[j].CreatedAt()
	})
	return all, nil
}

// WriteFact stores a fact with write-time dedup and the per-owner cap.
// A new (owner, subject, attribute) triple replaces the stored record only
// when its confidence is not lower; overflow evicts the lowest-confidence,
// oldest record.
func (s *Service) WriteFact(ctx context.Context, f fact.Fact) error {
	existing, err := s.facts.GetAll(ctx, f.Owner())
	if err != nil {
		return fmt.Errorf("write fact: %w", err)
	}

	replaced := false
	for i := range existing {
		if existing[i].Key() != f.Key() {
			continue
		}
		if !f.Supersedes(existing[i]) {
			metrics.FactWritesTotal.WithLabelValues("kept").Inc()
			return nil
		}
		replaced = true
		break
	}

	if err := s.facts.Put(ctx, &f); err != nil {
		return fmt.Errorf("write fact: %w", err)
	}

	if replaced {
		metrics.FactWritesTotal.WithLabelValues("superseded").Inc()
		return nil
	}
	metrics.FactWritesTotal.WithLabelValues("stored").Inc()

	if s.cfg.MaxFactsPerOwner > 0 && len(existing)+1 > s.cfg.MaxFactsPerOwner {
		if err := s.evictOne(ctx, f.Owner(), existing, f.Key()); err != nil {
			s.logger.Warn("Fact eviction failed",
				zap.String("owner", f.Owner()), zap.Error(err))
		}
	}
	return nil
}

// evictOne removes the lowest-confidence, oldest fact, never the one just written.
func (s *Service) evictOne(ctx context.Context, owner string, existing []fact.Fact, keep string) error {
	victim := -1
	for i := range existing {
		if existing[i].Key() == keep {
			continue
		}
		if victim < 0 {
			victim = i
			continue
		}
		v := &existing[victim]
		c := &existing[i]
		if c.Confidence() < v.Confidence() ||
			(c.Confidence() == v.Confidence() && c.CreatedAt() < v.CreatedAt()) {
			victim = i
		}
	}
	if victim < 0 {
		return nil
	}

	if err := s.facts.Remove(ctx, owner, existing[victim].Key()); err != nil {
		return err
	}
	metrics.FactWritesTotal.WithLabelValues("evicted").Inc()
	return nil
}

// RecallAssist returns candidate personal/team context for a query.
// It is gated on the routing decision: only priority-override routes
// (identity/team) may consult the recall-assist index.
func (s *Service) RecallAssist(
	ctx context.Context, decision *routing.Decision, owner, query string,
) ([]fact.Snippet, error) {
	if !decision.Overridden() {
		return nil, nil
	}

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall assist: %w", err)
	}

	hits, err := s.assist.Search(ctx, owner, emb.Embedding, s.cfg.AssistTopK)
	if err != nil {
		return nil, fmt.Errorf("recall assist: %w", err)
	}
	return hits, nil
}

// HarvestTurn extracts durable facts from a finished conversation turn,
// stores them and indexes snippets for recall-assist. It runs after the
// answer stream completes and never blocks it; failures are logged only.
func (s *Service) HarvestTurn(ctx context.Context, owner, conversation string) {
	extracted, err := s.extractor.ExtractFacts(ctx, conversation)
	if err != nil {
		s.logger.Warn("Fact extraction failed", zap.String("owner", owner), zap.Error(err))
		return
	}

	now := time.Now().UnixMilli()
	for _, e := range extracted {
		f, err := fact.New(owner, e.Subject, e.Attribute, e.Value, e.Confidence, "conversation", now)
		if err != nil {
			s.logger.Debug("Skipping malformed extracted fact", zap.Error(err))
			continue
		}

		if err := s.WriteFact(ctx, f); err != nil {
			s.logger.Warn("Fact write failed", zap.String("owner", owner), zap.Error(err))
			continue
		}

		text := fmt.Sprintf("%s %s: %s", f.Subject(), f.Attribute(), f.Value())
		emb, err := s.embed.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("Snippet embed failed", zap.String("owner", owner), zap.Error(err))
			continue
		}
		if err := s.assist.Index(ctx, owner, f.Key(), text, emb.Embedding); err != nil {
			s.logger.Warn("Snippet index failed", zap.String("owner", owner), zap.Error(err))
		}
	}
}

// ForgetOwner removes all stored facts and assist snippets of an owner.
func (s *Service) ForgetOwner(ctx context.Context, owner string) error {
	if err := s.facts.Purge(ctx, owner); err != nil {
		return fmt.Errorf("forget owner: %w", err)
	}
	if err := s.assist.Purge(ctx, owner); err != nil {
		return fmt.Errorf("forget owner: %w", err)
	}
	return nil
}
