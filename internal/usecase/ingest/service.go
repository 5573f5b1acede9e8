// Package ingest maintains the evidence corpus behind retrieval: upserts,
// tombstones and deletions, with embedding at write time.
package ingest

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// Service writes evidence documents into the per-domain indexes.
type Service struct {
	store    Store
	embedder Embedder
	domains  map[string]struct{}
	logger   *zap.Logger
}

// New creates the ingest service. knownDomains is the configured routing
// domain set; writes outside it are rejected.
func New(store Store, embedder Embedder, knownDomains []string, logger *zap.Logger) *Service {
	set := make(map[string]struct{}, len(knownDomains))
	for _, d := range knownDomains {
		set[d] = struct{}{}
	}
	return &Service{store: store, embedder: embedder, domains: set, logger: logger}
}

// Domains returns the configured domain names, sorted.
func (s *Service) Domains() []string {
	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Upsert embeds and stores one evidence document. Returns true when the
// document was created rather than replaced.
func (s *Service) Upsert(
	ctx context.Context,
	domainName, sourceID, title, content, locator string, minLevel int,
) (bool, error) {
	if _, ok := s.domains[domainName]; !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownDomain, domainName)
	}

	item, err := evidence.New(sourceID, domainName, content, title, locator, 0, 0, 0, minLevel)
	if err != nil {
		return false, fmt.Errorf("build evidence: %w", err)
	}

	emb, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return false, fmt.Errorf("embed evidence: %w", err)
	}

	created, err := s.store.Upsert(ctx, &item, emb.Embedding)
	if err != nil {
		return false, err
	}

	s.logger.Info("evidence upserted",
		zap.String("domain", domainName),
		zap.String("source_id", sourceID),
		zap.Bool("created", created),
	)
	return created, nil
}

// Supersede tombstones a document so retrieval stops returning it, without
// destroying the record.
func (s *Service) Supersede(ctx context.Context, domainName, sourceID string) error {
	if _, ok := s.domains[domainName]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDomain, domainName)
	}
	return s.store.Supersede(ctx, domainName, sourceID)
}

// Delete removes a document entirely.
func (s *Service) Delete(ctx context.Context, domainName, sourceID string) error {
	if _, ok := s.domains[domainName]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDomain, domainName)
	}
	if err := s.store.Delete(ctx, domainName, sourceID); err != nil {
		return err
	}
	s.logger.Info("evidence deleted",
		zap.String("domain", domainName),
		zap.String("source_id", sourceID),
	)
	return nil
}
