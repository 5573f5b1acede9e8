// Package cache fingerprints queries and short-circuits the pipeline
// with previously verified answers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain/reasoning"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

// Store persists cached answers by fingerprint with a hard TTL.
type Store interface {
	Get(ctx context.Context, fingerprint string) (reasoning.Answer, bool)
	Put(ctx context.Context, fingerprint string, ans reasoning.Answer, domainName string, tier int, ttl time.Duration)
}

// Service is the semantic answer cache.
type Service struct {
	store   Store
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

// New creates the cache service.
func New(store Store, enabled bool, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{store: store, ttl: ttl, enabled: enabled, logger: logger}
}

// Fingerprint derives the stable cache key from normalized query text, the
// resolved domain and the requester tier. Tiers see access-filtered results,
// so different tiers must never share an entry.
func Fingerprint(query, domainName string, tier int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	normalized = strings.TrimRight(normalized, " ?!.")

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", normalized, domainName, tier)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns a cached answer for the query, if present and unexpired.
func (s *Service) Lookup(ctx context.Context, query, domainName string, tier int) (reasoning.Answer, bool) {
	if !s.enabled {
		return reasoning.Answer{}, false
	}

	ans, ok := s.store.Get(ctx, Fingerprint(query, domainName, tier))
	if ok {
		metrics.CacheTotal.WithLabelValues("hit").Inc()
		s.logger.Debug("Answer cache hit", zap.String("domain", domainName))
		return ans, true
	}
	metrics.CacheTotal.WithLabelValues("miss").Inc()
	return reasoning.Answer{}, false
}

// Save caches a completed answer. Only verified, non-truncated answers
// qualify; anything else would serve a degraded answer until expiry.
func (s *Service) Save(ctx context.Context, query, domainName string, tier int, ans reasoning.Answer) {
	if !s.enabled || !ans.Verified || ans.Truncated {
		return
	}
	s.store.Put(ctx, Fingerprint(query, domainName, tier), ans, domainName, tier, s.ttl)
}
