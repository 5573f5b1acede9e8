// Package anscache persists finalized answers keyed by query fingerprint.
package anscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/db"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
	"github.com/oriane-labs/wayfind/internal/domain/reasoning"
)

// store is the consumer interface for the answer cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// entryDTO is the stored JSON format. Domain and tier are part of the
// fingerprint already; they are stored again for inspection.
type entryDTO struct {
	Answer    string              `json:"answer"`
	Caveat    string              `json:"caveat,omitempty"`
	Citations []evidence.Citation `json:"citations"`
	Domain    string              `json:"domain"`
	Tier      int                 `json:"tier"`
	CreatedAt int64               `json:"created_at"`
}

// Cache stores entries under <prefix>ans_cache:<fingerprint> with a hard TTL.
type Cache struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates an answer cache repository.
func New(s store, keyPrefix string, logger *zap.Logger) *Cache {
	return &Cache{store: s, prefix: keyPrefix, logger: logger}
}

// Get returns the cached answer for a fingerprint, if present.
// Storage failures are logged and treated as a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (reasoning.Answer, bool) {
	key := c.key(fingerprint)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read answer cache", zap.String("key", key), zap.Error(err))
		}
		return reasoning.Answer{}, false
	}

	var dto entryDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		c.logger.Warn("Failed to parse cached answer", zap.String("key", key), zap.Error(err))
		return reasoning.Answer{}, false
	}
	return reasoning.Answer{
		Text:      dto.Answer,
		Citations: dto.Citations,
		Caveat:    dto.Caveat,
		Verified:  true,
	}, true
}

// Put stores a verified answer with the given TTL. Failures are logged, not
// returned: the cache is best-effort and must never fail a request.
func (c *Cache) Put(
	ctx context.Context, fingerprint string,
	ans reasoning.Answer, domainName string, tier int, ttl time.Duration,
) {
	key := c.key(fingerprint)

	data, err := json.Marshal(entryDTO{
		Answer:    ans.Text,
		Caveat:    ans.Caveat,
		Citations: ans.Citations,
		Domain:    domainName,
		Tier:      tier,
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		c.logger.Warn("Failed to marshal answer cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Failed to write answer cache", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) key(fingerprint string) string {
	return fmt.Sprintf("%sans_cache:%s", c.prefix, fingerprint)
}
