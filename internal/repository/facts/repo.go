// Package facts persists memory facts as one hash per owner.
package facts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriane-labs/wayfind/internal/domain/fact"
)

// store is the consumer interface for fact storage (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, key string) error
}

// factDTO is the hash field value format.
type factDTO struct {
	Subject    string  `json:"subject"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Provenance string  `json:"provenance,omitempty"`
	CreatedAt  int64   `json:"created_at"`
}

// Repo keeps all facts of an owner in a single hash, keyed by subject|attribute.
type Repo struct {
	store  store
	prefix string
}

// New creates a fact repository. keyPrefix namespaces all keys.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// Put stores or replaces the fact for its (subject, attribute) slot.
func (r *Repo) Put(ctx context.Context, f *fact.Fact) error {
	data, err := json.Marshal(factDTO{
		Subject:    f.Subject(),
		Attribute:  f.Attribute(),
		Value:      f.Value(),
		Confidence: f.Confidence(),
		Provenance: f.Provenance(),
		CreatedAt:  f.CreatedAt(),
	})
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}

	key := r.ownerKey(f.Owner())
	if err := r.store.HSet(ctx, key, map[string]string{f.Key(): string(data)}); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// GetAll returns every stored fact for the owner. Malformed entries are skipped.
func (r *Repo) GetAll(ctx context.Context, owner string) ([]fact.Fact, error) {
	key := r.ownerKey(owner)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}

	facts := make([]fact.Fact, 0, len(m))
	for _, raw := range m {
		var dto factDTO
		if err := json.Unmarshal([]byte(raw), &dto); err != nil {
			continue
		}
		f, err := fact.New(owner, dto.Subject, dto.Attribute, dto.Value, dto.Confidence, dto.Provenance, dto.CreatedAt)
		if err != nil {
			continue
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// Remove deletes the given (subject|attribute) slots for the owner.
func (r *Repo) Remove(ctx context.Context, owner string, factKeys ...string) error {
	if len(factKeys) == 0 {
		return nil
	}
	key := r.ownerKey(owner)
	if err := r.store.HDel(ctx, key, factKeys...); err != nil {
		return fmt.Errorf("hdel %s: %w", key, err)
	}
	return nil
}

// Purge deletes all facts of an owner.
func (r *Repo) Purge(ctx context.Context, owner string) error {
	key := r.ownerKey(owner)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (r *Repo) ownerKey(owner string) string {
	return fmt.Sprintf("%sfacts:%s", r.prefix, owner)
}
