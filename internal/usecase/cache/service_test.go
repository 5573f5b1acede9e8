package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain/reasoning"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type mockStore struct {
	entries map[string]reasoning.Answer
	putTTL  time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{entries: map[string]reasoning.Answer{}}
}

func (m *mockStore) Get(_ context.Context, fingerprint string) (reasoning.Answer, bool) {
	ans, ok := m.entries[fingerprint]
	return ans, ok
}

func (m *mockStore) Put(_ context.Context, fingerprint string, ans reasoning.Answer, _ string, _ int, ttl time.Duration) {
	m.entries[fingerprint] = ans
	m.putTTL = ttl
}

func TestFingerprint_NormalizesQueryText(t *testing.T) {
	a := Fingerprint("What is the VAT rate?", "tax", 1)
	b := Fingerprint("  what is   the vat rate ", "tax", 1)

	if a != b {
		t.Error("expected normalized variants to share a fingerprint")
	}
}

func TestFingerprint_TierSeparation(t *testing.T) {
	a := Fingerprint("what is the vat rate", "tax", 1)
	b := Fingerprint("what is the vat rate", "tax", 2)

	if a == b {
		t.Error("different tiers must never share a fingerprint")
	}
}

func TestFingerprint_DomainSeparation(t *testing.T) {
	a := Fingerprint("thresholds", "tax", 1)
	b := Fingerprint("thresholds", "compliance", 1)

	if a == b {
		t.Error("different domains must never share a fingerprint")
	}
}

func TestLookupSave_RoundTrip(t *testing.T) {
	store := newMockStore()
	s := New(store, true, time.Hour, zap.NewNop())
	ctx := context.Background()

	ans := reasoning.Answer{Text: "25k", Verified: true}
	s.Save(ctx, "What is the VAT threshold?", "tax", 1, ans)

	got, ok := s.Lookup(ctx, "what is the vat threshold", "tax", 1)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Text != "25k" {
		t.Errorf("unexpected answer %+v", got)
	}
	if store.putTTL != time.Hour {
		t.Errorf("expected 1h ttl, got %v", store.putTTL)
	}
}

func TestSave_SkipsUnverifiedAndTruncated(t *testing.T) {
	store := newMockStore()
	s := New(store, true, time.Hour, zap.NewNop())
	ctx := context.Background()

	s.Save(ctx, "q", "tax", 1, reasoning.Answer{Text: "draft", Verified: false})
	s.Save(ctx, "q", "tax", 1, reasoning.Answer{Text: "forced", Verified: true, Truncated: true})

	if len(store.entries) != 0 {
		t.Errorf("expected nothing cached, got %d entries", len(store.entries))
	}
}

func TestLookup_DisabledIsAlwaysMiss(t *testing.T) {
	store := newMockStore()
	s := New(store, false, time.Hour, zap.NewNop())
	ctx := context.Background()

	s.Save(ctx, "q", "tax", 1, reasoning.Answer{Text: "x", Verified: true})
	if _, ok := s.Lookup(ctx, "q", "tax", 1); ok {
		t.Error("disabled cache must miss")
	}
}
