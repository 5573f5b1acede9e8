package memory

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// memFactStore is an in-memory FactStore for dedup/eviction tests.
type memFactStore struct {
	byOwner map[string]map[string]fact.Fact
	putErr  error
}

func newMemFactStore() *memFactStore {
	return &memFactStore{byOwner: map[string]map[string]fact.Fact{}}
}

func (m *memFactStore) Put(_ context.Context, f *fact.Fact) error {
	if m.putErr != nil {
		return m.putErr
	}
	if m.byOwner[f.Owner()] == nil {
		m.byOwner[f.Owner()] = map[string]fact.Fact{}
	}
	m.byOwner[f.Owner()][f.Key()] = *f
	return nil
}

func (m *memFactStore) GetAll(_ context.Context, owner string) ([]fact.Fact, error) {
	out := make([]fact.Fact, 0, len(m.byOwner[owner]))
	for _, f := range m.byOwner[owner] {
		out = append(out, f)
	}
	return out, nil
}

func (m *memFactStore) Remove(_ context.Context, owner string, keys ...string) error {
	for _, k := range keys {
		delete(m.byOwner[owner], k)
	}
	return nil
}

func (m *memFactStore) Purge(_ context.Context, owner string) error {
	delete(m.byOwner, owner)
	return nil
}

type mockAssist struct {
	indexed  []string
	searchFn func(ctx context.Context, owner string, vector []float32, topK int) ([]fact.Snippet, error)
	purged   []string
}

func (m *mockAssist) Index(_ context.Context, _, id, _ string, _ []float32) error {
	m.indexed = append(m.indexed, id)
	return nil
}

func (m *mockAssist) Search(ctx context.Context, owner string, vector []float32, topK int) ([]fact.Snippet, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, owner, vector, topK)
	}
	return nil, nil
}

func (m *mockAssist) Purge(_ context.Context, owner string) error {
	m.purged = append(m.purged, owner)
	return nil
}

type mockEmbedder struct{}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type mockExtractor struct {
	facts []fact.Extracted
	err   error
}

func (m *mockExtractor) ExtractFacts(context.Context, string) ([]fact.Extracted, error) {
	return m.facts, m.err
}

func newTestService(t *testing.T, facts FactStore, assist AssistIndex, extractor FactExtractor, maxFacts int) *Service {
	t.Helper()
	return New(facts, assist, &mockEmbedder{}, extractor, Config{
		MaxFactsPerOwner: maxFacts,
		AssistTopK:       5,
	}, zap.NewNop())
}

func mustFact(t *testing.T, owner, subject, attribute, value string, confidence float64, createdAt int64) fact.Fact {
	t.Helper()
	f, err := fact.New(owner, subject, attribute, value, confidence, "test", createdAt)
	if err != nil {
		t.Fatalf("fact.New: %v", err)
	}
	return f
}

func overriddenDecision(t *testing.T) *routing.Decision {
	t.Helper()
	d, err := routing.NewDecision("identity", 1, []string{"general"}, "identity", nil)
	if err != nil {
		t.Fatalf("NewDecision: %v", err)
	}
	return &d
}

func scoredDecision(t *testing.T) *routing.Decision {
	t.Helper()
	d, err := routing.NewDecision("tax", 0.8, []string{"general"}, "", nil)
	if err != nil {
		t.Fatalf("NewDecision: %v", err)
	}
	return &d
}

func TestWriteFact_DedupHigherConfidenceWins(t *testing.T) {
	store := newMemFactStore()
	s := newTestService(t, store, &mockAssist{}, &mockExtractor{}, 0)
	ctx := context.Background()

	if err := s.WriteFact(ctx, mustFact(t, "42", "preference", "language", "en", 0.6, 100)); err != nil {
		t.Fatalf("WriteFact: %v", err)
	}
	if err := s.WriteFact(ctx, mustFact(t, "42", "preference", "language", "de", 0.9, 200)); err != nil {
		t.Fatalf("WriteFact: %v", err)
	}

	all, _ := store.GetAll(ctx, "42")
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(all))
	}
	if all[0].Value() != "de" || all[0].Confidence() != 0.9 {
		t.Errorf("expected higher-confidence fact to win, got %+v", all[0])
	}
}

func TestWriteFact_LowerConfidenceKept(t *testing.T) {
	store := newMemFactStore()
	s := newTestService(t, store, &mockAssist{}, &mockExtractor{}, 0)
	ctx := context.Background()

	_ = s.WriteFact(ctx, mustFact(t, "42", "preference", "language", "en", 0.9, 100))
	_ = s.WriteFact(ctx, mustFact(t, "42", "preference", "language", "de", 0.5, 200))

	all, _ := store.GetAll(ctx, "42")
	if len(all) != 1 || all[0].Value() != "en" {
		t.Errorf("expected stored fact to survive a weaker write, got %+v", all)
	}
}

func TestWriteFact_CapEvictsLowestConfidence(t *testing.T) {
	store := newMemFactStore()
	s := newTestService(t, store, &mockAssist{}, &mockExtractor{}, 2)
	ctx := context.Background()

	_ = s.WriteFact(ctx, mustFact(t, "42", "a", "x", "1", 0.9, 100))
	_ = s.WriteFact(ctx, mustFact(t, "42", "b", "y", "2", 0.2, 200))
	_ = s.WriteFact(ctx, mustFact(t, "42", "c", "z", "3", 0.7, 300))

	all, _ := store.GetAll(ctx, "42")
	if len(all) != 2 {
		t.Fatalf("expected cap of 2, got %d facts", len(all))
	}
	for _, f := range all {
		if f.Subject() == "b" {
			t.Error("expected lowest-confidence fact b|y to be evicted")
		}
	}
}

func TestWriteFact_CapEvictsOldestOnTie(t *testing.T) {
	store := newMemFactStore()
	s := newTestService(t, store, &mockAssist{}, &mockExtractor{}, 2)
	ctx := context.Background()

	_ = s.WriteFact(ctx, mustFact(t, "42", "a", "x", "1", 0.5, 100))
	_ = s.WriteFact(ctx, mustFact(t, "42", "b", "y", "2", 0.5, 200))
	_ = s.WriteFact(ctx, mustFact(t, "42", "c", "z", "3", 0.9, 300))

	all, _ := store.GetAll(ctx, "42")
	for _, f := range all {
		if f.Subject() == "a" {
			t.Error("expected oldest fact a|x to be evicted on tie")
		}
	}
}

func TestRecallFacts_SortedByConfidence(t *testing.T) {
	store := newMemFactStore()
	s := newTestService(t, store, &mockAssist{}, &mockExtractor{}, 0)
	ctx := context.Background()

	_ = s.WriteFact(ctx, mustFact(t, "42", "a", "x", "1", 0.3, 100))
	_ = s.WriteFact(ctx, mustFact(t, "42", "b", "y", "2", 0.9, 200))

	facts, err := s.RecallFacts(ctx, "42")
	if err != nil {
		t.Fatalf("RecallFacts: %v", err)
	}
	if len(facts) != 2 || facts[0].Subject() != "b" {
		t.Errorf("expected highest confidence first, got %+v", facts)
	}
}

func TestRecallAssist_GatedOnOverride(t *testing.T) {
	assist := &mockAssist{searchFn: func(context.Context, string, []float32, int) ([]fact.Snippet, error) {
		return []fact.Snippet{{Text: "team lead is Priya", Score: 0.9}}, nil
	}}
	s := newTestService(t, newMemFactStore(), assist, &mockExtractor{}, 0)
	ctx := context.Background()

	// Scoring-routed domain question: assist must never be consulted.
	hits, err := s.RecallAssist(ctx, scoredDecision(t), "42", "what is the tax rate")
	if err != nil {
		t.Fatalf("RecallAssist: %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no assist hits for scored routing, got %+v", hits)
	}

	// Override-routed identity question: assist is consulted.
	hits, err = s.RecallAssist(ctx, overriddenDecision(t), "42", "who is my team lead")
	if err != nil {
		t.Fatalf("RecallAssist: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected one assist hit, got %+v", hits)
	}
}

func TestHarvestTurn_StoresAndIndexes(t *testing.T) {
	store := newMemFactStore()
	assist := &mockAssist{}
	extractor := &mockExtractor{facts: []fact.Extracted{
		{Subject: "preference", Attribute: "language", Value: "de", Confidence: 0.9},
		{Subject: "", Attribute: "broken", Value: "x", Confidence: 0.5}, // skipped
	}}
	s := newTestService(t, store, assist, extractor, 0)

	s.HarvestTurn(context.Background(), "42", "user: bitte auf Deutsch")

	all, _ := store.GetAll(context.Background(), "42")
	if len(all) != 1 {
		t.Fatalf("expected 1 stored fact, got %d", len(all))
	}
	if len(assist.indexed) != 1 || assist.indexed[0] != "preference|language" {
		t.Errorf("expected indexed snippet for the fact, got %v", assist.indexed)
	}
}

func TestHarvestTurn_ExtractionFailureIsSwallowed(t *testing.T) {
	s := newTestService(t, newMemFactStore(), &mockAssist{}, &mockExtractor{err: errors.New("model down")}, 0)

	// must not panic
	s.HarvestTurn(context.Background(), "42", "conversation")
}

func TestForgetOwner_PurgesBothStores(t *testing.T) {
	store := newMemFactStore()
	assist := &mockAssist{}
	s := newTestService(t, store, assist, &mockExtractor{}, 0)
	ctx := context.Background()

	_ = s.WriteFact(ctx, mustFact(t, "42", "a", "x", "1", 0.5, 100))
	if err := s.ForgetOwner(ctx, "42"); err != nil {
		t.Fatalf("ForgetOwner: %v", err)
	}

	all, _ := store.GetAll(ctx, "42")
	if len(all) != 0 {
		t.Errorf("expected facts purged, got %+v", all)
	}
	if len(assist.purged) != 1 || assist.purged[0] != "42" {
		t.Errorf("expected assist purge for owner, got %v", assist.purged)
	}
}
