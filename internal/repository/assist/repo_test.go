package assist

import (
	"context"
	"testing"

	"github.com/oriane-labs/wayfind/internal/db"
)

type mockStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	delFn         func(ctx context.Context, key string) error
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func TestIndex_BuildsOwnerScopedKey(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "wayfind:")

	var gotKey string
	var gotFields map[string]string
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		gotKey = key
		gotFields = fields
		return nil
	}

	err := repo.Index(context.Background(), "42", "preference-language", "prefers German", []float32{0.1, 0.2})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if gotKey != "wayfind:assist:42:preference-language" {
		t.Errorf("unexpected key %q", gotKey)
	}
	if gotFields["owner"] != "42" || gotFields["__content"] != "prefers German" {
		t.Errorf("unexpected fields %v", gotFields)
	}
}

func TestSearch_FiltersByOwner(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "wayfind:")

	var gotQuery *db.KNNQuery
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		gotQuery = q
		return &db.SearchResult{
			Total: 2,
			Entries: []db.SearchEntry{
				{Key: "wayfind:assist:42:a", Score: 0.9, Fields: map[string]string{"__content": "prefers German"}},
				{Key: "wayfind:assist:42:b", Score: 0.4, Fields: map[string]string{"__content": "  "}},
			},
		}, nil
	}

	hits, err := repo.Search(context.Background(), "42", []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery.IndexName != "wayfind:assist:idx" {
		t.Errorf("unexpected index %q", gotQuery.IndexName)
	}
	must := gotQuery.Filters.Must()
	if len(must) != 1 || must[0].Key() != "owner" || must[0].Match() != "42" {
		t.Errorf("expected owner filter, got %+v", must)
	}

	if len(hits) != 1 {
		t.Fatalf("expected 1 hit (blank content skipped), got %d", len(hits))
	}
	if hits[0].Text != "prefers German" || hits[0].Score != 0.9 {
		t.Errorf("unexpected hit %+v", hits[0])
	}
}

func TestPurge_DeletesScannedKeys(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "wayfind:")

	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != "wayfind:assist:42:*" {
			t.Errorf("unexpected pattern %q", pattern)
		}
		return []string{"wayfind:assist:42:a", "wayfind:assist:42:b"}, nil
	}

	var deleted []string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = append(deleted, key)
		return nil
	}

	if err := repo.Purge(context.Background(), "42"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("expected 2 deletions, got %v", deleted)
	}
}
