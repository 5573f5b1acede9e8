package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oriane-labs/wayfind/internal/db"
)

type mockStore struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	incrByFn func(ctx context.Context, key string, val int64) (int64, error)
	expireFn func(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) IncrBy(ctx context.Context, key string, val int64) (int64, error) {
	if m.incrByFn != nil {
		return m.incrByFn(ctx, key, val)
	}
	return val, nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl, nx)
	}
	return nil
}

func TestIncrBy_SetsDailyTTLWithNX(t *testing.T) {
	ms := &mockStore{}
	s := New(ms, 48*time.Hour, 62*24*time.Hour)

	var gotTTL time.Duration
	var gotNX bool
	ms.expireFn = func(_ context.Context, _ string, ttl time.Duration, nx bool) error {
		gotTTL = ttl
		gotNX = nx
		return nil
	}

	total, err := s.IncrBy(context.Background(), "wayfind:budget:daily:20260828", 100)
	if err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if total != 100 {
		t.Errorf("expected total 100, got %d", total)
	}
	if gotTTL != 48*time.Hour {
		t.Errorf("expected daily TTL, got %v", gotTTL)
	}
	if !gotNX {
		t.Error("expected NX expire")
	}
}

func TestIncrBy_MonthlyTTL(t *testing.T) {
	ms := &mockStore{}
	s := New(ms, 48*time.Hour, 62*24*time.Hour)

	var gotTTL time.Duration
	ms.expireFn = func(_ context.Context, _ string, ttl time.Duration, _ bool) error {
		gotTTL = ttl
		return nil
	}

	if _, err := s.IncrBy(context.Background(), "wayfind:budget:monthly:202608", 100); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if gotTTL != 62*24*time.Hour {
		t.Errorf("expected monthly TTL, got %v", gotTTL)
	}
}

func TestGet_MissingKeyIsZero(t *testing.T) {
	s := New(&mockStore{}, time.Hour, time.Hour)

	val, err := s.Get(context.Background(), "wayfind:budget:daily:20260828")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != 0 {
		t.Errorf("expected 0, got %d", val)
	}
}

func TestGet_ParsesValue(t *testing.T) {
	ms := &mockStore{getFn: func(context.Context, string) ([]byte, error) {
		return []byte("12345"), nil
	}}
	s := New(ms, time.Hour, time.Hour)

	val, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != 12345 {
		t.Errorf("expected 12345, got %d", val)
	}
}

func TestGet_StoreError(t *testing.T) {
	ms := &mockStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}}
	s := New(ms, time.Hour, time.Hour)

	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}
