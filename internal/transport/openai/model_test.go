package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain"
)

// chatServer returns a test server that always responds with the given content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"model":   "test-model",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
			"usage":   map[string]int{"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestModel(t *testing.T, baseURL string) *Model {
	t.Helper()
	return NewModel(&ModelConfig{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "test-model",
		Provider:      "test",
		MaxConcurrent: 2,
		MaxRetries:    0,
		Logger:        zap.NewNop(),
	})
}

func TestDecide_ParsesAction(t *testing.T) {
	server := chatServer(t, `{"thought": "need evidence", "action": {"tool": "knowledge_search", "input": {"query": "vat"}}}`)
	defer server.Close()

	m := newTestModel(t, server.URL)
	d, err := m.Decide(context.Background(), "system", []domain.Turn{{Role: "user", Content: "q"}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action == nil || d.Action.Tool != "knowledge_search" {
		t.Fatalf("expected knowledge_search action, got %+v", d)
	}
	if d.FinalAnswer != "" {
		t.Errorf("unexpected final answer %q", d.FinalAnswer)
	}
}

func TestDecide_ParsesFinalAnswer(t *testing.T) {
	server := chatServer(t, `{"thought": "done", "final_answer": "The threshold is 25k."}`)
	defer server.Close()

	m := newTestModel(t, server.URL)
	d, err := m.Decide(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.FinalAnswer != "The threshold is 25k." {
		t.Errorf("unexpected final answer %q", d.FinalAnswer)
	}
}

func TestDecide_NonJSONBecomesThought(t *testing.T) {
	server := chatServer(t, "just rambling, no structure")
	defer server.Close()

	m := newTestModel(t, server.URL)
	d, err := m.Decide(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Thought != "just rambling, no structure" || d.Action != nil {
		t.Errorf("expected raw thought, got %+v", d)
	}
}

func TestDecide_RecordsUsage(t *testing.T) {
	server := chatServer(t, `{"thought": "x", "final_answer": "y"}`)
	defer server.Close()

	m := newTestModel(t, server.URL)
	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := m.Decide(ctx, "system", nil); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if usage.ModelTokens != 30 {
		t.Errorf("expected 30 model tokens, got %d", usage.ModelTokens)
	}
}

func TestVerify_ParsesResult(t *testing.T) {
	server := chatServer(t, `{"supported": false, "reason": "claim 2 has no evidence"}`)
	defer server.Close()

	m := newTestModel(t, server.URL)
	v, err := m.Verify(context.Background(), "q", "a", []string{"passage"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Supported || v.Reason == "" {
		t.Errorf("unexpected verification %+v", v)
	}
}

func TestRerank_DropsInvalidIndexes(t *testing.T) {
	server := chatServer(t, `{"order": [2, 0, 2, 7, 1]}`)
	defer server.Close()

	m := newTestModel(t, server.URL)
	order, err := m.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	want := []int{2, 0, 1}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]: got %d, want %d", i, order[i], want[i])
		}
	}
}

func TestExtractFacts_Parses(t *testing.T) {
	server := chatServer(t, `{"facts": [{"subject": "preference", "attribute": "language", "value": "de", "confidence": 0.9}]}`)
	defer server.Close()

	m := newTestModel(t, server.URL)
	facts, err := m.ExtractFacts(context.Background(), "user: bitte auf Deutsch")
	if err != nil {
		t.Fatalf("ExtractFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Attribute != "language" {
		t.Errorf("unexpected facts %+v", facts)
	}
}

func TestPolish_EmptyOutputKeepsOriginal(t *testing.T) {
	server := chatServer(t, "   ")
	defer server.Close()

	m := newTestModel(t, server.URL)
	out, err := m.Polish(context.Background(), "original text", "concise")
	if err != nil {
		t.Fatalf("Polish: %v", err)
	}
	if out != "original text" {
		t.Errorf("expected original text, got %q", out)
	}
}

func TestComplete_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	m := newTestModel(t, server.URL)
	_, err := m.Decide(context.Background(), "system", nil)
	if !errors.Is(err, domain.ErrUpstreamRateLimited) {
		t.Errorf("expected ErrUpstreamRateLimited, got %v", err)
	}
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "boom"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"{\"thought\":\"ok\",\"final_answer\":\"done\"}"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer server.Close()

	m := NewModel(&ModelConfig{
		APIKey:        "test-key",
		BaseURL:       server.URL,
		Model:         "test-model",
		Provider:      "test",
		MaxConcurrent: 1,
		MaxRetries:    1,
		Logger:        zap.NewNop(),
	})

	d, err := m.Decide(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.FinalAnswer != "done" {
		t.Errorf("unexpected decision %+v", d)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a": 1}`, `{"a": 1}`},
		{"prefix {\"a\": 1} suffix", `{"a": 1}`},
		{"no json here", "no json here"},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
