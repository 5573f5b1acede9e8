package wayfind

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ask" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprint(w, f)
		}
	}
}

func frame(id, typ, payload string) string {
	return fmt.Sprintf("event: %s\ndata: {\"id\": %q, \"type\": %q, \"payload\": %s}\n\n", typ, id, typ, payload)
}

func TestAsk_ParsesStream(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		frame("1", "status", `{"message": "Routing to the tax domain"}`),
		frame("2", "tool_start", `{"tool": "knowledge_search"}`),
		frame("3", "tool_result", `{"tool": "knowledge_search", "summary": "found 3 passages"}`),
		frame("4", "token", `{"text": "The threshold is"}`),
		frame("5", "token", `{"text": " 22000 euro."}`),
		frame("6", "citations", `{"citations": [{"source_id": "doc-1", "title": "VAT", "locator": "handbook#4"}]}`),
		frame("7", "done", `{"run_id": "run-1"}`),
	}))
	defer srv.Close()

	client := New(srv.URL)
	events, err := client.Ask(context.Background(), AskRequest{Query: "vat threshold"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	var types []EventType
	var tokens string
	var citations []Citation
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("stream error: %v", ev.Err)
		}
		types = append(types, ev.Type)
		if ev.Type == EventToken {
			tokens += ev.Token
		}
		if ev.Type == EventCitations {
			citations = ev.Citations
		}
	}

	want := []EventType{EventStatus, EventToolStart, EventToolResult, EventToken, EventToken, EventCitations, EventDone}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, types[i], want[i])
		}
	}
	if tokens != "The threshold is 22000 euro." {
		t.Errorf("unexpected answer %q", tokens)
	}
	if len(citations) != 1 || citations[0].SourceID != "doc-1" {
		t.Errorf("unexpected citations %+v", citations)
	}
}

func TestAskText_CollectsAnswer(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		frame("1", "token", `{"text": "42"}`),
		frame("2", "citations", `{"citations": []}`),
		frame("3", "done", `{"run_id": "run-2", "cached": true}`),
	}))
	defer srv.Close()

	ans, err := New(srv.URL).AskText(context.Background(), "q")
	if err != nil {
		t.Fatalf("AskText: %v", err)
	}
	if ans.Text != "42" || ans.RunID != "run-2" || !ans.Cached {
		t.Errorf("unexpected answer %+v", ans)
	}
}

func TestAskText_RunErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		frame("1", "error", `{"message": "The model provider is currently unavailable."}`),
		frame("2", "done", `{"run_id": "run-3"}`),
	}))
	defer srv.Close()

	_, err := New(srv.URL).AskText(context.Background(), "q")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "The model provider is currently unavailable." {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestAsk_HTTPErrorBeforeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"code": "budget_exhausted", "message": "token budget exhausted"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Ask(context.Background(), AskRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRateLimited(err) {
		t.Errorf("expected rate-limited error, got %v", err)
	}
}

func TestClient_SendsAPIKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(UsageReport{DailyLimit: 100})
	}))
	defer srv.Close()

	report, err := New(srv.URL, WithAPIKey("secret")).Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization header %q", gotAuth)
	}
	if report.DailyLimit != 100 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestWriteFact_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/facts" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var f Fact
		_ = json.NewDecoder(r.Body).Decode(&f)
		f.Provenance = "api"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(f)
	}))
	defer srv.Close()

	f, err := New(srv.URL).WriteFact(context.Background(), Fact{
		Subject: "preference", Attribute: "language", Value: "de", Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("WriteFact: %v", err)
	}
	if f.Provenance != "api" || f.Value != "de" {
		t.Errorf("unexpected fact %+v", f)
	}
}

func TestUpsertEvidence_NotFoundDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": "unknown_domain", "message": "unknown domain"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).UpsertEvidence(context.Background(), "nope", "doc-1", EvidenceDoc{Content: "c"})
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RouteDecision{
			Primary: "tax", Confidence: 0.8, Fallbacks: []string{"general"},
		})
	}))
	defer srv.Close()

	d, err := New(srv.URL).Route(context.Background(), "corporate tax rate")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if d.Primary != "tax" || d.Confidence != 0.8 {
		t.Errorf("unexpected decision %+v", d)
	}
}
