package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/domain/stream"
	"github.com/oriane-labs/wayfind/internal/usecase/budget"
	"github.com/oriane-labs/wayfind/internal/usecase/health"
)

type mockAsk struct {
	fn func(ctx context.Context, q *domain.Query) <-chan stream.Event
}

func (m *mockAsk) Run(ctx context.Context, q *domain.Query) <-chan stream.Event {
	return m.fn(ctx, q)
}

type mockRouter struct {
	decision routing.Decision
}

func (m *mockRouter) Route(*domain.Query) routing.Decision { return m.decision }

type mockMemory struct {
	written   []fact.Fact
	facts     []fact.Fact
	forgotten []string
}

func (m *mockMemory) WriteFact(_ context.Context, f fact.Fact) error {
	m.written = append(m.written, f)
	return nil
}

func (m *mockMemory) RecallFacts(context.Context, string) ([]fact.Fact, error) {
	return m.facts, nil
}

func (m *mockMemory) ForgetOwner(_ context.Context, owner string) error {
	m.forgotten = append(m.forgotten, owner)
	return nil
}

type mockIngest struct {
	upsertFn func(ctx context.Context, domainName, sourceID, title, content, locator string, minLevel int) (bool, error)
	deleteFn func(ctx context.Context, domainName, sourceID string) error
}

func (m *mockIngest) Upsert(
	ctx context.Context, domainName, sourceID, title, content, locator string, minLevel int,
) (bool, error) {
	if m.upsertFn == nil {
		return true, nil
	}
	return m.upsertFn(ctx, domainName, sourceID, title, content, locator, minLevel)
}

func (m *mockIngest) Supersede(context.Context, string, string) error { return nil }

func (m *mockIngest) Delete(ctx context.Context, domainName, sourceID string) error {
	if m.deleteFn == nil {
		return nil
	}
	return m.deleteFn(ctx, domainName, sourceID)
}

type mockUsage struct{ report budget.Report }

func (m *mockUsage) Snapshot() budget.Report { return m.report }

type mockHealth struct{ report health.Report }

func (m *mockHealth) Check(context.Context) health.Report { return m.report }

func newTestServer(t *testing.T, opts ...func(*Server)) http.Handler {
	t.Helper()
	d, err := routing.NewDecision("tax", 0.8, []string{"general"}, "", nil)
	if err != nil {
		t.Fatalf("NewDecision: %v", err)
	}
	s := NewServer(
		&mockAsk{fn: func(context.Context, *domain.Query) <-chan stream.Event {
			ch := make(chan stream.Event)
			close(ch)
			return ch
		}},
		&mockRouter{decision: d},
		&mockMemory{},
		&mockIngest{},
		&mockUsage{report: budget.Report{DailyLimit: 1000, RemainingDaily: 900}},
		&mockHealth{report: health.Report{Status: health.Healthy, Checks: map[string]health.CheckResult{"database": health.CheckOK}}},
		zap.NewNop(),
	)
	for _, o := range opts {
		o(s)
	}
	return NewRouter(s)
}

func asRequester(r *http.Request, owner string, tier int) *http.Request {
	return r.WithContext(domain.ContextWithRequester(r.Context(), domain.Requester{Owner: owner, Tier: tier}))
}

func TestAsk_StreamsSSE(t *testing.T) {
	var gotTier int
	ask := &mockAsk{fn: func(_ context.Context, q *domain.Query) <-chan stream.Event {
		gotTier = q.Tier()
		ch := make(chan stream.Event, 4)
		ch <- stream.Status("Routing to the tax domain")
		ch <- stream.Token("The threshold is 22000.")
		ch <- stream.Citations(nil)
		ch <- stream.Done("run-1", false)
		close(ch)
		return ch
	}}
	h := newTestServer(t, func(s *Server) { s.ask = ask })

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"query": "vat threshold?"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asRequester(req, "42", 2))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type %q", ct)
	}
	if gotTier != 2 {
		t.Errorf("expected requester tier on the query, got %d", gotTier)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"event: status\n", "event: token\n", "event: citations\n", "event: done\n",
		"The threshold is 22000.",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "}") {
		t.Errorf("unterminated frame:\n%s", body)
	}
}

func TestAsk_EmptyQueryRejected(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestRouteQuery(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(`{"query": "corporate tax rate"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Primary    string   `json:"primary"`
		Confidence float64  `json:"confidence"`
		Fallbacks  []string `json:"fallbacks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Primary != "tax" || resp.Confidence != 0.8 || len(resp.Fallbacks) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestWriteFact_RequiresOwner(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/facts",
		strings.NewReader(`{"subject": "preference", "attribute": "language", "value": "de", "confidence": 0.9}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestWriteFact_OwnerFromContext(t *testing.T) {
	memory := &mockMemory{}
	h := newTestServer(t, func(s *Server) { s.memory = memory })

	req := httptest.NewRequest(http.MethodPost, "/v1/facts",
		strings.NewReader(`{"subject": "preference", "attribute": "language", "value": "de", "confidence": 0.9}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asRequester(req, "42", 1))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(memory.written) != 1 || memory.written[0].Owner() != "42" {
		t.Errorf("unexpected writes %+v", memory.written)
	}
}

func TestForgetFacts(t *testing.T) {
	memory := &mockMemory{}
	h := newTestServer(t, func(s *Server) { s.memory = memory })

	req := httptest.NewRequest(http.MethodDelete, "/v1/facts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asRequester(req, "42", 1))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
	if len(memory.forgotten) != 1 || memory.forgotten[0] != "42" {
		t.Errorf("unexpected forgets %v", memory.forgotten)
	}
}

func TestUpsertEvidence_Created(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/domains/tax/evidence/doc-1",
		strings.NewReader(`{"title": "VAT", "content": "threshold is 22000", "min_level": 1}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpsertEvidence_UnknownDomainIs404(t *testing.T) {
	ingest := &mockIngest{upsertFn: func(context.Context, string, string, string, string, string, int) (bool, error) {
		return false, domain.ErrUnknownDomain
	}}
	h := newTestServer(t, func(s *Server) { s.ingest = ingest })

	req := httptest.NewRequest(http.MethodPut, "/v1/domains/nope/evidence/doc-1",
		strings.NewReader(`{"content": "c"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "unknown_domain") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestDeleteEvidence_NotFound(t *testing.T) {
	ingest := &mockIngest{deleteFn: func(context.Context, string, string) error {
		return domain.ErrEvidenceNotFound
	}}
	h := newTestServer(t, func(s *Server) { s.ingest = ingest })

	req := httptest.NewRequest(http.MethodDelete, "/v1/domains/tax/evidence/missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestUsage(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp budget.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DailyLimit != 1000 || resp.RemainingDaily != 900 {
		t.Errorf("unexpected report %+v", resp)
	}
}

func TestHealth_DegradedIs503(t *testing.T) {
	h := newTestServer(t, func(s *Server) {
		s.health = &mockHealth{report: health.Report{
			Status: health.Degraded,
			Checks: map[string]health.CheckResult{"database": health.CheckError},
		}}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}
