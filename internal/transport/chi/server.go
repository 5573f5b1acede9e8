// Package chi exposes the service over HTTP: the streaming ask endpoint,
// routing introspection, fact management, evidence administration and the
// operational endpoints.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/domain/stream"
	"github.com/oriane-labs/wayfind/internal/logger"
	"github.com/oriane-labs/wayfind/internal/metrics"
	"github.com/oriane-labs/wayfind/internal/usecase/budget"
	"github.com/oriane-labs/wayfind/internal/usecase/health"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest           = "bad_request"
	codeUnauthorized         = "unauthorized"
	codeNotFound             = "not_found"
	codeUnknownDomain        = "unknown_domain"
	codeRateLimited          = "rate_limited"
	codeBudgetExhausted      = "budget_exhausted"
	codeProviderError        = "provider_error"
	codeRetrievalUnavailable = "retrieval_unavailable"
	codeInternalError        = "internal_error"
)

// AskRunner starts reasoning runs.
type AskRunner interface {
	Run(ctx context.Context, q *domain.Query) <-chan stream.Event
}

// QueryRouter classifies queries without running them.
type QueryRouter interface {
	Route(q *domain.Query) routing.Decision
}

// MemoryService manages the requester's durable facts.
type MemoryService interface {
	WriteFact(ctx context.Context, f fact.Fact) error
	RecallFacts(ctx context.Context, owner string) ([]fact.Fact, error)
	ForgetOwner(ctx context.Context, owner string) error
}

// IngestService administers the evidence corpus.
type IngestService interface {
	Upsert(ctx context.Context, domainName, sourceID, title, content, locator string, minLevel int) (bool, error)
	Supersede(ctx context.Context, domainName, sourceID string) error
	Delete(ctx context.Context, domainName, sourceID string) error
}

// UsageReporter exposes the current token budget state.
type UsageReporter interface {
	Snapshot() budget.Report
}

// HealthService aggregates component readiness.
type HealthService interface {
	Check(ctx context.Context) health.Report
}

// Server holds the HTTP handlers.
type Server struct {
	ask    AskRunner
	router QueryRouter
	memory MemoryService
	ingest IngestService
	usage  UsageReporter
	health HealthService
	logger *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(
	ask AskRunner,
	router QueryRouter,
	memory MemoryService,
	ingest IngestService,
	usage UsageReporter,
	health HealthService,
	logger *zap.Logger,
) *Server {
	return &Server{
		ask:    ask,
		router: router,
		memory: memory,
		ingest: ingest,
		usage:  usage,
		health: health,
		logger: logger,
	}
}

// NewRouter assembles the routing tree. Extra middlewares (auth) run after
// the built-in request plumbing.
func NewRouter(s *Server, mw ...func(http.Handler) http.Handler) http.Handler {
	r := chirouter.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())
	for _, m := range mw {
		r.Use(m)
	}

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chirouter.Router) {
		r.Post("/ask", s.Ask)
		r.Post("/route", s.RouteQuery)
		r.Get("/usage", s.Usage)

		r.Route("/facts", func(r chirouter.Router) {
			r.Post("/", s.WriteFact)
			r.Get("/", s.ListFacts)
			r.Delete("/", s.ForgetFacts)
		})

		r.Route("/domains/{domain}/evidence/{id}", func(r chirouter.Router) {
			r.Put("/", s.UpsertEvidence)
			r.Post("/supersede", s.SupersedeEvidence)
			r.Delete("/", s.DeleteEvidence)
		})
	})

	return r
}

// requestLogger stores a request-scoped logger in the context so handlers
// and downstream code log with the request ID attached.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base
			if reqID := chiMiddleware.GetReqID(r.Context()); reqID != "" {
				l = base.With(zap.String("request_id", reqID))
			}
			next.ServeHTTP(w, r.WithContext(logger.ContextWithLogger(r.Context(), l)))
		})
	}
}

type askRequest struct {
	Query          string `json:"query"`
	Language       string `json:"language,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	History        []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history,omitempty"`
}

// Ask handles POST /v1/ask: it runs the full pipeline and streams the run's
// events as SSE frames.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	requester := domain.RequesterFromContext(r.Context())
	history := make([]domain.Turn, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, domain.Turn{Role: t.Role, Content: t.Content})
	}

	q, err := domain.NewQuery(
		req.Query, req.Language, requester.Owner, requester.Tier,
		req.ConversationID, history,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx, _ = domain.NewContextWithUsage(ctx)

	for ev := range s.ask.Run(ctx, &q) {
		if err := sse.Send(ev); err != nil {
			// Client disconnected; stop the run and drain the channel.
			logger.FromContext(r.Context()).Debug("ask stream aborted", zap.Error(err))
			cancel()
		}
	}
}

type routeResponse struct {
	Primary        string          `json:"primary"`
	Confidence     float64         `json:"confidence"`
	Fallbacks      []string        `json:"fallbacks"`
	OverrideReason string          `json:"override_reason,omitempty"`
	Scores         []scoreResponse `json:"scores,omitempty"`
}

type scoreResponse struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

// RouteQuery handles POST /v1/route: classification only, no reasoning run.
func (s *Server) RouteQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	requester := domain.RequesterFromContext(r.Context())
	q, err := domain.NewQuery(req.Query, "", requester.Owner, requester.Tier, "", nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	d := s.router.Route(&q)
	resp := routeResponse{
		Primary:        d.Primary(),
		Confidence:     d.Confidence(),
		Fallbacks:      d.Fallbacks(),
		OverrideReason: d.OverrideReason(),
	}
	for _, sc := range d.Scores() {
		resp.Scores = append(resp.Scores, scoreResponse{Domain: sc.Domain(), Confidence: sc.Confidence()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type factRequest struct {
	Subject    string  `json:"subject"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type factResponse struct {
	Subject    string  `json:"subject"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Provenance string  `json:"provenance"`
	CreatedAt  int64   `json:"created_at"`
}

// WriteFact handles POST /v1/facts for the authenticated requester.
func (s *Server) WriteFact(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	var req factRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	f, err := fact.New(
		requester.Owner, req.Subject, req.Attribute, req.Value,
		req.Confidence, "api", time.Now().UnixMilli(),
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	if err := s.memory.WriteFact(r.Context(), f); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, factToResponse(&f))
}

// ListFacts handles GET /v1/facts for the authenticated requester.
func (s *Server) ListFacts(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	facts, err := s.memory.RecallFacts(r.Context(), requester.Owner)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]factResponse, 0, len(facts))
	for i := range facts {
		items = append(items, factToResponse(&facts[i]))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []factResponse `json:"items"`
	}{Items: items})
}

// ForgetFacts handles DELETE /v1/facts: it purges everything remembered
// about the authenticated requester.
func (s *Server) ForgetFacts(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	if err := s.memory.ForgetOwner(r.Context(), requester.Owner); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type evidenceRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Locator  string `json:"locator,omitempty"`
	MinLevel int    `json:"min_level"`
}

// UpsertEvidence handles PUT /v1/domains/{domain}/evidence/{id}.
func (s *Server) UpsertEvidence(w http.ResponseWriter, r *http.Request) {
	domainName := chirouter.URLParam(r, "domain")
	sourceID := chirouter.URLParam(r, "id")

	var req evidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "content is required")
		return
	}

	created, err := s.ingest.Upsert(
		r.Context(), domainName, sourceID,
		req.Title, req.Content, req.Locator, req.MinLevel,
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, struct {
		SourceID string `json:"source_id"`
		Domain   string `json:"domain"`
		Created  bool   `json:"created"`
	}{SourceID: sourceID, Domain: domainName, Created: created})
}

// SupersedeEvidence handles POST /v1/domains/{domain}/evidence/{id}/supersede.
func (s *Server) SupersedeEvidence(w http.ResponseWriter, r *http.Request) {
	err := s.ingest.Supersede(r.Context(), chirouter.URLParam(r, "domain"), chirouter.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEvidence handles DELETE /v1/domains/{domain}/evidence/{id}.
func (s *Server) DeleteEvidence(w http.ResponseWriter, r *http.Request) {
	err := s.ingest.Delete(r.Context(), chirouter.URLParam(r, "domain"), chirouter.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage handles GET /v1/usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.usage.Snapshot())
}

// Health handles GET /health. Degraded reports 503 so load balancers can
// rotate the instance out.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, struct {
		Status string                         `json:"status"`
		Checks map[string]health.CheckResult `json:"checks"`
	}{Status: string(report.Status), Checks: report.Checks})
}

func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request) (domain.Requester, bool) {
	requester := domain.RequesterFromContext(r.Context())
	if requester.Owner == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "an identified requester is required")
		return domain.Requester{}, false
	}
	return requester, true
}

func factToResponse(f *fact.Fact) factResponse {
	return factResponse{
		Subject:    f.Subject(),
		Attribute:  f.Attribute(),
		Value:      f.Value(),
		Confidence: f.Confidence(),
		Provenance: f.Provenance(),
		CreatedAt:  f.CreatedAt(),
	}
}

// handleDomainError maps sentinel errors to HTTP responses.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownDomain):
		writeError(w, http.StatusNotFound, codeUnknownDomain, safeMessage(err))
	case errors.Is(err, domain.ErrEvidenceNotFound), errors.Is(err, domain.ErrFactNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, safeMessage(err))
	case errors.Is(err, domain.ErrBudgetExhausted):
		writeError(w, http.StatusTooManyRequests, codeBudgetExhausted, safeMessage(err))
	case errors.Is(err, domain.ErrUpstreamRateLimited):
		writeError(w, http.StatusTooManyRequests, codeRateLimited, safeMessage(err))
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeRetrievalUnavailable, safeMessage(err))
	case errors.Is(err, domain.ErrModelProviderError),
		errors.Is(err, domain.ErrEmbeddingProviderError),
		errors.Is(err, domain.ErrUpstreamTimeout):
		writeError(w, http.StatusBadGateway, codeProviderError, safeMessage(err))
	default:
		logger.FromContext(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

// safeMessage returns the sentinel text without wrapped internals.
func safeMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrUnknownDomain,
		domain.ErrEvidenceNotFound,
		domain.ErrFactNotFound,
		domain.ErrBudgetExhausted,
		domain.ErrUpstreamRateLimited,
		domain.ErrRetrievalUnavailable,
		domain.ErrModelProviderError,
		domain.ErrEmbeddingProviderError,
		domain.ErrUpstreamTimeout,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, struct {
		Error errorResponse `json:"error"`
	}{Error: errorResponse{Code: code, Message: message}})
}
