// Package reasoning runs the bounded ReAct loop that turns a routed query
// into a verified, cited answer streamed as ordered events.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/config"
	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
	domreason "github.com/oriane-labs/wayfind/internal/domain/reasoning"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/domain/stream"
	"github.com/oriane-labs/wayfind/internal/metrics"
	"github.com/oriane-labs/wayfind/internal/tool"
)

const (
	// eventBuffer decouples the producer from a slow consumer without
	// letting a stalled one pin goroutines forever (the context does that).
	eventBuffer = 16

	// tokenChunkSize is the target size of one token event's text.
	tokenChunkSize = 48

	// harvestTimeout bounds the background fact-harvest after a run.
	harvestTimeout = 30 * time.Second

	answerTone = "clear and professional"
)

// Config holds reasoning loop settings.
type Config struct {
	MaxIterations  int
	MaxRefinements int
}

// ConfigFrom converts the yaml config section.
func ConfigFrom(c config.ReasoningConfig) Config {
	return Config{
		MaxIterations:  c.MaxIterations,
		MaxRefinements: c.MaxRefinements,
	}
}

// Service orchestrates one reasoning run end to end: budget gate, routing,
// cache lookup, the tool loop, self-verification and the final stream.
type Service struct {
	model  Model
	router Router
	tools  Tools
	cache  Cache
	memory Memory
	budget Budget
	cfg    Config
	logger *zap.Logger
}

// New creates the reasoning service.
func New(
	model Model, router Router, tools Tools,
	cache Cache, memory Memory, budget Budget,
	cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		model:  model,
		router: router,
		tools:  tools,
		cache:  cache,
		memory: memory,
		budget: budget,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts a reasoning run and returns its event stream.
// The channel is closed after the terminal done event. Cancelling ctx
// abandons the run; an abandoned stream may end without done.
func (s *Service) Run(ctx context.Context, q *domain.Query) <-chan stream.Event {
	events := make(chan stream.Event, eventBuffer)
	go func() {
		defer close(events)
		s.run(ctx, q, events)
	}()
	return events
}

func (s *Service) run(ctx context.Context, q *domain.Query, events chan<- stream.Event) {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID))

	emit := func(ev stream.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(msg string) {
		if emit(stream.Error(msg)) {
			emit(stream.Done(runID, false))
		}
	}

	if err := s.budget.Check(ctx); err != nil {
		log.Warn("run rejected", zap.Error(err))
		fail(userMessage(err))
		return
	}

	// Tools read the requester from context, never from model input.
	ctx = domain.ContextWithRequester(ctx, domain.Requester{Owner: q.Owner(), Tier: q.Tier()})

	decision := s.router.Route(q)
	if !emit(stream.Status(fmt.Sprintf("Routing to the %s domain", decision.Primary()))) {
		return
	}

	if ans, ok := s.cache.Lookup(ctx, q.Text(), decision.Primary(), q.Tier()); ok {
		log.Debug("cache hit", zap.String("domain", decision.Primary()))
		if !s.streamAnswer(emit, ans) {
			return
		}
		emit(stream.Done(runID, true))
		return
	}

	ans, err := s.reason(ctx, q, &decision, emit, log)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("run failed", zap.Error(err))
		fail(userMessage(err))
		return
	}

	if !s.streamAnswer(emit, ans) {
		return
	}

	s.cache.Save(ctx, q.Text(), decision.Primary(), q.Tier(), ans)
	s.harvestAsync(q, ans)

	if u := domain.UsageFromContext(ctx); u != nil && u.Used {
		s.budget.Record(int64(u.Total()))
	}

	emit(stream.Done(runID, false))
}

// reason runs the tool loop and the verification pass. It emits only
// status and tool events; the caller streams the answer.
func (s *Service) reason(
	ctx context.Context, q *domain.Query, decision *routing.Decision,
	emit func(stream.Event) bool, log *zap.Logger,
) (domreason.Answer, error) {
	system := s.systemPrompt(ctx, q, decision)

	if !emit(stream.Status("Working on an answer")) {
		return domreason.Answer{}, ctx.Err()
	}

	var (
		trace           []domreason.Step
		citations       []evidence.Citation
		answerText      string
		retrievalFailed bool
	)

	iterations := 0
	for iterations < s.cfg.MaxIterations {
		iterations++

		d, err := s.model.Decide(ctx, system, transcript(q, trace))
		if err != nil {
			return domreason.Answer{}, err
		}

		if d.FinalAnswer != "" {
			answerText = d.FinalAnswer
			trace = append(trace, domreason.Step{Kind: domreason.FinalAnswer, Output: d.FinalAnswer})
			break
		}

		if d.Action == nil {
			trace = append(trace, domreason.Step{Kind: domreason.Thought, Output: d.Thought})
			continue
		}

		if d.Thought != "" {
			trace = append(trace, domreason.Step{Kind: domreason.Thought, Output: d.Thought})
		}
		trace = append(trace, domreason.Step{
			Kind:  domreason.Action,
			Tool:  d.Action.Tool,
			Input: d.Action.Input,
		})

		if !emit(stream.ToolStart(d.Action.Tool)) {
			return domreason.Answer{}, ctx.Err()
		}

		res, obs, failed, err := s.invokeTool(ctx, d.Action.Tool, d.Action.Input)
		if err != nil {
			return domreason.Answer{}, err
		}
		if failed {
			if strings.Contains(obs, domain.ErrRetrievalUnavailable.Error()) {
				retrievalFailed = true
			}
			if !emit(stream.ToolResult(d.Action.Tool, "", obs)) {
				return domreason.Answer{}, ctx.Err()
			}
		} else {
			citations = mergeCitations(citations, res.Citations)
			if !emit(stream.ToolResult(d.Action.Tool, summarize(obs), "")) {
				return domreason.Answer{}, ctx.Err()
			}
		}
		trace = append(trace, domreason.Step{
			Kind:   domreason.Observation,
			Tool:   d.Action.Tool,
			Output: obs,
			Failed: failed,
		})
	}
	metrics.ReasoningIterations.Observe(float64(iterations))

	// Retrieval is down and nothing was gathered: say so instead of
	// answering from model priors.
	if retrievalFailed && len(citations) == 0 {
		return domreason.Answer{
			Text:   "I could not retrieve the information needed to answer this reliably. Please try again shortly.",
			Caveat: "the knowledge base was unavailable during this run",
		}, nil
	}

	ans := domreason.Answer{Citations: citations}

	if answerText == "" {
		// The iteration cap forces a disclaimed answer, never an error.
		log.Warn("iteration cap reached", zap.Int("iterations", iterations))
		ans.Text = forcedAnswer(trace)
		ans.Truncated = true
		ans.Caveat = "the reasoning step limit was reached before this answer could be fully confirmed"
		return ans, nil
	}
	ans.Text = answerText

	ans = s.verify(ctx, q, system, trace, ans, emit, log)

	if polished, err := s.model.Polish(ctx, ans.Text, answerTone); err != nil {
		log.Warn("polish failed", zap.Error(err))
	} else if polished != "" {
		ans.Text = polished
	}

	return ans, nil
}

// invokeTool wraps registry invocation. Tool failures become observations
// so the loop can adapt; only context cancellation aborts the run.
func (s *Service) invokeTool(
	ctx context.Context, name string, input json.RawMessage,
) (res tool.Result, observation string, failed bool, err error) {
	r, invokeErr := s.tools.Invoke(ctx, name, input)
	if invokeErr != nil {
		if ctx.Err() != nil {
			return tool.Result{}, "", false, ctx.Err()
		}
		return tool.Result{}, "tool failed: " + invokeErr.Error(), true, nil
	}
	return r, r.Content, false, nil
}

// verify runs the self-check and, on an unsupported draft, at most
// MaxRefinements retrieval-refine cycles before settling for a caveat.
func (s *Service) verify(
	ctx context.Context, q *domain.Query, system string,
	trace []domreason.Step, ans domreason.Answer,
	emit func(stream.Event) bool, log *zap.Logger,
) domreason.Answer {
	passages := observationPassages(trace)
	if len(passages) == 0 {
		return ans
	}

	v, err := s.model.Verify(ctx, q.Text(), ans.Text, passages)
	if err != nil {
		log.Warn("verification failed", zap.Error(err))
		ans.Caveat = "this answer could not be cross-checked against the retrieved evidence"
		return ans
	}
	if v.Supported {
		ans.Verified = true
		return ans
	}

	for r := 0; r < s.cfg.MaxRefinements; r++ {
		refined, ok := s.refine(ctx, q, system, &trace, &ans, emit, log)
		if !ok {
			break
		}
		ans = refined
		rv, err := s.model.Verify(ctx, q.Text(), ans.Text, observationPassages(trace))
		if err != nil {
			log.Warn("re-verification failed", zap.Error(err))
			break
		}
		if rv.Supported {
			ans.Verified = true
			return ans
		}
		v = rv
	}

	ans.Verified = false
	ans.Caveat = v.Reason
	if ans.Caveat == "" {
		ans.Caveat = "parts of this answer could not be confirmed against the retrieved evidence"
	}
	return ans
}

// refine fetches fresh evidence for the original question and asks the
// model for a revised final answer.
func (s *Service) refine(
	ctx context.Context, q *domain.Query, system string,
	trace *[]domreason.Step, ans *domreason.Answer,
	emit func(stream.Event) bool, log *zap.Logger,
) (domreason.Answer, bool) {
	input, err := json.Marshal(map[string]string{"query": q.Text()})
	if err != nil {
		return domreason.Answer{}, false
	}

	if !emit(stream.ToolStart("knowledge_search")) {
		return domreason.Answer{}, false
	}
	res, obs, failed, err := s.invokeTool(ctx, "knowledge_search", input)
	if err != nil {
		return domreason.Answer{}, false
	}
	if failed {
		emit(stream.ToolResult("knowledge_search", "", obs))
		log.Warn("refinement retrieval failed", zap.String("observation", obs))
		return domreason.Answer{}, false
	}
	if !emit(stream.ToolResult("knowledge_search", summarize(obs), "")) {
		return domreason.Answer{}, false
	}

	*trace = append(*trace,
		domreason.Step{Kind: domreason.Observation, Tool: "knowledge_search", Output: obs},
		domreason.Step{Kind: domreason.Thought, Output: "The draft answer was not fully supported. Revise it using the latest evidence."},
	)

	d, err := s.model.Decide(ctx, system, transcript(q, *trace))
	if err != nil || d.FinalAnswer == "" {
		if err != nil {
			log.Warn("refinement decide failed", zap.Error(err))
		}
		return domreason.Answer{}, false
	}

	refined := *ans
	refined.Text = d.FinalAnswer
	refined.Citations = mergeCitations(ans.Citations, res.Citations)
	*trace = append(*trace, domreason.Step{Kind: domreason.FinalAnswer, Output: d.FinalAnswer})
	return refined, true
}

// streamAnswer chunks the answer into token events and appends the
// citations event. Returns false when the consumer is gone.
func (s *Service) streamAnswer(emit func(stream.Event) bool, ans domreason.Answer) bool {
	text := ans.Text
	if ans.Caveat != "" {
		text += "\n\nNote: " + ans.Caveat + "."
	}
	for _, chunk := range chunkText(text, tokenChunkSize) {
		if !emit(stream.Token(chunk)) {
			return false
		}
	}
	return emit(stream.Citations(ans.Citations))
}

// harvestAsync extracts durable facts from the completed exchange without
// blocking the response stream.
func (s *Service) harvestAsync(q *domain.Query, ans domreason.Answer) {
	if q.Owner() == "" {
		return
	}
	conversation := renderConversation(q, ans.Text)
	owner := q.Owner()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), harvestTimeout)
		defer cancel()
		s.memory.HarvestTurn(ctx, owner, conversation)
	}()
}

// systemPrompt assembles the loop's system prompt: instructions, the tool
// catalogue and any remembered context for this requester.
func (s *Service) systemPrompt(ctx context.Context, q *domain.Query, decision *routing.Decision) string {
	var b strings.Builder
	b.WriteString("You are a careful assistant that answers questions using the available tools.\n")
	b.WriteString("Every factual claim must come from tool observations, not prior knowledge.\n")
	b.WriteString("Respond with a single JSON object per turn, either\n")
	b.WriteString(`{"thought": "...", "action": {"tool": "...", "input": {...}}}` + "\n")
	b.WriteString("to use a tool, or\n")
	b.WriteString(`{"thought": "...", "final_answer": "..."}` + "\n")
	b.WriteString("when you have enough evidence to answer.\n\n")

	b.WriteString("Available tools:\n")
	b.WriteString(s.tools.Describe())
	b.WriteString("\n")

	fmt.Fprintf(&b, "The question was classified into the %q domain.\n", decision.Primary())

	if q.Owner() != "" {
		if facts, err := s.memory.RecallFacts(ctx, q.Owner()); err != nil {
			s.logger.Warn("fact recall failed", zap.Error(err))
		} else if len(facts) > 0 {
			b.WriteString("\nKnown facts about the requester:\n")
			for _, f := range facts {
				fmt.Fprintf(&b, "- %s %s = %s\n", f.Subject(), f.Attribute(), f.Value())
			}
		}

		if snippets, err := s.memory.RecallAssist(ctx, decision, q.Owner(), q.Text()); err != nil {
			s.logger.Warn("assist recall failed", zap.Error(err))
		} else if len(snippets) > 0 {
			b.WriteString("\nPossibly relevant prior context:\n")
			for _, sn := range snippets {
				fmt.Fprintf(&b, "- %s\n", sn.Text)
			}
		}
	}

	return b.String()
}

// renderConversation flattens the exchange for fact extraction.
func renderConversation(q *domain.Query, answer string) string {
	var b strings.Builder
	for _, t := range q.History() {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	fmt.Fprintf(&b, "user: %s\nassistant: %s\n", q.Text(), answer)
	return b.String()
}

// transcript renders conversation history plus the reasoning trace as
// chat turns for the decide call.
func transcript(q *domain.Query, trace []domreason.Step) []domain.Turn {
	turns := make([]domain.Turn, 0, len(q.History())+len(trace)+1)
	turns = append(turns, q.History()...)
	turns = append(turns, domain.Turn{Role: "user", Content: q.Text()})

	for _, st := range trace {
		switch st.Kind {
		case domreason.Thought:
			turns = append(turns, domain.Turn{Role: "assistant", Content: "Thought: " + st.Output})
		case domreason.Action:
			turns = append(turns, domain.Turn{
				Role:    "assistant",
				Content: fmt.Sprintf("Action: %s %s", st.Tool, string(st.Input)),
			})
		case domreason.Observation:
			prefix := "Observation: "
			if st.Failed {
				prefix = "Observation (tool failed): "
			}
			turns = append(turns, domain.Turn{Role: "user", Content: prefix + st.Output})
		case domreason.FinalAnswer:
			turns = append(turns, domain.Turn{Role: "assistant", Content: st.Output})
		}
	}
	return turns
}

// observationPassages collects successful tool outputs for verification.
func observationPassages(trace []domreason.Step) []string {
	var passages []string
	for _, st := range trace {
		if st.Kind == domreason.Observation && !st.Failed && st.Output != "" {
			passages = append(passages, st.Output)
		}
	}
	return passages
}

// forcedAnswer builds the disclaimed answer used when the iteration cap
// fires before the model produced one.
func forcedAnswer(trace []domreason.Step) string {
	for i := len(trace) - 1; i >= 0; i-- {
		st := trace[i]
		if st.Kind == domreason.Observation && !st.Failed && st.Output != "" {
			return "Based on what could be gathered so far: " + summarize(st.Output)
		}
	}
	return "I could not reach a confident answer within the allotted reasoning steps."
}

// mergeCitations appends new citations, deduplicated by source, keeping
// first-use order.
func mergeCitations(existing, incoming []evidence.Citation) []evidence.Citation {
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[c.SourceID] = struct{}{}
	}
	for _, c := range incoming {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		existing = append(existing, c)
	}
	return existing
}

// chunkText splits text into chunks of roughly size bytes, cutting at
// spaces where possible. Concatenating the chunks restores the exact text.
// Always returns at least one chunk.
func chunkText(text string, size int) []string {
	var chunks []string
	for len(text) > size {
		cut := strings.LastIndexByte(text[:size], ' ')
		if cut <= 0 {
			cut = size
			for cut > 1 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return append(chunks, text)
}

const summaryLimit = 200

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= summaryLimit {
		return text
	}
	cut := summaryLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

// userMessage maps internal errors to messages safe to stream to clients.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrBudgetExhausted):
		return "The service token budget is exhausted. Please try again later."
	case errors.Is(err, domain.ErrUpstreamRateLimited):
		return "The model provider is rate limiting requests. Please retry shortly."
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "An upstream service timed out. Please retry shortly."
	case errors.Is(err, domain.ErrModelProviderError):
		return "The model provider is currently unavailable."
	default:
		return "An internal error interrupted this run."
	}
}
