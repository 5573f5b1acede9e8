package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
	"github.com/oriane-labs/wayfind/internal/domain/reasoning"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

// Model is a chat completion client with bounded concurrency and retries.
type Model struct {
	client     *openai.Client
	model      string
	provider   string
	sem        *semaphore.Weighted
	maxRetries int
	logger     *zap.Logger
}

// ModelConfig holds the chat provider settings.
type ModelConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Provider      string
	MaxConcurrent int
	MaxRetries    int
	Logger        *zap.Logger
}

// NewModel creates an OpenAI-compatible chat client.
func NewModel(cfg *ModelConfig) *Model {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &Model{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		provider:   cfg.Provider,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}
}

// Decide asks the model for the next loop step. The transcript carries the
// running thought/action/observation history as chat messages.
func (m *Model) Decide(ctx context.Context, system string, transcript []domain.Turn) (reasoning.Decision, error) {
	msgs := buildMessages(system, transcript)

	raw, err := m.complete(ctx, "decide", msgs, true)
	if err != nil {
		return reasoning.Decision{}, err
	}

	var d reasoning.Decision
	if uerr := json.Unmarshal([]byte(extractJSON(raw)), &d); uerr != nil {
		// Non-JSON output counts as a thought; the loop decides what to do with it.
		return reasoning.Decision{Thought: raw}, nil
	}
	return d, nil
}

// Verify checks a draft answer against the evidence it cites.
func (m *Model) Verify(ctx context.Context, question, answer string, passages []string) (reasoning.Verification, error) {
	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nDraft answer:\n")
	sb.WriteString(answer)
	sb.WriteString("\n\nEvidence:\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, p)
	}

	msgs := buildMessages(verifySystemPrompt, []domain.Turn{{Role: openai.ChatMessageRoleUser, Content: sb.String()}})

	raw, err := m.complete(ctx, "verify", msgs, true)
	if err != nil {
		return reasoning.Verification{}, err
	}

	var v reasoning.Verification
	if uerr := json.Unmarshal([]byte(extractJSON(raw)), &v); uerr != nil {
		return reasoning.Verification{}, fmt.Errorf("parse verification: %w: %w", uerr, domain.ErrModelProviderError)
	}
	return v, nil
}

// Rerank orders passages by relevance to the query. Returns zero-based
// indexes into passages, best first. Invalid or missing indexes are dropped.
func (m *Model) Rerank(ctx context.Context, query string, passages []string) ([]int, error) {
	var sb strings.Builder
	sb.WriteString("Query:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nPassages:\n")
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i, p)
	}

	msgs := buildMessages(rerankSystemPrompt, []domain.Turn{{Role: openai.ChatMessageRoleUser, Content: sb.String()}})

	raw, err := m.complete(ctx, "rerank", msgs, true)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Order []int `json:"order"`
	}
	if uerr := json.Unmarshal([]byte(extractJSON(raw)), &parsed); uerr != nil {
		return nil, fmt.Errorf("parse rerank order: %w: %w", uerr, domain.ErrModelProviderError)
	}

	order := make([]int, 0, len(parsed.Order))
	seen := make(map[int]bool, len(parsed.Order))
	for _, idx := range parsed.Order {
		if idx < 0 || idx >= len(passages) || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	return order, nil
}

// ExtractFacts pulls durable user facts out of a finished conversation turn.
func (m *Model) ExtractFacts(ctx context.Context, conversation string) ([]fact.Extracted, error) {
	msgs := buildMessages(extractSystemPrompt, []domain.Turn{{Role: openai.ChatMessageRoleUser, Content: conversation}})

	raw, err := m.complete(ctx, "extract_facts", msgs, true)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Facts []fact.Extracted `json:"facts"`
	}
	if uerr := json.Unmarshal([]byte(extractJSON(raw)), &parsed); uerr != nil {
		return nil, fmt.Errorf("parse extracted facts: %w: %w", uerr, domain.ErrModelProviderError)
	}
	return parsed.Facts, nil
}

// AnalyzeDocument answers a question about one document's content.
func (m *Model) AnalyzeDocument(ctx context.Context, content, question string) (string, error) {
	user := fmt.Sprintf("Document:\n%s\n\nQuestion:\n%s", content, question)
	msgs := buildMessages(analyzeSystemPrompt, []domain.Turn{{Role: openai.ChatMessageRoleUser, Content: user}})

	return m.complete(ctx, "analyze_document", msgs, false)
}

// Polish rewrites an answer in the requested tone without changing claims or citations.
func (m *Model) Polish(ctx context.Context, text, tone string) (string, error) {
	system := fmt.Sprintf(polishSystemPrompt, tone)
	msgs := buildMessages(system, []domain.Turn{{Role: openai.ChatMessageRoleUser, Content: text}})

	out, err := m.complete(ctx, "polish", msgs, false)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text, nil
	}
	return out, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (m *Model) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// complete runs one chat completion with bounded concurrency, retries and metrics.
func (m *Model) complete(
	ctx context.Context, purpose string, msgs []openai.ChatCompletionMessage, jsonMode bool,
) (string, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire model slot: %w", err)
	}
	defer m.sem.Release(1)

	req := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: msgs,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", mapModelError(ctx.Err())
			case <-time.After(backoff):
			}
		}

		start := time.Now()
		resp, err := m.client.CreateChatCompletion(ctx, req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			metrics.ModelRequestsTotal.WithLabelValues(m.provider, m.model, purpose, "error").Inc()
			if !isRetryable(err) {
				return "", mapModelError(err)
			}
			m.logger.Warn("Model request failed, retrying",
				zap.String("purpose", purpose),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		metrics.ModelRequestsTotal.WithLabelValues(m.provider, m.model, purpose, "success").Inc()
		metrics.ModelRequestDuration.WithLabelValues(m.provider, m.model, purpose).Observe(duration.Seconds())
		if resp.Usage.TotalTokens > 0 {
			metrics.ModelTokensTotal.WithLabelValues(m.provider, m.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.ModelTokensTotal.WithLabelValues(m.provider, m.model, "completion").Add(float64(resp.Usage.CompletionTokens))
			domain.UsageFromContext(ctx).AddModelTokens(resp.Usage.TotalTokens)
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty completion response: %w", domain.ErrModelProviderError)
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", mapModelError(lastErr)
}

func buildMessages(system string, transcript []domain.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, t := range transcript {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// isRetryable reports whether a completion error is worth another attempt.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// mapModelError wraps provider failures with the matching domain sentinel.
func mapModelError(err error) error {
	if err == nil {
		return fmt.Errorf("model request failed: %w", domain.ErrModelProviderError)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("model request: %w", domain.ErrUpstreamTimeout)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == http.StatusTooManyRequests {
		return fmt.Errorf("model request: %w", domain.ErrUpstreamRateLimited)
	}
	return fmt.Errorf("model request failed (%d): %w: %w", status, err, domain.ErrModelProviderError)
}

// extractJSON returns the first top-level JSON object in s, or s unchanged.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

const verifySystemPrompt = `You check whether a draft answer is fully supported by the given evidence.
Respond with JSON: {"supported": true|false, "reason": "..."}.
Mark supported=false when any claim lacks evidence or contradicts it.`

const rerankSystemPrompt = `You rank passages by relevance to a query.
Respond with JSON: {"order": [indexes, best first]}. Use every index exactly once.`

const extractSystemPrompt = `You extract durable user facts from a conversation turn.
Only include stable facts worth remembering across sessions (preferences, profile attributes, standing context).
Respond with JSON: {"facts": [{"subject": "...", "attribute": "...", "value": "...", "confidence": 0.0-1.0}]}.
Return {"facts": []} when nothing qualifies.`

const analyzeSystemPrompt = `You answer questions about a single provided document.
Answer only from the document content. Say so plainly when the document does not contain the answer.`

const polishSystemPrompt = `You rewrite the given answer in a %s tone.
Keep every factual claim and citation marker exactly as they are. Return only the rewritten text.`
