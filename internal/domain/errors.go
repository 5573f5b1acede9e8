package domain

import "errors"

var (
	// ErrRetrievalUnavailable signals that both retrieval paths failed.
	// Callers must surface this instead of fabricating an answer.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrNoAccessibleEvidence signals that the tier filter excluded every candidate.
	ErrNoAccessibleEvidence = errors.New("no accessible evidence for requester tier")
	// ErrToolNotFound signals a tool name outside the registered set.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidToolInput signals tool input that failed schema validation.
	ErrInvalidToolInput = errors.New("invalid tool input")
	// ErrUpstreamTimeout signals an external service timeout.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamRateLimited signals an external service rate limit.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	// ErrModelProviderError signals a chat model provider failure.
	ErrModelProviderError = errors.New("model provider error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrBudgetExhausted signals an exhausted provider token budget.
	ErrBudgetExhausted = errors.New("token budget exhausted")
	// ErrVerificationFailed signals that a draft answer failed the self-check.
	ErrVerificationFailed = errors.New("answer verification failed")
	// ErrFactNotFound signals a missing memory fact.
	ErrFactNotFound = errors.New("fact not found")
	// ErrEvidenceNotFound signals a missing evidence document.
	ErrEvidenceNotFound = errors.New("evidence not found")
	// ErrUnknownDomain signals a domain name outside the configured set.
	ErrUnknownDomain = errors.New("unknown domain")
)
