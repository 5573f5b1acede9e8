package domain

import "context"

type usageKey struct{}

// ProviderUsage collects outbound token usage for a single run.
// The handler puts a mutable pointer into the context before starting the run;
// provider clients add tokens as calls complete; the handler reads it for
// response headers and the budget tracker consumes the same numbers.
type ProviderUsage struct {
	EmbeddingTokens int
	ModelTokens     int
	Used            bool
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *ProviderUsage) {
	u := &ProviderUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *ProviderUsage {
	u, _ := ctx.Value(usageKey{}).(*ProviderUsage)
	return u
}

// AddEmbeddingTokens records consumed embedding tokens.
func (u *ProviderUsage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.EmbeddingTokens += n
		u.Used = true
	}
}

// AddModelTokens records consumed chat model tokens.
func (u *ProviderUsage) AddModelTokens(n int) {
	if u != nil {
		u.ModelTokens += n
		u.Used = true
	}
}

// Total returns all tokens consumed so far.
func (u *ProviderUsage) Total() int {
	if u == nil {
		return 0
	}
	return u.EmbeddingTokens + u.ModelTokens
}
