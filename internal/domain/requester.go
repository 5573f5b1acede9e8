package domain

import "context"

type requesterKey struct{}

// Requester is the resolved caller identity and access tier.
// The auth layer resolves it; the core only consumes it.
type Requester struct {
	Owner string
	Tier  int
}

// ContextWithRequester returns a context carrying the requester.
func ContextWithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFromContext extracts the requester from context.
// Returns the zero requester (tier 0) when none is set.
func RequesterFromContext(ctx context.Context) Requester {
	r, _ := ctx.Value(requesterKey{}).(Requester)
	return r
}
