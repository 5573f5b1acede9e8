package reasoning

import (
	"context"
	"encoding/json"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
	domreason "github.com/oriane-labs/wayfind/internal/domain/reasoning"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/tool"
)

// Model drives the loop: next-step decisions, the self-check and the
// final tone pass.
type Model interface {
	Decide(ctx context.Context, system string, transcript []domain.Turn) (domreason.Decision, error)
	Verify(ctx context.Context, question, answer string, passages []string) (domreason.Verification, error)
	Polish(ctx context.Context, text, tone string) (string, error)
}

// Router classifies queries for cache fingerprinting and memory gating.
type Router interface {
	Route(q *domain.Query) routing.Decision
}

// Tools is the closed registry surface the loop invokes through.
type Tools interface {
	Invoke(ctx context.Context, name string, input json.RawMessage) (tool.Result, error)
	Describe() string
}

// Cache short-circuits runs with previously verified answers.
type Cache interface {
	Lookup(ctx context.Context, query, domainName string, tier int) (domreason.Answer, bool)
	Save(ctx context.Context, query, domainName string, tier int, ans domreason.Answer)
}

// Memory supplies prior context and harvests new facts after a run.
type Memory interface {
	RecallFacts(ctx context.Context, owner string) ([]fact.Fact, error)
	RecallAssist(ctx context.Context, decision *routing.Decision, owner, query string) ([]fact.Snippet, error)
	HarvestTurn(ctx context.Context, owner, conversation string)
}

// Budget guards outbound token spend per run.
type Budget interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}
