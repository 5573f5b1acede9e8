package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/evidence"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
)

// Router classifies a query into a domain chain.
type Router interface {
	Route(q *domain.Query) routing.Decision
}

// Retriever walks a domain chain and returns access-filtered evidence.
type Retriever interface {
	RetrieveChain(ctx context.Context, chain []string, query string, tier int) (string, []evidence.Item, error)
}

// KnowledgeSearch is the retrieval tool: router plus hybrid retrieval
// engine behind one registry entry. The requester tier comes from context,
// never from model-controlled input.
type KnowledgeSearch struct {
	router    Router
	retriever Retriever
}

// NewKnowledgeSearch creates the retrieval tool.
func NewKnowledgeSearch(router Router, retriever Retriever) *KnowledgeSearch {
	return &KnowledgeSearch{router: router, retriever: retriever}
}

type knowledgeSearchInput struct {
	Query  string `json:"query"`
	Domain string `json:"domain,omitempty"`
}

// Name implements Tool.
func (k *KnowledgeSearch) Name() string { return "knowledge_search" }

// Description implements Tool.
func (k *KnowledgeSearch) Description() string {
	return `Search the knowledge base for evidence. Input: {"query": "...", "domain": "optional domain override"}.`
}

// Validate implements Tool.
func (k *KnowledgeSearch) Validate(input json.RawMessage) error {
	var in knowledgeSearchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return errors.New("query is required")
	}
	return nil
}

// Invoke implements Tool. An empty result set is reported as content, not an
// error, so the loop can adapt; infrastructure failures propagate.
func (k *KnowledgeSearch) Invoke(ctx context.Context, input json.RawMessage) (Result, error) {
	var in knowledgeSearchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("parse input: %w", err)
	}

	req := domain.RequesterFromContext(ctx)

	var chain []string
	if in.Domain != "" {
		chain = []string{in.Domain}
	} else {
		q, err := domain.NewQuery(in.Query, "", req.Owner, req.Tier, "", nil)
		if err != nil {
			return Result{}, fmt.Errorf("build query: %w", err)
		}
		decision := k.router.Route(&q)
		chain = decision.Chain()
	}

	served, items, err := k.retriever.RetrieveChain(ctx, chain, in.Query, req.Tier)
	if err != nil {
		return Result{}, err
	}

	if len(items) == 0 {
		return Result{Content: "No accessible evidence found for this query."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Evidence from domain %q:\n", served)
	citations := make([]evidence.Citation, 0, len(items))
	for i := range items {
		it := &items[i]
		fmt.Fprintf(&sb, "[%s] %s: %s\n", it.SourceID(), it.Title(), it.Content())
		citations = append(citations, it.Citation())
	}
	return Result{Content: sb.String(), Citations: citations}, nil
}
