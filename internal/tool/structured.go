package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/fact"
)

// FactReader reads the requester's stored facts.
type FactReader interface {
	RecallFacts(ctx context.Context, owner string) ([]fact.Fact, error)
}

// FactQuery is the structured data tool: filtered lookups over the
// requester's own fact records. The owner comes from context, so a run can
// never read another requester's facts.
type FactQuery struct {
	facts FactReader
}

// NewFactQuery creates the structured query tool.
func NewFactQuery(facts FactReader) *FactQuery {
	return &FactQuery{facts: facts}
}

type factQueryInput struct {
	Subject   string `json:"subject,omitempty"`
	Attribute string `json:"attribute,omitempty"`
}

// Name implements Tool.
func (f *FactQuery) Name() string { return "fact_query" }

// Description implements Tool.
func (f *FactQuery) Description() string {
	return `Query the requester's stored facts. Input: {"subject": "optional filter", "attribute": "optional filter"}.`
}

// Validate implements Tool.
func (f *FactQuery) Validate(input json.RawMessage) error {
	var in factQueryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	return nil
}

// Invoke implements Tool.
func (f *FactQuery) Invoke(ctx context.Context, input json.RawMessage) (Result, error) {
	var in factQueryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("parse input: %w", err)
	}

	req := domain.RequesterFromContext(ctx)
	all, err := f.facts.RecallFacts(ctx, req.Owner)
	if err != nil {
		return Result{}, err
	}

	var sb strings.Builder
	matched := 0
	for i := range all {
		rec := &all[i]
		if in.Subject != "" && !strings.EqualFold(rec.Subject(), in.Subject) {
			continue
		}
		if in.Attribute != "" && !strings.EqualFold(rec.Attribute(), in.Attribute) {
			continue
		}
		matched++
		fmt.Fprintf(&sb, "%s %s = %s (confidence %.2f)\n",
			rec.Subject(), rec.Attribute(), rec.Value(), rec.Confidence())
	}

	if matched == 0 {
		return Result{Content: "No stored facts match the filter."}, nil
	}
	return Result{Content: sb.String()}, nil
}
