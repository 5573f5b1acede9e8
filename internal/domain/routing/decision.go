// Package routing holds the domain routing value objects.
package routing

import (
	"errors"
	"fmt"
)

// Score is a single domain's match weight for one query.
type Score struct {
	domain     string
	raw        float64
	confidence float64
}

// NewScore creates a domain score. Confidence must be normalized to [0,1].
func NewScore(domain string, raw, confidence float64) (Score, error) {
	if domain == "" {
		return Score{}, errors.New("domain is required")
	}
	if confidence < 0 || confidence > 1 {
		return Score{}, fmt.Errorf("confidence must be in [0,1], got %v", confidence)
	}
	return Score{domain: domain, raw: raw, confidence: confidence}, nil
}

// Domain returns the domain name.
func (s *Score) Domain() string { return s.domain }

// Raw returns the unnormalized match weight.
func (s *Score) Raw() float64 { return s.raw }

// Confidence returns the normalized confidence in [0,1].
func (s *Score) Confidence() float64 { return s.confidence }

// Decision is the outcome of routing one query.
// The fallback chain is never empty.
type Decision struct {
	primary        string
	confidence     float64
	fallbacks      []string
	overrideReason string
	scores         []Score
}

// NewDecision validates and creates a routing decision.
func NewDecision(
	primary string, confidence float64,
	fallbacks []string, overrideReason string, scores []Score,
) (Decision, error) {
	if primary == "" {
		return Decision{}, errors.New("primary domain is required")
	}
	if confidence < 0 || confidence > 1 {
		return Decision{}, fmt.Errorf("confidence must be in [0,1], got %v", confidence)
	}
	if len(fallbacks) == 0 {
		return Decision{}, errors.New("fallback chain must not be empty")
	}
	return Decision{
		primary:        primary,
		confidence:     confidence,
		fallbacks:      fallbacks,
		overrideReason: overrideReason,
		scores:         scores,
	}, nil
}

// Primary returns the selected domain.
func (d *Decision) Primary() string { return d.primary }

// Confidence returns the normalized routing confidence.
func (d *Decision) Confidence() float64 { return d.confidence }

// Fallbacks returns the ordered secondary-domain chain (never empty).
func (d *Decision) Fallbacks() []string { return d.fallbacks }

// OverrideReason names the priority override that fired, or "" when scoring decided.
func (d *Decision) OverrideReason() string { return d.overrideReason }

// Overridden reports whether a priority override bypassed scoring.
func (d *Decision) Overridden() bool { return d.overrideReason != "" }

// Scores returns the per-domain scores considered (empty for overrides).
func (d *Decision) Scores() []Score { return d.scores }

// Chain returns the primary followed by the fallbacks, deduplicated, in order.
func (d *Decision) Chain() []string {
	chain := make([]string, 0, 1+len(d.fallbacks))
	chain = append(chain, d.primary)
	for _, f := range d.fallbacks {
		if f != d.primary {
			chain = append(chain, f)
		}
	}
	return chain
}
