// Package router classifies queries into knowledge domains.
package router

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/config"
	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/domain/routing"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

type pattern struct {
	text   string
	weight float64
	words  int
}

type domainRules struct {
	patterns  []pattern
	fallbacks []string
}

type override struct {
	name     string
	domain   string
	patterns []string
}

// Service routes queries by deterministic pattern scoring. It never calls
// the network and always yields a decision, worst case the catch-all domain.
type Service struct {
	minConfidence float64
	smoothing     float64
	catchAll      string
	priority      map[string]int
	domains       map[string]domainRules
	overrides     []override
	logger        *zap.Logger
}

// New builds a router from configuration. Pattern text is matched
// case-insensitively; normalization happens once here, not per query.
func New(cfg config.RouterConfig, logger *zap.Logger) *Service {
	domains := make(map[string]domainRules, len(cfg.Domains))
	for name, d := range cfg.Domains {
		rules := domainRules{fallbacks: d.Fallbacks}
		for _, p := range d.Patterns {
			text := normalize(p.Text)
			if text == "" {
				continue
			}
			rules.patterns = append(rules.patterns, pattern{
				text:   text,
				weight: p.Weight,
				words:  len(strings.Fields(text)),
			})
		}
		domains[name] = rules
	}

	overrides := make([]override, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		ov := override{name: o.Name, domain: o.Domain}
		for _, p := range o.Patterns {
			if text := normalize(p); text != "" {
				ov.patterns = append(ov.patterns, text)
			}
		}
		overrides = append(overrides, ov)
	}

	priority := make(map[string]int, len(cfg.Priority))
	for i, name := range cfg.Priority {
		priority[name] = i
	}

	return &Service{
		minConfidence: cfg.MinConfidence,
		smoothing:     cfg.Smoothing,
		catchAll:      cfg.CatchAll,
		priority:      priority,
		domains:       domains,
		overrides:     overrides,
		logger:        logger,
	}
}

// Route classifies one query. Identical queries under identical configuration
// yield identical decisions.
func (s *Service) Route(q *domain.Query) routing.Decision {
	text := normalize(q.Text())

	// Priority overrides bypass scoring entirely so personal/team queries
	// never get misrouted by keyword overlap with business domains.
	for _, ov := range s.overrides {
		for _, p := range ov.patterns {
			if strings.Contains(text, p) {
				return s.finish(ov.domain, 1, ov.name, nil)
			}
		}
	}

	tokens := len(strings.Fields(text))
	raws := make(map[string]float64, len(s.domains))
	total := 0.0
	for name, rules := range s.domains {
		raw := 0.0
		for _, p := range rules.patterns {
			if strings.Contains(text, p.text) {
				// Longer phrases are more specific and weigh more
				// than generic single words.
				raw += p.weight * float64(p.words)
			}
		}
		if raw > 0 {
			raws[name] = raw
			total += raw
		}
	}

	// conf(d) = raw_d / (Σ raw + λ·√tokens): competing domains and longer
	// queries both depress confidence.
	denom := total + s.smoothing*math.Sqrt(float64(tokens))
	scores := make([]routing.Score, 0, len(raws))
	for name, raw := range raws {
		conf := 0.0
		if denom > 0 {
			conf = raw / denom
		}
		if sc, err := routing.NewScore(name, raw, conf); err == nil {
			scores = append(scores, sc)
		}
	}
	sort.Slice(scores, func(i, j int) bool {
		a, b := &scores[i], &scores[j]
		if a.Confidence() != b.Confidence() {
			return a.Confidence() > b.Confidence()
		}
		// Equal confidence resolves by the fixed domain priority order.
		pa, pb := s.priorityOf(a.Domain()), s.priorityOf(b.Domain())
		if pa != pb {
			return pa < pb
		}
		return a.Domain() < b.Domain()
	})

	if len(scores) == 0 {
		return s.finish(s.catchAll, 0, "", scores)
	}

	top := scores[0]
	if top.Confidence() < s.minConfidence {
		// Below-threshold routing is ambiguous: prefer the catch-all over
		// a low-confidence specific domain.
		return s.finish(s.catchAll, top.Confidence(), "", scores)
	}
	return s.finish(top.Domain(), top.Confidence(), "", scores)
}

// finish assembles the decision and records routing statistics.
// Statistics never block the decision path.
func (s *Service) finish(
	primary string, confidence float64, overrideReason string, scores []routing.Score,
) routing.Decision {
	if confidence > 1 {
		confidence = 1
	}

	d, err := routing.NewDecision(primary, confidence, s.fallbackChain(primary), overrideReason, scores)
	if err != nil {
		s.logger.Error("Invalid routing decision, using catch-all",
			zap.String("primary", primary), zap.Error(err))
		d, _ = routing.NewDecision(s.catchAll, 0, []string{s.catchAll}, "", nil)
	}

	metrics.RoutingDecisionsTotal.WithLabelValues(d.Primary(), strconv.FormatBool(d.Overridden())).Inc()
	metrics.RoutingConfidence.WithLabelValues(d.Primary()).Observe(d.Confidence())

	s.logger.Debug("Routed query",
		zap.String("domain", d.Primary()),
		zap.Float64("confidence", d.Confidence()),
		zap.String("override", d.OverrideReason()),
	)
	return d
}

// fallbackChain returns the configured fallbacks, always ending in the
// catch-all so the chain is never empty.
func (s *Service) fallbackChain(primary string) []string {
	configured := s.domains[primary].fallbacks

	chain := make([]string, 0, len(configured)+1)
	for _, f := range configured {
		if f != primary {
			chain = append(chain, f)
		}
	}
	if len(chain) == 0 || chain[len(chain)-1] != s.catchAll {
		chain = append(chain, s.catchAll)
	}
	return chain
}

func (s *Service) priorityOf(name string) int {
	if p, ok := s.priority[name]; ok {
		return p
	}
	return len(s.priority)
}

// normalize lowercases and collapses whitespace for matching.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
