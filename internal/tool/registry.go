package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oriane-labs/wayfind/internal/domain"
	"github.com/oriane-labs/wayfind/internal/metrics"
)

// Registry is the closed name→tool map. Registration order is preserved
// for prompt rendering.
type Registry struct {
	order  []string
	byName map[string]Tool
}

// NewRegistry creates a registry over a fixed tool set.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.byName[t.Name()]; dup {
			continue
		}
		r.byName[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrToolNotFound)
	}
	return t, nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Invoke validates the input and runs the named tool, recording metrics.
func (r *Registry) Invoke(ctx context.Context, name string, input json.RawMessage) (Result, error) {
	t, err := r.Lookup(name)
	if err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(name, "unknown").Inc()
		return Result{}, err
	}

	if err := t.Validate(input); err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(name, "invalid_input").Inc()
		return Result{}, fmt.Errorf("%s: %v: %w", name, err, domain.ErrInvalidToolInput)
	}

	res, err := t.Invoke(ctx, input)
	if err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(name, "error").Inc()
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}
	metrics.ToolInvocationsTotal.WithLabelValues(name, "success").Inc()
	return res, nil
}

// Describe renders the tool list for the reasoning system prompt.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.byName[name].Description())
	}
	return sb.String()
}
