package wayfind

import (
	"context"
	"net/http"
)

// DomainScore is one domain's routing confidence for a query.
type DomainScore struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

// RouteDecision is the classification outcome for a query, without running it.
type RouteDecision struct {
	Primary        string        `json:"primary"`
	Confidence     float64       `json:"confidence"`
	Fallbacks      []string      `json:"fallbacks"`
	OverrideReason string        `json:"override_reason,omitempty"`
	Scores         []DomainScore `json:"scores,omitempty"`
}

// Route classifies a query into a knowledge domain without starting a run.
func (c *Client) Route(ctx context.Context, query string) (RouteDecision, error) {
	var out RouteDecision
	err := c.do(ctx, http.MethodPost, "/v1/route", struct {
		Query string `json:"query"`
	}{Query: query}, &out)
	if err != nil {
		return RouteDecision{}, err
	}
	return out, nil
}
