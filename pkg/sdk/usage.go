package wayfind

import (
	"context"
	"net/http"
)

// UsageReport is the service's current token budget state.
// A limit of 0 means unlimited; remaining is -1 when unlimited.
type UsageReport struct {
	DailyUsed        int64  `json:"daily_used"`
	DailyLimit       int64  `json:"daily_limit"`
	MonthlyUsed      int64  `json:"monthly_used"`
	MonthlyLimit     int64  `json:"monthly_limit"`
	RemainingDaily   int64  `json:"remaining_daily"`
	RemainingMonthly int64  `json:"remaining_monthly"`
	Action           string `json:"action"`
}

// Usage returns the current provider token budget state.
func (c *Client) Usage(ctx context.Context) (UsageReport, error) {
	var out UsageReport
	if err := c.do(ctx, http.MethodGet, "/v1/usage", nil, &out); err != nil {
		return UsageReport{}, err
	}
	return out, nil
}
