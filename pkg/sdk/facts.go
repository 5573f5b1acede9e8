package wayfind

import (
	"context"
	"net/http"
)

// Fact is one durable (subject, attribute, value) triple the service
// remembers about the authenticated requester.
type Fact struct {
	Subject    string  `json:"subject"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Provenance string  `json:"provenance,omitempty"`
	CreatedAt  int64   `json:"created_at,omitempty"`
}

// WriteFact stores a fact for the authenticated requester. A fact with the
// same subject and attribute is replaced only when the new confidence is at
// least as high.
func (c *Client) WriteFact(ctx context.Context, f Fact) (Fact, error) {
	var out Fact
	if err := c.do(ctx, http.MethodPost, "/v1/facts", f, &out); err != nil {
		return Fact{}, err
	}
	return out, nil
}

// ListFacts returns everything remembered about the authenticated
// requester, highest confidence first.
func (c *Client) ListFacts(ctx context.Context) ([]Fact, error) {
	var out struct {
		Items []Fact `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/facts", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Forget purges all stored facts and recall context for the authenticated
// requester.
func (c *Client) Forget(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/facts", nil, nil)
}
