package wayfind

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// EvidenceDoc is one document in a domain's knowledge corpus.
type EvidenceDoc struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Locator  string `json:"locator,omitempty"`
	MinLevel int    `json:"min_level"`
}

// UpsertEvidence creates or replaces one evidence document. Returns true
// when the document was created rather than replaced.
func (c *Client) UpsertEvidence(ctx context.Context, domain, sourceID string, doc EvidenceDoc) (bool, error) {
	var out struct {
		Created bool `json:"created"`
	}
	if err := c.do(ctx, http.MethodPut, evidencePath(domain, sourceID), doc, &out); err != nil {
		return false, err
	}
	return out.Created, nil
}

// SupersedeEvidence tombstones a document so retrieval stops returning it.
func (c *Client) SupersedeEvidence(ctx context.Context, domain, sourceID string) error {
	return c.do(ctx, http.MethodPost, evidencePath(domain, sourceID)+"/supersede", nil, nil)
}

// DeleteEvidence removes a document entirely.
func (c *Client) DeleteEvidence(ctx context.Context, domain, sourceID string) error {
	return c.do(ctx, http.MethodDelete, evidencePath(domain, sourceID), nil, nil)
}

func evidencePath(domain, sourceID string) string {
	return fmt.Sprintf("/v1/domains/%s/evidence/%s",
		url.PathEscape(domain), url.PathEscape(sourceID))
}
