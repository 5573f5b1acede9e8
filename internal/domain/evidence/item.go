// Package evidence holds retrieval result value objects.
package evidence

import "errors"

// Citation is the caller-facing reference for one evidence source.
type Citation struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Locator  string `json:"locator"`
}

// Item is a single access-filtered retrieval hit.
// Immutable once returned from the retrieval engine.
type Item struct {
	sourceID    string
	domain      string
	content     string
	title       string
	locator     string
	denseScore  float64
	sparseScore float64
	score       float64
	minLevel    int
}

// New creates an evidence item.
func New(
	sourceID, domain, content, title, locator string,
	denseScore, sparseScore, score float64, minLevel int,
) (Item, error) {
	if sourceID == "" {
		return Item{}, errors.New("source id is required")
	}
	if domain == "" {
		return Item{}, errors.New("domain is required")
	}
	return Item{
		sourceID:    sourceID,
		domain:      domain,
		content:     content,
		title:       title,
		locator:     locator,
		denseScore:  denseScore,
		sparseScore: sparseScore,
		score:       score,
		minLevel:    minLevel,
	}, nil
}

// Rescored returns a copy with a new combined score.
func (i Item) Rescored(score float64) Item {
	i.score = score
	return i
}

// SourceID returns the evidence source identifier.
func (i *Item) SourceID() string { return i.sourceID }

// Domain returns the knowledge domain the item came from.
func (i *Item) Domain() string { return i.domain }

// Content returns the evidence text.
func (i *Item) Content() string { return i.content }

// Title returns the citation title.
func (i *Item) Title() string { return i.title }

// Locator returns the citation locator (URL, section, page).
func (i *Item) Locator() string { return i.locator }

// DenseScore returns the vector similarity score.
func (i *Item) DenseScore() float64 { return i.denseScore }

// SparseScore returns the lexical relevance score.
func (i *Item) SparseScore() float64 { return i.sparseScore }

// Score returns the combined relevance score.
func (i *Item) Score() float64 { return i.score }

// MinLevel returns the minimum access tier required to see this item.
func (i *Item) MinLevel() int { return i.minLevel }

// Citation returns the caller-facing citation for this item.
func (i *Item) Citation() Citation {
	return Citation{SourceID: i.sourceID, Title: i.title, Locator: i.locator}
}
