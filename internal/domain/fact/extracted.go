package fact

// Extracted is one candidate memory fact pulled from a finished turn,
// before validation and dedup turn it into a stored Fact.
type Extracted struct {
	Subject    string  `json:"subject"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Snippet is one recall-assist candidate: indexed text plus similarity score.
// Snippets are candidate context only, never an authoritative answer.
type Snippet struct {
	Text  string
	Score float64
}
