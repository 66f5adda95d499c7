// Package document models normalized document content and the preprocessing
// steps that shape it for LLM consumption: cleaning, structural signal
// derivation, token-aware section selection, and chunking.
package document

// NormalizedSection is a cleaned document section: an optional title and the
// paragraphs that survived normalization, in input order.
type NormalizedSection struct {
	Title      string   `json:"title,omitempty"`
	Paragraphs []string `json:"paragraphs"`
}

// Text joins a section's paragraphs into a single newline-separated block.
func (s NormalizedSection) Text() string {
	out := ""
	for i, p := range s.Paragraphs {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// DisplayTitle returns the title or "untitled" for logging and justification.
func (s NormalizedSection) DisplayTitle() string {
	if s.Title == "" {
		return "untitled"
	}
	return s.Title
}

// Features are the structural signals derived from a document, consumed by
// the router and the context selector.
type Features struct {
	Language       string `json:"language,omitempty"`
	CharacterCount int    `json:"character_count"`
	TokenEstimate  int    `json:"token_estimate"`
	Sections       int    `json:"sections"`
	FinancialTerms bool   `json:"financial_terms"`
}

// Extractor converts a raw document into sections. Implementations exist for
// HTML; PDF extraction plugs in behind the same interface.
type Extractor interface {
	Extract(raw []byte) ([]NormalizedSection, error)
}
