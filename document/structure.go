package document

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/c360studio/docroute/tokens"
)

// defaultFinanceTerms flag documents that need financial-domain handling.
var defaultFinanceTerms = []string{
	"revenue",
	"earnings",
	"ebitda",
	"cash flow",
	"dividend",
	"liabilities",
	"assets",
	"operating income",
	"net income",
	"guidance",
}

// StructureDetector derives routing features from normalized sections.
type StructureDetector struct {
	financeTerms []string
}

// NewStructureDetector creates a detector. An empty term list uses the
// default financial vocabulary.
func NewStructureDetector(financeTerms []string) *StructureDetector {
	terms := financeTerms
	if len(terms) == 0 {
		terms = defaultFinanceTerms
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return &StructureDetector{financeTerms: lowered}
}

// Analyze aggregates section text and derives language, size, and
// financial-term signals.
func (d *StructureDetector) Analyze(sections []NormalizedSection) Features {
	var parts []string
	sectionCount := 0
	containsFinance := false

	for _, section := range sections {
		sectionCount++
		if section.Title != "" {
			parts = append(parts, section.Title)
		}
		parts = append(parts, section.Paragraphs...)
		if !containsFinance && d.hasFinancialTerms(section) {
			containsFinance = true
		}
	}

	joined := strings.Join(parts, "\n")
	language := ""
	if joined != "" {
		language = detectLanguage(joined)
	}

	return Features{
		Language:       language,
		CharacterCount: len(joined),
		TokenEstimate:  tokens.Estimate(joined),
		Sections:       sectionCount,
		FinancialTerms: containsFinance,
	}
}

func (d *StructureDetector) hasFinancialTerms(section NormalizedSection) bool {
	haystack := strings.ToLower(section.Title + "\n" + section.Text())
	for _, term := range d.financeTerms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

// detectLanguage returns an ISO 639-3 code, or empty when detection is
// unreliable.
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6393()
}
