package document

import (
	"regexp"
	"strings"
)

// defaultMinParagraphLength drops fragments too short to carry signal.
const defaultMinParagraphLength = 25

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// Cleaner normalizes extracted text to keep LLM context windows efficient.
type Cleaner struct {
	minParagraphLength int
	bannedPatterns     []*regexp.Regexp
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithMinParagraphLength overrides the minimum surviving paragraph length.
func WithMinParagraphLength(n int) CleanerOption {
	return func(c *Cleaner) {
		c.minParagraphLength = n
	}
}

// WithBannedPhrases removes the given phrases (case-insensitive) from
// paragraphs before length filtering.
func WithBannedPhrases(phrases []string) CleanerOption {
	return func(c *Cleaner) {
		for _, p := range phrases {
			c.bannedPatterns = append(c.bannedPatterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)))
		}
	}
}

// NewCleaner creates a Cleaner with default settings.
func NewCleaner(opts ...CleanerOption) *Cleaner {
	c := &Cleaner{minParagraphLength: defaultMinParagraphLength}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeSections cleans each section's paragraphs and drops sections left
// with no content.
func (c *Cleaner) NormalizeSections(sections []NormalizedSection) []NormalizedSection {
	normalized := make([]NormalizedSection, 0, len(sections))
	for _, section := range sections {
		var kept []string
		for _, p := range section.Paragraphs {
			clean := c.cleanParagraph(p)
			if len(clean) >= c.minParagraphLength {
				kept = append(kept, clean)
			}
		}
		if len(kept) == 0 {
			continue
		}
		normalized = append(normalized, NormalizedSection{Title: section.Title, Paragraphs: kept})
	}
	return normalized
}

// LLMReadyText flattens normalized sections into a single prompt-ready block.
func (c *Cleaner) LLMReadyText(sections []NormalizedSection) string {
	normalized := c.NormalizeSections(sections)
	var chunks []string
	for _, section := range normalized {
		if section.Title != "" {
			chunks = append(chunks, strings.TrimSpace(section.Title))
		}
		chunks = append(chunks, section.Paragraphs...)
	}
	return strings.Join(chunks, "\n\n")
}

func (c *Cleaner) cleanParagraph(paragraph string) string {
	collapsed := strings.Join(strings.Fields(paragraph), " ")
	for _, pattern := range c.bannedPatterns {
		collapsed = pattern.ReplaceAllString(collapsed, "")
	}
	collapsed = multiSpaceRe.ReplaceAllString(collapsed, " ")
	return strings.TrimSpace(collapsed)
}
