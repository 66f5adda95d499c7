package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Signal is one consistency check outcome.
type Signal struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ConsistencyResult combines all signals by logical AND.
type ConsistencyResult struct {
	Passed  bool     `json:"passed"`
	Signals []Signal `json:"signals"`
}

// defaultMinOverlap is the keyword count required for the overlap signal.
const defaultMinOverlap = 1

// ConsistencyChecker grounds model output against the source context:
// required entities must appear verbatim, and enough task keywords must
// overlap with the context.
type ConsistencyChecker struct {
	minOverlap int
}

// ConsistencyOption configures a ConsistencyChecker.
type ConsistencyOption func(*ConsistencyChecker)

// WithMinOverlap sets the keyword overlap threshold.
func WithMinOverlap(n int) ConsistencyOption {
	return func(c *ConsistencyChecker) { c.minOverlap = n }
}

// NewConsistencyChecker creates a checker with a minimum overlap of 1.
func NewConsistencyChecker(opts ...ConsistencyOption) *ConsistencyChecker {
	c := &ConsistencyChecker{minOverlap: defaultMinOverlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalize collapses whitespace runs and lowercases, so entity matching
// survives line wrapping and casing differences.
func normalize(text string) string {
	return strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " "))
}

// Check runs both signals against the context. An empty entity list passes
// trivially; an empty keyword list fails the overlap signal unless the
// threshold is zero.
func (c *ConsistencyChecker) Check(contextText string, requiredEntities, keywords []string) ConsistencyResult {
	normalized := normalize(contextText)

	entities := c.checkRequiredEntities(normalized, requiredEntities)
	overlap := c.checkKeywordOverlap(normalized, keywords)

	return ConsistencyResult{
		Passed:  entities.Passed && overlap.Passed,
		Signals: []Signal{entities, overlap},
	}
}

func (c *ConsistencyChecker) checkRequiredEntities(normalized string, entities []string) Signal {
	signal := Signal{Name: "required_entities", Passed: true, Confidence: 1}
	if len(entities) == 0 {
		return signal
	}

	var missing []string
	for _, entity := range entities {
		if !strings.Contains(normalized, normalize(entity)) {
			missing = append(missing, entity)
		}
	}
	if len(missing) == 0 {
		return signal
	}

	signal.Passed = false
	signal.Confidence = max(0.1, 1-float64(len(missing))/float64(len(entities)))
	signal.Reason = "missing: " + strings.Join(missing, ", ")
	return signal
}

func (c *ConsistencyChecker) checkKeywordOverlap(normalized string, keywords []string) Signal {
	overlap := 0
	for _, keyword := range keywords {
		if strings.Contains(normalized, normalize(keyword)) {
			overlap++
		}
	}

	divisor := max(1, c.minOverlap)
	signal := Signal{
		Name:       "keyword_overlap",
		Passed:     overlap >= c.minOverlap,
		Confidence: min(1, float64(overlap)/float64(divisor)),
	}
	if !signal.Passed {
		signal.Reason = fmt.Sprintf("matched %d of %d keywords, need %d", overlap, len(keywords), c.minOverlap)
	}
	return signal
}
