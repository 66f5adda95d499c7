package document

import (
	"fmt"
	"strings"

	"github.com/c360studio/docroute/task"
	"github.com/c360studio/docroute/tokens"
)

// SelectionResult records one selector verdict: the section, the reason it
// was included or skipped, and its token cost (zero for skipped sections).
type SelectionResult struct {
	Section       NormalizedSection `json:"section"`
	Reason        string            `json:"reason"`
	TokenEstimate int               `json:"token_estimate"`
}

// Selector chooses a prefix of document sections that fits a token budget.
type Selector struct {
	budget tokens.Budget
}

// NewSelector creates a Selector for the given budget.
func NewSelector(budget tokens.Budget) *Selector {
	return &Selector{budget: budget}
}

// Select walks sections in input order and includes each until one would
// exceed the remaining budget. The first oversized section terminates
// selection and is recorded as skipped with a zero token estimate. Sections
// with no token content are dropped silently.
func (s *Selector) Select(sections []NormalizedSection, taskType task.Type) []SelectionResult {
	remaining := s.budget.RemainingInput(0)
	var selected []SelectionResult

	for _, section := range sections {
		estimate := tokens.Estimate(section.Text())
		if estimate == 0 {
			continue
		}

		if estimate > remaining {
			selected = append(selected, SelectionResult{
				Section: section,
				Reason:  fmt.Sprintf("Skipped %s due to token limit", section.DisplayTitle()),
			})
			break
		}

		selected = append(selected, SelectionResult{
			Section:       section,
			Reason:        justify(section, taskType),
			TokenEstimate: estimate,
		})
		remaining -= estimate
	}

	return selected
}

// justify is deterministic and affects only the reason string, never the
// selection itself.
func justify(section NormalizedSection, taskType task.Type) string {
	title := section.DisplayTitle()
	if taskType == task.TypeExtraction && section.Title != "" &&
		strings.Contains(strings.ToLower(section.Title), "financial") {
		return fmt.Sprintf("Included %s because task requires financial signals", title)
	}
	if taskType == task.TypeSummarization {
		return fmt.Sprintf("Included %s to preserve narrative continuity", title)
	}
	return fmt.Sprintf("Included %s based on sequential allocation", title)
}
