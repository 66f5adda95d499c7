// Package tokens provides the heuristic token accounting shared by every
// component of the pipeline. All budgets, batching caps, and context
// selections are denominated in the same estimate so the numbers agree
// bit-for-bit across the router, planner, and selector.
package tokens

import "strings"

// charsPerToken is the approximate average characters per token for GPT tokenizers.
const charsPerToken = 4

// Estimate returns the heuristic token count for a text fragment.
// Whitespace-only input estimates to zero; any other input estimates
// to at least one token.
func Estimate(text string) int {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return 0
	}
	n := len(cleaned) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// EstimateFragments aggregates estimates for multiple fragments.
// Each fragment is estimated independently, matching how the selector
// and chunker account for sections.
func EstimateFragments(fragments []string) int {
	total := 0
	for _, fragment := range fragments {
		total += Estimate(fragment)
	}
	return total
}

// Stats tracks estimated token usage for a request's input and output sides.
type Stats struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (s Stats) Total() int {
	return s.Input + s.Output
}

// AddInput accumulates the estimate for an input fragment.
func (s *Stats) AddInput(text string) {
	s.Input += Estimate(text)
}

// AddOutput accumulates the estimate for an output fragment.
func (s *Stats) AddOutput(text string) {
	s.Output += Estimate(text)
}
