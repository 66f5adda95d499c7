package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace only", text: "   \n\t ", want: 0},
		{name: "short text rounds up to one", text: "ab", want: 1},
		{name: "exactly four chars", text: "abcd", want: 1},
		{name: "eight chars", text: "abcdefgh", want: 2},
		{name: "surrounding whitespace trimmed", text: "  abcdefgh  ", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.text))
		})
	}
}

func TestEstimateNonNegative(t *testing.T) {
	inputs := []string{"", " ", "x", "hello world", "\n\n\n"}
	for _, in := range inputs {
		assert.GreaterOrEqual(t, Estimate(in), 0)
	}
}

func TestEstimateFragments(t *testing.T) {
	// Fragments are estimated independently, not concatenated.
	fragments := []string{"abcdefgh", "ab", ""}
	assert.Equal(t, 3, EstimateFragments(fragments))
}

func TestStats(t *testing.T) {
	var stats Stats
	stats.AddInput("abcdefgh")  // 2 tokens
	stats.AddOutput("abcd")     // 1 token
	stats.AddOutput("    ")     // 0 tokens

	assert.Equal(t, 2, stats.Input)
	assert.Equal(t, 1, stats.Output)
	assert.Equal(t, 3, stats.Total())
}
