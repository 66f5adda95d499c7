package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetEffectiveLimits(t *testing.T) {
	tests := []struct {
		name       string
		budget     Budget
		wantInput  int
		wantOutput int
	}{
		{
			name:       "ten percent margin",
			budget:     Budget{MaxInput: 1000, MaxOutput: 500, SafetyMargin: 0.1},
			wantInput:  900,
			wantOutput: 450,
		},
		{
			name:       "zero margin equals raw limit",
			budget:     Budget{MaxInput: 1000, MaxOutput: 500},
			wantInput:  1000,
			wantOutput: 500,
		},
		{
			name:       "full margin yields zero",
			budget:     Budget{MaxInput: 1000, MaxOutput: 500, SafetyMargin: 1.0},
			wantInput:  0,
			wantOutput: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantInput, tt.budget.EffectiveInput())
			assert.Equal(t, tt.wantOutput, tt.budget.EffectiveOutput())
		})
	}
}

func TestBudgetRemainingNeverNegative(t *testing.T) {
	b := Budget{MaxInput: 100, MaxOutput: 50, SafetyMargin: 0.1}

	assert.Equal(t, 90, b.RemainingInput(0))
	assert.Equal(t, 40, b.RemainingInput(50))
	assert.Equal(t, 0, b.RemainingInput(90))
	assert.Equal(t, 0, b.RemainingInput(5000))
	assert.Equal(t, 0, b.RemainingOutput(5000))
}

func TestManagerCanAccommodate(t *testing.T) {
	m := NewManager()
	m.Register("local-llm", Budget{MaxInput: 100, MaxOutput: 50, SafetyMargin: 0.1})

	// 90 effective input tokens, 40 effective output tokens.
	smallPrompt := strings.Repeat("a", 80) // 20 tokens

	assert.True(t, m.CanAccommodate("local-llm", smallPrompt, 40))
	assert.False(t, m.CanAccommodate("local-llm", smallPrompt, 41))
	assert.False(t, m.CanAccommodate("local-llm", strings.Repeat("a", 400), 10))
	assert.False(t, m.CanAccommodate("unknown-model", smallPrompt, 1))
}

func TestManagerConsumeKeepsNoState(t *testing.T) {
	m := NewManager()
	m.Register("local-llm", Budget{MaxInput: 100, MaxOutput: 100})

	stats := Stats{Input: 90, Output: 90}
	require.True(t, m.Consume("local-llm", stats))
	// A second identical consume still fits: no counters are kept.
	assert.True(t, m.Consume("local-llm", stats))
	assert.False(t, m.Consume("local-llm", Stats{Input: 101}))
	assert.False(t, m.Consume("missing", Stats{}))
}
