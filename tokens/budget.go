package tokens

import "sync"

// Budget caps input and output tokens for a single model. The safety margin
// is a fractional reserve subtracted from the raw caps before any check.
type Budget struct {
	MaxInput     int     `json:"max_input" yaml:"max_input"`
	MaxOutput    int     `json:"max_output" yaml:"max_output"`
	SafetyMargin float64 `json:"safety_margin" yaml:"safety_margin"`
}

// EffectiveInput returns the usable input cap after the safety margin.
func (b Budget) EffectiveInput() int {
	return effectiveLimit(b.MaxInput, b.SafetyMargin)
}

// EffectiveOutput returns the usable output cap after the safety margin.
func (b Budget) EffectiveOutput() int {
	return effectiveLimit(b.MaxOutput, b.SafetyMargin)
}

// RemainingInput reports input capacity left after used tokens. Never negative.
func (b Budget) RemainingInput(used int) int {
	return remaining(b.EffectiveInput(), used)
}

// RemainingOutput reports output capacity left after used tokens. Never negative.
func (b Budget) RemainingOutput(used int) int {
	return remaining(b.EffectiveOutput(), used)
}

func effectiveLimit(max int, margin float64) int {
	limit := int(float64(max) * (1 - margin))
	if limit < 0 {
		return 0
	}
	return limit
}

func remaining(limit, used int) int {
	left := limit - used
	if left < 0 {
		return 0
	}
	return left
}

// Manager is the per-model budget registry. Workers share one instance, so
// reads and writes are guarded; Consume keeps no running counters because the
// router and planner already enforce per-batch caps.
type Manager struct {
	mu      sync.RWMutex
	budgets map[string]Budget
}

// NewManager creates an empty budget registry.
func NewManager() *Manager {
	return &Manager{budgets: make(map[string]Budget)}
}

// Register sets the budget for a model, replacing any previous entry.
func (m *Manager) Register(modelID string, budget Budget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[modelID] = budget
}

// Get returns the budget for a model and whether one is registered.
func (m *Manager) Get(modelID string) (Budget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[modelID]
	return b, ok
}

// CanAccommodate reports whether a prompt plus expected output fits the
// model's effective limits. Unknown models never accommodate anything.
func (m *Manager) CanAccommodate(modelID, prompt string, expectedOutput int) bool {
	budget, ok := m.Get(modelID)
	if !ok {
		return false
	}
	return Estimate(prompt) <= budget.RemainingInput(0) &&
		expectedOutput <= budget.RemainingOutput(0)
}

// Consume re-checks feasibility for the given usage and reports whether it
// fits. Usage is not persisted across calls.
func (m *Manager) Consume(modelID string, stats Stats) bool {
	budget, ok := m.Get(modelID)
	if !ok {
		return false
	}
	return stats.Input <= budget.RemainingInput(0) &&
		stats.Output <= budget.RemainingOutput(0)
}
