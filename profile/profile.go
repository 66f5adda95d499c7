// Package profile aggregates benchmark evidence into per-model task profiles
// and serves them to the router. Aggregation is pure; the store is rebuilt
// from any replayable benchmark result stream.
package profile

import (
	"github.com/c360studio/docroute/task"
)

// TaskProfile summarizes benchmark evidence for one (model, task) pair.
// A zero-sample profile carries no evidence and all fields default to zero.
type TaskProfile struct {
	LatencyMS float64 `json:"latency_ms"`
	Tokens    float64 `json:"tokens"`
	ErrorRate float64 `json:"error_rate"`
	Samples   int     `json:"samples"`
}

// ModelProfile groups task profiles for a single model.
type ModelProfile struct {
	ModelID string                    `json:"model_id"`
	Tasks   map[task.Type]TaskProfile `json:"tasks"`
}

// Task returns the profile for a task type and whether evidence exists.
func (p ModelProfile) Task(taskType task.Type) (TaskProfile, bool) {
	tp, ok := p.Tasks[taskType]
	return tp, ok
}
