// Package router picks a model for a task by running profile-annotated
// candidates through a deterministic filter pipeline. A candidate with no
// benchmark evidence is never silently disqualified.
package router

import (
	"github.com/c360studio/docroute/document"
	"github.com/c360studio/docroute/profile"
	"github.com/c360studio/docroute/task"
)

// Constraints are optional routing constraints such as latency budgets or
// token caps. Nil pointer fields mean the constraint is inactive.
type Constraints struct {
	MaxLatencyMS *float64 `json:"max_latency_ms,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	HardwareSlot string   `json:"hardware_slot,omitempty"`
}

// CandidateModel is one routable model enriched with profiling data.
// Nil optional fields mean no estimate is available.
type CandidateModel struct {
	ModelID           string                `json:"model_id"`
	Profile           *profile.ModelProfile `json:"profile,omitempty"`
	ExpectedLatencyMS *float64              `json:"expected_latency_ms,omitempty"`
	ExpectedTokens    *int                  `json:"expected_tokens,omitempty"`
	FailureRate       *float64              `json:"failure_rate,omitempty"`
}

// Inputs is the complete bundle that feeds one routing decision.
type Inputs struct {
	DocumentFeatures document.Features
	TaskType         task.Type
	CandidateModels  []CandidateModel
	Constraints      Constraints
}

// CandidateIDs lists the candidate model IDs in input order.
func (in Inputs) CandidateIDs() []string {
	ids := make([]string, len(in.CandidateModels))
	for i, c := range in.CandidateModels {
		ids[i] = c.ModelID
	}
	return ids
}

// CandidateVerdict is the final per-candidate filter verdict, indexed
// parallel to the input candidates. Verdicts are produced in a side table
// rather than by mutating the candidates themselves.
type CandidateVerdict struct {
	ModelID string `json:"model_id"`
	Reason  string `json:"reason"`
}

// Decision is the routing outcome. An empty ModelID signals routing failure
// and Reason explains why no candidate survived.
type Decision struct {
	ModelID    string             `json:"model_id,omitempty"`
	Reason     string             `json:"reason"`
	Candidates []CandidateVerdict `json:"candidates"`
}

// Routed reports whether a model was chosen.
func (d Decision) Routed() bool {
	return d.ModelID != ""
}
