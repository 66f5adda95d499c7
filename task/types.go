// Package task defines the canonical task vocabulary shared by the router,
// queue, planner, and validator: the closed set of task types and the
// scheduled-task record that flows through the batching machinery.
package task

import "time"

// Type identifies a text-understanding task category.
type Type string

const (
	// TypeClassification assigns a document to one of a closed label set.
	TypeClassification Type = "classification"

	// TypeExtraction pulls structured entities out of a document.
	TypeExtraction Type = "extraction"

	// TypeSummarization condenses a document into a shorter narrative.
	TypeSummarization Type = "summarization"

	// TypeRAG answers a query grounded in retrieved document context.
	TypeRAG Type = "rag"
)

// IsValid checks whether a type string is one of the known task types.
func (t Type) IsValid() bool {
	switch t {
	case TypeClassification, TypeExtraction, TypeSummarization, TypeRAG:
		return true
	}
	return false
}

// String returns the lowercase serialized form.
func (t Type) String() string {
	return string(t)
}

// ParseType converts a string to a Type, returning empty for unknown values.
func ParseType(s string) Type {
	t := Type(s)
	if t.IsValid() {
		return t
	}
	return ""
}

// UnspecifiedModel is the grouping key for tasks with no model preference.
const UnspecifiedModel = "unspecified"

// Constraints are optional per-task requirements such as a fixed model or
// resource caps.
type Constraints struct {
	PreferredModel string `json:"preferred_model,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	GPURequired    bool   `json:"gpu_required"`
}

// Task is a scheduled LLM task awaiting batching and execution.
type Task struct {
	// Priority orders the queue; lower values run first.
	Priority int `json:"priority"`

	// Deadline breaks priority ties. The zero value means no deadline and
	// sorts last.
	Deadline time.Time `json:"deadline,omitempty"`

	TaskID        string      `json:"task_id"`
	DocID         string      `json:"doc_id"`
	TaskType      Type        `json:"task_type"`
	TargetModel   string      `json:"target_model,omitempty"`
	TokenEstimate int         `json:"token_estimate"`
	Constraints   Constraints `json:"constraints"`
}

// EffectiveModel resolves the model key a task is grouped under:
// the explicit target, else the constraint preference, else "unspecified".
func (t Task) EffectiveModel() string {
	if t.TargetModel != "" {
		return t.TargetModel
	}
	if t.Constraints.PreferredModel != "" {
		return t.Constraints.PreferredModel
	}
	return UnspecifiedModel
}

// EffectiveDeadline returns the deadline used for ordering. A zero deadline
// is treated as infinitely far in the future.
func (t Task) EffectiveDeadline() time.Time {
	if t.Deadline.IsZero() {
		return maxTime
	}
	return t.Deadline
}

// maxTime is the largest representable time, used as the +infinity deadline.
var maxTime = time.Unix(1<<62, 0)

// Less orders tasks by (priority, deadline). Other fields do not participate.
func (t Task) Less(other Task) bool {
	if t.Priority != other.Priority {
		return t.Priority < other.Priority
	}
	return t.EffectiveDeadline().Before(other.EffectiveDeadline())
}
