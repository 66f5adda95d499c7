package validate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360studio/docroute/obs"
	"github.com/c360studio/docroute/task"
)

// Action is the fallback response to a classified failure.
type Action string

const (
	ActionRetry          Action = "retry"
	ActionRepromptStrict Action = "reprompt_strict"
	ActionSwitchModel    Action = "switch_model"
	ActionShrinkContext  Action = "shrink_context"
	ActionAbort          Action = "abort"
)

// FallbackDecision is the policy verdict for one failure.
type FallbackDecision struct {
	Action     Action `json:"action"`
	Reason     string `json:"reason"`
	RetryCount int    `json:"retry_count,omitempty"`
	NextModel  string `json:"next_model,omitempty"`
}

// defaultRetryLimit bounds retry escalation for decode and schema failures.
const defaultRetryLimit = 2

// Policy maps (error kind, retry history, alternatives) to a fallback
// action. The policy is stateless; retry counters belong to the
// orchestrator.
type Policy struct {
	RetryLimit int
}

// NewPolicy creates a policy with the default retry limit of 2.
func NewPolicy() Policy {
	return Policy{RetryLimit: defaultRetryLimit}
}

// Decide classifies one failure. Detail suffixes on the error kind are
// ignored, so "decode_error:unexpected EOF" decides as "decode_error".
func (p Policy) Decide(errorKind string, taskType task.Type, modelID string, previousRetries int, altModel string) FallbackDecision {
	switch BaseKind(errorKind) {
	case KindDecodeError, KindSchemaFailure:
		if previousRetries < p.RetryLimit {
			return FallbackDecision{
				Action:     ActionRetry,
				Reason:     "Retry with the same configuration",
				RetryCount: previousRetries + 1,
			}
		}
		return FallbackDecision{Action: ActionAbort, Reason: "Retry limit exhausted"}

	case KindNoJSONCandidate, KindMissingField, KindTypeMismatch, KindEnumMismatch:
		return FallbackDecision{
			Action: ActionRepromptStrict,
			Reason: "Reprompt with stricter JSON instructions",
		}

	case KindConsistencyFailed:
		if altModel != "" {
			return FallbackDecision{
				Action:    ActionSwitchModel,
				Reason:    "Switch to an alternate model after consistency failure",
				NextModel: altModel,
			}
		}
		return FallbackDecision{
			Action: ActionShrinkContext,
			Reason: "Shrink context and retry after consistency failure",
		}

	default:
		return FallbackDecision{Action: ActionAbort, Reason: "Unrecoverable error kind"}
	}
}

// Orchestrator applies the fallback policy across a run. It is the sole
// authority advancing retry counters, keyed by task ID.
type Orchestrator struct {
	policy  Policy
	logger  *slog.Logger
	metrics *obs.Metrics

	mu      sync.Mutex
	retries map[string]int
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the slog logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithFallbackMetrics sets the Prometheus instruments.
func WithFallbackMetrics(m *obs.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an orchestrator around the given policy.
func NewOrchestrator(policy Policy, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		policy:  policy,
		logger:  slog.Default(),
		retries: make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve decides the fallback for one failed task and advances its retry
// counter when the decision is a retry. Counters only grow within a run.
func (o *Orchestrator) Resolve(ctx context.Context, errorKind string, t task.Task, altModel string) FallbackDecision {
	o.mu.Lock()
	previous := o.retries[t.TaskID]
	decision := o.policy.Decide(errorKind, t.TaskType, t.EffectiveModel(), previous, altModel)
	if decision.Action == ActionRetry {
		o.retries[t.TaskID] = decision.RetryCount
	}
	o.mu.Unlock()

	o.logger.Info("Fallback decision",
		"task_id", t.TaskID,
		"error_kind", errorKind,
		"action", decision.Action,
		"reason", decision.Reason,
		"retry_count", decision.RetryCount,
		"next_model", decision.NextModel)
	if o.metrics != nil {
		o.metrics.FallbackActions.WithLabelValues(string(decision.Action)).Inc()
	}
	return decision
}

// Retries reports the current retry count for a task.
func (o *Orchestrator) Retries(taskID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retries[taskID]
}
