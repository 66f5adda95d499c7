package router

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/c360studio/docroute/profile"
	"github.com/c360studio/docroute/task"
)

// defaultMinContextTokens is the floor a candidate's benchmarked token
// capacity must clear when the document itself demands less.
const defaultMinContextTokens = 2000

// verdict strings shared between filters.
const verdictNoProfile = "no profile data; keeping candidate"

// Heuristic routes tasks through a three-stage filter pipeline: context
// capacity, latency, then selection by (failure rate, latency). It is a pure
// function over its inputs; per-candidate verdicts are carried in a side
// table and returned with the decision.
type Heuristic struct {
	minContextTokens int
	logger           *slog.Logger
}

// HeuristicOption configures a Heuristic router.
type HeuristicOption func(*Heuristic)

// WithMinContextTokens overrides the context-capacity floor.
func WithMinContextTokens(n int) HeuristicOption {
	return func(h *Heuristic) {
		h.minContextTokens = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HeuristicOption {
	return func(h *Heuristic) {
		h.logger = logger
	}
}

// NewHeuristic creates a router with default settings.
func NewHeuristic(opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{
		minContextTokens: defaultMinContextTokens,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Route runs the filter pipeline and returns a decision with one verdict per
// input candidate.
func (h *Heuristic) Route(in Inputs) Decision {
	verdicts := make([]string, len(in.CandidateModels))
	surviving := make([]int, 0, len(in.CandidateModels))

	// Stage 1: context filter. Candidates without benchmark evidence for
	// this task are kept.
	for i, candidate := range in.CandidateModels {
		taskProfile, ok := lookupTask(candidate, in.TaskType)
		if !ok {
			verdicts[i] = verdictNoProfile
			surviving = append(surviving, i)
			continue
		}

		capacity := taskProfile.Tokens
		required := h.minContextTokens
		if in.DocumentFeatures.TokenEstimate > required {
			required = in.DocumentFeatures.TokenEstimate
		}
		if capacity >= float64(required) {
			verdicts[i] = fmt.Sprintf("context capacity %.0f ok", capacity)
			surviving = append(surviving, i)
		} else {
			verdicts[i] = fmt.Sprintf("context capacity %.0f below required %d", capacity, required)
		}
	}

	if len(surviving) == 0 {
		return h.failed(in, verdicts, "No candidates passed context filter")
	}

	// Stage 2: latency filter. Inactive without a latency constraint.
	// Candidates without a latency estimate are kept.
	if maxLatency := in.Constraints.MaxLatencyMS; maxLatency != nil {
		kept := surviving[:0]
		for _, i := range surviving {
			latency := in.CandidateModels[i].ExpectedLatencyMS
			switch {
			case latency == nil:
				verdicts[i] = "no latency estimate; keeping candidate"
				kept = append(kept, i)
			case *latency <= *maxLatency:
				verdicts[i] = fmt.Sprintf("expected latency %.0fms within limit %.0fms", *latency, *maxLatency)
				kept = append(kept, i)
			default:
				verdicts[i] = fmt.Sprintf("expected latency %.0fms exceeds limit %.0fms", *latency, *maxLatency)
			}
		}
		surviving = kept

		if len(surviving) == 0 {
			return h.failed(in, verdicts, "No candidates passed latency filter")
		}
	}

	// Stage 3: selection by (failure rate, expected latency), ascending.
	// Missing failure rates sort as 1.0, missing latencies as +Inf.
	winner := surviving[0]
	if len(surviving) > 1 {
		ordered := append([]int(nil), surviving...)
		sort.SliceStable(ordered, func(a, b int) bool {
			fa, fb := sortKey(in.CandidateModels[ordered[a]]), sortKey(in.CandidateModels[ordered[b]])
			if fa.failureRate != fb.failureRate {
				return fa.failureRate < fb.failureRate
			}
			return fa.latency < fb.latency
		})
		winner = ordered[0]
	}

	decision := Decision{
		ModelID:    in.CandidateModels[winner].ModelID,
		Reason:     "Selected based on " + verdicts[winner],
		Candidates: verdictTable(in, verdicts),
	}

	h.logger.Debug("Routing decision",
		"task", in.TaskType,
		"model", decision.ModelID,
		"candidates", len(in.CandidateModels),
		"reason", decision.Reason)

	return decision
}

type selectionKey struct {
	failureRate float64
	latency     float64
}

func sortKey(c CandidateModel) selectionKey {
	key := selectionKey{failureRate: 1.0, latency: math.Inf(1)}
	if c.FailureRate != nil {
		key.failureRate = *c.FailureRate
	}
	if c.ExpectedLatencyMS != nil {
		key.latency = *c.ExpectedLatencyMS
	}
	return key
}

// lookupTask returns the benchmark profile for this task, when one exists.
func lookupTask(c CandidateModel, taskType task.Type) (profile.TaskProfile, bool) {
	if c.Profile == nil {
		return profile.TaskProfile{}, false
	}
	return c.Profile.Task(taskType)
}

func (h *Heuristic) failed(in Inputs, verdicts []string, reason string) Decision {
	h.logger.Debug("Routing failed", "task", in.TaskType, "reason", reason)
	return Decision{Reason: reason, Candidates: verdictTable(in, verdicts)}
}

func verdictTable(in Inputs, verdicts []string) []CandidateVerdict {
	table := make([]CandidateVerdict, len(in.CandidateModels))
	for i, candidate := range in.CandidateModels {
		reason := verdicts[i]
		if reason == "" {
			reason = "n/a"
		}
		table[i] = CandidateVerdict{ModelID: candidate.ModelID, Reason: reason}
	}
	return table
}
