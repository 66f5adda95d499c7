package batch

import (
	"context"
	"log/slog"
	"sort"

	"github.com/c360studio/docroute/task"
)

// Packing floors applied during adaptive downsizing.
const (
	minDownsizedBatch  = 1
	minDownsizedTokens = 512
)

// Seal reasons recorded on emitted plans.
const (
	reasonBatchLimit   = "Batch closed due to size or token limit"
	reasonFinalization = "Batch finalization"
)

// Plan is one executable batch: same-model tasks in packing order.
type Plan struct {
	ModelID     string      `json:"model_id"`
	Tasks       []task.Task `json:"tasks"`
	TotalTokens int         `json:"total_tokens"`
	Reason      string      `json:"reason"`
}

// Result is the outcome of executing one plan.
type Result struct {
	Plan    Plan   `json:"plan"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Planner assembles feasible batches from task snapshots, sized by GPU free
// memory, a batch cap, and a token cap. Planning is pure apart from the GPU
// probe.
type Planner struct {
	sampler Sampler
	logger  *slog.Logger
}

// NewPlanner creates a planner. A nil sampler disables GPU-based downsizing.
func NewPlanner(sampler Sampler, logger *slog.Logger) *Planner {
	if sampler == nil {
		sampler = StaticSampler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{sampler: sampler, logger: logger}
}

// Plan groups tasks by effective model and packs each group longest-first
// under the caps. When the first reported GPU has less free memory than
// minFreeMemoryMB, both caps are halved for this call (floors 1 and 512).
func (p *Planner) Plan(ctx context.Context, tasks []task.Task, maxBatchSize, maxTokensPerBatch, minFreeMemoryMB int) []Plan {
	if status := p.sampler.Sample(ctx); len(status) > 0 && status[0].FreeMB < minFreeMemoryMB {
		maxBatchSize = max(minDownsizedBatch, maxBatchSize/2)
		maxTokensPerBatch = max(minDownsizedTokens, maxTokensPerBatch/2)
		p.logger.Info("Low GPU memory, downsizing batches",
			"free_mb", status[0].FreeMB,
			"min_free_mb", minFreeMemoryMB,
			"max_batch_size", maxBatchSize,
			"max_tokens_per_batch", maxTokensPerBatch)
	}

	var plans []Plan
	for modelID, bucket := range groupByModel(tasks) {
		// Longest-first packing reduces padding waste.
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].TokenEstimate > bucket[j].TokenEstimate
		})

		var current []task.Task
		tokenCount := 0
		for _, t := range bucket {
			if len(current) >= maxBatchSize || tokenCount+t.TokenEstimate > maxTokensPerBatch {
				if len(current) > 0 {
					plans = append(plans, Plan{
						ModelID:     modelID,
						Tasks:       current,
						TotalTokens: tokenCount,
						Reason:      reasonBatchLimit,
					})
				}
				current = nil
				tokenCount = 0
			}
			current = append(current, t)
			tokenCount += t.TokenEstimate
		}

		if len(current) > 0 {
			plans = append(plans, Plan{
				ModelID:     modelID,
				Tasks:       current,
				TotalTokens: tokenCount,
				Reason:      reasonFinalization,
			})
		}
	}

	return plans
}

func groupByModel(tasks []task.Task) map[string][]task.Task {
	grouped := make(map[string][]task.Task)
	for _, t := range tasks {
		key := t.EffectiveModel()
		grouped[key] = append(grouped[key], t)
	}
	return grouped
}
