package batch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/docroute/obs"
	"github.com/c360studio/docroute/task"
)

// Split reasons stamped on sub-plans created after an OOM failure.
const (
	reasonSplitA = "Fallback split part A"
	reasonSplitB = "Fallback split part B"
)

// InferFunc runs inference for one plan. A non-nil error marks the whole
// plan as failed.
type InferFunc func(ctx context.Context, plan Plan) error

// FallbackSink receives the tasks of a plan that failed for a reason other
// than memory pressure, so the caller can re-queue or abort them.
type FallbackSink func(ctx context.Context, t task.Task, err error)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithFallbackSink sets the task-level sink invoked on non-OOM failures.
func WithFallbackSink(sink FallbackSink) ExecutorOption {
	return func(e *Executor) { e.sink = sink }
}

// WithExecutorLogger sets the slog logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithBatchLogger sets the persistent batch-event logger.
func WithBatchLogger(bl *BatchLogger) ExecutorOption {
	return func(e *Executor) { e.batchLog = bl }
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *obs.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithWorkers bounds concurrent plan execution. Values below 1 run plans
// serially.
func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) { e.workers = n }
}

// Executor runs batch plans against an inference callable and applies the
// out-of-memory split fallback. Plans execute independently; the tasks of a
// single plan are always handled by one worker.
type Executor struct {
	infer    InferFunc
	sink     FallbackSink
	logger   *slog.Logger
	batchLog *BatchLogger
	metrics  *obs.Metrics
	workers  int
}

// NewExecutor creates an executor around the given inference callable.
func NewExecutor(infer InferFunc, opts ...ExecutorOption) *Executor {
	e := &Executor{
		infer:   infer,
		logger:  slog.Default(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every plan and returns one Result per attempt, splits
// included. With more than one worker, plans run concurrently and result
// order across plans is not defined.
func (e *Executor) Execute(ctx context.Context, plans []Plan) []Result {
	if e.workers <= 1 || len(plans) <= 1 {
		var results []Result
		for _, plan := range plans {
			results = append(results, e.executePlan(ctx, plan)...)
		}
		return results
	}

	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, e.workers)
	for _, plan := range plans {
		wg.Add(1)
		go func(p Plan) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			attempts := e.executePlan(ctx, p)
			mu.Lock()
			results = append(results, attempts...)
			mu.Unlock()
		}(plan)
	}
	wg.Wait()
	return results
}

// executePlan runs one plan and any OOM sub-plans it spawns, in order.
func (e *Executor) executePlan(ctx context.Context, plan Plan) []Result {
	var results []Result

	pending := []Plan{plan}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]

		result := e.attempt(ctx, current)
		results = append(results, result)
		if result.Success {
			continue
		}

		if isOutOfMemory(result.Error) && len(current.Tasks) > 1 {
			partA, partB := splitPlan(current)
			e.logger.Warn("Batch hit memory limit, splitting",
				"model_id", current.ModelID,
				"batch_size", len(current.Tasks),
				"part_a", len(partA.Tasks),
				"part_b", len(partB.Tasks))
			pending = append(pending, partA, partB)
			continue
		}

		// Terminal for this plan: hand tasks to the fallback sink.
		if e.sink != nil {
			err := errorFromResult(result)
			for _, t := range current.Tasks {
				e.sink(ctx, t, err)
			}
		}
	}

	return results
}

// attempt invokes inference once for the plan and records the outcome.
func (e *Executor) attempt(ctx context.Context, plan Plan) Result {
	started := time.Now()
	err := e.infer(ctx, plan)
	elapsed := time.Since(started)

	result := Result{Plan: plan, Success: err == nil}
	if err != nil {
		result.Error = err.Error()
	}

	if e.metrics != nil {
		e.metrics.BatchSize.Observe(float64(len(plan.Tasks)))
		e.metrics.InferenceSec.Observe(elapsed.Seconds())
		if err == nil {
			e.metrics.TasksExecuted.Add(float64(len(plan.Tasks)))
		} else {
			e.metrics.TasksFailed.Add(float64(len(plan.Tasks)))
		}
	}
	if e.batchLog != nil {
		e.batchLog.Record(ctx, result)
	}

	return result
}

// splitPlan halves a plan at the midpoint, preserving packing order.
func splitPlan(plan Plan) (Plan, Plan) {
	mid := len(plan.Tasks) / 2
	partA := Plan{
		ModelID:     plan.ModelID,
		Tasks:       plan.Tasks[:mid],
		TotalTokens: EstimateTokens(plan.Tasks[:mid]),
		Reason:      reasonSplitA,
	}
	partB := Plan{
		ModelID:     plan.ModelID,
		Tasks:       plan.Tasks[mid:],
		TotalTokens: EstimateTokens(plan.Tasks[mid:]),
		Reason:      reasonSplitB,
	}
	return partA, partB
}

func isOutOfMemory(message string) bool {
	return strings.Contains(strings.ToLower(message), "oom")
}

type planError struct{ message string }

func (e planError) Error() string { return e.message }

func errorFromResult(r Result) error {
	return planError{message: r.Error}
}
