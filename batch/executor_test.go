package batch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/docroute/task"
)

func TestExecuteSuccess(t *testing.T) {
	var invoked int
	exec := NewExecutor(func(context.Context, Plan) error {
		invoked++
		return nil
	})

	plans := []Plan{
		{ModelID: "M", Tasks: modelTasks("M", 400, 400), TotalTokens: 800},
	}
	results := exec.Execute(context.Background(), plans)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 1, invoked)
}

func TestExecuteOOMSplitsAtMidpoint(t *testing.T) {
	// The full batch fails with an OOM message; both halves succeed.
	exec := NewExecutor(func(_ context.Context, p Plan) error {
		if len(p.Tasks) > 2 {
			return errors.New("CUDA OOM: out of memory")
		}
		return nil
	})

	plan := Plan{ModelID: "M", Tasks: modelTasks("M", 500, 400, 300, 200), TotalTokens: 1400}
	results := exec.Execute(context.Background(), []Plan{plan})

	require.Len(t, results, 3)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.True(t, results[2].Success)

	assert.Equal(t, "Fallback split part A", results[1].Plan.Reason)
	assert.Equal(t, "Fallback split part B", results[2].Plan.Reason)
	assert.Len(t, results[1].Plan.Tasks, 2)
	assert.Len(t, results[2].Plan.Tasks, 2)
	assert.Equal(t, 900, results[1].Plan.TotalTokens)
	assert.Equal(t, 500, results[2].Plan.TotalTokens)
}

func TestExecuteSingleTaskOOMIsTerminal(t *testing.T) {
	var sunk []task.Task
	exec := NewExecutor(
		func(context.Context, Plan) error { return errors.New("oom") },
		WithFallbackSink(func(_ context.Context, tk task.Task, err error) {
			sunk = append(sunk, tk)
			assert.EqualError(t, err, "oom")
		}),
	)

	plan := Plan{ModelID: "M", Tasks: modelTasks("M", 900), TotalTokens: 900}
	results := exec.Execute(context.Background(), []Plan{plan})

	// No further split below one task; the failure surfaces to the sink.
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	require.Len(t, sunk, 1)
}

func TestExecuteNonOOMFailureRoutesToSink(t *testing.T) {
	var sunk []string
	exec := NewExecutor(
		func(context.Context, Plan) error { return errors.New("rate limited") },
		WithFallbackSink(func(_ context.Context, tk task.Task, _ error) {
			sunk = append(sunk, tk.TaskID)
		}),
	)

	plan := Plan{ModelID: "M", Tasks: modelTasks("M", 400, 300), TotalTokens: 700}
	results := exec.Execute(context.Background(), []Plan{plan})

	// A non-memory failure never splits; every task goes to the sink once.
	require.Len(t, results, 1)
	assert.Equal(t, "rate limited", results[0].Error)
	assert.Len(t, sunk, 2)
}

func TestExecuteParallelCollectsAllResults(t *testing.T) {
	exec := NewExecutor(
		func(context.Context, Plan) error { return nil },
		WithWorkers(4),
	)

	plans := make([]Plan, 8)
	for i := range plans {
		plans[i] = Plan{ModelID: "M", Tasks: modelTasks("M", 100), TotalTokens: 100}
	}
	results := exec.Execute(context.Background(), plans)

	require.Len(t, results, 8)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestBatchLoggerRecordsAndFlushes(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "logs", "batches.json")
	sampler := StaticSampler{Statuses: []GpuStatus{{FreeMB: 12000}}}
	logger := NewBatchLogger(outputPath, "batch-events", nil, sampler, nil)

	exec := NewExecutor(
		func(context.Context, Plan) error { return errors.New("timeout") },
		WithBatchLogger(logger),
	)
	plan := Plan{ModelID: "M", Tasks: modelTasks("M", 400), TotalTokens: 400, Reason: "Batch finalization"}
	exec.Execute(context.Background(), []Plan{plan})

	require.NoError(t, logger.Flush())
	require.FileExists(t, outputPath)

	require.Len(t, logger.records, 1)
	entry := logger.records[0]
	assert.Equal(t, "M", entry.ModelID)
	assert.Equal(t, 1, entry.BatchSize)
	assert.Equal(t, 400, entry.EstimatedTokens)
	assert.Equal(t, 400, entry.ActualTokens)
	assert.False(t, entry.Success)
	assert.Equal(t, "timeout", entry.Error)
	require.NotNil(t, entry.GpuFreeMemoryMB)
	assert.Equal(t, 12000, *entry.GpuFreeMemoryMB)
}

func TestBatchLoggerActualTokensSumTasks(t *testing.T) {
	logger := NewBatchLogger(filepath.Join(t.TempDir(), "batches.json"), "batch-events", nil, nil, nil)

	// A stale planner figure must not leak into the actual token sum.
	plan := Plan{ModelID: "M", Tasks: modelTasks("M", 300, 200), TotalTokens: 600, Reason: "Batch finalization"}
	logger.Record(context.Background(), Result{Plan: plan, Success: true})

	require.Len(t, logger.records, 1)
	assert.Equal(t, 600, logger.records[0].EstimatedTokens)
	assert.Equal(t, 500, logger.records[0].ActualTokens)
}

func TestParseSMIOutput(t *testing.T) {
	output := "0, NVIDIA A100, 40960, 10240, 30720\n1, NVIDIA A100, 40960, 40000, 960\n"
	statuses, err := parseSMIOutput(output)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "NVIDIA A100", statuses[0].Name)
	assert.Equal(t, 30720, statuses[0].FreeMB)
	assert.Equal(t, 1, statuses[1].Index)

	_, err = parseSMIOutput("not,enough")
	assert.Error(t, err)
}
