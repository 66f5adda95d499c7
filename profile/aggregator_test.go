package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/docroute/task"
)

func result(model string, taskType task.Type, latencyMS int, tokens int, errMsg string) BenchmarkResult {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return BenchmarkResult{
		ModelID:      model,
		TaskType:     taskType,
		DocumentID:   "doc",
		StartedAt:    started,
		FinishedAt:   started.Add(time.Duration(latencyMS) * time.Millisecond),
		InputTokens:  tokens,
		OutputTokens: 0,
		Error:        errMsg,
	}
}

func TestAggregateGroupsByModelAndTask(t *testing.T) {
	results := []BenchmarkResult{
		result("model-a", task.TypeExtraction, 100, 500, ""),
		result("model-a", task.TypeExtraction, 300, 700, ""),
		result("model-a", task.TypeSummarization, 50, 200, ""),
		result("model-b", task.TypeExtraction, 400, 900, "timeout"),
	}

	profiles := NewAggregator().Aggregate(results)
	require.Len(t, profiles, 2)

	extraction, ok := profiles["model-a"].Task(task.TypeExtraction)
	require.True(t, ok)
	assert.InDelta(t, 200, extraction.LatencyMS, 1e-6)
	assert.InDelta(t, 600, extraction.Tokens, 1e-6)
	assert.Zero(t, extraction.ErrorRate)
	assert.Equal(t, 2, extraction.Samples)

	summarization, ok := profiles["model-a"].Task(task.TypeSummarization)
	require.True(t, ok)
	assert.Equal(t, 1, summarization.Samples)

	failed, ok := profiles["model-b"].Task(task.TypeExtraction)
	require.True(t, ok)
	assert.InDelta(t, 1.0, failed.ErrorRate, 1e-6)
}

func TestAggregateIsDeterministic(t *testing.T) {
	results := []BenchmarkResult{
		result("model-a", task.TypeExtraction, 100, 500, ""),
		result("model-a", task.TypeExtraction, 200, 300, "oom"),
	}

	first := NewAggregator().Aggregate(results)
	second := NewAggregator().Aggregate(results)
	assert.Equal(t, first, second)
}

func TestAggregateEmptyInput(t *testing.T) {
	assert.Empty(t, NewAggregator().Aggregate(nil))
}

func TestStoreReplaceSwapsProfiles(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("model-a")
	assert.False(t, ok)

	store.Replace(map[string]ModelProfile{
		"model-a": {ModelID: "model-a"},
		"model-b": {ModelID: "model-b"},
	})
	assert.ElementsMatch(t, []string{"model-a", "model-b"}, store.Models())

	store.Replace(map[string]ModelProfile{"model-c": {ModelID: "model-c"}})
	_, ok = store.Get("model-a")
	assert.False(t, ok)
	_, ok = store.Get("model-c")
	assert.True(t, ok)
}

func TestDurationMS(t *testing.T) {
	r := result("m", task.TypeRAG, 1500, 0, "")
	assert.InDelta(t, 1500, r.DurationMS(), 1e-6)
}
